// Package queue implements the three priority-ordered ready sequences
// and the single blocked sequence that back the scheduler, built on
// top of seq.Seq.
package queue

import (
	"fmt"

	"pennsim/eventlog"
	"pennsim/errno"
	"pennsim/pcb"
	"pennsim/proctypes"
	"pennsim/seq"
)

// Queues holds the scheduler's ready and blocked sets. It is only ever
// touched by the scheduler loop while the current user thread is
// suspended, so it needs no internal locking.
type Queues struct {
	ready   [proctypes.NumPriorities]*seq.Seq[*pcb.PCB]
	blocked *seq.Seq[*pcb.PCB]
	log     *eventlog.Log
}

// New returns empty ready/blocked sequences that log transitions to log.
func New(log *eventlog.Log) *Queues {
	q := &Queues{blocked: seq.New[*pcb.PCB](), log: log}
	for i := range q.ready {
		q.ready[i] = seq.New[*pcb.PCB]()
	}
	return q
}

// Enqueue appends p to its priority's ready sequence. It is a no-op
// unless p is READY with a valid priority.
func (q *Queues) Enqueue(p *pcb.PCB) {
	if p.State != proctypes.Ready || !p.Priority.Valid() {
		return
	}
	q.ready[p.Priority].Append(p)
}

// Dequeue pops the head of priority's ready sequence.
func (q *Queues) Dequeue(priority proctypes.Priority) (*pcb.PCB, bool) {
	return q.ready[priority].PopFront()
}

// ReadyLen reports how many processes are ready at priority.
func (q *Queues) ReadyLen(priority proctypes.Priority) int {
	return q.ready[priority].Len()
}

// Block moves p to BLOCKED. It is a no-op if p is already BLOCKED, so
// a caller spinning on CheckPoint between re-checking its wait
// condition can call Block on every iteration without re-appending
// itself to the blocked sequence each time.
func (q *Queues) Block(p *pcb.PCB, tick int) {
	if p.State == proctypes.Blocked {
		return
	}
	p.State = proctypes.Blocked
	q.removeFromReady(p)
	q.blocked.Append(p)
	q.logTransition(tick, eventlog.EventBlocked, p)
}

// Unblock moves p back to READY and enqueues it.
func (q *Queues) Unblock(p *pcb.PCB, tick int) {
	q.blocked.RemoveValue(p)
	p.State = proctypes.Ready
	q.Enqueue(p)
	q.logTransition(tick, eventlog.EventUnblocked, p)
}

// Stop moves p to STOPPED and, if its parent is blocked indefinitely,
// wakes the parent so wait() observes the state change.
func (q *Queues) Stop(p *pcb.PCB, parent *pcb.PCB, tick int) {
	p.State = proctypes.Stopped
	p.StoppedReported = false
	q.removeFromReady(p)
	q.blocked.RemoveValue(p)
	if parent != nil && parent.State == proctypes.Blocked && parent.WakeTick == 0 {
		q.Unblock(parent, tick)
	}
	q.logTransition(tick, eventlog.EventStopped, p)
}

// Continue moves p from STOPPED back to READY. It is a no-op unless p
// is currently STOPPED.
func (q *Queues) Continue(p *pcb.PCB, tick int) {
	if p.State != proctypes.Stopped {
		return
	}
	p.State = proctypes.Ready
	q.Enqueue(p)
	q.logTransition(tick, eventlog.EventContinued, p)
}

// TickSleepCheck scans the blocked sequence and unblocks every process
// whose wake-tick has arrived.
func (q *Queues) TickSleepCheck(now int) {
	var due []*pcb.PCB
	q.blocked.Each(func(p *pcb.PCB) {
		if p.WakeTick > 0 && p.WakeTick <= now {
			due = append(due, p)
		}
	})
	for _, p := range due {
		p.WakeTick = 0
		q.Unblock(p, now)
	}
}

// SetPriority re-homes p between ready sequences if it is currently
// READY, and always logs the change.
func (q *Queues) SetPriority(p *pcb.PCB, newPriority proctypes.Priority, tick int) error {
	if !newPriority.Valid() {
		return errno.InvalidArgument
	}
	old := p.Priority
	if p.State == proctypes.Ready {
		q.ready[old].RemoveValue(p)
		p.Priority = newPriority
		q.ready[newPriority].Append(p)
	} else {
		p.Priority = newPriority
	}
	q.log.Append(eventlog.Record{
		Tick: tick, Event: eventlog.EventNice, PID: p.PID, PPID: p.PPID,
		State: p.State, Priority: newPriority, Command: p.Command,
		Detail: fmt.Sprintf("old=%d new=%d", old, newPriority),
	})
	return nil
}

// RemoveFromQueues drops p from every ready sequence and the blocked
// sequence, used just before a process becomes ZOMBIE.
func (q *Queues) RemoveFromQueues(p *pcb.PCB) {
	q.removeFromReady(p)
	q.blocked.RemoveValue(p)
}

func (q *Queues) removeFromReady(p *pcb.PCB) {
	for i := range q.ready {
		q.ready[i].RemoveValue(p)
	}
}

func (q *Queues) logTransition(tick int, event string, p *pcb.PCB) {
	q.log.Append(eventlog.Record{
		Tick: tick, Event: event, PID: p.PID, PPID: p.PPID,
		State: p.State, Priority: p.Priority, Command: p.Command,
	})
}
