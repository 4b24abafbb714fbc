// Package scheduler implements the single-threaded cooperative
// scheduler: a weighted 9:6:4 pick across three ready-priority levels,
// a run-one-slice state machine driven by a ~100ms host timer, idle
// handling, and the host-signal relay that maps a handful of OS
// signals onto kernel signals delivered to the foreground process.
package scheduler

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"pennsim/eventlog"
	"pennsim/ksignal"
	"pennsim/pcb"
	"pennsim/process"
	"pennsim/proctypes"
	"pennsim/queue"
)

// slice is how long a running user thread is given before the
// scheduler reclaims it.
const slice = 100 * time.Millisecond

// weights realizes the 9:6:4 fairness ratio across High, Medium, Low.
var weights = [proctypes.NumPriorities]int{9, 6, 4}

// buildSchedule returns a fixed-length sequence over the three
// priority levels whose per-level occurrence counts match weights,
// interleaved by normalized progress so no level runs in one
// unbroken block.
func buildSchedule(weights [proctypes.NumPriorities]int) []proctypes.Priority {
	total := 0
	for _, w := range weights {
		total += w
	}
	var occ [proctypes.NumPriorities]int
	seq := make([]proctypes.Priority, total)
	for i := 0; i < total; i++ {
		best := -1
		bestScore := 0.0
		for lvl := 0; lvl < proctypes.NumPriorities; lvl++ {
			if weights[lvl] == 0 || occ[lvl] >= weights[lvl] {
				continue
			}
			score := float64(occ[lvl]+1) / float64(weights[lvl])
			if best == -1 || score < bestScore {
				best = lvl
				bestScore = score
			}
		}
		seq[i] = proctypes.Priority(best)
		occ[best]++
	}
	return seq
}

// Scheduler owns the run-one-slice loop.
type Scheduler struct {
	queues    *queue.Queues
	table     *pcb.Table
	lifecycle *process.Lifecycle
	log       *eventlog.Log
	logger    *logrus.Entry

	schedule []proctypes.Priority
	cursor   int
	tick     int
	shutdown bool
	current  *pcb.PCB

	hostSignals chan os.Signal
	ticker      *time.Ticker
	foreground  proctypes.PID
}

// New wires a scheduler to its subsystems and installs the host-signal
// relay.
func New(queues *queue.Queues, table *pcb.Table, lifecycle *process.Lifecycle, log *eventlog.Log, logger *logrus.Entry) *Scheduler {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	hostSignals := make(chan os.Signal, 8)
	signal.Notify(hostSignals, syscall.SIGINT, syscall.SIGTSTP, syscall.SIGQUIT)
	return &Scheduler{
		queues:      queues,
		table:       table,
		lifecycle:   lifecycle,
		log:         log,
		logger:      logger,
		schedule:    buildSchedule(weights),
		hostSignals: hostSignals,
		ticker:      time.NewTicker(slice),
	}
}

// Stop releases the host-signal relay and timer; call once at process
// exit.
func (s *Scheduler) Stop() {
	signal.Stop(s.hostSignals)
	s.ticker.Stop()
}

// RequestShutdown sets the shutdown flag the loop checks each
// iteration.
func (s *Scheduler) RequestShutdown() { s.shutdown = true }

// SetForeground records which process currently "owns" the terminal,
// the target of host-signal relay.
func (s *Scheduler) SetForeground(pid proctypes.PID) { s.foreground = pid }

// Tick returns the current scheduler tick count.
func (s *Scheduler) Tick() int { return s.tick }

// Current returns the PCB presently RUNNING, or nil between slices.
func (s *Scheduler) Current() *pcb.PCB { return s.current }

// Run drives the scheduler until shutdown is requested.
func (s *Scheduler) Run() {
	for s.RunOneSlice() {
	}
}

// RunOneSlice executes one iteration of the scheduler's run-one-slice
// state machine. It returns false once the shutdown flag has been
// observed.
func (s *Scheduler) RunOneSlice() bool {
	s.drainHostSignals()
	if s.shutdown {
		return false
	}

	lvl, ok := s.pick()
	if !ok {
		s.idle()
		s.queues.TickSleepCheck(s.tick)
		s.tick++
		return true
	}

	p, _ := s.queues.Dequeue(lvl)
	p.State = proctypes.Running
	s.current = p
	s.log.Append(eventlog.Record{
		Tick: s.tick, Event: eventlog.EventSchedule, PID: p.PID, PPID: p.PPID,
		State: p.State, Priority: p.Priority, Command: p.Command,
	})

	if p.Thread != nil {
		p.Thread.Continue()
		<-s.ticker.C
		p.Thread.Suspend()
	}

	s.queues.TickSleepCheck(s.tick)
	if p.State == proctypes.Running {
		p.State = proctypes.Ready
		s.queues.Enqueue(p)
	}
	s.current = nil
	s.tick++
	return true
}

// pick advances the rotating cursor until it names a non-empty ready
// sequence, or exhausts one full revolution.
func (s *Scheduler) pick() (proctypes.Priority, bool) {
	for i := 0; i < len(s.schedule); i++ {
		lvl := s.schedule[s.cursor]
		s.cursor = (s.cursor + 1) % len(s.schedule)
		if s.queues.ReadyLen(lvl) > 0 {
			return lvl, true
		}
	}
	return 0, false
}

// idle blocks until either a host signal or the next tick arrives.
func (s *Scheduler) idle() {
	select {
	case sig := <-s.hostSignals:
		s.handleHostSignal(sig)
	case <-s.ticker.C:
	}
}

func (s *Scheduler) drainHostSignals() {
	for {
		select {
		case sig := <-s.hostSignals:
			s.handleHostSignal(sig)
		default:
			return
		}
	}
}

// handleHostSignal maps a relayed OS signal onto a kernel signal and
// delivers it to the foreground process. Ignored if no valid
// foreground process is set, or if it is init.
func (s *Scheduler) handleHostSignal(sig os.Signal) {
	if s.foreground <= 0 || s.foreground == proctypes.InitPID {
		return
	}
	target, ok := s.table.Get(s.foreground)
	if !ok {
		return
	}
	var ksig ksignal.Signal
	switch sig {
	case syscall.SIGINT, syscall.SIGQUIT:
		ksig = ksignal.Term
	case syscall.SIGTSTP:
		ksig = ksignal.Stop
	default:
		return
	}
	ksignal.Deliver(s.queues, target, ksig, s.lifecycle.Terminate, s.tick)
	s.logger.WithFields(logrus.Fields{"pid": target.PID, "signal": sig}).Debug("host signal relayed")
}
