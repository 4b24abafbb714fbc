// Package ksignal implements kernel signal delivery to a PCB: term,
// stop, cont, and child-state-change. These are distinct from host OS
// signals — ksignal.Deliver is called by the scheduler after mapping a
// relayed host signal, and directly by kill().
package ksignal

import (
	"pennsim/pcb"
	"pennsim/proctypes"
	"pennsim/queue"
)

// Signal is one of the four kernel signal kinds.
type Signal int

const (
	Term Signal = iota
	Stop
	Cont
	ChildStateChange
)

// Deliver applies sig to target. term runs through the caller-supplied
// terminate callback, since it requires coordinating with process
// lifecycle beyond what this package owns; stop and cont act on q
// directly.
func Deliver(q *queue.Queues, target *pcb.PCB, sig Signal, terminate func(*pcb.PCB, int), tick int) {
	switch sig {
	case Term:
		if target.State == proctypes.Zombie {
			return
		}
		target.ExitStatus = proctypes.ExitSignaled
		terminate(target, tick)
	case Stop:
		if target.State == proctypes.Zombie {
			return
		}
		q.Stop(target, target.Parent, tick)
	case Cont:
		if target.State != proctypes.Stopped {
			return
		}
		q.Continue(target, tick)
	case ChildStateChange:
		// No direct action; a blocked wait() observes the state change
		// on its own next scan.
	}
}
