package ksignal

import (
	"testing"

	"pennsim/eventlog"
	"pennsim/pcb"
	"pennsim/proctypes"
	"pennsim/queue"
)

func TestDeliverTermCallsTerminate(t *testing.T) {
	table := pcb.NewTable(4)
	q := queue.New(eventlog.New(nil))
	p, _ := table.Create(nil, "a", nil)
	q.Enqueue(p)

	var terminated *pcb.PCB
	terminate := func(target *pcb.PCB, tick int) { terminated = target }

	Deliver(q, p, Term, terminate, 1)
	if terminated != p {
		t.Fatalf("expected terminate callback invoked with the target")
	}
	if p.ExitStatus != proctypes.ExitSignaled {
		t.Fatalf("expected ExitStatus=ExitSignaled, got %v", p.ExitStatus)
	}
}

func TestDeliverTermOnZombieIsNoOp(t *testing.T) {
	table := pcb.NewTable(4)
	q := queue.New(eventlog.New(nil))
	p, _ := table.Create(nil, "a", nil)
	p.State = proctypes.Zombie

	called := false
	Deliver(q, p, Term, func(*pcb.PCB, int) { called = true }, 1)
	if called {
		t.Fatalf("terminate should not be called for an already-ZOMBIE target")
	}
}

func TestDeliverStopMovesToStopped(t *testing.T) {
	table := pcb.NewTable(4)
	q := queue.New(eventlog.New(nil))
	p, _ := table.Create(nil, "a", nil)
	q.Enqueue(p)

	Deliver(q, p, Stop, nil, 1)
	if p.State != proctypes.Stopped {
		t.Fatalf("expected STOPPED, got %v", p.State)
	}
}

func TestDeliverContResumesOnlyIfStopped(t *testing.T) {
	table := pcb.NewTable(4)
	q := queue.New(eventlog.New(nil))
	p, _ := table.Create(nil, "a", nil)
	p.State = proctypes.Running

	Deliver(q, p, Cont, nil, 1)
	if p.State == proctypes.Ready {
		t.Fatalf("Cont should be a no-op for a process that was never stopped")
	}

	p.State = proctypes.Stopped
	Deliver(q, p, Cont, nil, 2)
	if p.State != proctypes.Ready {
		t.Fatalf("expected READY after Cont on a STOPPED process, got %v", p.State)
	}
}
