// Package process implements PCB lifecycle operations: create,
// terminate, reap, adopt, kill-all.
//
// Terminate must close every FD >= 3 in the dying process's table
// before the PCB becomes a ZOMBIE, or a GDT entry (and, for a
// deferred-delete file, its FAT chain) would be pinned forever.
package process

import (
	"pennsim/eventlog"
	"pennsim/errno"
	"pennsim/fat"
	"pennsim/fileops"
	"pennsim/gdt"
	"pennsim/pcb"
	"pennsim/proctypes"
	"pennsim/queue"
	"pennsim/seq"
)

// Lifecycle ties the PCB table, queues, GDT, and filesystem together
// for process create/terminate/reap.
type Lifecycle struct {
	Table  *pcb.Table
	Queues *queue.Queues
	GDT    *gdt.Table
	FS     *fat.FS
	Log    *eventlog.Log
}

// New returns a Lifecycle wired to the given subsystems.
func New(table *pcb.Table, queues *queue.Queues, gdtTable *gdt.Table, fs *fat.FS, log *eventlog.Log) *Lifecycle {
	return &Lifecycle{Table: table, Queues: queues, GDT: gdtTable, FS: fs, Log: log}
}

// Create allocates a new PCB under parent (nil only for init).
func (l *Lifecycle) Create(parent *pcb.PCB, command string, argv []string, tick int) (*pcb.PCB, error) {
	p, err := l.Table.Create(parent, command, argv)
	if err != nil {
		return nil, err
	}
	p.StartTick = tick
	l.Log.Append(eventlog.Record{
		Tick: tick, Event: eventlog.EventCreate, PID: p.PID, PPID: p.PPID,
		State: p.State, Priority: p.Priority, Command: p.Command,
	})
	return p, nil
}

// Terminate transitions p to ZOMBIE, closing every FD >= 3, adopting
// p's children to init, and waking any parent blocked indefinitely on
// this process's state change. Idempotent once p is already ZOMBIE.
func (l *Lifecycle) Terminate(p *pcb.PCB, tick int) {
	if p.State == proctypes.Zombie {
		return
	}
	if p.ExitStatus == proctypes.ExitSignaled && p.Thread != nil {
		p.Thread.Cancel()
	}

	l.Queues.RemoveFromQueues(p)

	for fd := 3; fd < pcb.FDTableSize; fd++ {
		key := p.FDTable[fd]
		if key == pcb.EmptyFD {
			continue
		}
		// Best-effort: termination proceeds regardless, and the GDT slot
		// is released even when Close failed before freeing it.
		if err := fileops.Close(l.FS, l.GDT, key); err != nil {
			l.GDT.Free(key)
		}
		p.FDTable[fd] = pcb.EmptyFD
	}
	p.State = proctypes.Zombie

	init := l.Table.Init()
	for _, child := range p.Children.Slice() {
		child.Parent = init
		child.PPID = proctypes.InitPID
		if init != nil {
			init.Children.Append(child)
		}
		l.Log.Append(eventlog.Record{
			Tick: tick, Event: eventlog.EventOrphan, PID: child.PID, PPID: proctypes.InitPID,
			State: child.State, Priority: child.Priority, Command: child.Command,
		})
	}
	p.Children = seq.New[*pcb.PCB]()

	if init != nil && hasZombieChild(init) && init.State == proctypes.Blocked && init.WakeTick == 0 {
		l.Queues.Unblock(init, tick)
	}
	if p.Parent != nil && p.Parent.State == proctypes.Blocked && p.Parent.WakeTick == 0 {
		l.Queues.Unblock(p.Parent, tick)
	}
}

func hasZombieChild(p *pcb.PCB) bool {
	for i := 0; i < p.Children.Len(); i++ {
		if p.Children.At(i).State == proctypes.Zombie {
			return true
		}
	}
	return false
}

// Reap removes child from parent's child sequence, joins its user
// thread, and frees its PCB-table slot. The caller (the wait() syscall)
// is responsible for having already confirmed child is a ZOMBIE child
// of parent.
func (l *Lifecycle) Reap(parent *pcb.PCB, child *pcb.PCB, tick int) error {
	if child.State != proctypes.Zombie {
		return errno.InvalidArgument
	}
	if !parent.Children.RemoveValue(child) {
		return errno.NoChild
	}
	l.Log.Append(eventlog.Record{
		Tick: tick, Event: eventlog.EventWaited, PID: child.PID, PPID: child.PPID,
		State: child.State, Priority: child.Priority, Command: child.Command,
	})
	if child.Thread != nil {
		child.Thread.Join()
	}
	l.Table.Free(child.PID)
	return nil
}

// KillAll cancels every live user thread, severs parent back-
// references, and frees every PCB; used only at shutdown.
func (l *Lifecycle) KillAll() {
	live := l.Table.Live()
	for _, p := range live {
		if p.Thread != nil {
			p.Thread.Cancel()
		}
	}
	for _, p := range live {
		if p.Thread != nil {
			p.Thread.Join()
		}
	}
	l.Table.NilAllParentPointers()
	for _, p := range live {
		l.Table.Free(p.PID)
	}
}
