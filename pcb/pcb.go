// Package pcb implements the process control block and its fixed-
// capacity table. The table exclusively owns each PCB it holds; every
// other pointer to a PCB (Parent, a child-sequence entry) is a plain,
// non-owning reference.
package pcb

import (
	"pennsim/errno"
	"pennsim/gdt"
	"pennsim/proctypes"
	"pennsim/seq"
	"pennsim/uthread"
)

// FDTableSize is the fixed size of each process's file-descriptor
// table.
const FDTableSize = 32

// EmptyFD is the sentinel stored in an unused FD-table slot.
const EmptyFD gdt.Key = -1

// PCB is one process control block.
type PCB struct {
	PID      proctypes.PID
	PPID     proctypes.PID
	Parent   *PCB // non-owning back-reference; nil only for init
	State    proctypes.State
	Priority proctypes.Priority

	// WakeTick is 0 when not sleeping, otherwise the absolute tick at
	// which the scheduler should wake this process.
	WakeTick int

	// StoppedReported is a one-shot edge consumed by wait() the first
	// time it observes this process as STOPPED.
	StoppedReported bool

	ExitStatus proctypes.ExitStatus
	// TermSignal is the kernel signal number that drove ExitSignaled.
	TermSignal int

	// StartTick is the tick at which this PCB was created.
	StartTick int

	Command string
	Argv    []string

	Children *seq.Seq[*PCB]

	FDTable [FDTableSize]gdt.Key

	Thread *uthread.Thread
}

// NewFDTable returns an FD table with every slot empty.
func NewFDTable() [FDTableSize]gdt.Key {
	var t [FDTableSize]gdt.Key
	for i := range t {
		t[i] = EmptyFD
	}
	return t
}

// Table is the fixed-capacity PID -> PCB mapping. It is the sole owner
// of every PCB it holds.
type Table struct {
	slots   []*PCB // indexed directly by PID; slots[0] is always nil
	nextPID proctypes.PID
	cap     int
}

// NewTable returns an empty table that can hold up to capacity live
// PCBs, with PIDs 1..capacity.
func NewTable(capacity int) *Table {
	return &Table{
		slots:   make([]*PCB, capacity+1),
		nextPID: 1,
		cap:     capacity,
	}
}

// Create allocates a new PCB in state READY (not yet enqueued),
// parented to parent (nil only for init).
func (t *Table) Create(parent *PCB, command string, argv []string) (*PCB, error) {
	if t.nextPID > proctypes.PID(t.cap) {
		return nil, errno.TableFull
	}
	pid := t.nextPID
	t.nextPID++

	p := &PCB{
		PID:      pid,
		State:    proctypes.Ready,
		Priority: proctypes.PriorityMedium,
		Command:  command,
		Argv:     append([]string(nil), argv...),
		Children: seq.New[*PCB](),
		FDTable:  NewFDTable(),
	}
	if parent != nil {
		p.PPID = parent.PID
		p.Parent = parent
		p.FDTable = parent.FDTable // inherit by value copy
		parent.Children.Append(p)
	}

	t.slots[pid] = p
	return p, nil
}

// Get returns the PCB for pid, or ok=false if no such live process.
func (t *Table) Get(pid proctypes.PID) (*PCB, bool) {
	if pid <= 0 || int(pid) >= len(t.slots) {
		return nil, false
	}
	p := t.slots[pid]
	return p, p != nil
}

// Free clears pid's slot.
func (t *Table) Free(pid proctypes.PID) {
	if pid > 0 && int(pid) < len(t.slots) {
		t.slots[pid] = nil
	}
}

// Live returns every currently-allocated PCB, in PID order, used by
// kill_all and debugging.
func (t *Table) Live() []*PCB {
	var out []*PCB
	for _, p := range t.slots {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// Init returns the init PCB (PID 1), or nil if it has not been created
// yet.
func (t *Table) Init() *PCB {
	p, _ := t.Get(proctypes.InitPID)
	return p
}

// NilAllParentPointers clears every PCB's Parent back-reference, used
// before the whole table is torn down to avoid dangling traversal.
func (t *Table) NilAllParentPointers() {
	for _, p := range t.slots {
		if p != nil {
			p.Parent = nil
		}
	}
}
