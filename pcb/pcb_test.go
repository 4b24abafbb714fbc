package pcb

import (
	"testing"

	"pennsim/proctypes"
)

func TestCreateInitHasNoParent(t *testing.T) {
	table := NewTable(4)
	init, err := table.Create(nil, "init", nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if init.PID != proctypes.InitPID {
		t.Fatalf("expected init PID %d, got %d", proctypes.InitPID, init.PID)
	}
	if init.Parent != nil {
		t.Fatalf("init should have no parent")
	}
}

func TestCreateChildInheritsFDTable(t *testing.T) {
	table := NewTable(4)
	parent, _ := table.Create(nil, "init", nil)
	parent.FDTable[3] = 7

	child, err := table.Create(parent, "sh", []string{"sh"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if child.PPID != parent.PID {
		t.Fatalf("expected PPID %d, got %d", parent.PID, child.PPID)
	}
	if child.FDTable[3] != 7 {
		t.Fatalf("child should inherit parent's FD table by value")
	}
	if !parent.Children.Contains(child) {
		t.Fatalf("parent should list child")
	}

	// Mutating the child's table must not affect the parent's, since
	// the inherited table is a value copy, not a shared reference.
	child.FDTable[4] = 9
	if parent.FDTable[4] == 9 {
		t.Fatalf("FD tables should not alias between parent and child")
	}
}

func TestTableFullAfterCapacity(t *testing.T) {
	table := NewTable(1)
	if _, err := table.Create(nil, "init", nil); err != nil {
		t.Fatalf("first create should succeed: %v", err)
	}
	if _, err := table.Create(nil, "second", nil); err == nil {
		t.Fatalf("expected table-full error on second create")
	}
}

func TestFreeAndLive(t *testing.T) {
	table := NewTable(4)
	a, _ := table.Create(nil, "a", nil)
	b, _ := table.Create(nil, "b", nil)

	if len(table.Live()) != 2 {
		t.Fatalf("expected 2 live PCBs, got %d", len(table.Live()))
	}
	table.Free(a.PID)
	if _, ok := table.Get(a.PID); ok {
		t.Fatalf("freed PID should no longer resolve")
	}
	if len(table.Live()) != 1 || table.Live()[0].PID != b.PID {
		t.Fatalf("expected only b to remain live")
	}
}

func TestNilAllParentPointers(t *testing.T) {
	table := NewTable(4)
	parent, _ := table.Create(nil, "init", nil)
	child, _ := table.Create(parent, "sh", nil)

	table.NilAllParentPointers()
	if child.Parent != nil {
		t.Fatalf("expected child.Parent to be nil after NilAllParentPointers")
	}
}
