package process

import (
	"path/filepath"
	"testing"

	"pennsim/eventlog"
	"pennsim/fat"
	"pennsim/gdt"
	"pennsim/pcb"
	"pennsim/proctypes"
	"pennsim/queue"
)

func newLifecycle(t *testing.T) *Lifecycle {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.img")
	if err := fat.New(nil).Mkfs(path, 1, 0); err != nil {
		t.Fatalf("Mkfs failed: %v", err)
	}
	fs := fat.New(nil)
	gdtTable := gdt.NewTable(16)
	if err := fs.Mount(path, gdtTable); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	t.Cleanup(func() { fs.Unmount(gdtTable) })

	table := pcb.NewTable(16)
	log := eventlog.New(nil)
	queues := queue.New(log)
	return New(table, queues, gdtTable, fs, log)
}

func TestCreateLogsAndSetsStartTick(t *testing.T) {
	l := newLifecycle(t)
	p, err := l.Create(nil, "init", nil, 5)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if p.StartTick != 5 {
		t.Fatalf("expected StartTick 5, got %d", p.StartTick)
	}
	if l.Log.CountByEvent(eventlog.EventCreate) != 1 {
		t.Fatalf("expected a CREATE event to be logged")
	}
}

func TestTerminateReparentsChildrenToInit(t *testing.T) {
	l := newLifecycle(t)
	init, _ := l.Create(nil, "init", nil, 0)
	mid, _ := l.Create(init, "mid", nil, 0)
	leaf, _ := l.Create(mid, "leaf", nil, 0)

	l.Terminate(mid, 1)

	if mid.State != proctypes.Zombie {
		t.Fatalf("expected mid ZOMBIE, got %v", mid.State)
	}
	if leaf.Parent != init {
		t.Fatalf("expected leaf reparented to init")
	}
	if !init.Children.Contains(leaf) {
		t.Fatalf("expected init's children to include the orphaned leaf")
	}
	if l.Log.CountByEvent(eventlog.EventOrphan) != 1 {
		t.Fatalf("expected an ORPHAN event")
	}
}

func TestTerminateIsIdempotent(t *testing.T) {
	l := newLifecycle(t)
	p, _ := l.Create(nil, "a", nil, 0)
	l.Terminate(p, 1)
	before := len(l.Log.Records())
	l.Terminate(p, 2) // should be a no-op the second time
	if len(l.Log.Records()) != before {
		t.Fatalf("terminating an already-ZOMBIE process should not log again")
	}
}

func TestTerminateClosesOpenFDs(t *testing.T) {
	l := newLifecycle(t)
	p, _ := l.Create(nil, "a", nil, 0)

	key, err := l.GDT.Alloc(&gdt.Entry{Name: "f.txt", DirOffset: -1})
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	p.FDTable[3] = key

	l.Terminate(p, 1)
	if _, ok := l.GDT.Get(key); ok {
		t.Fatalf("expected the GDT entry to be freed on terminate")
	}
	if p.FDTable[3] != pcb.EmptyFD {
		t.Fatalf("expected the FD slot cleared on terminate")
	}
}

func TestReapRemovesFromParentAndFreesSlot(t *testing.T) {
	l := newLifecycle(t)
	parent, _ := l.Create(nil, "parent", nil, 0)
	child, _ := l.Create(parent, "child", nil, 0)
	l.Terminate(child, 1)

	if err := l.Reap(parent, child, 2); err != nil {
		t.Fatalf("Reap failed: %v", err)
	}
	if parent.Children.Contains(child) {
		t.Fatalf("expected child removed from parent's children")
	}
	if _, ok := l.Table.Get(child.PID); ok {
		t.Fatalf("expected child's PCB slot freed")
	}
}

func TestReapNonZombieFails(t *testing.T) {
	l := newLifecycle(t)
	parent, _ := l.Create(nil, "parent", nil, 0)
	child, _ := l.Create(parent, "child", nil, 0)

	if err := l.Reap(parent, child, 1); err == nil {
		t.Fatalf("expected an error reaping a non-ZOMBIE child")
	}
}
