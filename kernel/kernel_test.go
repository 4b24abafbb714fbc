package kernel

import (
	"path/filepath"
	"testing"
	"time"

	"pennsim/gdt"
	"pennsim/pcb"
	"pennsim/proctypes"
	"pennsim/uthread"
)

func bootTestKernel(t *testing.T) *Context {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.img")
	if err := Mkfs(path, 1, 0); err != nil {
		t.Fatalf("Mkfs failed: %v", err)
	}
	ctx, err := Boot(path)
	if err != nil {
		t.Fatalf("Boot failed: %v", err)
	}
	t.Cleanup(func() { ctx.Shutdown() })
	return ctx
}

func TestBootCreatesInitAndIdle(t *testing.T) {
	ctx := bootTestKernel(t)

	if ctx.Init.PID != proctypes.InitPID {
		t.Fatalf("expected init PID %d, got %d", proctypes.InitPID, ctx.Init.PID)
	}
	if ctx.Idle.Priority != proctypes.PriorityLow {
		t.Fatalf("expected idle process to run at low priority, got %v", ctx.Idle.Priority)
	}
	if ctx.Idle.Parent != ctx.Init {
		t.Fatalf("expected idle to be a child of init")
	}
}

func TestSpawnRunWaitRoundTrip(t *testing.T) {
	ctx := bootTestKernel(t)

	// init's own thread reaps any ZOMBIE child it sees, so the waiting
	// parent here is a separate, thread-less PCB under init.
	parent, err := ctx.Lifecycle.Create(ctx.Init, "parent", nil, ctx.Scheduler.Tick())
	if err != nil {
		t.Fatalf("Create(parent) failed: %v", err)
	}

	childDone := make(chan struct{})
	child, err := ctx.Syscalls.Spawn(parent, []string{"writer"}, func(ctl *uthread.Control, self *pcb.PCB) {
		fd, err := ctx.Syscalls.Open(self, "out.txt", gdt.Write)
		if err == nil {
			ctx.Syscalls.Write(self, fd, []byte("done"))
			ctx.Syscalls.Close(self, fd)
		}
		close(childDone)
		ctx.Syscalls.Exit(self)
	}, nil, nil, false)
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	select {
	case <-childDone:
	case <-time.After(5 * time.Second):
		t.Fatalf("child did not finish its write/exit")
	}
	// Give the scheduler a couple of slices so its own bookkeeping
	// (ready-queue membership) settles, even though this child's body
	// never yields through CheckPoint.
	ctx.Scheduler.RunOneSlice()
	ctx.Scheduler.RunOneSlice()

	pid, bits, err := ctx.Syscalls.Wait(nil, parent, child.PID, true)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if pid != child.PID {
		t.Fatalf("expected to reap PID %d, got %d", child.PID, pid)
	}
	if bits&1 == 0 {
		t.Fatalf("expected the EXITED bit set in the wait status, got %d", bits)
	}

	rfd, err := ctx.Syscalls.Open(ctx.Init, "out.txt", gdt.Read)
	if err != nil {
		t.Fatalf("Open(read) failed: %v", err)
	}
	buf := make([]byte, 8)
	n, _ := ctx.Syscalls.Read(ctx.Init, rfd, buf)
	if string(buf[:n]) != "done" {
		t.Fatalf("expected file contents %q, got %q", "done", buf[:n])
	}
	ctx.Syscalls.Close(ctx.Init, rfd)
}

func TestKillRegularProcessTerminatesIt(t *testing.T) {
	ctx := bootTestKernel(t)

	child, err := ctx.Syscalls.Spawn(ctx.Init, []string{"loop"}, func(ctl *uthread.Control, self *pcb.PCB) {
		for {
			if err := ctl.CheckPoint(); err != nil {
				return
			}
		}
	}, nil, nil, false)
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	ctx.Scheduler.SetForeground(child.PID)
	if err := ctx.Syscalls.Kill(child.PID, 0); err != nil {
		t.Fatalf("Kill failed: %v", err)
	}
	if child.State != proctypes.Zombie {
		t.Fatalf("expected child ZOMBIE immediately after Kill(term), got %v", child.State)
	}
}
