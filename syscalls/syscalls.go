// Package syscalls implements the per-process syscall surface: the
// per-process FD table mapped onto GDT keys, spawn (with optional
// stdin/stdout redirection), wait, kill, exit, nice, sleep, and
// shutdown.
package syscalls

import (
	"fmt"

	"pennsim/errno"
	"pennsim/eventlog"
	"pennsim/fat"
	"pennsim/fileops"
	"pennsim/gdt"
	"pennsim/ksignal"
	"pennsim/pcb"
	"pennsim/process"
	"pennsim/proctypes"
	"pennsim/queue"
	"pennsim/uthread"
)

// Kernel is the syscall layer's view of the rest of the kernel.
type Kernel struct {
	FS        *fat.FS
	GDT       *gdt.Table
	Table     *pcb.Table
	Queues    *queue.Queues
	Lifecycle *process.Lifecycle
	Log       *eventlog.Log

	// Now returns the current scheduler tick. Set by the kernel wiring
	// once the scheduler exists.
	Now func() int
	// RequestShutdown signals the scheduler to stop after its current
	// iteration. Set by the kernel wiring once the scheduler exists.
	RequestShutdown func()
}

func (k *Kernel) now() int {
	if k.Now == nil {
		return 0
	}
	return k.Now()
}

func (k *Kernel) fdToKey(p *pcb.PCB, fd int) (gdt.Key, error) {
	if fd < 0 || fd >= pcb.FDTableSize {
		return pcb.EmptyFD, errno.BadFD
	}
	key := p.FDTable[fd]
	if key == pcb.EmptyFD {
		return pcb.EmptyFD, errno.BadFD
	}
	return key, nil
}

func allocFD(p *pcb.PCB) (int, error) {
	for i := 3; i < pcb.FDTableSize; i++ {
		if p.FDTable[i] == pcb.EmptyFD {
			return i, nil
		}
	}
	return -1, errno.TooManyOpenFiles
}

// Open resolves name under mode and installs the resulting GDT key in
// the first free FD slot >= 3.
func (k *Kernel) Open(p *pcb.PCB, name string, mode gdt.AccessFlag) (int, error) {
	key, err := fileops.Open(k.FS, k.GDT, name, mode)
	if err != nil {
		return -1, err
	}
	fd, err := allocFD(p)
	if err != nil {
		fileops.Close(k.FS, k.GDT, key)
		return -1, err
	}
	p.FDTable[fd] = key
	return fd, nil
}

// Read reads through fd into buf.
func (k *Kernel) Read(p *pcb.PCB, fd int, buf []byte) (int, error) {
	key, err := k.fdToKey(p, fd)
	if err != nil {
		return 0, err
	}
	return fileops.Read(k.FS, k.GDT, key, buf)
}

// Write writes data through fd.
func (k *Kernel) Write(p *pcb.PCB, fd int, data []byte) (int, error) {
	key, err := k.fdToKey(p, fd)
	if err != nil {
		return 0, err
	}
	return fileops.Write(k.FS, k.GDT, key, data)
}

// Close releases fd and clears p's slot.
func (k *Kernel) Close(p *pcb.PCB, fd int) error {
	key, err := k.fdToKey(p, fd)
	if err != nil {
		return err
	}
	if err := fileops.Close(k.FS, k.GDT, key); err != nil {
		return err
	}
	p.FDTable[fd] = pcb.EmptyFD
	return nil
}

// Seek repositions fd's cursor.
func (k *Kernel) Seek(p *pcb.PCB, fd int, offset int64, whence int) (int64, error) {
	key, err := k.fdToKey(p, fd)
	if err != nil {
		return -1, err
	}
	return fileops.Seek(k.GDT, key, offset, whence)
}

// Unlink removes or tombstones name.
func (k *Kernel) Unlink(name string) error {
	return fileops.Unlink(k.FS, k.GDT, name)
}

// Chmod applies modeWord to name.
func (k *Kernel) Chmod(name string, modeWord uint8) error {
	return fileops.Chmod(k.FS, name, modeWord)
}

// Rename moves src to dst.
func (k *Kernel) Rename(src, dst string) error {
	return fileops.Rename(k.FS, k.GDT, src, dst)
}

// Spawn creates a child of parent running userFn in its own user
// thread, optionally redirecting the child's stdin and/or stdout
// before userFn runs.
//
// If appendMode is set and stdinPath and stdoutPath name the same
// file, Spawn fails before creating the child. Otherwise the wrapper
// runs inside the child: it opens stdout first (WRITE or APPEND), then
// stdin (READ); on success it installs the new keys into FD slots 1
// and/or 0, saving the slots it overwrote; on failure it exits the
// child without ever running userFn. A deferred cleanup always closes
// whatever it opened and restores the saved slots before the thread
// returns, on every exit path.
func (k *Kernel) Spawn(parent *pcb.PCB, argv []string, userFn func(ctl *uthread.Control, self *pcb.PCB), stdoutPath, stdinPath *string, appendMode bool) (*pcb.PCB, error) {
	if appendMode && stdoutPath != nil && stdinPath != nil && *stdoutPath == *stdinPath {
		return nil, errno.InvalidArgument
	}

	command := ""
	if len(argv) > 0 {
		command = argv[0]
	}
	child, err := k.Lifecycle.Create(parent, command, argv, k.now())
	if err != nil {
		return nil, err
	}

	child.Thread = uthread.Spawn(func(ctl *uthread.Control) {
		if stdoutPath == nil && stdinPath == nil {
			userFn(ctl, child)
			return
		}

		savedOut, savedIn := child.FDTable[1], child.FDTable[0]
		openedOut, openedIn := pcb.EmptyFD, pcb.EmptyFD
		ok := true

		if stdoutPath != nil {
			mode := gdt.Write
			if appendMode {
				mode = gdt.Append
			}
			key, oerr := fileops.Open(k.FS, k.GDT, *stdoutPath, mode)
			if oerr != nil {
				ok = false
			} else {
				openedOut = key
				child.FDTable[1] = key
			}
		}
		if ok && stdinPath != nil {
			key, oerr := fileops.Open(k.FS, k.GDT, *stdinPath, gdt.Read)
			if oerr != nil {
				ok = false
			} else {
				openedIn = key
				child.FDTable[0] = key
			}
		}

		defer func() {
			if openedOut != pcb.EmptyFD {
				fileops.Close(k.FS, k.GDT, openedOut)
			}
			if openedIn != pcb.EmptyFD {
				fileops.Close(k.FS, k.GDT, openedIn)
			}
			child.FDTable[1] = savedOut
			child.FDTable[0] = savedIn
		}()

		if !ok {
			k.Exit(child)
			return
		}
		userFn(ctl, child)
	})

	child.State = proctypes.Ready
	k.Queues.Enqueue(child)
	return child, nil
}

// Wait scans caller's children for a reapable ZOMBIE or an unreported
// STOPPED child; if neither exists and nohang is false, it blocks the
// calling thread until one appears.
func (k *Kernel) Wait(ctl *uthread.Control, caller *pcb.PCB, pid proctypes.PID, nohang bool) (proctypes.PID, int, error) {
	for {
		if caller.Children.Len() == 0 {
			return 0, 0, errno.NoChild
		}
		for _, c := range caller.Children.Slice() {
			if pid != proctypes.InvalidPID && c.PID != pid {
				continue
			}
			if c.State == proctypes.Zombie {
				bits := c.ExitStatus.WaitBits()
				found := c.PID
				if err := k.Lifecycle.Reap(caller, c, k.now()); err != nil {
					return 0, 0, err
				}
				return found, bits, nil
			}
		}
		for _, c := range caller.Children.Slice() {
			if pid != proctypes.InvalidPID && c.PID != pid {
				continue
			}
			if c.State == proctypes.Stopped && !c.StoppedReported {
				c.StoppedReported = true
				return c.PID, proctypes.ExitStopped.WaitBits(), nil
			}
		}
		if nohang {
			return 0, 0, nil
		}
		caller.WakeTick = 0
		k.Queues.Block(caller, k.now())
		if err := ctl.CheckPoint(); err != nil {
			return 0, 0, err
		}
	}
}

// Kill translates signal (0=term, 1=stop, 2=cont) and delivers it to
// pid. init cannot be killed.
func (k *Kernel) Kill(pid proctypes.PID, signal int) error {
	target, ok := k.Table.Get(pid)
	if !ok {
		return errno.NoSuchProcess
	}
	if pid == proctypes.InitPID {
		return errno.NotPermitted
	}
	var sig ksignal.Signal
	switch signal {
	case 0:
		sig = ksignal.Term
	case 1:
		sig = ksignal.Stop
	case 2:
		sig = ksignal.Cont
	default:
		return errno.InvalidArgument
	}
	if sig == ksignal.Term {
		target.ExitStatus = proctypes.ExitSignaled
		target.TermSignal = signal
		k.Log.Append(eventlog.Record{
			Tick: k.now(), Event: eventlog.EventSignaled, PID: target.PID, PPID: target.PPID,
			State: target.State, Priority: target.Priority, Command: target.Command,
			Detail: fmt.Sprintf("signal=%d", signal),
		})
	}
	ksignal.Deliver(k.Queues, target, sig, k.Lifecycle.Terminate, k.now())
	return nil
}

// Exit marks caller EXITED, logs it, and terminates the process. The
// caller's user thread is expected to return immediately afterward.
func (k *Kernel) Exit(caller *pcb.PCB) {
	caller.ExitStatus = proctypes.ExitExited
	k.Log.Append(eventlog.Record{
		Tick: k.now(), Event: eventlog.EventExited, PID: caller.PID, PPID: caller.PPID,
		State: proctypes.Zombie, Priority: caller.Priority, Command: caller.Command,
	})
	k.Lifecycle.Terminate(caller, k.now())
}

// Nice validates prio and delegates to the ready-queue priority
// change.
func (k *Kernel) Nice(pid proctypes.PID, prio proctypes.Priority) error {
	if !prio.Valid() {
		return errno.InvalidArgument
	}
	target, ok := k.Table.Get(pid)
	if !ok {
		return errno.NoSuchProcess
	}
	return k.Queues.SetPriority(target, prio, k.now())
}

// Sleep blocks caller until ticks scheduler ticks have elapsed. A
// premature wake (e.g. a cont signal) re-enters the block until the
// deadline is truly reached.
func (k *Kernel) Sleep(ctl *uthread.Control, caller *pcb.PCB, ticks int) error {
	if ticks <= 0 {
		return nil
	}
	wake := k.now() + ticks
	for k.now() < wake {
		caller.WakeTick = wake
		k.Queues.Block(caller, k.now())
		if err := ctl.CheckPoint(); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown requests that the scheduler stop.
func (k *Kernel) Shutdown() {
	if k.RequestShutdown != nil {
		k.RequestShutdown()
	}
}
