// Package kernel wires the FAT filesystem, GDT, PCB table, queues,
// event log, process lifecycle, syscall surface, and scheduler into a
// single booted instance.
package kernel

import (
	"io"

	"github.com/sirupsen/logrus"

	"pennsim/eventlog"
	"pennsim/fat"
	"pennsim/gdt"
	"pennsim/pcb"
	"pennsim/process"
	"pennsim/proctypes"
	"pennsim/queue"
	"pennsim/scheduler"
	"pennsim/syscalls"
	"pennsim/uthread"
)

const (
	defaultPCBCapacity = 64
	defaultGDTCapacity = 64
)

type config struct {
	pcbCapacity int
	gdtCapacity int
	logger      *logrus.Entry
	eventSink   io.Writer
}

// Option configures a Context at Boot time.
type Option func(*config)

// WithPCBCapacity overrides the maximum number of simultaneously live
// processes.
func WithPCBCapacity(n int) Option {
	return func(c *config) { c.pcbCapacity = n }
}

// WithGDTCapacity overrides the maximum number of simultaneously open
// files.
func WithGDTCapacity(n int) Option {
	return func(c *config) { c.gdtCapacity = n }
}

// WithLogger sets the logrus entry used for ambient kernel diagnostics.
func WithLogger(l *logrus.Entry) Option {
	return func(c *config) { c.logger = l }
}

// WithEventSink streams formatted event-log lines to w as they are
// appended.
func WithEventSink(w io.Writer) Option {
	return func(c *config) { c.eventSink = w }
}

// Context is a fully booted kernel instance.
type Context struct {
	FS        *fat.FS
	GDT       *gdt.Table
	Table     *pcb.Table
	Queues    *queue.Queues
	Log       *eventlog.Log
	Lifecycle *process.Lifecycle
	Syscalls  *syscalls.Kernel
	Scheduler *scheduler.Scheduler

	Init *pcb.PCB
	Idle *pcb.PCB

	logger *logrus.Entry
}

// Mkfs formats a fresh backing file at path, independent of any
// running Context.
func Mkfs(path string, fatBlocks, blockSizeIdx int) error {
	return fat.New(nil).Mkfs(path, fatBlocks, blockSizeIdx)
}

// Boot mounts the backing file at imagePath and brings up every
// subsystem, including the unkillable init process (PID 1) and a
// priority-Low idle process (PID 2) that keeps the lowest ready
// sequence non-empty even with no user jobs running.
func Boot(imagePath string, opts ...Option) (*Context, error) {
	cfg := config{pcbCapacity: defaultPCBCapacity, gdtCapacity: defaultGDTCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logrus.NewEntry(logrus.StandardLogger())
	}

	gdtTable := gdt.NewTable(cfg.gdtCapacity)
	fs := fat.New(cfg.logger)
	if err := fs.Mount(imagePath, gdtTable); err != nil {
		return nil, err
	}

	pcbTable := pcb.NewTable(cfg.pcbCapacity)
	log := eventlog.New(cfg.eventSink)
	queues := queue.New(log)
	lifecycle := process.New(pcbTable, queues, gdtTable, fs, log)

	sc := &syscalls.Kernel{FS: fs, GDT: gdtTable, Table: pcbTable, Queues: queues, Lifecycle: lifecycle, Log: log}
	sched := scheduler.New(queues, pcbTable, lifecycle, log, cfg.logger)
	sc.Now = sched.Tick
	sc.RequestShutdown = sched.RequestShutdown

	ctx := &Context{
		FS: fs, GDT: gdtTable, Table: pcbTable, Queues: queues, Log: log,
		Lifecycle: lifecycle, Syscalls: sc, Scheduler: sched, logger: cfg.logger,
	}

	init, err := lifecycle.Create(nil, "init", nil, sched.Tick())
	if err != nil {
		return nil, err
	}
	init.Thread = uthread.Spawn(func(ctl *uthread.Control) {
		for {
			sc.Wait(ctl, init, proctypes.InvalidPID, true)
			if err := ctl.CheckPoint(); err != nil {
				return
			}
		}
	})
	queues.Enqueue(init)
	ctx.Init = init

	idle, err := lifecycle.Create(init, "idle", nil, sched.Tick())
	if err != nil {
		return nil, err
	}
	idle.Priority = proctypes.PriorityLow
	idle.Thread = uthread.Spawn(func(ctl *uthread.Control) {
		for {
			if err := ctl.CheckPoint(); err != nil {
				return
			}
		}
	})
	queues.Enqueue(idle)
	ctx.Idle = idle

	sched.SetForeground(proctypes.InvalidPID)
	cfg.logger.WithField("image", imagePath).Info("booted")
	return ctx, nil
}

// Shutdown stops the scheduler's host-signal relay and timer, kills
// every live process, and unmounts the filesystem.
func (c *Context) Shutdown() error {
	c.Scheduler.Stop()
	c.Lifecycle.KillAll()
	return c.FS.Unmount(c.GDT)
}
