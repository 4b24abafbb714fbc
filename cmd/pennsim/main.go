// Command pennsim boots the kernel against a backing file, runs a
// short demo script through the real syscall surface, then drains the
// scheduler for a fixed number of ticks and prints the event log.
//
// The shell, its parser, and its built-in commands are a separate
// concern this binary does not implement; shlex is used here only to
// split the demo script's lines into argv, the way a real shell's
// lexer would.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"

	"pennsim/gdt"
	"pennsim/kernel"
	"pennsim/pcb"
	"pennsim/uthread"
)

func main() {
	imagePath := flag.String("image", "pennsim.img", "path to the backing file")
	fatBlocks := flag.Int("fat-blocks", 4, "number of FAT blocks")
	blockSizeIdx := flag.Int("block-size", 2, "block size index (0..4 -> 256..4096)")
	format := flag.Bool("mkfs", false, "format the image before booting")
	ticks := flag.Int("ticks", 200, "scheduler ticks to run before shutdown")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	entry := logrus.NewEntry(logger)

	if *format {
		if err := kernel.Mkfs(*imagePath, *fatBlocks, *blockSizeIdx); err != nil {
			entry.WithError(err).Fatal("mkfs failed")
		}
	}

	ctx, err := kernel.Boot(*imagePath, kernel.WithLogger(entry), kernel.WithEventSink(os.Stdout))
	if err != nil {
		entry.WithError(err).Fatal("boot failed")
	}
	defer ctx.Shutdown()

	runDemoScript(ctx, entry)

	for i := 0; i < *ticks; i++ {
		if !ctx.Scheduler.RunOneSlice() {
			break
		}
	}

	fmt.Println("--- event log ---")
	fmt.Println(ctx.Log.Dump())
}

func runDemoScript(ctx *kernel.Context, logger *logrus.Entry) {
	lines := []string{
		`touch hello.txt`,
		`echo hello pennsim > hello.txt`,
		`cat hello.txt`,
	}
	for _, line := range lines {
		args, err := shlex.Split(line)
		if err != nil {
			logger.WithError(err).Warn("could not tokenize demo line")
			continue
		}
		if _, err := ctx.Syscalls.Spawn(ctx.Init, args, func(ctl *uthread.Control, self *pcb.PCB) {
			runBuiltin(ctx, self, args)
		}, nil, nil, false); err != nil {
			logger.WithError(err).WithField("cmd", line).Warn("spawn failed")
		}
	}
}

// runBuiltin implements the handful of commands the demo script uses,
// exercising Open/Write/Read/Close/Exit through the real syscall
// surface rather than touching the filesystem packages directly.
func runBuiltin(ctx *kernel.Context, self *pcb.PCB, args []string) {
	switch args[0] {
	case "touch":
		if fd, err := ctx.Syscalls.Open(self, args[1], gdt.Write); err == nil {
			ctx.Syscalls.Close(self, fd)
		}
	case "echo":
		if len(args) >= 3 && args[len(args)-2] == ">" {
			path := args[len(args)-1]
			text := strings.Join(args[1:len(args)-2], " ") + "\n"
			if fd, err := ctx.Syscalls.Open(self, path, gdt.Write); err == nil {
				ctx.Syscalls.Write(self, fd, []byte(text))
				ctx.Syscalls.Close(self, fd)
			}
		}
	case "cat":
		if fd, err := ctx.Syscalls.Open(self, args[1], gdt.Read); err == nil {
			buf := make([]byte, 4096)
			n, _ := ctx.Syscalls.Read(self, fd, buf)
			os.Stdout.Write(buf[:n])
			ctx.Syscalls.Close(self, fd)
		}
	}
	ctx.Syscalls.Exit(self)
}
