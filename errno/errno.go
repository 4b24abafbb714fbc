// Package errno defines the closed set of kernel failure kinds as a
// typed enum satisfying the error interface, so call sites can do
// errors.Is(err, errno.NoSuchFile) even after a fmt.Errorf("%w", ...)
// wrap.
package errno

import "fmt"

// Errno is one of the kernel's closed set of failure kinds.
type Errno int

const (
	NotPermitted Errno = iota + 1
	InvalidArgument
	OutOfMemory
	NoSuchProcess
	NoChild
	BadFD
	IOError
	NoSpace
	ReadOnly
	NotMounted
	TableFull
	FileInUse
	PermissionDenied
	TooManyOpenFiles
	NoSuchFile
	Exists
	IsDirectory
	NameTooLong
	ArgumentListTooLong
	ThreadCreationFailed
)

var names = map[Errno]string{
	NotPermitted:          "operation not permitted",
	InvalidArgument:       "invalid argument",
	OutOfMemory:           "cannot allocate memory",
	NoSuchProcess:         "no such process",
	NoChild:               "no child processes",
	BadFD:                 "bad file descriptor",
	IOError:               "input/output error",
	NoSpace:               "no space left on device",
	ReadOnly:              "read-only file system",
	NotMounted:            "filesystem not mounted",
	TableFull:             "table is full",
	FileInUse:             "file is in use",
	PermissionDenied:      "permission denied",
	TooManyOpenFiles:      "too many open files",
	NoSuchFile:            "no such file or directory",
	Exists:                "file exists",
	IsDirectory:           "is a directory",
	NameTooLong:           "file name too long",
	ArgumentListTooLong:   "argument list too long",
	ThreadCreationFailed:  "thread creation failed",
}

func (e Errno) Error() string {
	if s, ok := names[e]; ok {
		return s
	}
	return fmt.Sprintf("errno(%d)", int(e))
}

// Wrap attaches context to an Errno while keeping it comparable via
// errors.Is.
func Wrap(e Errno, context string) error {
	return fmt.Errorf("%s: %w", context, e)
}
