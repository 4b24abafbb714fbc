package fat

import (
	"os"

	"pennsim/errno"
)

// Device is the backing store for a mounted filesystem: a single host
// file, abstracted so tests can substitute a RAM-backed double.
type Device interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Size() (int64, error)
	Truncate(size int64) error
	Sync() error
	Close() error
	// Fd exposes the raw descriptor for mmap; RAM-backed test doubles
	// that never mount a real FAT region may return ok=false.
	Fd() (fd int, ok bool)
}

// fileDevice adapts *os.File to Device.
type fileDevice struct {
	f *os.File
}

// OpenFileDevice opens path for read/write, creating it if create is
// true (used by Mkfs) and failing with NoSuchFile otherwise.
func OpenFileDevice(path string, create bool) (Device, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		if create {
			return nil, errno.Wrap(errno.IOError, path)
		}
		return nil, errno.Wrap(errno.NoSuchFile, path)
	}
	return &fileDevice{f: f}, nil
}

func (d *fileDevice) ReadAt(p []byte, off int64) (int, error)  { return d.f.ReadAt(p, off) }
func (d *fileDevice) WriteAt(p []byte, off int64) (int, error) { return d.f.WriteAt(p, off) }
func (d *fileDevice) Sync() error                              { return d.f.Sync() }
func (d *fileDevice) Close() error                             { return d.f.Close() }
func (d *fileDevice) Truncate(size int64) error                { return d.f.Truncate(size) }

func (d *fileDevice) Size() (int64, error) {
	fi, err := d.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (d *fileDevice) Fd() (int, bool) {
	return int(d.f.Fd()), true
}
