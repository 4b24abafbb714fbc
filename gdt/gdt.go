// Package gdt implements the kernel-wide table of open-file entries.
// Each open produces its own entry — entries are never shared across
// processes, even when two processes open the same file — and since
// only one user-level goroutine ever runs at a time between scheduler
// transitions, no slot is ever touched by two goroutines at once, so
// the table needs no internal locking.
package gdt

import (
	"golang.org/x/sync/semaphore"

	"pennsim/errno"
)

// AccessFlag is the single open mode an entry was created with.
type AccessFlag int

const (
	Read AccessFlag = iota
	Write
	Append
)

// Key identifies a slot in the table. Keys 0, 1, 2 are the standard
// streams; Reset (called by unmount) frees them along with every other
// slot.
type Key int

const (
	Stdin  Key = 0
	Stdout Key = 1
	Stderr Key = 2
)

// standardStreamCount is how many low keys InitStandardStreams reserves.
const standardStreamCount = 3

// Entry is one open-file record.
type Entry struct {
	Name       string
	Size       uint32
	Perm       uint8
	FirstBlock uint16
	// DirOffset is the byte offset of the entry's directory record; it
	// is the file's stable identity for deferred-delete bookkeeping.
	// Standard streams use -1, since they have no directory entry.
	DirOffset int64
	Cursor    uint32
	Flag      AccessFlag
}

// Table is the fixed-capacity GDT.
type Table struct {
	slots []*Entry
	sem   *semaphore.Weighted
	cap   int
}

// NewTable allocates a table with room for capacity concurrently open
// files, standard streams included.
func NewTable(capacity int) *Table {
	return &Table{
		slots: make([]*Entry, capacity),
		sem:   semaphore.NewWeighted(int64(capacity)),
		cap:   capacity,
	}
}

// InitStandardStreams installs the three always-present stream entries
// at slots 0/1/2 with flags READ, WRITE, WRITE respectively.
func (t *Table) InitStandardStreams() {
	for i := 0; i < standardStreamCount; i++ {
		if t.slots[i] == nil {
			t.sem.TryAcquire(1)
		}
	}
	t.slots[Stdin] = &Entry{Name: "stdin", DirOffset: -1, Flag: Read}
	t.slots[Stdout] = &Entry{Name: "stdout", DirOffset: -1, Flag: Write}
	t.slots[Stderr] = &Entry{Name: "stderr", DirOffset: -1, Flag: Write}
}

// Alloc claims a free slot for e and returns its key. It fails with
// TableFull rather than blocking; callers never wait for a slot to
// free up.
func (t *Table) Alloc(e *Entry) (Key, error) {
	if !t.sem.TryAcquire(1) {
		return -1, errno.TableFull
	}
	for i, s := range t.slots {
		if s == nil {
			t.slots[i] = e
			return Key(i), nil
		}
	}
	// Should be unreachable: the semaphore's weight tracks free slots.
	t.sem.Release(1)
	return -1, errno.TableFull
}

// Get returns the entry for key, or ok=false if the slot is empty.
func (t *Table) Get(key Key) (*Entry, bool) {
	if key < 0 || int(key) >= t.cap {
		return nil, false
	}
	e := t.slots[key]
	return e, e != nil
}

// Free releases key's slot.
func (t *Table) Free(key Key) {
	if key < 0 || int(key) >= t.cap {
		return
	}
	if t.slots[key] != nil {
		t.slots[key] = nil
		t.sem.Release(1)
	}
}

// Reset frees every non-empty slot.
func (t *Table) Reset() {
	for i := range t.slots {
		if t.slots[i] != nil {
			t.slots[i] = nil
			t.sem.Release(1)
		}
	}
}

// HasWriter reports whether any slot other than except holds name with
// flag WRITE or APPEND, enforcing the single-writer invariant.
func (t *Table) HasWriter(name string, except Key) bool {
	for i, e := range t.slots {
		if e == nil || Key(i) == except {
			continue
		}
		if e.Name == name && (e.Flag == Write || e.Flag == Append) {
			return true
		}
	}
	return false
}

// CountByDirOffset reports how many slots other than except reference
// the directory entry at offset, used by close/unlink's deferred-delete
// decision.
func (t *Table) CountByDirOffset(offset int64, except Key) int {
	n := 0
	for i, e := range t.slots {
		if e == nil || Key(i) == except {
			continue
		}
		if e.DirOffset == offset {
			n++
		}
	}
	return n
}
