package fat

import (
	"bytes"
	"encoding/binary"
)

// DirEntrySize is the on-disk size of a directory entry: name[32],
// size u32, first_block u16, type u8, perm u8, mtime i64,
// reserved[16] = 64 bytes.
const DirEntrySize = 64

const nameFieldSize = 32

// nameStatus tags the first byte of a directory entry's name field.
type nameStatus byte

const (
	statusEndOfDir  nameStatus = 0
	statusDeleted   nameStatus = 1
	statusTombstone nameStatus = 2
	// any other byte value means "active"; see classify below.
)

// EntryType distinguishes regular files from the (single, flat) root
// directory record type.
type EntryType uint8

const (
	TypeRegular   EntryType = 1
	TypeDirectory EntryType = 2
)

// Permission bits.
const (
	PermRead    uint8 = 4
	PermWrite   uint8 = 2
	PermExecute uint8 = 1
)

// Chmod operation flags, packed into the upper bits of the mode word
// passed to Chmod.
const (
	ChmodAdd    = 0x80
	ChmodRemove = 0x40
	ChmodAssign = 0x20
	ChmodMask   = 0x07
)

// DirEntry is the in-memory form of one 64-byte on-disk directory
// record.
type DirEntry struct {
	Name       [nameFieldSize]byte
	Size       uint32
	FirstBlock uint16
	Type       EntryType
	Perm       uint8
	Mtime      int64
	_          [16]byte
}

// NameString returns the entry's name with trailing NULs trimmed.
func (d *DirEntry) NameString() string {
	n := bytes.IndexByte(d.Name[:], 0)
	if n < 0 {
		n = len(d.Name)
	}
	return string(d.Name[:n])
}

// SetName writes s into the fixed name field, truncated/zero-padded.
func (d *DirEntry) SetName(s string) {
	for i := range d.Name {
		d.Name[i] = 0
	}
	copy(d.Name[:], s)
}

func (d *DirEntry) status() nameStatus {
	return nameStatus(d.Name[0])
}

func (d *DirEntry) setStatus(s nameStatus) {
	d.Name[0] = byte(s)
}

func (d *DirEntry) isActive() bool {
	switch d.status() {
	case statusEndOfDir, statusDeleted, statusTombstone:
		return false
	default:
		return true
	}
}

// IsTombstoned reports whether this entry is unlinked but still held
// open by some GDT slot.
func (d *DirEntry) IsTombstoned() bool { return d.status() == statusTombstone }

// MarkDeleted tags the entry as truly deleted and reusable.
func (d *DirEntry) MarkDeleted() { d.setStatus(statusDeleted) }

// MarkTombstone tags the entry as unlinked-but-referenced.
func (d *DirEntry) MarkTombstone() { d.setStatus(statusTombstone) }

// MarshalBinary encodes the entry into its 64-byte on-disk form.
func (d *DirEntry) MarshalBinary() ([]byte, error) {
	buf := make([]byte, DirEntrySize)
	copy(buf[0:32], d.Name[:])
	binary.LittleEndian.PutUint32(buf[32:36], d.Size)
	binary.LittleEndian.PutUint16(buf[36:38], d.FirstBlock)
	buf[38] = byte(d.Type)
	buf[39] = d.Perm
	binary.LittleEndian.PutUint64(buf[40:48], uint64(d.Mtime))
	return buf, nil
}

// UnmarshalBinary decodes a 64-byte on-disk record.
func (d *DirEntry) UnmarshalBinary(buf []byte) error {
	if len(buf) < DirEntrySize {
		return errShortDirEntry
	}
	copy(d.Name[:], buf[0:32])
	d.Size = binary.LittleEndian.Uint32(buf[32:36])
	d.FirstBlock = binary.LittleEndian.Uint16(buf[36:38])
	d.Type = EntryType(buf[38])
	d.Perm = buf[39]
	d.Mtime = int64(binary.LittleEndian.Uint64(buf[40:48]))
	return nil
}

var errShortDirEntry = shortEntryErr{}

type shortEntryErr struct{}

func (shortEntryErr) Error() string { return "fat: short directory entry buffer" }
