// Package fileops implements the open/read/write/close/seek/unlink/
// chmod/rename state machine over the FAT and GDT. A GDT slot is
// reserved before any disk mutation on the open path and released if
// resolving the directory entry fails, so a failed open leaves no
// trace in the GDT. On the FAT side, a failed block allocation changes
// nothing; a root-directory block added by ExtendRoot stays linked if
// writing the new directory entry then fails.
package fileops

import (
	"io"
	"time"

	"pennsim/errno"
	"pennsim/fat"
	"pennsim/gdt"
)

// Open resolves name under mode and returns a freshly allocated GDT
// key.
func Open(fs *fat.FS, table *gdt.Table, name string, mode gdt.AccessFlag) (gdt.Key, error) {
	if !fs.Mounted() {
		return -1, errno.NotMounted
	}
	if mode != gdt.Read && mode != gdt.Write && mode != gdt.Append {
		return -1, errno.InvalidArgument
	}

	found, offset, err := fs.FindFile(name)
	if err != nil {
		return -1, err
	}
	if mode == gdt.Read && !found {
		return -1, errno.NoSuchFile
	}
	if (mode == gdt.Write || mode == gdt.Append) && table.HasWriter(name, -1) {
		return -1, errno.FileInUse
	}

	// Reserve the GDT slot before any disk mutation: if resolveEntry
	// fails below, the reservation is released. resolveEntry frees a
	// truncated chain only after the directory entry is persisted.
	key, err := table.Alloc(&gdt.Entry{})
	if err != nil {
		return -1, err
	}

	de, finalOffset, err := resolveEntry(fs, name, mode, found, offset)
	if err != nil {
		table.Free(key)
		return -1, err
	}

	entry, _ := table.Get(key)
	entry.Name = name
	entry.Perm = de.Perm
	entry.FirstBlock = de.FirstBlock
	entry.Size = de.Size
	entry.DirOffset = finalOffset
	entry.Flag = mode
	if mode == gdt.Append {
		entry.Cursor = de.Size
	} else {
		entry.Cursor = 0
	}
	return key, nil
}

// resolveEntry performs the disk-side half of Open: locating or
// creating the directory entry, truncating on WRITE, and leaving
// APPEND's entry untouched. It never touches the GDT.
func resolveEntry(fs *fat.FS, name string, mode gdt.AccessFlag, found bool, offset int64) (*fat.DirEntry, int64, error) {
	switch mode {
	case gdt.Read:
		de, err := fs.ReadDirEntry(offset)
		if err != nil {
			return nil, 0, err
		}
		if de.Type != fat.TypeRegular {
			return nil, 0, errno.IsDirectory
		}
		if de.Perm&fat.PermRead == 0 {
			return nil, 0, errno.PermissionDenied
		}
		return de, offset, nil

	case gdt.Write, gdt.Append:
		if !found {
			if offset == -1 {
				newOff, err := fs.ExtendRoot()
				if err != nil {
					return nil, 0, err
				}
				offset = newOff
			}
			de := &fat.DirEntry{
				Type:  fat.TypeRegular,
				Perm:  fat.PermRead | fat.PermWrite,
				Mtime: time.Now().Unix(),
			}
			de.SetName(name)
			if err := fs.WriteDirEntry(offset, de); err != nil {
				return nil, 0, err
			}
			return de, offset, nil
		}

		de, err := fs.ReadDirEntry(offset)
		if err != nil {
			return nil, 0, err
		}
		if de.Type != fat.TypeRegular {
			return nil, 0, errno.IsDirectory
		}
		if de.Perm&fat.PermWrite == 0 {
			return nil, 0, errno.PermissionDenied
		}
		if mode == gdt.Write {
			oldFirst, oldSize := de.FirstBlock, de.Size
			de.Size = 0
			de.FirstBlock = 0
			de.Mtime = time.Now().Unix()
			if err := fs.WriteDirEntry(offset, de); err != nil {
				return nil, 0, err
			}
			if oldSize > 0 {
				fs.FreeChain(int(oldFirst))
			}
		}
		return de, offset, nil

	default:
		return nil, 0, errno.InvalidArgument
	}
}

// Read fills buf with up to len(buf) bytes starting at the slot's
// cursor.
func Read(fs *fat.FS, table *gdt.Table, key gdt.Key, buf []byte) (int, error) {
	entry, ok := table.Get(key)
	if !ok {
		return 0, errno.BadFD
	}
	if int64(entry.Cursor) >= int64(entry.Size) {
		return 0, nil // past size: EOF, not an error
	}

	remaining := int64(entry.Size) - int64(entry.Cursor)
	n := len(buf)
	if int64(n) > remaining {
		n = int(remaining)
	}

	blockSize := fs.BlockSize()
	startIdx := entry.Cursor / blockSize
	block := int(entry.FirstBlock)
	if block == 0 {
		return 0, errno.InvalidArgument
	}
	for i := uint32(0); i < startIdx; i++ {
		next := fs.NextBlock(block)
		if fat.IsEOC(next) || next == 0 {
			return 0, errno.InvalidArgument // chain terminates short of the cursor
		}
		block = int(next)
	}

	total := 0
	offsetInBlock := entry.Cursor % blockSize
	for total < n {
		toRead := int(blockSize - offsetInBlock)
		if toRead > n-total {
			toRead = n - total
		}
		got, err := fs.ReadBlockAt(block, int(offsetInBlock), buf[total:total+toRead])
		if err != nil {
			entry.Cursor += uint32(total)
			return total, errno.Wrap(errno.IOError, "read block")
		}
		total += got
		if got < toRead {
			break // short underlying block read: surface the short count, not an error
		}
		offsetInBlock = 0
		if total < n {
			next := fs.NextBlock(block)
			if fat.IsEOC(next) || next == 0 {
				break
			}
			block = int(next)
		}
	}
	entry.Cursor += uint32(total)
	return total, nil
}

// Write appends data starting at the slot's cursor, allocating blocks
// as needed.
func Write(fs *fat.FS, table *gdt.Table, key gdt.Key, data []byte) (int, error) {
	entry, ok := table.Get(key)
	if !ok {
		return 0, errno.BadFD
	}
	if entry.Flag != gdt.Write && entry.Flag != gdt.Append {
		return 0, errno.BadFD
	}
	if len(data) == 0 {
		return 0, nil
	}

	blockSize := fs.BlockSize()
	cursor := entry.Cursor
	firstAllocDone := false
	var curBlock int

	if entry.FirstBlock == 0 {
		b, err := fs.AllocBlock()
		if err != nil {
			return 0, nil // disk-full before any byte written
		}
		if err := fs.ZeroBlock(b); err != nil {
			return 0, errno.Wrap(errno.IOError, "zero block")
		}
		entry.FirstBlock = uint16(b)
		firstAllocDone = true
		curBlock = b
	} else {
		curBlock = int(entry.FirstBlock)
	}

	// A Seek past EOF on an empty or short file leaves the cursor ahead
	// of the chain: walk/allocate forward to the block the cursor lands
	// in before writing, whether the chain started just now or already
	// existed.
	target := cursor / blockSize
	for idx := uint32(0); idx < target; idx++ {
		next := fs.NextBlock(curBlock)
		if fat.IsEOC(next) {
			nb, err := fs.AllocBlock()
			if err != nil {
				entry.Cursor = cursor
				return 0, nil
			}
			if err := fs.ZeroBlock(nb); err != nil {
				return 0, errno.Wrap(errno.IOError, "zero block")
			}
			fs.LinkBlock(curBlock, nb)
			curBlock = nb
		} else {
			curBlock = int(next)
		}
	}

	written := 0
	for written < len(data) {
		offsetInBlock := cursor % blockSize
		toWrite := int(blockSize - offsetInBlock)
		if toWrite > len(data)-written {
			toWrite = len(data) - written
		}
		if _, werr := fs.WriteBlockAt(curBlock, int(offsetInBlock), data[written:written+toWrite]); werr != nil {
			entry.Cursor = cursor
			return written, errno.Wrap(errno.IOError, "write block")
		}
		written += toWrite
		cursor += uint32(toWrite)

		if written < len(data) {
			next := fs.NextBlock(curBlock)
			if fat.IsEOC(next) {
				nb, err := fs.AllocBlock()
				if err != nil {
					break // disk-full: stop writing, keep what succeeded
				}
				if err := fs.ZeroBlock(nb); err != nil {
					return written, errno.Wrap(errno.IOError, "zero block")
				}
				fs.LinkBlock(curBlock, nb)
				curBlock = nb
			} else {
				curBlock = int(next)
			}
		}
	}

	entry.Cursor = cursor
	if firstAllocDone {
		persistFirstBlock(fs, entry)
	}
	if cursor > entry.Size {
		entry.Size = cursor
		persistSize(fs, entry)
	}
	return written, nil
}

func persistFirstBlock(fs *fat.FS, entry *gdt.Entry) {
	de, err := fs.ReadDirEntry(entry.DirOffset)
	if err != nil {
		return
	}
	de.FirstBlock = entry.FirstBlock
	de.Mtime = time.Now().Unix()
	fs.WriteDirEntry(entry.DirOffset, de)
}

func persistSize(fs *fat.FS, entry *gdt.Entry) {
	de, err := fs.ReadDirEntry(entry.DirOffset)
	if err != nil {
		return
	}
	de.FirstBlock = entry.FirstBlock
	de.Size = entry.Size
	de.Mtime = time.Now().Unix()
	fs.WriteDirEntry(entry.DirOffset, de)
}

// Close writes back size/mtime for WRITE/APPEND slots, resolves a
// pending tombstone, and frees the slot.
func Close(fs *fat.FS, table *gdt.Table, key gdt.Key) error {
	entry, ok := table.Get(key)
	if !ok {
		return errno.BadFD
	}
	if key == gdt.Stdin || key == gdt.Stdout || key == gdt.Stderr {
		table.Free(key)
		return nil
	}

	de, err := fs.ReadDirEntry(entry.DirOffset)
	if err != nil {
		return err
	}
	if entry.Flag == gdt.Write || entry.Flag == gdt.Append {
		de.FirstBlock = entry.FirstBlock
		de.Size = entry.Size
		de.Mtime = time.Now().Unix()
	}
	if de.IsTombstoned() && table.CountByDirOffset(entry.DirOffset, key) == 0 {
		fs.FreeChain(int(de.FirstBlock))
		de.MarkDeleted()
	}
	if err := fs.WriteDirEntry(entry.DirOffset, de); err != nil {
		return err
	}
	table.Free(key)
	return nil
}

// Unlink removes name from the directory if nothing else has it open,
// otherwise tombstones it.
func Unlink(fs *fat.FS, table *gdt.Table, name string) error {
	if !fs.Mounted() {
		return errno.NotMounted
	}
	found, offset, err := fs.FindFile(name)
	if err != nil {
		return err
	}
	if !found {
		return errno.NoSuchFile
	}
	de, err := fs.ReadDirEntry(offset)
	if err != nil {
		return err
	}
	if de.Type != fat.TypeRegular {
		return errno.IsDirectory
	}
	if table.CountByDirOffset(offset, -1) > 0 {
		de.MarkTombstone()
	} else {
		fs.FreeChain(int(de.FirstBlock))
		de.MarkDeleted()
	}
	return fs.WriteDirEntry(offset, de)
}

// Seek repositions key's cursor, raising the slot's cached size when a
// WRITE/APPEND seek moves past the current end.
func Seek(table *gdt.Table, key gdt.Key, offset int64, whence int) (int64, error) {
	entry, ok := table.Get(key)
	if !ok {
		return -1, errno.BadFD
	}
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = int64(entry.Cursor) + offset
	case io.SeekEnd:
		newPos = int64(entry.Size) + offset
	default:
		return -1, errno.InvalidArgument
	}
	if newPos < 0 {
		return -1, errno.InvalidArgument
	}
	if (entry.Flag == gdt.Write || entry.Flag == gdt.Append) && newPos > int64(entry.Size) {
		entry.Size = uint32(newPos)
	}
	entry.Cursor = uint32(newPos)
	return newPos, nil
}

// Chmod applies an add/remove/assign permission operation to name.
func Chmod(fs *fat.FS, name string, modeWord uint8) error {
	if !fs.Mounted() {
		return errno.NotMounted
	}
	found, offset, err := fs.FindFile(name)
	if err != nil {
		return err
	}
	if !found {
		return errno.NoSuchFile
	}
	de, err := fs.ReadDirEntry(offset)
	if err != nil {
		return err
	}
	bits := modeWord & fat.ChmodMask
	switch {
	case modeWord&fat.ChmodAdd != 0:
		de.Perm |= bits
	case modeWord&fat.ChmodRemove != 0:
		de.Perm &^= bits
	case modeWord&fat.ChmodAssign != 0:
		de.Perm = bits
	default:
		return errno.InvalidArgument
	}
	de.Mtime = time.Now().Unix()
	return fs.WriteDirEntry(offset, de)
}

// Rename moves src's directory entry to dst with no data movement.
func Rename(fs *fat.FS, table *gdt.Table, src, dst string) error {
	if !fs.Mounted() {
		return errno.NotMounted
	}
	foundSrc, srcOff, err := fs.FindFile(src)
	if err != nil {
		return err
	}
	if !foundSrc {
		return errno.NoSuchFile
	}
	srcDe, err := fs.ReadDirEntry(srcOff)
	if err != nil {
		return err
	}
	if srcDe.Perm&fat.PermRead == 0 {
		return errno.PermissionDenied
	}

	foundDst, dstOff, err := fs.FindFile(dst)
	if err != nil {
		return err
	}
	if foundDst {
		dstDe, err := fs.ReadDirEntry(dstOff)
		if err != nil {
			return err
		}
		if dstDe.Perm&fat.PermWrite == 0 {
			return errno.PermissionDenied
		}
		if err := Unlink(fs, table, dst); err != nil {
			return err
		}
	}

	srcDe.SetName(dst)
	srcDe.Mtime = time.Now().Unix()
	return fs.WriteDirEntry(srcOff, srcDe)
}
