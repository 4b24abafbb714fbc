// Package fat implements the on-disk FAT-style filesystem core: mount
// lifecycle, the memory-mapped FAT array, free-block search and chain
// freeing, and the flat root-directory scan.
//
// The on-disk header is a small fixed record decoded with
// encoding/binary; the FAT array itself lives in a real mmap
// (golang.org/x/sys/unix) rather than a Go slice read wholesale into
// memory, so writes are visible to any other process holding the same
// mapping without an explicit flush.
package fat

import (
	"encoding/binary"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"pennsim/errno"
	"pennsim/gdt"
)

// BlockSizes are the five legal block sizes, indexed by the FAT
// header's block-size index.
var BlockSizes = [5]uint32{256, 512, 1024, 2048, 4096}

const (
	entryFree    uint16 = 0x0000
	entryEOC     uint16 = 0xFFFF
	rootFirstBlk        = 1
	maxFATBlocks        = 32
)

// FS is the mounted filesystem's kernel-side state: one instance per
// kernel, the sole global filesystem subsystem.
type FS struct {
	dev          Device
	fatBuf       []byte // mmap of the FAT region, entries as little-endian u16
	fatBlocks    int
	blockSizeIdx int
	blockSize    uint32
	fatSize      int64
	numEntries   int
	entsPerDir   int
	mounted      bool
	log          *logrus.Entry

	// freeCursor is where the next free-block search starts. It tracks
	// the lowest index known to be free, the same way a bitmap
	// allocator remembers its last search position instead of
	// rescanning from zero every time.
	freeCursor int
}

// New returns an unmounted FS, ready for Mkfs/Mount.
func New(log *logrus.Entry) *FS {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &FS{log: log}
}

func validateLayout(fatBlocks, blockSizeIdx int) error {
	if fatBlocks < 1 || fatBlocks > maxFATBlocks {
		return errno.InvalidArgument
	}
	if blockSizeIdx < 0 || blockSizeIdx >= len(BlockSizes) {
		return errno.InvalidArgument
	}
	return nil
}

func numEntriesFor(fatBlocks int, blockSize uint32) int {
	n := int64(fatBlocks) * int64(blockSize) / 2
	if n == 65536 {
		n = 65535
	}
	return int(n)
}

// Mkfs creates a new backing file at path with the given FAT size and
// block size index. It operates on an unmounted fs; mounting that same
// fs concurrently with formatting one is a caller error.
func (fs *FS) Mkfs(path string, fatBlocks, blockSizeIdx int) error {
	if fs.mounted {
		return errno.NotPermitted
	}
	if err := validateLayout(fatBlocks, blockSizeIdx); err != nil {
		return err
	}
	blockSize := BlockSizes[blockSizeIdx]
	fatSize := int64(fatBlocks) * int64(blockSize)
	numEntries := numEntriesFor(fatBlocks, blockSize)
	totalSize := fatSize + int64(numEntries-1)*int64(blockSize)

	dev, err := OpenFileDevice(path, true)
	if err != nil {
		return err
	}
	defer dev.Close()

	if err := dev.Truncate(totalSize); err != nil {
		return errno.Wrap(errno.IOError, "mkfs truncate")
	}

	header := make([]byte, fatSize)
	cfg := uint16(fatBlocks)<<8 | uint16(blockSizeIdx)
	binary.LittleEndian.PutUint16(header[0:2], cfg)
	binary.LittleEndian.PutUint16(header[2:4], entryEOC) // entry 1: root dir EOC
	// entries 2..numEntries-1 default to 0 (free) in a fresh buffer.
	if _, err := dev.WriteAt(header, 0); err != nil {
		return errno.Wrap(errno.IOError, "mkfs header")
	}
	if err := dev.Sync(); err != nil {
		return errno.Wrap(errno.IOError, "mkfs sync")
	}
	fs.log.WithFields(logrus.Fields{"path": path, "fat_blocks": fatBlocks, "block_size": blockSize}).Debug("mkfs")
	return nil
}

// Mount opens path, validates its header, and memory-maps the FAT
// region read/write.
func (fs *FS) Mount(path string, table *gdt.Table) error {
	if fs.mounted {
		return errno.NotPermitted
	}
	dev, err := OpenFileDevice(path, false)
	if err != nil {
		return err
	}

	hdr := make([]byte, 4)
	if _, err := dev.ReadAt(hdr, 0); err != nil {
		dev.Close()
		return errno.Wrap(errno.IOError, "mount header")
	}
	cfg := binary.LittleEndian.Uint16(hdr[0:2])
	fatBlocks := int(cfg >> 8)
	blockSizeIdx := int(cfg & 0xFF)
	if err := validateLayout(fatBlocks, blockSizeIdx); err != nil {
		dev.Close()
		return errno.Wrap(errno.IOError, "corrupt fat header")
	}
	blockSize := BlockSizes[blockSizeIdx]
	fatSize := int64(fatBlocks) * int64(blockSize)
	numEntries := numEntriesFor(fatBlocks, blockSize)

	fd, ok := dev.Fd()
	if !ok {
		dev.Close()
		return errno.Wrap(errno.IOError, "device has no descriptor to mmap")
	}
	buf, err := unix.Mmap(fd, 0, int(fatSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		dev.Close()
		return errno.Wrap(errno.IOError, "mmap fat region")
	}

	fs.dev = dev
	fs.fatBuf = buf
	fs.fatBlocks = fatBlocks
	fs.blockSizeIdx = blockSizeIdx
	fs.blockSize = blockSize
	fs.fatSize = fatSize
	fs.numEntries = numEntries
	fs.entsPerDir = int(blockSize) / DirEntrySize
	fs.freeCursor = 1
	fs.mounted = true

	table.InitStandardStreams()
	fs.log.WithField("path", path).Debug("mounted")
	return nil
}

// Unmount frees the GDT, unmaps the FAT, and closes the backing file.
func (fs *FS) Unmount(table *gdt.Table) error {
	if !fs.mounted {
		return errno.NotMounted
	}
	table.Reset()
	if err := unix.Munmap(fs.fatBuf); err != nil {
		return errno.Wrap(errno.IOError, "munmap")
	}
	if err := fs.dev.Close(); err != nil {
		return errno.Wrap(errno.IOError, "close backing file")
	}
	fs.fatBuf = nil
	fs.dev = nil
	fs.mounted = false
	fs.log.Debug("unmounted")
	return nil
}

// Mounted reports whether a filesystem is currently mounted.
func (fs *FS) Mounted() bool { return fs.mounted }

// BlockSize returns the active block size in bytes.
func (fs *FS) BlockSize() uint32 { return fs.blockSize }

func (fs *FS) getEntry(i int) uint16 {
	return binary.LittleEndian.Uint16(fs.fatBuf[i*2 : i*2+2])
}

func (fs *FS) setEntry(i int, v uint16) {
	binary.LittleEndian.PutUint16(fs.fatBuf[i*2:i*2+2], v)
}

// blockOffset returns the byte offset of block i (i >= 1) within the
// backing file's data region.
func (fs *FS) blockOffset(i int) int64 {
	return fs.fatSize + int64(i-1)*int64(fs.blockSize)
}

// FindFreeBlock scans the FAT for the first free entry at index >= 1,
// starting from freeCursor and wrapping around once. It returns 0 if
// the disk is full. Starting from the cursor rather than index 1 every
// time keeps repeated allocations on a mostly-full disk from rescanning
// the same long run of used entries on every call.
func (fs *FS) FindFreeBlock() int {
	for i := fs.freeCursor; i < fs.numEntries; i++ {
		if fs.getEntry(i) == entryFree {
			fs.freeCursor = i
			return i
		}
	}
	for i := 1; i < fs.freeCursor; i++ {
		if fs.getEntry(i) == entryFree {
			fs.freeCursor = i
			return i
		}
	}
	return 0
}

// FreeChain walks the chain starting at first, zeroing each FAT entry.
// Any freed index below the current search cursor pulls the cursor
// back, so the next allocation finds it immediately instead of waiting
// for a full wraparound.
func (fs *FS) FreeChain(first int) {
	cur := first
	for cur != 0 {
		next := fs.getEntry(cur)
		fs.setEntry(cur, entryFree)
		if cur < fs.freeCursor {
			fs.freeCursor = cur
		}
		if next == entryEOC || next == entryFree {
			break
		}
		cur = int(next)
	}
}

// LinkBlock appends newBlock onto the end of prev's chain entry and
// marks newBlock as the new end-of-chain.
func (fs *FS) LinkBlock(prev, newBlock int) {
	fs.setEntry(prev, uint16(newBlock))
	fs.setEntry(newBlock, entryEOC)
}

// MarkEOC marks block as a fresh, one-block chain.
func (fs *FS) MarkEOC(block int) {
	fs.setEntry(block, entryEOC)
}

// NextBlock returns the block following cur in its chain, or 0 if cur
// is itself free (caller error) and entryEOC's numeric value if cur is
// the chain's last block.
func (fs *FS) NextBlock(cur int) uint16 {
	return fs.getEntry(cur)
}

// IsEOC reports whether a raw FAT entry value marks a chain's end.
func IsEOC(v uint16) bool { return v == entryEOC }

// ReadBlock reads up to len(buf) bytes (capped to the block size) of
// block i into buf.
func (fs *FS) ReadBlock(i int, buf []byte) (int, error) {
	n := len(buf)
	if uint32(n) > fs.blockSize {
		n = int(fs.blockSize)
	}
	read, err := fs.dev.ReadAt(buf[:n], fs.blockOffset(i))
	return read, err
}

// WriteBlock writes up to len(buf) bytes (capped to the block size)
// into block i.
func (fs *FS) WriteBlock(i int, buf []byte) (int, error) {
	n := len(buf)
	if uint32(n) > fs.blockSize {
		n = int(fs.blockSize)
	}
	return fs.dev.WriteAt(buf[:n], fs.blockOffset(i))
}

// ReadBlockAt reads into buf starting inOffset bytes into block i.
func (fs *FS) ReadBlockAt(i, inOffset int, buf []byte) (int, error) {
	return fs.dev.ReadAt(buf, fs.blockOffset(i)+int64(inOffset))
}

// WriteBlockAt writes buf starting inOffset bytes into block i.
func (fs *FS) WriteBlockAt(i, inOffset int, buf []byte) (int, error) {
	return fs.dev.WriteAt(buf, fs.blockOffset(i)+int64(inOffset))
}

// ZeroBlock overwrites all of block i with zero bytes.
func (fs *FS) ZeroBlock(i int) error {
	zeros := make([]byte, fs.blockSize)
	_, err := fs.dev.WriteAt(zeros, fs.blockOffset(i))
	return err
}

// rootChainTail walks the root directory's chain and returns its last
// block index.
func (fs *FS) rootChainTail() int {
	cur := rootFirstBlk
	for {
		next := fs.getEntry(cur)
		if IsEOC(next) {
			return cur
		}
		cur = int(next)
	}
}

func (fs *FS) dirSlotOffset(block, slot int) int64 {
	return fs.blockOffset(block) + int64(slot)*DirEntrySize
}

// FindFile scans the flat root directory for name.
//
// On success, found is true and offset is the byte offset of the
// matching active entry. On failure, offset is the byte offset of the
// first reusable (deleted or truly-free) slot, or -1 if the directory
// has none and must be extended via ExtendRoot.
func (fs *FS) FindFile(name string) (found bool, offset int64, err error) {
	if !fs.mounted {
		return false, -1, errno.NotMounted
	}
	reusable := int64(-1)
	cur := rootFirstBlk
	buf := make([]byte, fs.blockSize)
	var de DirEntry
	for {
		if _, err := fs.dev.ReadAt(buf, fs.blockOffset(cur)); err != nil {
			return false, -1, errno.Wrap(errno.IOError, "read directory block")
		}
		for slot := 0; slot < fs.entsPerDir; slot++ {
			off := slot * DirEntrySize
			if err := de.UnmarshalBinary(buf[off : off+DirEntrySize]); err != nil {
				return false, -1, errno.Wrap(errno.IOError, "decode dirent")
			}
			switch de.status() {
			case statusEndOfDir:
				if reusable == -1 {
					reusable = fs.dirSlotOffset(cur, slot)
				}
				return false, reusable, nil
			case statusDeleted:
				if reusable == -1 {
					reusable = fs.dirSlotOffset(cur, slot)
				}
			case statusTombstone:
				// Neither reusable nor a name match.
			default:
				if de.NameString() == name {
					return true, fs.dirSlotOffset(cur, slot), nil
				}
			}
		}
		next := fs.getEntry(cur)
		if IsEOC(next) {
			return false, reusable, nil
		}
		cur = int(next)
	}
}

// ExtendRoot appends a fresh block to the root directory's chain and
// returns the byte offset of its first slot.
func (fs *FS) ExtendRoot() (int64, error) {
	block := fs.FindFreeBlock()
	if block == 0 {
		return -1, errno.NoSpace
	}
	if err := fs.ZeroBlock(block); err != nil {
		return -1, errno.Wrap(errno.IOError, "zero new root block")
	}
	tail := fs.rootChainTail()
	fs.LinkBlock(tail, block)
	return fs.dirSlotOffset(block, 0), nil
}

// ReadDirEntry reads and decodes the 64-byte record at offset.
func (fs *FS) ReadDirEntry(offset int64) (*DirEntry, error) {
	buf := make([]byte, DirEntrySize)
	if _, err := fs.dev.ReadAt(buf, offset); err != nil {
		return nil, errno.Wrap(errno.IOError, "read dirent")
	}
	de := &DirEntry{}
	if err := de.UnmarshalBinary(buf); err != nil {
		return nil, errno.Wrap(errno.IOError, "decode dirent")
	}
	return de, nil
}

// WriteDirEntry encodes and persists de at offset.
func (fs *FS) WriteDirEntry(offset int64, de *DirEntry) error {
	buf, err := de.MarshalBinary()
	if err != nil {
		return errno.Wrap(errno.IOError, "encode dirent")
	}
	if _, err := fs.dev.WriteAt(buf, offset); err != nil {
		return errno.Wrap(errno.IOError, "write dirent")
	}
	return nil
}

// AllocBlock finds and reserves a free block without linking it into
// any chain yet, marking it end-of-chain so a half-linked block is
// never mistaken for free if a later step fails.
func (fs *FS) AllocBlock() (int, error) {
	b := fs.FindFreeBlock()
	if b == 0 {
		return 0, errno.NoSpace
	}
	fs.MarkEOC(b)
	return b, nil
}
