// Package ext4 implements the ext4 filesystem family's Meta, Allocator,
// Formatter, Injector, Checker, and Resolver, per spec.md §4.2/§4.4-§4.7.
// Blocks play the role clusters play in fat32/exfat; the chain abstraction
// is extents rather than a FAT, so this package does not use
// filesystem/fatchain. Grounded on the teacher's ext4.go constants/naming
// conventions and, for the superblock/group-descriptor/directory-entry
// on-disk layouts the pack never retrieved a teacher source for, on
// original_source/rimfs/src/fs/ext4/* (see DESIGN.md).
package ext4

import (
	"github.com/imgforge/rim/core"
	"github.com/imgforge/rim/filesystem"
)

const (
	blockSize0       uint32 = 4096
	defaultBlockSize uint32 = blockSize0
	// blocksPerGroup0/inodesPerGroup0 are deliberately smaller than a real
	// mkfs.ext4's 8*block_size-bit default so that a modestly sized image
	// (spec.md's 64 MiB Scenario D) still spans multiple block groups and
	// exercises sparse_super backup replication at group 3.
	blocksPerGroup0 uint32 = 4096
	inodesPerGroup0 uint32 = 2048

	inodeSize           uint16 = 256
	groupDescriptorSize uint32 = 32 // 32-bit feature only

	rootInode      uint32 = 2
	lostFoundInode uint32 = 11
	firstFreeInode uint32 = 12

	superblockOffset int64 = 1024
	superblockSize   int64 = 1024

	extentHeaderMagic uint16 = 0xF30A
	extentMaxInline    uint16 = 4

	featureIncompatFiletype uint32 = 0x2
	featureIncompatExtents  uint32 = 0x40
	featureRoCompatSparse   uint32 = 0x1
	featureRoCompatLargeFile uint32 = 0x2
)

// Options configures ext4 Meta construction.
type Options struct {
	Label     string
	BlockSize uint32 // 0 means defaultBlockSize
}

// Meta is the frozen ext4 geometry for one filesystem instance.
type Meta struct {
	sizeBytes int64
	label     string

	blockSize      uint32
	blocksPerGroup uint32
	inodesPerGroup uint32
	blockCount     uint32
	groupCount     uint32
	inodeCount     uint32
	firstDataBlock uint32

	volumeID   uint32
	volumeUUID [16]byte
}

// NewMeta computes ext4 geometry for a volume of sizeBytes, per spec.md
// §4.2: fixed block_size/blocks_per_group/inodes_per_group defaults, group
// count derived by division, sparse_super handled by GroupLayout.
func NewMeta(sizeBytes int64, opts Options) (*Meta, error) {
	blockSize := opts.BlockSize
	if blockSize == 0 {
		blockSize = defaultBlockSize
	}

	blockCount := uint32(sizeBytes / int64(blockSize))
	if blockCount < blocksPerGroup0 {
		return nil, core.ErrInvalid("size_bytes too small to fit one block group")
	}

	groupCount := ceilDivU32(blockCount, blocksPerGroup0)
	inodeCount := groupCount * inodesPerGroup0

	firstDataBlock := uint32(0)
	if blockSize == 1024 {
		firstDataBlock = 1
	}

	guid, volumeID := core.DeriveVolumeIDs(opts.Label, uint64(sizeBytes), blockSize, 2)

	m := &Meta{
		sizeBytes:      sizeBytes,
		label:          opts.Label,
		blockSize:      blockSize,
		blocksPerGroup: blocksPerGroup0,
		inodesPerGroup: inodesPerGroup0,
		blockCount:     blockCount,
		groupCount:     groupCount,
		inodeCount:     inodeCount,
		firstDataBlock: firstDataBlock,
		volumeID:       volumeID,
		volumeUUID:     guid,
	}

	first := m.computeGroupLayout(0)
	if first.FirstDataBlock >= m.blocksPerGroup {
		return nil, core.ErrInvalid("size_bytes too small to fit reserved group metadata")
	}
	return m, nil
}

// --- filesystem.Meta ---

func (m *Meta) Type() filesystem.Type { return filesystem.TypeExt4 }
func (m *Meta) UnitSize() int64       { return int64(m.blockSize) }
func (m *Meta) RootUnit() uint32      { return rootInode }
func (m *Meta) VolumeID() uint32      { return m.volumeID }

// FirstDataUnit and LastDataUnit bound the allocator's block range; group 0's
// metadata (superblock, BGDT, bitmaps, inode table) is always reserved, so
// the first allocatable block is group 0's GroupLayout.FirstDataBlock.
func (m *Meta) FirstDataUnit() uint32 {
	return m.computeGroupLayout(0).FirstDataBlock
}

func (m *Meta) LastDataUnit() uint32 { return m.blockCount - 1 }

func (m *Meta) TotalUnits() uint32 { return m.blockCount }

// OffsetOf returns the absolute byte offset of the given block.
func (m *Meta) OffsetOf(block uint32) int64 {
	return int64(block) * int64(m.blockSize)
}

// InodeOffset returns the absolute byte offset of inode number n's on-disk
// record, within whichever group's inode table holds it.
func (m *Meta) InodeOffset(n uint32) int64 {
	group := (n - 1) / m.inodesPerGroup
	indexInGroup := (n - 1) % m.inodesPerGroup
	layout := m.computeGroupLayout(group)
	return m.OffsetOf(layout.InodeTableBlock) + int64(indexInGroup)*int64(inodeSize)
}

// GroupLayoutAt exposes computeGroupLayout for the Formatter/Checker.
func (m *Meta) GroupLayoutAt(groupID uint32) GroupLayout { return m.computeGroupLayout(groupID) }

// GroupCount is the total number of block groups.
func (m *Meta) GroupCount() uint32 { return m.groupCount }
