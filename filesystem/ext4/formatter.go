package ext4

import (
	"time"

	"github.com/imgforge/rim/core"
	"github.com/imgforge/rim/util/bitmap"
	"github.com/sirupsen/logrus"
)

// Formatter writes the fixed on-disk regions of an empty ext4 filesystem:
// primary and sparse_super backup superblocks+BGDTs, every group's block
// and inode bitmaps, zeroed inode tables, the root inode (2) and
// lost+found inode (11), and their directory block content, per spec.md
// §4.4/§4.7.
type Formatter struct {
	meta  *Meta
	w     core.BlockIO
	clock core.Clock
	log   *logrus.Entry
}

// NewFormatter builds a Formatter writing through w using meta's geometry.
func NewFormatter(w core.BlockIO, meta *Meta, clock core.Clock) *Formatter {
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &Formatter{meta: meta, w: w, clock: clock, log: logrus.WithField("fs", "ext4")}
}

// Format writes the full ext4 structure. When full is true the entire
// image is zero-filled first.
func (f *Formatter) Format(full bool) error {
	if full {
		f.log.Debug("zero-filling full image before format")
		if err := f.w.ZeroFill(0, f.w.Len()); err != nil {
			return err
		}
	}

	now := f.clock.Now()
	sb := f.meta.buildSuperblock(now)
	bgdt := f.buildGroupDescriptorTable()

	layout0 := f.meta.computeGroupLayout(0)
	if err := f.w.WriteAt(f.meta.OffsetOf(0)+superblockOffset, sb); err != nil {
		return err
	}
	if err := f.w.WriteAt(f.meta.OffsetOf(layout0.GroupStart+1), bgdt); err != nil {
		return err
	}

	if err := f.writeGroupMetadata(); err != nil {
		return err
	}
	if err := f.writeRootAndLostFound(now); err != nil {
		return err
	}
	return f.writeBackupSuperblocks(sb, bgdt)
}

// buildGroupDescriptorTable encodes every group's BGDT entry back to back,
// matching the freshly-formatted free-count state each groupDescriptor
// carries.
func (f *Formatter) buildGroupDescriptorTable() []byte {
	buf := make([]byte, 0, f.meta.groupCount*groupDescriptorSize)
	for g := uint32(0); g < f.meta.groupCount; g++ {
		gd := f.meta.buildGroupDescriptor(g)
		buf = append(buf, gd.encode()...)
	}
	return buf
}

// writeGroupMetadata writes each group's block bitmap, inode bitmap, and
// zeroed inode table. Every group's block bitmap marks its reserved metadata
// blocks (and, in a short last group, the bits past the end of the volume);
// group 0 additionally marks the root/lost+found data blocks and reserved
// inodes 1..11.
func (f *Formatter) writeGroupMetadata() error {
	for g := uint32(0); g < f.meta.groupCount; g++ {
		layout := f.meta.computeGroupLayout(g)

		blockBits := bitmap.NewBits(int(f.meta.blockSize) * 8)
		groupBlocks := f.meta.blocksPerGroup
		if g == f.meta.groupCount-1 {
			groupBlocks = f.meta.blockCount - layout.GroupStart
		}
		for rel := uint32(0); rel < layout.FirstDataBlock-layout.GroupStart; rel++ {
			if err := blockBits.Set(int(rel)); err != nil {
				return core.ErrInvalid("seed block bitmap: " + err.Error())
			}
		}
		if g == 0 {
			if err := blockBits.Set(int(layout.FirstDataBlock - layout.GroupStart)); err != nil {
				return err
			}
			if err := blockBits.Set(int(layout.FirstDataBlock-layout.GroupStart) + 1); err != nil {
				return err
			}
		}
		for rel := groupBlocks; rel < f.meta.blocksPerGroup; rel++ {
			if err := blockBits.Set(int(rel)); err != nil {
				return err
			}
		}
		if err := f.w.WriteAt(f.meta.OffsetOf(layout.BlockBitmapBlock), blockBits.ToBytes()); err != nil {
			return err
		}

		inodeBits := bitmap.NewBits(int(f.meta.inodesPerGroup))
		if g == 0 {
			for ino := uint32(1); ino <= lostFoundInode; ino++ {
				if err := inodeBits.Set(int(ino - 1)); err != nil {
					return err
				}
			}
		}
		inodeBitmapBuf := make([]byte, f.meta.blockSize)
		copy(inodeBitmapBuf, inodeBits.ToBytes())
		if err := f.w.WriteAt(f.meta.OffsetOf(layout.InodeBitmapBlock), inodeBitmapBuf); err != nil {
			return err
		}

		tableSize := int64(layout.InodeTableBlocks) * int64(f.meta.blockSize)
		if err := f.w.ZeroFill(f.meta.OffsetOf(layout.InodeTableBlock), tableSize); err != nil {
			return err
		}
	}
	return nil
}

// writeRootAndLostFound seeds inode 2 (root, containing ".", "..",
// "lost+found") and inode 11 (lost+found, mode 0o40700, containing ".",
// "..") with the two data blocks immediately following group 0's inode
// table, per spec.md §4.7.
func (f *Formatter) writeRootAndLostFound(now time.Time) error {
	layout0 := f.meta.computeGroupLayout(0)
	rootBlock := layout0.FirstDataBlock
	lostFoundBlock := layout0.FirstDataBlock + 1

	rootAttr := core.FileAttributes{Dir: true}
	rootInodeRec, err := newInode(fileTypeDirectory, rootAttr, int64(f.meta.blockSize), []uint32{rootBlock}, 3, now)
	if err != nil {
		return err
	}
	if err := f.w.WriteAt(f.meta.InodeOffset(rootInode), rootInodeRec.encode()); err != nil {
		return err
	}

	mode := uint16(0o700)
	lfAttr := core.FileAttributes{Dir: true, Mode: &mode}
	lfInodeRec, err := newInode(fileTypeDirectory, lfAttr, int64(f.meta.blockSize), []uint32{lostFoundBlock}, 2, now)
	if err != nil {
		return err
	}
	if err := f.w.WriteAt(f.meta.InodeOffset(lostFoundInode), lfInodeRec.encode()); err != nil {
		return err
	}

	rootEntries := []dirEntry{
		newDirEntry(rootInode, ".", dirEntryFileTypeDir),
		newDirEntry(rootInode, "..", dirEntryFileTypeDir),
		newDirEntry(lostFoundInode, "lost+found", dirEntryFileTypeDir),
	}
	if err := f.w.WriteAt(f.meta.OffsetOf(rootBlock), encodeDirBlock(rootEntries, int64(f.meta.blockSize))); err != nil {
		return err
	}

	lfEntries := []dirEntry{
		newDirEntry(lostFoundInode, ".", dirEntryFileTypeDir),
		newDirEntry(rootInode, "..", dirEntryFileTypeDir),
	}
	return f.w.WriteAt(f.meta.OffsetOf(lostFoundBlock), encodeDirBlock(lfEntries, int64(f.meta.blockSize)))
}

// writeBackupSuperblocks replicates the primary superblock and BGDT,
// byte-identical, into every sparse_super backup group other than 0, per
// spec.md §4.4's backup-replication requirement.
func (f *Formatter) writeBackupSuperblocks(sb, bgdt []byte) error {
	for g := uint32(1); g < f.meta.groupCount; g++ {
		if !isSparseSuperGroup(g) {
			continue
		}
		layout := f.meta.computeGroupLayout(g)
		if err := f.w.WriteAt(f.meta.OffsetOf(layout.GroupStart), sb); err != nil {
			return err
		}
		if err := f.w.WriteAt(f.meta.OffsetOf(layout.GroupStart+1), bgdt); err != nil {
			return err
		}
	}
	return nil
}
