package ext4

import (
	"github.com/imgforge/rim/core"
	"github.com/imgforge/rim/util/bitmap"
	"github.com/sirupsen/logrus"
)

// dirContext is one open-directory frame of the Injector's stack, per
// spec.md §4.5/§9. Unlike fat32/exfat, a child directory's data blocks are
// not allocated until FlushCurrent, when the block count of its packed
// entry set is known.
type dirContext struct {
	ino     uint32
	parent  uint32
	entries []dirEntry
}

// Injector walks a logical tree and writes ext4 inodes, extents, and
// directory blocks, per spec.md §4.5.
type Injector struct {
	meta     *Meta
	alloc    *Allocator
	w        core.BlockIO
	clock    core.Clock
	stack    []*dirContext
	nextIno  uint32
	log      *logrus.Entry
}

// NewInjector builds an Injector writing through w using meta/alloc.
func NewInjector(w core.BlockIO, meta *Meta, alloc *Allocator, clock core.Clock) *Injector {
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &Injector{meta: meta, alloc: alloc, w: w, clock: clock, nextIno: firstFreeInode, log: logrus.WithField("fs", "ext4")}
}

func (inj *Injector) top() *dirContext { return inj.stack[len(inj.stack)-1] }

// SetRootContext pushes a context for the root directory (inode 2), seeded
// with the "." and ".." entries the Formatter already wrote; lost+found's
// entry is preserved by re-reading the root block's existing entries.
func (inj *Injector) SetRootContext() error {
	buf := make([]byte, inj.meta.blockSize)
	rootIno, err := inj.readInode(rootInode)
	if err != nil {
		return err
	}
	chain := rootIno.chain()
	if len(chain) == 0 {
		return core.ErrInvalid("root inode has no data blocks")
	}
	if err := inj.w.ReadAt(inj.meta.OffsetOf(chain[0]), buf); err != nil {
		return err
	}
	existing, err := decodeDirBlock(buf)
	if err != nil {
		return err
	}
	inj.stack = []*dirContext{{ino: rootInode, parent: rootInode, entries: existing}}
	return nil
}

func (inj *Injector) readInode(n uint32) (inode, error) {
	buf := make([]byte, inodeSize)
	if err := inj.w.ReadAt(inj.meta.InodeOffset(n), buf); err != nil {
		return inode{}, err
	}
	return decodeInode(buf)
}

// WriteDir allocates a new inode number and appends its entry into the
// parent's buffer immediately; the child's data blocks are only reserved
// once FlushCurrent knows how many its final entry set needs.
func (inj *Injector) WriteDir(name string, attr core.FileAttributes) error {
	parent := inj.top()
	ino := inj.nextIno
	inj.nextIno++

	parent.entries = append(parent.entries, newDirEntry(ino, name, dirEntryFileTypeDir))

	inj.stack = append(inj.stack, &dirContext{
		ino:    ino,
		parent: parent.ino,
		entries: []dirEntry{
			newDirEntry(ino, ".", dirEntryFileTypeDir),
			newDirEntry(parent.ino, "..", dirEntryFileTypeDir),
		},
	})
	return nil
}

// WriteFile allocates a new inode number and exactly enough blocks for
// content, writes the content and the inode (one extent per contiguous run
// of those blocks), and appends the file's entry into the current
// directory's buffer.
func (inj *Injector) WriteFile(name string, content []byte, attr core.FileAttributes) error {
	ino := inj.nextIno
	inj.nextIno++

	unitCount := core.UnitsForLength(int64(len(content)), inj.meta.UnitSize())
	var chain []uint32
	if unitCount > 0 {
		handle, err := inj.alloc.AllocateChain(int(unitCount))
		if err != nil {
			return err
		}
		chain = handle.Chain
		if err := core.StreamWriteUnits(inj.w, chain, inj.meta.UnitSize(), content, inj.meta.OffsetOf); err != nil {
			return err
		}
		if err := inj.markBlocksUsed(chain); err != nil {
			return err
		}
	}

	rec, err := newInode(fileTypeRegularFile, attr, int64(len(content)), chain, 1, inj.clock.Now())
	if err != nil {
		return err
	}
	if err := inj.w.WriteAt(inj.meta.InodeOffset(ino), rec.encode()); err != nil {
		return err
	}
	if err := inj.markInodeUsed(ino, false); err != nil {
		return err
	}

	inj.top().entries = append(inj.top().entries, newDirEntry(ino, name, dirEntryFileTypeRegular))
	return nil
}

// FlushCurrent pops the top context and writes its packed entry set and
// inode. The root reuses the block the Formatter reserved for it and only
// allocates any further blocks it needs; other directories get newly
// allocated blocks. New allocations are marked in the bitmaps/BGDT.
func (inj *Injector) FlushCurrent() error {
	n := len(inj.stack)
	if n == 0 {
		return core.ErrInvalid("no open directory context to flush")
	}
	ctx := inj.stack[n-1]
	inj.stack = inj.stack[:n-1]

	packed := packDirBlocks(ctx.entries, inj.meta.UnitSize())
	blockCount := int(int64(len(packed)) / inj.meta.UnitSize())

	var chain []uint32
	if ctx.ino == rootInode {
		rootRec, err := inj.readInode(rootInode)
		if err != nil {
			return err
		}
		chain = rootRec.chain()
	}
	if extra := blockCount - len(chain); extra > 0 {
		handle, err := inj.alloc.AllocateChain(extra)
		if err != nil {
			return err
		}
		if err := inj.markBlocksUsed(handle.Chain); err != nil {
			return err
		}
		chain = append(chain, handle.Chain...)
	}
	if err := core.StreamWriteUnits(inj.w, chain, inj.meta.UnitSize(), packed, inj.meta.OffsetOf); err != nil {
		return err
	}

	rec, err := newInode(fileTypeDirectory, core.FileAttributes{Dir: true}, int64(len(packed)), chain, 2, inj.clock.Now())
	if err != nil {
		return err
	}
	if err := inj.w.WriteAt(inj.meta.InodeOffset(ctx.ino), rec.encode()); err != nil {
		return err
	}
	if ctx.ino == rootInode {
		return nil // the Formatter already marked inode 2 used
	}
	return inj.markInodeUsed(ctx.ino, true)
}

// Flush drains the remaining open-directory stack, innermost first.
func (inj *Injector) Flush() error {
	for len(inj.stack) > 0 {
		if err := inj.FlushCurrent(); err != nil {
			return err
		}
	}
	return nil
}

func (inj *Injector) groupOf(block uint32) uint32 {
	return (block - inj.meta.firstDataBlock) / inj.meta.blocksPerGroup
}

// markBlocksUsed sets chain's bits in each owning group's block bitmap and
// decrements that group's BGDT free_blocks count.
func (inj *Injector) markBlocksUsed(chain []uint32) error {
	byGroup := make(map[uint32][]uint32)
	for _, b := range chain {
		g := inj.groupOf(b)
		byGroup[g] = append(byGroup[g], b)
	}
	for g, blocks := range byGroup {
		layout := inj.meta.computeGroupLayout(g)
		buf := make([]byte, inj.meta.blockSize)
		if err := inj.w.ReadAt(inj.meta.OffsetOf(layout.BlockBitmapBlock), buf); err != nil {
			return err
		}
		bm := bitmap.FromBytes(buf)
		for _, b := range blocks {
			if err := bm.Set(int(b - layout.GroupStart)); err != nil {
				return core.ErrInvalid("mark block used: " + err.Error())
			}
		}
		if err := inj.w.WriteAt(inj.meta.OffsetOf(layout.BlockBitmapBlock), bm.ToBytes()); err != nil {
			return err
		}
		if err := inj.adjustGroupDescriptor(g, -int32(len(blocks)), 0, 0); err != nil {
			return err
		}
	}
	return nil
}

// markInodeUsed sets ino's bit in its owning group's inode bitmap and
// decrements that group's BGDT free_inodes (and, for directories,
// increments used_dirs).
func (inj *Injector) markInodeUsed(ino uint32, isDir bool) error {
	g := (ino - 1) / inj.meta.inodesPerGroup
	idx := (ino - 1) % inj.meta.inodesPerGroup
	layout := inj.meta.computeGroupLayout(g)

	buf := make([]byte, inj.meta.blockSize)
	if err := inj.w.ReadAt(inj.meta.OffsetOf(layout.InodeBitmapBlock), buf); err != nil {
		return err
	}
	bm := bitmap.FromBytes(buf)
	if err := bm.Set(int(idx)); err != nil {
		return core.ErrInvalid("mark inode used: " + err.Error())
	}
	if err := inj.w.WriteAt(inj.meta.OffsetOf(layout.InodeBitmapBlock), bm.ToBytes()); err != nil {
		return err
	}

	dirDelta := int16(0)
	if isDir {
		dirDelta = 1
	}
	return inj.adjustGroupDescriptor(g, 0, -1, dirDelta)
}

// adjustGroupDescriptor applies deltas to one group's BGDT entry in place,
// without rewriting the rest of the table, then mirrors the same encoded
// entry into every sparse_super backup group's copy of the BGDT so the
// backups stay byte-identical to the primary (spec.md §4.4/§4.6).
func (inj *Injector) adjustGroupDescriptor(groupID uint32, freeBlocksDelta int32, freeInodesDelta int32, usedDirsDelta int16) error {
	layout0 := inj.meta.computeGroupLayout(0)
	offset := inj.meta.OffsetOf(layout0.GroupStart+1) + int64(groupID)*int64(groupDescriptorSize)

	buf := make([]byte, groupDescriptorSize)
	if err := inj.w.ReadAt(offset, buf); err != nil {
		return err
	}
	gd := decodeGroupDescriptor(buf)
	gd.freeBlocks = uint16(int32(gd.freeBlocks) + freeBlocksDelta)
	gd.freeInodes = uint16(int32(gd.freeInodes) + freeInodesDelta)
	gd.usedDirs = uint16(int16(gd.usedDirs) + usedDirsDelta)
	encoded := gd.encode()
	if err := inj.w.WriteAt(offset, encoded); err != nil {
		return err
	}
	return inj.syncBackupGroupDescriptors(groupID, encoded)
}

// syncBackupGroupDescriptors writes entry (one group's encoded BGDT record)
// into every sparse_super backup group's copy of the BGDT, at the same
// groupID-indexed slot the primary just wrote.
func (inj *Injector) syncBackupGroupDescriptors(groupID uint32, entry []byte) error {
	for g := uint32(1); g < inj.meta.groupCount; g++ {
		if !isSparseSuperGroup(g) {
			continue
		}
		layout := inj.meta.computeGroupLayout(g)
		offset := inj.meta.OffsetOf(layout.GroupStart+1) + int64(groupID)*int64(groupDescriptorSize)
		if err := inj.w.WriteAt(offset, entry); err != nil {
			return err
		}
	}
	return nil
}
