package ext4

import "encoding/binary"

// groupDescriptor is the 32-byte (32-bit feature only, no 64bit/metadata_csum)
// on-disk Block Group Descriptor entry, ported from
// original_source/rimfs/src/fs/ext4/types/bgdt.rs's Ext4BlockGroupDesc,
// trimmed to the fields that fit the 32-byte legacy size this package uses.
type groupDescriptor struct {
	blockBitmap  uint32
	inodeBitmap  uint32
	inodeTable   uint32
	freeBlocks   uint16
	freeInodes   uint16
	usedDirs     uint16
}

func (g groupDescriptor) encode() []byte {
	buf := make([]byte, groupDescriptorSize)
	binary.LittleEndian.PutUint32(buf[0:4], g.blockBitmap)
	binary.LittleEndian.PutUint32(buf[4:8], g.inodeBitmap)
	binary.LittleEndian.PutUint32(buf[8:12], g.inodeTable)
	binary.LittleEndian.PutUint16(buf[12:14], g.freeBlocks)
	binary.LittleEndian.PutUint16(buf[14:16], g.freeInodes)
	binary.LittleEndian.PutUint16(buf[16:18], g.usedDirs)
	return buf
}

func decodeGroupDescriptor(buf []byte) groupDescriptor {
	return groupDescriptor{
		blockBitmap: binary.LittleEndian.Uint32(buf[0:4]),
		inodeBitmap: binary.LittleEndian.Uint32(buf[4:8]),
		inodeTable:  binary.LittleEndian.Uint32(buf[8:12]),
		freeBlocks:  binary.LittleEndian.Uint16(buf[12:14]),
		freeInodes:  binary.LittleEndian.Uint16(buf[14:16]),
		usedDirs:    binary.LittleEndian.Uint16(buf[16:18]),
	}
}

// buildGroupDescriptor derives a group's BGDT entry directly from its
// GroupLayout plus how many of its blocks/inodes the Formatter has already
// consumed at format time (root dir + lost+found both live in group 0).
func (m *Meta) buildGroupDescriptor(groupID uint32) groupDescriptor {
	layout := m.computeGroupLayout(groupID)
	groupBlocks := m.blocksPerGroup
	if groupID == m.groupCount-1 {
		groupBlocks = m.blockCount - layout.GroupStart
	}
	used := layout.ReservedBlocks + 2 + layout.InodeTableBlocks
	usedInodes := uint16(0)
	usedDirs := uint16(0)
	if groupID == 0 {
		used += 2 // root dir block + lost+found block
		usedInodes = 11
		usedDirs = 2 // root + lost+found
	}
	return groupDescriptor{
		blockBitmap: layout.BlockBitmapBlock,
		inodeBitmap: layout.InodeBitmapBlock,
		inodeTable:  layout.InodeTableBlock,
		freeBlocks:  uint16(groupBlocks - used),
		freeInodes:  uint16(m.inodesPerGroup) - usedInodes,
		usedDirs:    usedDirs,
	}
}
