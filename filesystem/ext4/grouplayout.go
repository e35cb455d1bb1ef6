package ext4

// isSparseSuperGroup reports whether group groupID keeps a backup
// superblock + BGDT copy, per ext4's sparse_super feature: group 0 always
// does, plus any group whose id is an exact power of 3, 5, or 7. Ported
// from original_source/rimfs/src/fs/ext4/utils.rs's is_sparse_super_group,
// the canonical of the pack's two competing drafts (see DESIGN.md).
func isSparseSuperGroup(groupID uint32) bool {
	if groupID == 0 {
		return true
	}
	for _, base := range []uint32{3, 5, 7} {
		for p := uint32(1); p <= groupID; p *= base {
			if p == groupID {
				return true
			}
		}
	}
	return false
}

// GroupLayout is the computed block layout of one ext4 block group, ported
// from original_source/rimfs/src/fs/ext4/group_layout.rs.
type GroupLayout struct {
	GroupID          uint32
	GroupStart       uint32
	ReservedBlocks   uint32 // superblock + BGDT backup, sparse groups only
	BlockBitmapBlock uint32
	InodeBitmapBlock uint32
	InodeTableBlock  uint32
	InodeTableBlocks uint32
	FirstDataBlock   uint32
}

// computeGroupLayout mirrors GroupLayout::compute: reserved blocks first
// (when sparse_super applies to this group), then the block bitmap, inode
// bitmap, and inode table, each exactly one region wide except the table.
func (m *Meta) computeGroupLayout(groupID uint32) GroupLayout {
	groupStart := m.firstDataBlock + groupID*m.blocksPerGroup
	reserved := m.reservedBlocksInGroup(groupID)

	blockBitmap := groupStart + reserved
	inodeBitmap := blockBitmap + 1
	inodeTable := inodeBitmap + 1
	tableBlocks := ceilDivU32(m.inodesPerGroup*uint32(inodeSize), m.blockSize)
	firstData := inodeTable + tableBlocks

	return GroupLayout{
		GroupID:          groupID,
		GroupStart:       groupStart,
		ReservedBlocks:   reserved,
		BlockBitmapBlock: blockBitmap,
		InodeBitmapBlock: inodeBitmap,
		InodeTableBlock:  inodeTable,
		InodeTableBlocks: tableBlocks,
		FirstDataBlock:   firstData,
	}
}

// reservedBlocksInGroup returns 1 (superblock) + however many blocks the
// BGDT needs, for groups sparse_super designates as backup carriers; 0 for
// every other group.
func (m *Meta) reservedBlocksInGroup(groupID uint32) uint32 {
	if !isSparseSuperGroup(groupID) {
		return 0
	}
	bgdtSize := m.groupCount * groupDescriptorSize
	bgdtBlocks := ceilDivU32(bgdtSize, m.blockSize)
	return 1 + bgdtBlocks
}

func ceilDivU32(a, b uint32) uint32 { return (a + b - 1) / b }
