package ext4

import (
	"encoding/binary"
	"time"
)

const sbMagic uint16 = 0xEF53

// buildSuperblock encodes the 1024-byte superblock record written both as
// the primary and as every sparse_super backup copy; block_group_nr is left
// 0 in all of them, so each backup is byte-identical to the primary. Field
// offsets follow the well-known ext4 on-disk layout; this package does not
// use go-restruct here (as fat32 does) since the layout is sparse and mostly
// reserved/padding, matching exfat's choice of manual byte-offset encoding
// over a packed struct for awkward formats.
func (m *Meta) buildSuperblock(now time.Time) []byte {
	buf := make([]byte, superblockSize)
	le32 := binary.LittleEndian.PutUint32
	le16 := binary.LittleEndian.PutUint16

	le32(buf[0:4], m.inodeCount)
	le32(buf[4:8], m.blockCount)
	le32(buf[12:16], m.blockCount-m.usedBlocksTotal())
	le32(buf[16:20], m.inodeCount-m.usedInodesTotal())
	le32(buf[20:24], m.firstDataBlock)
	le32(buf[24:28], logBlockSize(m.blockSize))
	le32(buf[28:32], logBlockSize(m.blockSize)) // log_cluster_size == log_block_size (no bigalloc)
	le32(buf[32:36], m.blocksPerGroup)
	le32(buf[36:40], m.blocksPerGroup) // clusters_per_group
	le32(buf[40:44], m.inodesPerGroup)
	le32(buf[44:48], uint32(now.Unix())) // mtime
	le32(buf[48:52], uint32(now.Unix())) // wtime
	le16(buf[52:54], 0)                  // mnt_count
	le16(buf[54:56], 0xFFFF)             // max_mnt_count (disabled)
	le16(buf[56:58], sbMagic)
	le16(buf[58:60], 1) // state: clean
	le16(buf[60:62], 1) // errors: continue
	le16(buf[62:64], 0) // minor_rev_level
	le32(buf[64:68], uint32(now.Unix())) // lastcheck
	le32(buf[68:72], 0)                  // checkinterval
	le32(buf[72:76], 0)                  // creator_os: Linux
	le32(buf[76:80], 1)                  // rev_level: dynamic
	le16(buf[80:82], 0)                  // def_resuid
	le16(buf[82:84], 0)                  // def_resgid

	le32(buf[84:88], firstFreeInode-1) // first_ino = 11
	le16(buf[88:90], inodeSize)
	le16(buf[90:92], 0) // block_group_nr; left 0 in every copy so backups stay byte-identical to the primary
	le32(buf[92:96], 0) // feature_compat
	le32(buf[96:100], featureIncompatFiletype|featureIncompatExtents)
	le32(buf[100:104], featureRoCompatSparse|featureRoCompatLargeFile)
	copy(buf[104:120], m.volumeUUID[:])
	copyLabel(buf[120:136], m.label)

	le32(buf[136:152], 0) // last_mounted (first 16 of its 64 bytes, rest already zero)
	le32(buf[208:212], groupDescriptorSize)
	le16(buf[254:256], uint16(groupDescriptorSize))
	le32(buf[256:260], 0) // default_mount_opts
	le32(buf[260:264], 0) // first_meta_bg
	le32(buf[264:268], uint32(now.Unix())) // mkfs_time

	return buf
}

func logBlockSize(blockSize uint32) uint32 {
	var shift uint32
	n := blockSize / 1024
	for n > 1 {
		n >>= 1
		shift++
	}
	return shift
}

func copyLabel(dst []byte, label string) {
	if len(label) > 16 {
		label = label[:16]
	}
	copy(dst, label)
}

// usedBlocksTotal and usedInodesTotal sum the fixed reserved cost (metadata
// + root + lost+found) across every group, for the superblock's free-count
// fields. These reflect the freshly-formatted, empty state; the Injector
// does not rewrite the superblock, and only the per-group BGDT counts track
// the blocks and inodes it allocates.
func (m *Meta) usedBlocksTotal() uint32 {
	var used uint32
	for g := uint32(0); g < m.groupCount; g++ {
		layout := m.computeGroupLayout(g)
		used += layout.ReservedBlocks + 2 + layout.InodeTableBlocks
	}
	used += 2 // root dir block + lost+found block, both in group 0
	return used
}

func (m *Meta) usedInodesTotal() uint32 {
	return 11 // reserved inodes 1..10 plus lost+found(11) counted as used
}
