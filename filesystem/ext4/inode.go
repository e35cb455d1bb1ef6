package ext4

import (
	"encoding/binary"
	"time"

	"github.com/imgforge/rim/core"
)

// fileType keeps the teacher's ext4 mode-bit naming
// (inode.go), trimmed to the subset this package actually encodes: a single
// extents-based regular file or directory inode, no symlinks/devices/FIFOs.
type fileType uint16

const (
	fileTypeRegularFile fileType = 0x8000
	fileTypeDirectory   fileType = 0x4000
)

const (
	inodeFlagUsesExtents uint32 = 0x80000

	dirEntryFileTypeUnknown  uint8 = 0
	dirEntryFileTypeRegular  uint8 = 1
	dirEntryFileTypeDir      uint8 = 2
)

// inode is the in-memory representation of one ext4 inode record, encoded
// to the classic 256-byte on-disk layout (encode) with an inline
// extents body, per original_source/rimfs/src/fs/ext4/encoder.rs's
// encode_inode/encode_inode_from_attr.
type inode struct {
	mode       uint16
	sizeLo     uint32
	linksCount uint16
	blocksLo   uint32
	atime      uint32
	ctime      uint32
	mtime      uint32
	extents    []extent
}

func defaultMode(ft fileType, attr core.FileAttributes) uint16 {
	perm := uint16(0644)
	if ft == fileTypeDirectory {
		perm = 0755
	}
	if attr.Mode != nil {
		perm = *attr.Mode
	}
	return uint16(ft) | perm
}

func newInode(ft fileType, attr core.FileAttributes, size int64, chain []uint32, linksCount uint16, now time.Time) (inode, error) {
	exts, err := extentsForChain(chain)
	if err != nil {
		return inode{}, err
	}
	blockCount := uint32(len(chain))
	return inode{
		mode:       defaultMode(ft, attr),
		sizeLo:     uint32(size),
		linksCount: linksCount,
		blocksLo:   blockCount * (defaultBlockSize / 512),
		atime:      uint32(now.Unix()),
		ctime:      uint32(now.Unix()),
		mtime:      uint32(now.Unix()),
		extents:    exts,
	}, nil
}

// encode serializes the inode to the fixed 256-byte on-disk record.
func (i inode) encode() []byte {
	buf := make([]byte, inodeSize)
	binary.LittleEndian.PutUint16(buf[0:2], i.mode)
	binary.LittleEndian.PutUint32(buf[4:8], i.sizeLo)
	binary.LittleEndian.PutUint32(buf[8:12], i.atime)
	binary.LittleEndian.PutUint32(buf[12:16], i.ctime)
	binary.LittleEndian.PutUint32(buf[16:20], i.mtime)
	binary.LittleEndian.PutUint32(buf[20:24], 0) // dtime
	binary.LittleEndian.PutUint16(buf[26:28], i.linksCount)
	binary.LittleEndian.PutUint32(buf[28:32], i.blocksLo)
	binary.LittleEndian.PutUint32(buf[32:36], inodeFlagUsesExtents)

	body := encodeInlineExtents(i.extents)
	copy(buf[40:100], body[:])

	binary.LittleEndian.PutUint16(buf[128:130], inodeSize-128) // extra_isize
	return buf
}

func decodeInode(buf []byte) (inode, error) {
	if len(buf) < int(inodeSize) {
		return inode{}, core.ErrInvalid("short inode record")
	}
	i := inode{
		mode:       binary.LittleEndian.Uint16(buf[0:2]),
		sizeLo:     binary.LittleEndian.Uint32(buf[4:8]),
		atime:      binary.LittleEndian.Uint32(buf[8:12]),
		ctime:      binary.LittleEndian.Uint32(buf[12:16]),
		mtime:      binary.LittleEndian.Uint32(buf[16:20]),
		linksCount: binary.LittleEndian.Uint16(buf[26:28]),
		blocksLo:   binary.LittleEndian.Uint32(buf[28:32]),
	}
	exts, err := decodeInlineExtents(buf[40:100])
	if err != nil {
		return inode{}, err
	}
	i.extents = exts
	return i, nil
}

func (i inode) isDir() bool {
	return fileType(i.mode&0xF000) == fileTypeDirectory
}

func (i inode) dirEntryFileType() uint8 {
	if i.isDir() {
		return dirEntryFileTypeDir
	}
	return dirEntryFileTypeRegular
}

// chain flattens every extent's physical block run, in logical order, back
// into the full block list an Allocator.AllocateChain call originally
// produced.
func (i inode) chain() []uint32 {
	var chain []uint32
	for _, e := range i.extents {
		for idx := uint16(0); idx < e.length; idx++ {
			chain = append(chain, e.physicalBlock+uint32(idx))
		}
	}
	return chain
}
