package ext4

import (
	"encoding/binary"

	"github.com/imgforge/rim/core"
)

// dirEntry is one ext4 directory entry record, ported from
// original_source/rimfs/src/fs/ext4/types/dirent.rs's Ext4DirEntry: a 4-byte
// inode number, 2-byte rec_len, 1-byte name_len, 1-byte file_type, then the
// name padded to a 4-byte boundary.
type dirEntry struct {
	inode    uint32
	recLen   uint16
	fileType uint8
	name     string
}

func minRecLen(name string) uint16 {
	return uint16(alignUp(8+len(name), 4))
}

func alignUp(n, to int) int { return (n + to - 1) / to * to }

func newDirEntry(ino uint32, name string, ft uint8) dirEntry {
	return dirEntry{inode: ino, recLen: minRecLen(name), fileType: ft, name: name}
}

func (e dirEntry) encode() []byte {
	buf := make([]byte, e.recLen)
	binary.LittleEndian.PutUint32(buf[0:4], e.inode)
	binary.LittleEndian.PutUint16(buf[4:6], e.recLen)
	buf[6] = uint8(len(e.name))
	buf[7] = e.fileType
	copy(buf[8:], e.name)
	return buf
}

func decodeDirEntry(buf []byte) (dirEntry, error) {
	if len(buf) < 8 {
		return dirEntry{}, core.ErrInvalid("short directory entry header")
	}
	recLen := binary.LittleEndian.Uint16(buf[4:6])
	nameLen := int(buf[6])
	if int(recLen) > len(buf) || 8+nameLen > len(buf) {
		return dirEntry{}, core.ErrInvalid("directory entry rec_len escapes its block")
	}
	return dirEntry{
		inode:    binary.LittleEndian.Uint32(buf[0:4]),
		recLen:   recLen,
		fileType: buf[7],
		name:     string(buf[8 : 8+nameLen]),
	}, nil
}

// encodeDirBlock lays out entries sequentially in a block-sized buffer, each
// sized to its minimum rec_len, and extends the final entry's rec_len to
// close the block, per spec.md §4.5's ext4 directory-write rule.
func encodeDirBlock(entries []dirEntry, blockSize int64) []byte {
	buf := make([]byte, blockSize)
	offset := 0
	for idx, e := range entries {
		recLen := e.recLen
		if idx == len(entries)-1 {
			recLen = uint16(int(blockSize) - offset)
		}
		e.recLen = recLen
		copy(buf[offset:], e.encode())
		offset += int(e.recLen)
	}
	return buf
}

// packDirBlocks lays entries out across as many blockSize blocks as they
// need, greedily filling each block and closing it (extending its final
// entry's rec_len to the block boundary) before starting the next, so a
// directory with more children than fit in one block spans several whole
// blocks.
func packDirBlocks(entries []dirEntry, blockSize int64) []byte {
	var out []byte
	var block []dirEntry
	used := 0
	for _, e := range entries {
		if used+int(e.recLen) > int(blockSize) && len(block) > 0 {
			out = append(out, encodeDirBlock(block, blockSize)...)
			block = nil
			used = 0
		}
		block = append(block, e)
		used += int(e.recLen)
	}
	if len(block) > 0 {
		out = append(out, encodeDirBlock(block, blockSize)...)
	}
	return out
}

// decodeDirBlock parses every non-empty entry (inode != 0) out of a
// directory block, walking by rec_len.
func decodeDirBlock(buf []byte) ([]dirEntry, error) {
	var entries []dirEntry
	offset := 0
	for offset+8 <= len(buf) {
		recLen := binary.LittleEndian.Uint16(buf[offset+4 : offset+6])
		if recLen == 0 {
			break
		}
		if offset+int(recLen) > len(buf) {
			return nil, core.ErrInvalid("directory entry rec_len escapes its block")
		}
		e, err := decodeDirEntry(buf[offset : offset+int(recLen)])
		if err != nil {
			return nil, err
		}
		if e.inode != 0 {
			entries = append(entries, e)
		}
		offset += int(recLen)
	}
	return entries, nil
}
