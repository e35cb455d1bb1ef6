package core

import (
	"encoding/binary"
	"hash/crc32"
	"strings"
)

// RotateRight16 rotates a uint16 accumulator right by one bit, the primitive
// behind both the exFAT name-hash (rotate_right+add over UTF-16 code units)
// and the exFAT directory-entry-set checksum.
func RotateRight16(acc uint16) uint16 {
	return (acc >> 1) | (acc << 15)
}

// RotateRight32 rotates a uint32 accumulator right by one bit, the primitive
// behind the exFAT VBR checksum sector.
func RotateRight32(acc uint32) uint32 {
	return (acc >> 1) | (acc << 31)
}

// RotateRight8 rotates a byte accumulator right by one bit, the primitive
// behind the FAT32 8-bit LFN checksum.
func RotateRight8(acc uint8) uint8 {
	return (acc >> 1) | (acc << 7)
}

// FAT32ShortNameChecksum computes the 8-bit LFN checksum from an 11-byte
// short name via the rolling formula s = rotate_right(s, 1) + byte.
func FAT32ShortNameChecksum(shortName [11]byte) uint8 {
	var sum uint8
	for _, b := range shortName {
		sum = RotateRight8(sum) + b
	}
	return sum
}

// ExFATSetChecksum computes the 16-bit checksum shared by an exFAT directory
// entry set (primary + stream + name entries), skipping bytes 2,3 of the
// primary entry which hold the checksum itself.
func ExFATSetChecksum(entries []byte) uint16 {
	var sum uint16
	for i, b := range entries {
		if i == 2 || i == 3 {
			continue
		}
		sum = RotateRight16(sum) + uint16(b)
	}
	return sum
}

// ExFATNameHash computes the name hash stored in the stream extension entry:
// hash = rotate_right(hash, 1) + byte, applied to each up-cased UTF-16 code
// unit's low byte and then its high byte.
func ExFATNameHash(upperUTF16 []uint16) uint16 {
	var hash uint16
	for _, u := range upperUTF16 {
		lo := byte(u)
		hi := byte(u >> 8)
		hash = RotateRight16(hash) + uint16(lo)
		hash = RotateRight16(hash) + uint16(hi)
	}
	return hash
}

// ExFATVBRChecksum sums the first 11 sectors of a 12-sector boot region with
// a rotate-right-32 accumulator, skipping bytes 106, 107, 112 of sector 0 (the
// OEM-parameters/flags bytes that legitimately differ main-vs-backup).
func ExFATVBRChecksum(region []byte, sectorSize int) uint32 {
	var sum uint32
	limit := 11 * sectorSize
	for i := 0; i < limit && i < len(region); i++ {
		if i == 106 || i == 107 || i == 112 {
			continue
		}
		sum = RotateRight32(sum) + uint32(region[i])
	}
	return sum
}

// crc32IEEE computes the standard IEEE CRC32 continuing from seed, using
// hash/crc32's IEEE lookup table.
func crc32IEEE(seed uint32, data []byte) uint32 {
	return crc32.Update(seed, crc32.IEEETable, data)
}

// xorshift32 is the PRNG step used to mix the CRC32 seed into a GUID.
func xorshift32(x uint32) uint32 {
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	return x
}

// DeriveVolumeIDs computes a deterministic 16-byte GUID and a 32-bit volume
// id from label+size+cluster-size+salt, per spec.md §3's Meta volume-id rule
// and the chosen (CRC32+xorshift32) variant from original_source/volume.rs.
// This is the authoritative generator per spec.md's Open Questions: the
// sibling 4-byte/16-byte "volume_utils" generator keyed off wall-clock time
// is NOT used, since it is non-deterministic and the spec requires
// Formatter idempotence (property 5 in §8).
func DeriveVolumeIDs(label string, sizeBytes uint64, clusterSize uint32, salt uint32) (guid [16]byte, volumeID uint32) {
	var tmp []byte
	upper := strings.ToUpper(label)
	if len(upper) > 32 {
		upper = upper[:32]
	}
	tmp = append(tmp, []byte(upper)...)

	var sizeBuf [8]byte
	binary.LittleEndian.PutUint64(sizeBuf[:], sizeBytes)
	tmp = append(tmp, sizeBuf[:]...)

	var csBuf [4]byte
	binary.LittleEndian.PutUint32(csBuf[:], clusterSize)
	tmp = append(tmp, csBuf[:]...)

	var saltBuf [4]byte
	binary.LittleEndian.PutUint32(saltBuf[:], salt)
	tmp = append(tmp, saltBuf[:]...)

	seed := crc32IEEE(0, tmp)

	x := xorshift32(seed ^ 0x9E3779B9)
	for i := 0; i < 4; i++ {
		x = xorshift32(x)
		binary.LittleEndian.PutUint32(guid[i*4:i*4+4], x)
	}
	guid[6] = (guid[6] & 0x0F) | 0x40
	guid[8] = (guid[8] & 0x3F) | 0x80

	volumeID = crc32IEEE(0, guid[:])
	return guid, volumeID
}
