// Package mbr writes and validates the protective MBR that precedes a GPT,
// per spec.md §4.8. Grounded on original_source/rimpart/src/mbr.rs's
// write_protective_mbr/validate_protective_mbr.
package mbr

import "github.com/imgforge/rim/core"

const (
	sectorSize          int64 = 512
	protectivePartition       = 0xEE
)

// WriteProtective writes a single-entry protective MBR to sector 0 of w:
// entry 0 spans the disk from LBA 1 with type 0xEE, the remaining three
// entries stay zeroed, and the sector ends with the 0x55AA boot signature.
func WriteProtective(w core.BlockIO, totalSectors uint64) error {
	buf := make([]byte, sectorSize)
	// bytes [0:446] bootstrap code, left zero

	entry := buf[446:462]
	entry[0] = 0x00                 // boot indicator
	entry[1], entry[2], entry[3] = 0x00, 0x02, 0x00 // starting CHS
	entry[4] = protectivePartition
	entry[5], entry[6], entry[7] = 0xFE, 0xFF, 0xFF // ending CHS
	putLE32(entry[8:12], 1) // starting LBA
	size := totalSectors
	if size > 0xFFFFFFFF {
		size = 0xFFFFFFFF
	}
	putLE32(entry[12:16], uint32(size))

	// remaining three partition entries (buf[462:510]) stay zeroed

	buf[510] = 0x55
	buf[511] = 0xAA

	if err := w.WriteAt(0, buf); err != nil {
		return err
	}
	return w.Flush()
}

// ValidateProtective reads sector 0 of r and confirms it holds a well-formed
// protective MBR: signature 0x55AA and partition entry 0 of type 0xEE. When
// totalSectors is nonzero, its size_in_lba is also checked against it.
func ValidateProtective(r core.BlockIO, totalSectors uint64) error {
	buf := make([]byte, sectorSize)
	if err := r.ReadAt(0, buf); err != nil {
		return err
	}
	if buf[510] != 0x55 || buf[511] != 0xAA {
		return core.ErrInvalid("invalid MBR signature")
	}
	entry := buf[446:462]
	if entry[4] != protectivePartition {
		return core.ErrInvalid("MBR does not contain a protective GPT entry (0xEE)")
	}
	if totalSectors == 0 {
		return nil
	}
	sizeInLBA := getLE32(entry[12:16])
	if totalSectors > 0xFFFFFFFF {
		if sizeInLBA != 0xFFFFFFFF {
			return core.ErrInvalid("protective MBR size should be 0xFFFFFFFF for disks larger than 2TiB")
		}
		return nil
	}
	if uint64(sizeInLBA) != totalSectors {
		return core.ErrInvalid("protective MBR size does not match disk size")
	}
	return nil
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getLE32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
