package exfat

import (
	"encoding/binary"

	"github.com/imgforge/rim/core"
)

// buildMinimalUpcaseTable returns an up-case table covering the ASCII range
// (0x00-0x7F), identity-mapped except a-z -> A-Z. exFAT permits an up-case
// table shorter than the full Unicode BMP as long as every character the
// volume actually uses is covered; ASCII is sufficient for this module's
// name set. It also returns the table's 32-bit checksum, computed with the
// same rotate-right-32 accumulator as the VBR checksum.
func buildMinimalUpcaseTable() (table []uint16, checksum uint32) {
	table = make([]uint16, 128)
	for i := range table {
		table[i] = uint16(i)
	}
	for c := 'a'; c <= 'z'; c++ {
		table[c] = uint16(c - 32)
	}

	buf := make([]byte, len(table)*2)
	for i, u := range table {
		binary.LittleEndian.PutUint16(buf[i*2:i*2+2], u)
	}
	for _, b := range buf {
		checksum = core.RotateRight32(checksum) + uint32(b)
	}
	return table, checksum
}
