package image

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/imgforge/rim/core"
)

const (
	vhdCookie        = "conectix"
	vhdFeatures      = 2
	vhdFormatVersion = 0x00010000
	vhdDataOffset    = 0xFFFFFFFFFFFFFFFF
	vhdCreatorApp    = "rim\x00"
	vhdCreatorVer    = 0x000A0000
	vhdCreatorOS     = "Wi2k"
	vhdDiskTypeFixed = 2
	vhdFooterSize    = 512
	vhdEpochOffset   = 946684800 // 2000-01-01T00:00:00Z, in Unix seconds
)

// WriteVHDFixed converts a raw BlockIO's contents into a fixed-format VHD:
// zero-pad the content to a 512-byte sector boundary, then append the
// 512-byte footer described in spec.md §6. All multi-byte footer fields are
// big-endian, per the VHD specification.
func WriteVHDFixed(w core.BlockIO, clock core.Clock) error {
	if clock == nil {
		clock = core.SystemClock{}
	}
	paddedSize := ((w.Len() + vhdFooterSize - 1) / vhdFooterSize) * vhdFooterSize
	if paddedSize > w.Len() {
		if err := w.SetLen(paddedSize); err != nil {
			return err
		}
	}

	footer := buildVHDFooter(paddedSize, clock)
	if err := w.SetLen(paddedSize + vhdFooterSize); err != nil {
		return err
	}
	if err := w.WriteAt(paddedSize, footer); err != nil {
		return err
	}
	return w.Flush()
}

func buildVHDFooter(size int64, clock core.Clock) []byte {
	buf := make([]byte, vhdFooterSize)
	be32 := binary.BigEndian.PutUint32
	be64 := binary.BigEndian.PutUint64
	be16 := binary.BigEndian.PutUint16

	copy(buf[0:8], vhdCookie)
	be32(buf[8:12], vhdFeatures)
	be32(buf[12:16], vhdFormatVersion)
	be64(buf[16:24], vhdDataOffset)
	be32(buf[24:28], uint32(clock.Now().Unix()-vhdEpochOffset))
	copy(buf[28:32], vhdCreatorApp)
	be32(buf[32:36], vhdCreatorVer)
	copy(buf[36:40], vhdCreatorOS)
	be64(buf[40:48], uint64(size))
	be64(buf[48:56], uint64(size))

	heads, spt, cyls := vhdCHSGeometry(size)
	be16(buf[56:58], cyls)
	buf[58] = heads
	buf[59] = spt

	be32(buf[60:64], vhdDiskTypeFixed)
	// buf[64:68] checksum, filled below with the rest zeroed

	id, err := uuid.NewRandom()
	if err == nil {
		copy(buf[68:84], id[:])
	}
	// buf[84] saved_state = 0, buf[85:512] reserved = 0

	var sum uint32
	for i, b := range buf {
		if i >= 64 && i < 68 {
			continue
		}
		sum += uint32(b)
	}
	be32(buf[64:68], ^sum)
	return buf
}

// vhdCHSGeometry derives the fixed 16-head/63-sectors-per-track geometry
// spec.md §6 calls for, with the cylinder count floored from size.
func vhdCHSGeometry(size int64) (heads, spt uint8, cylinders uint16) {
	const headsFixed = 16
	const sptFixed = 63
	totalSectors := size / 512
	cyl := totalSectors / (headsFixed * sptFixed)
	if cyl > 0xFFFF {
		cyl = 0xFFFF
	}
	return headsFixed, sptFixed, uint16(cyl)
}
