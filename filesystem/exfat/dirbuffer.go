package exfat

import (
	"encoding/binary"
	"time"

	"github.com/imgforge/rim/core"
)

// dirBuffer accumulates the variable-length entry sets of one open
// directory, mirroring fat32's dirBuffer for the Injector's stack-based
// model (spec.md §4.5).
type dirBuffer struct {
	raw []byte
}

func newDirBuffer() *dirBuffer { return &dirBuffer{} }

func (d *dirBuffer) appendEntry(name string, cluster uint32, size uint64, isDir bool, attr core.FileAttributes, now time.Time) {
	d.raw = append(d.raw, fileEntrySet(name, cluster, size, isDir, attr, now)...)
}

// seedReserved seeds the root directory with the mandatory bitmap and
// up-case table entries (plus an optional volume label entry), per exFAT's
// requirement that these live as regular entries in the root directory's
// own entry stream.
func (d *dirBuffer) seedReserved(meta *Meta) {
	bitmap := make([]byte, entrySize)
	bitmap[0] = entryTypeBitmap
	binary.LittleEndian.PutUint32(bitmap[20:24], meta.BitmapCluster())
	binary.LittleEndian.PutUint64(bitmap[24:32], uint64(meta.BitmapLengthBytes()))
	d.raw = append(d.raw, bitmap...)

	upcase := make([]byte, entrySize)
	upcase[0] = entryTypeUpcase
	binary.LittleEndian.PutUint32(upcase[4:8], meta.upcaseChecksum)
	binary.LittleEndian.PutUint32(upcase[20:24], meta.UpcaseCluster())
	binary.LittleEndian.PutUint64(upcase[24:32], uint64(meta.UpcaseLengthBytes()))
	d.raw = append(d.raw, upcase...)

	if meta.label != "" {
		label := make([]byte, entrySize)
		label[0] = entryTypeLabel
		units := []rune(meta.label)
		n := len(units)
		if n > 11 {
			n = 11
		}
		label[1] = uint8(n)
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint16(label[2+i*2:4+i*2], uint16(units[i]))
		}
		d.raw = append(d.raw, label...)
	}
}

// toBytes pads the accumulated entries with zeros to a cluster-size
// multiple (one zeroed cluster for an empty buffer). The zero padding
// supplies the 0x00 end-of-directory entry; when the entries exactly fill
// their clusters no such entry is added and the directory ends with its
// last cluster.
func (d *dirBuffer) toBytes(clusterSize int64) []byte {
	out := make([]byte, len(d.raw))
	copy(out, d.raw)
	if rem := int64(len(out)) % clusterSize; rem != 0 {
		out = append(out, make([]byte, clusterSize-rem)...)
	} else if len(out) == 0 {
		out = make([]byte, clusterSize)
	}
	return out
}
