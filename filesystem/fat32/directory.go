package fat32

import (
	"encoding/binary"
	"time"

	"github.com/imgforge/rim/core"
)

// parsedEntry is a resolved (short+optional LFN) directory entry.
type parsedEntry struct {
	Name    string
	Attr    uint8
	Cluster uint32
	Size    uint32
	IsDir   bool
}

// dirBuffer accumulates the 32-byte records of one open directory, mirroring
// the Injector's per-directory buffer (spec.md §4.5). It also tracks short
// names already used, for numeric-tail collision handling.
type dirBuffer struct {
	raw       []byte
	shortUsed map[[11]byte]bool
}

func newDirBuffer() *dirBuffer {
	return &dirBuffer{shortUsed: make(map[[11]byte]bool)}
}

// seedDot seeds a freshly allocated subdirectory with "." and ".." entries
// pointing at self and parent, per spec.md §4.5 step 2.
func (d *dirBuffer) seedDot(self, parent uint32, now time.Time) {
	d.appendShort(".", "", self, 0, true, now)
	d.appendShort("..", "", parent, 0, true, now)
}

func (d *dirBuffer) appendShort(base, ext string, cluster uint32, size uint32, isDir bool, now time.Time) {
	name := shortNameBytes(base, ext)
	d.shortUsed[name] = true
	date, tm := fatDateTime(now)
	se := shortEntry{
		Attr:           dirBitIf(isDir),
		CreateTime:     tm,
		CreateDate:     date,
		LastAccessDate: date,
		WriteTime:      tm,
		WriteDate:      date,
		FirstClusterHi: uint16(cluster >> 16),
		FirstClusterLo: uint16(cluster),
		FileSize:       size,
	}
	copy(se.Name[:], name[0:8])
	copy(se.Ext[:], name[8:11])
	d.raw = append(d.raw, encodeShortEntry(se)...)
}

func dirBitIf(isDir bool) uint8 {
	if isDir {
		return attrDirectory
	}
	return 0
}

// appendEntry writes the LFN run (if needed) plus the short entry for name,
// resolving short-name collisions with a numeric tail.
func (d *dirBuffer) appendEntry(name string, cluster uint32, size uint32, isDir bool, attr core.FileAttributes, now time.Time) {
	base, ext, needsLFN := splitShortName(name)
	short := shortNameBytes(base, ext)
	for n := 1; d.shortUsed[short] && n < 10; n++ {
		base2 := numericTail(base, n)
		short = shortNameBytes(base2, ext)
		needsLFN = true
	}
	d.shortUsed[short] = true

	date, tm := fatDateTime(now)
	se := shortEntry{
		Attr:           attrFromFileAttributes(attr) | dirBitIf(isDir),
		CreateTime:     tm,
		CreateDate:     date,
		LastAccessDate: date,
		WriteTime:      tm,
		WriteDate:      date,
		FirstClusterHi: uint16(cluster >> 16),
		FirstClusterLo: uint16(cluster),
		FileSize:       size,
	}
	copy(se.Name[:], short[0:8])
	copy(se.Ext[:], short[8:11])

	if needsLFN {
		checksum := core.FAT32ShortNameChecksum(short)
		for _, lfn := range buildLFNEntries(name, checksum) {
			d.raw = append(d.raw, encodeLFNEntry(lfn)...)
		}
	}
	d.raw = append(d.raw, encodeShortEntry(se)...)
}

// toBytes pads the accumulated entries to a cluster-size multiple with a
// trailing 0x00 end-of-directory marker, per spec.md §4.5's FAT32 trailer
// invariant ("last entry 0x00").
func (d *dirBuffer) toBytes(clusterSize int64) []byte {
	out := make([]byte, len(d.raw), len(d.raw)+dirEntrySize)
	copy(out, d.raw)
	out = append(out, make([]byte, dirEntrySize)...) // trailing all-zero entry
	if rem := int64(len(out)) % clusterSize; rem != 0 {
		out = append(out, make([]byte, clusterSize-rem)...)
	}
	return out
}

func encodeShortEntry(se shortEntry) []byte {
	b := make([]byte, dirEntrySize)
	copy(b[0:8], se.Name[:])
	copy(b[8:11], se.Ext[:])
	b[11] = se.Attr
	b[12] = se.NTRes
	b[13] = se.CreateTimeTenth
	binary.LittleEndian.PutUint16(b[14:16], se.CreateTime)
	binary.LittleEndian.PutUint16(b[16:18], se.CreateDate)
	binary.LittleEndian.PutUint16(b[18:20], se.LastAccessDate)
	binary.LittleEndian.PutUint16(b[20:22], se.FirstClusterHi)
	binary.LittleEndian.PutUint16(b[22:24], se.WriteTime)
	binary.LittleEndian.PutUint16(b[24:26], se.WriteDate)
	binary.LittleEndian.PutUint16(b[26:28], se.FirstClusterLo)
	binary.LittleEndian.PutUint32(b[28:32], se.FileSize)
	return b
}

func decodeShortEntry(b []byte) shortEntry {
	var se shortEntry
	copy(se.Name[:], b[0:8])
	copy(se.Ext[:], b[8:11])
	se.Attr = b[11]
	se.NTRes = b[12]
	se.CreateTimeTenth = b[13]
	se.CreateTime = binary.LittleEndian.Uint16(b[14:16])
	se.CreateDate = binary.LittleEndian.Uint16(b[16:18])
	se.LastAccessDate = binary.LittleEndian.Uint16(b[18:20])
	se.FirstClusterHi = binary.LittleEndian.Uint16(b[20:22])
	se.WriteTime = binary.LittleEndian.Uint16(b[22:24])
	se.WriteDate = binary.LittleEndian.Uint16(b[24:26])
	se.FirstClusterLo = binary.LittleEndian.Uint16(b[26:28])
	se.FileSize = binary.LittleEndian.Uint32(b[28:32])
	return se
}

func encodeLFNEntry(e lfnEntry) []byte {
	b := make([]byte, dirEntrySize)
	b[0] = e.Ordinal
	copy(b[1:11], e.Name1[:])
	b[11] = e.Attr
	b[12] = e.Type
	b[13] = e.Checksum
	copy(b[14:26], e.Name2[:])
	binary.LittleEndian.PutUint16(b[26:28], e.FirstClusterLo)
	copy(b[28:32], e.Name3[:])
	return b
}

func decodeLFNEntry(b []byte) lfnEntry {
	var e lfnEntry
	e.Ordinal = b[0]
	copy(e.Name1[:], b[1:11])
	e.Attr = b[11]
	e.Type = b[12]
	e.Checksum = b[13]
	copy(e.Name2[:], b[14:26])
	e.FirstClusterLo = binary.LittleEndian.Uint16(b[26:28])
	copy(e.Name3[:], b[28:32])
	return e
}

// parseDirEntries walks a raw directory cluster buffer, consuming LFN runs
// (in reverse order) immediately preceding each short entry, per spec.md
// §4.7. It stops at the first all-zero entry and skips deleted (0xE5)
// entries.
func parseDirEntries(buf []byte) []parsedEntry {
	var out []parsedEntry
	var pendingLFN []lfnEntry

	for off := 0; off+dirEntrySize <= len(buf); off += dirEntrySize {
		rec := buf[off : off+dirEntrySize]
		if rec[0] == 0x00 {
			break
		}
		if rec[0] == 0xE5 {
			pendingLFN = nil
			continue
		}
		if rec[11] == attrLongName {
			pendingLFN = append(pendingLFN, decodeLFNEntry(rec))
			continue
		}
		se := decodeShortEntry(rec)
		if se.Attr&attrVolumeID != 0 {
			pendingLFN = nil
			continue
		}
		name := shortDisplayName(se)
		if len(pendingLFN) > 0 {
			short := shortNameBytes(string(trimSpace(se.Name[:])), string(trimSpace(se.Ext[:])))
			checksum := core.FAT32ShortNameChecksum(short)
			if decoded, ok := decodeLFNRun(pendingLFN, checksum); ok {
				name = decoded
			}
		}
		pendingLFN = nil
		if name == "." || name == ".." {
			continue
		}
		out = append(out, parsedEntry{
			Name:    name,
			Attr:    se.Attr,
			Cluster: uint32(se.FirstClusterHi)<<16 | uint32(se.FirstClusterLo),
			Size:    se.FileSize,
			IsDir:   se.Attr&attrDirectory != 0,
		})
	}
	return out
}

func shortDisplayName(se shortEntry) string {
	base := string(trimSpace(se.Name[:]))
	ext := string(trimSpace(se.Ext[:]))
	if ext == "" {
		return base
	}
	return base + "." + ext
}

func trimSpace(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == ' ' {
		end--
	}
	return b[:end]
}
