package fat32

import (
	"strings"
	"time"
	"unicode/utf16"

	"github.com/imgforge/rim/core"
)

const (
	attrReadOnly  = 0x01
	attrHidden    = 0x02
	attrSystem    = 0x04
	attrVolumeID  = 0x08
	attrDirectory = 0x10
	attrArchive   = 0x20
	attrLongName  = attrReadOnly | attrHidden | attrSystem | attrVolumeID

	dirEntrySize = 32
)

// shortEntry is the packed 32-byte 8.3 directory entry.
type shortEntry struct {
	Name            [8]byte
	Ext             [3]byte
	Attr            uint8
	NTRes           uint8
	CreateTimeTenth uint8
	CreateTime      uint16
	CreateDate      uint16
	LastAccessDate  uint16
	FirstClusterHi  uint16
	WriteTime       uint16
	WriteDate       uint16
	FirstClusterLo  uint16
	FileSize        uint32
}

// lfnEntry is the packed 32-byte long-filename entry.
type lfnEntry struct {
	Ordinal        uint8
	Name1          [10]byte
	Attr           uint8 // always attrLongName
	Type           uint8 // always 0
	Checksum       uint8
	Name2          [12]byte
	FirstClusterLo uint16 // always 0
	Name3          [4]byte
}

// splitShortName splits a name on the last '.', uppercases ASCII, and
// truncates base/ext to 8/3, per spec.md §4.5's short-name synthesis. It
// reports needsLFN when the input exceeds 8.3 bounds, contains lowercase, or
// non-ASCII.
func splitShortName(name string) (base string, ext string, needsLFN bool) {
	dot := strings.LastIndex(name, ".")
	rawBase, rawExt := name, ""
	if dot >= 0 {
		rawBase, rawExt = name[:dot], name[dot+1:]
	}

	needsLFN = len(rawBase) > 8 || len(rawExt) > 3
	for _, r := range name {
		if r > 127 {
			needsLFN = true
		}
		if r >= 'a' && r <= 'z' {
			needsLFN = true
		}
	}

	base = strings.ToUpper(rawBase)
	if len(base) > 8 {
		base = base[:8]
	}
	ext = strings.ToUpper(rawExt)
	if len(ext) > 3 {
		ext = ext[:3]
	}
	return base, ext, needsLFN
}

// shortNameBytes renders base/ext as the 11 space-padded on-disk bytes.
func shortNameBytes(base, ext string) [11]byte {
	var out [11]byte
	for i := range out {
		out[i] = ' '
	}
	copy(out[0:8], base)
	copy(out[8:11], ext)
	return out
}

// numericTail fabricates a short name with a "~N" numeric tail on collision,
// per spec.md §8's name-collision boundary behavior.
func numericTail(base string, n int) string {
	suffix := []byte{'~', byte('0' + n)}
	if len(base) > 8-len(suffix) {
		base = base[:8-len(suffix)]
	}
	return base + string(suffix)
}

// calculateLFNSlots returns how many 13-UTF16-unit LFN entries name needs.
func calculateLFNSlots(name string) int {
	units := utf16.Encode([]rune(name))
	if len(units) == 0 {
		return 0
	}
	return (len(units) + 12) / 13
}

// buildLFNEntries returns the LFN entries for name in on-disk (reverse)
// order: the entry immediately preceding the short entry comes first in
// this slice, matching spec.md §4.5 ("LFN entries are emitted in reverse
// order preceding the short entry").
func buildLFNEntries(name string, checksum uint8) []lfnEntry {
	units := utf16.Encode([]rune(name))
	slots := calculateLFNSlots(name)
	entries := make([]lfnEntry, slots)
	for i := 0; i < slots; i++ {
		start := i * 13
		chunk := make([]uint16, 13)
		for j := range chunk {
			chunk[j] = 0xFFFF // padding
		}
		for j := 0; j < 13 && start+j < len(units); j++ {
			chunk[j] = units[start+j]
		}
		if start+13 >= len(units) && start < len(units)+1 {
			// terminate with 0x0000 immediately after the last real char
			termIdx := len(units) - start
			if termIdx >= 0 && termIdx < 13 {
				chunk[termIdx] = 0x0000
			}
		}
		e := lfnEntry{
			Ordinal:  uint8(i + 1),
			Attr:     attrLongName,
			Type:     0,
			Checksum: checksum,
		}
		putUTF16Chunk(chunk[0:5], e.Name1[:])
		putUTF16Chunk(chunk[5:11], e.Name2[:])
		putUTF16Chunk(chunk[11:13], e.Name3[:])
		entries[i] = e
	}
	// last entry (highest ordinal) gets the 0x40 "last LFN entry" bit
	entries[slots-1].Ordinal |= 0x40
	// reverse: on-disk order is last-ordinal-first
	out := make([]lfnEntry, slots)
	for i, e := range entries {
		out[slots-1-i] = e
	}
	return out
}

func putUTF16Chunk(units []uint16, dst []byte) {
	for i, u := range units {
		dst[i*2] = byte(u)
		dst[i*2+1] = byte(u >> 8)
	}
}

func readUTF16Chunk(src []byte) []uint16 {
	units := make([]uint16, len(src)/2)
	for i := range units {
		units[i] = uint16(src[i*2]) | uint16(src[i*2+1])<<8
	}
	return units
}

// decodeLFNRun reconstructs a long name from a run of LFN entries given in
// on-disk order (highest ordinal first, i.e. reverse of writing order), and
// validates the checksum against the following short entry's name bytes.
// A mismatch returns ok=false, telling the caller to ignore the run per
// spec.md §4.7.
func decodeLFNRun(run []lfnEntry, shortNameChecksum uint8) (name string, ok bool) {
	if len(run) == 0 {
		return "", false
	}
	for _, e := range run {
		if e.Checksum != shortNameChecksum {
			return "", false
		}
	}
	var units []uint16
	// run is highest-ordinal-first; content order is lowest-ordinal-first.
	for i := len(run) - 1; i >= 0; i-- {
		e := run[i]
		units = append(units, readUTF16Chunk(e.Name1[:])...)
		units = append(units, readUTF16Chunk(e.Name2[:])...)
		units = append(units, readUTF16Chunk(e.Name3[:])...)
	}
	// trim at the 0x0000 terminator / 0xFFFF padding
	end := len(units)
	for i, u := range units {
		if u == 0x0000 || u == 0xFFFF {
			end = i
			break
		}
	}
	runes := utf16.Decode(units[:end])
	return string(runes), true
}

func attrFromFileAttributes(attr core.FileAttributes) uint8 {
	var a uint8
	if attr.ReadOnly {
		a |= attrReadOnly
	}
	if attr.Hidden {
		a |= attrHidden
	}
	if attr.System {
		a |= attrSystem
	}
	if attr.Archive {
		a |= attrArchive
	}
	if attr.Dir {
		a |= attrDirectory
	}
	return a
}

func fileAttributesFromAttr(a uint8) core.FileAttributes {
	return core.FileAttributes{
		ReadOnly: a&attrReadOnly != 0,
		Hidden:   a&attrHidden != 0,
		System:   a&attrSystem != 0,
		Archive:  a&attrArchive != 0,
		Dir:      a&attrDirectory != 0,
	}
}

// fatDateTime converts a UTC time to FAT's packed date/time fields
// (2-second resolution), per the teacher's timestamp conventions.
func fatDateTime(t time.Time) (date uint16, timeVal uint16) {
	y := t.Year() - 1980
	if y < 0 {
		y = 0
	}
	date = uint16(y<<9) | uint16(t.Month())<<5 | uint16(t.Day())
	timeVal = uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
	return date, timeVal
}
