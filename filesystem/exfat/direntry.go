package exfat

import (
	"encoding/binary"
	"time"
	"unicode/utf16"

	"github.com/imgforge/rim/core"
)

const (
	entryTypeBitmap = 0x81
	entryTypeUpcase = 0x82
	entryTypeLabel  = 0x83
	entryTypeFile   = 0x85
	entryTypeStream = 0xC0
	entryTypeName   = 0xC1

	attrReadOnly  = 0x01
	attrHidden    = 0x02
	attrSystem    = 0x04
	attrDirectory = 0x10
	attrArchive   = 0x20

	entrySize       = 32
	nameUnitsPerEntry = 15

	flagAllocationPossible = 0x01
	flagNoFatChain          = 0x02
)

// fileEntrySet builds the on-disk bytes for one directory entry set: a file
// entry, a stream-extension entry, and as many file-name entries as the
// name needs, with the set checksum computed last, per spec.md §4.2's exFAT
// entry-set invariant.
func fileEntrySet(name string, cluster uint32, size uint64, isDir bool, attr core.FileAttributes, now time.Time) []byte {
	units := utf16.Encode([]rune(name))
	nameEntryCount := (len(units) + nameUnitsPerEntry - 1) / nameUnitsPerEntry
	secondaryCount := 1 + nameEntryCount

	ts, tenths, offset := exfatTimestamp(now)

	fileRec := make([]byte, entrySize)
	fileRec[0] = entryTypeFile
	fileRec[1] = uint8(secondaryCount)
	// bytes 2-3 (SetChecksum) filled in after the full set is assembled.
	binary.LittleEndian.PutUint16(fileRec[4:6], attrFromFileAttributes(attr, isDir))
	binary.LittleEndian.PutUint32(fileRec[8:12], ts)
	binary.LittleEndian.PutUint32(fileRec[12:16], ts)
	binary.LittleEndian.PutUint32(fileRec[16:20], ts)
	fileRec[20] = tenths
	fileRec[21] = tenths
	fileRec[22] = offset
	fileRec[23] = offset
	fileRec[24] = offset

	upperUnits := make([]uint16, len(units))
	for i, u := range units {
		upperUnits[i] = core.UpcaseASCII(u)
	}
	hash := core.ExFATNameHash(upperUnits)

	streamRec := make([]byte, entrySize)
	streamRec[0] = entryTypeStream
	streamRec[1] = flagAllocationPossible // NoFatChain left unset: FAT chain is authoritative
	streamRec[3] = uint8(len(units))
	binary.LittleEndian.PutUint16(streamRec[4:6], hash)
	binary.LittleEndian.PutUint64(streamRec[8:16], size)
	binary.LittleEndian.PutUint32(streamRec[20:24], cluster)
	binary.LittleEndian.PutUint64(streamRec[24:32], size)

	out := make([]byte, 0, entrySize*secondaryCount+entrySize)
	out = append(out, fileRec...)
	out = append(out, streamRec...)

	for i := 0; i < nameEntryCount; i++ {
		rec := make([]byte, entrySize)
		rec[0] = entryTypeName
		start := i * nameUnitsPerEntry
		for j := 0; j < nameUnitsPerEntry; j++ {
			var u uint16
			if start+j < len(units) {
				u = units[start+j]
			}
			binary.LittleEndian.PutUint16(rec[2+j*2:4+j*2], u)
		}
		out = append(out, rec...)
	}

	checksum := core.ExFATSetChecksum(out)
	binary.LittleEndian.PutUint16(out[2:4], checksum)
	return out
}

func attrFromFileAttributes(attr core.FileAttributes, isDir bool) uint16 {
	var a uint16
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
	if isDir {
		a |= attrDirectory
	}
	return a
}

func fileAttributesFromUint16(a uint16) (attr core.FileAttributes, isDir bool) {
	attr.ReadOnly = a&attrReadOnly != 0
	attr.Hidden = a&attrHidden != 0
	attr.System = a&attrSystem != 0
	attr.Archive = a&attrArchive != 0
	isDir = a&attrDirectory != 0
	attr.Dir = isDir
	return attr, isDir
}

// exfatTimestamp packs a time.Time into exFAT's 32-bit DOS-derived
// timestamp plus a 10ms increment and a 15-minute UTC offset byte (bit 7
// set to mark it valid).
func exfatTimestamp(t time.Time) (packed uint32, tenths uint8, utcOffset uint8) {
	y := t.Year() - 1980
	if y < 0 {
		y = 0
	}
	date := uint32(y)<<25 | uint32(t.Month())<<21 | uint32(t.Day())<<16
	clock := uint32(t.Hour())<<11 | uint32(t.Minute())<<5 | uint32(t.Second()/2)
	packed = date | clock
	tenths = uint8((t.Second() % 2) * 100 / 2)
	utcOffset = 0x80 // valid, 0 quarter-hours (UTC)
	return packed, tenths, utcOffset
}

// parsedExfatEntry is a resolved directory entry (file-entry + stream +
// name run) as seen by the Resolver/Checker.
type parsedExfatEntry struct {
	Name    string
	Cluster uint32
	Size    uint64
	IsDir   bool
	Attr    core.FileAttributes
}

// parseEntrySet walks a raw directory cluster run, grouping each primary
// 0x85 file entry with its following secondary entries, per spec.md §4.7.
// It stops at the first unused (0x00) entry.
func parseEntrySet(buf []byte) []parsedExfatEntry {
	var out []parsedExfatEntry
	for off := 0; off+entrySize <= len(buf); {
		entryType := buf[off]
		if entryType == 0x00 {
			break
		}
		if entryType != entryTypeFile {
			off += entrySize
			continue
		}
		secondaryCount := int(buf[off+1])
		attrRaw := binary.LittleEndian.Uint16(buf[off+4 : off+6])
		attr, isDir := fileAttributesFromUint16(attrRaw)

		if off+entrySize*(1+secondaryCount) > len(buf) {
			break
		}
		streamOff := off + entrySize
		if streamOff+entrySize > len(buf) {
			break
		}
		cluster := binary.LittleEndian.Uint32(buf[streamOff+20 : streamOff+24])
		size := binary.LittleEndian.Uint64(buf[streamOff+24 : streamOff+32])
		nameLen := int(buf[streamOff+3])

		var units []uint16
		nameStart := streamOff + entrySize
		nameEntries := secondaryCount - 1
		for i := 0; i < nameEntries; i++ {
			recOff := nameStart + i*entrySize
			if recOff+entrySize > len(buf) {
				break
			}
			for j := 0; j < nameUnitsPerEntry && len(units) < nameLen; j++ {
				u := binary.LittleEndian.Uint16(buf[recOff+2+j*2 : recOff+4+j*2])
				units = append(units, u)
			}
		}
		name := string(utf16.Decode(units))

		out = append(out, parsedExfatEntry{Name: name, Cluster: cluster, Size: size, IsDir: isDir, Attr: attr})
		off += entrySize * (1 + secondaryCount)
	}
	return out
}
