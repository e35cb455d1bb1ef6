package fat32

import (
	"encoding/binary"

	"github.com/imgforge/rim/core"
	"github.com/sirupsen/logrus"
)

const (
	fatID       = 0x0FFFFFF8
	eocMarker   = 0x0FFFFFFF
	entryMask   = 0x0FFFFFFF
)

// Formatter writes the fixed on-disk regions of an empty FAT32 filesystem,
// per spec.md §4.4.
type Formatter struct {
	meta  *Meta
	w     core.BlockIO
	clock core.Clock
	log   *logrus.Entry
}

// NewFormatter builds a Formatter writing through w using meta's geometry.
func NewFormatter(w core.BlockIO, meta *Meta, clock core.Clock) *Formatter {
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &Formatter{
		meta:  meta,
		w:     w,
		clock: clock,
		log:   logrus.WithField("fs", "fat32"),
	}
}

// Format writes the VBR+backup, FSINFO+backup, both FAT copies with the
// reserved entries 0-2, and clears the root cluster, per spec.md §4.4.
func (f *Formatter) Format(full bool) error {
	if full {
		f.log.Debug("zero-filling full image before format")
		if err := f.w.ZeroFill(0, f.w.Len()); err != nil {
			return err
		}
	}

	v := f.buildVBR()
	if err := core.WriteStruct(f.w, 0, &v); err != nil {
		return err
	}
	if err := core.WriteStruct(f.w, f.meta.backupVBROffset(), &v); err != nil {
		return err
	}

	info := f.buildFSInfo()
	if err := core.WriteStruct(f.w, bytesPerSector, &info); err != nil {
		return err
	}
	if err := core.WriteStruct(f.w, f.meta.backupFSInfoOffset(), &info); err != nil {
		return err
	}

	if err := f.initFATs(); err != nil {
		return err
	}

	return f.w.ZeroFill(f.meta.OffsetOf(rootCluster), f.meta.UnitSize())
}

func (f *Formatter) buildVBR() vbr {
	var v vbr
	v.JumpCode = [3]byte{0xEB, 0x58, 0x90}
	copy(v.OEMName[:], "RIM 1.0 ")
	v.BytesPerSector = bytesPerSector
	v.SectorsPerCluster = uint8(f.meta.sectorsPerCluster)
	v.ReservedSectors = uint16(f.meta.reservedSectors)
	v.NumFATs = uint8(f.meta.numFATs)
	v.Media = 0xF8
	v.SectorsPerTrack = 63
	v.Heads = 255
	v.TotalSectors32 = f.meta.totalSectors
	v.SectorsPerFAT32 = f.meta.fatSizeSectors
	v.RootDirCluster = rootCluster
	v.FSInfoSector = 1
	v.BackupBootSector = 6
	v.DriveNumber = 0x80
	v.ExtendedBootSignature = 0x29
	v.VolumeSerialNumber = f.meta.volumeID
	v.VolumeLabel = f.meta.label
	copy(v.FileSystemType[:], "FAT32   ")
	v.BootSignature = vbrBootSignature
	return v
}

func (f *Formatter) buildFSInfo() fsInfoSector {
	var info fsInfoSector
	info.LeadSignature = vbrLeadSignature
	info.StructSignature = vbrStructSignature
	info.FreeClusters = f.meta.clusterCount - 1 // root cluster occupied
	info.NextFreeCluster = rootCluster + 1
	info.TrailSignature = vbrTrailSignature
	return info
}

func (f *Formatter) initFATs() error {
	offsets := f.meta.fatOffsets()

	entries := []uint32{fatID, eocMarker, eocMarker} // entry 2: root cluster occupied, single-cluster chain
	allOffsets := make([]int64, 0, len(entries)*len(offsets))
	data := make([]byte, 0, len(entries)*len(offsets)*fatEntrySize)
	for cluster, value := range entries {
		buf := make([]byte, fatEntrySize)
		binary.LittleEndian.PutUint32(buf, value)
		for _, base := range offsets {
			allOffsets = append(allOffsets, base+f.meta.entryOffset(uint32(cluster)))
			data = append(data, buf...)
		}
	}
	return f.w.WriteMultiAt(allOffsets, fatEntrySize, data)
}
