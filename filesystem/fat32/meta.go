// Package fat32 implements the FAT32 filesystem family's Meta, Allocator,
// Formatter, Injector, Checker, and Resolver, per spec.md §4.2/§4.4-§4.7.
// It is grounded on the teacher's filesystem/fat32 package (bit-packed VBR,
// directory entries, FAT table) generalized to the shared
// filesystem.{Meta,Allocator,...} interfaces.
package fat32

import (
	"github.com/imgforge/rim/core"
	"github.com/imgforge/rim/filesystem"
)

const (
	bytesPerSector    = 512
	reservedSectors   = 32
	numFATs           = 2
	rootCluster       = 2
	defaultClusterSize = 4096
	fatEntrySize      = 4
	minFATEntries     = 2 // entries 0,1 are reserved

	// maxClusterCount is the 28-bit FAT32 limit spec.md §9 requires be
	// enforced explicitly, since the on-disk entry width does not cap it
	// for us.
	maxClusterCount = 0x0FFFFFF5
)

// Options configures FAT32 Meta construction. The zero value picks the
// documented defaults.
type Options struct {
	Label       string // up to 11 chars, space-padded and uppercased
	ClusterSize uint32 // bytes per cluster; 0 means defaultClusterSize
}

// Meta is the frozen FAT32 geometry for one filesystem instance.
type Meta struct {
	sizeBytes         int64
	label             [11]byte
	bytesPerSector    uint32
	sectorsPerCluster uint32
	clusterSize       uint32
	reservedSectors   uint32
	numFATs           uint32
	fatSizeSectors    uint32
	clusterCount      uint32
	totalSectors      uint32
	volumeID          uint32
	volumeGUID        [16]byte
}

// NewMeta computes FAT32 geometry for a volume of sizeBytes, per spec.md
// §4.2's fixed-point convergence: iterate (fatSize, clusterCount) to a fixed
// point, at most 32 iterations, terminating on no change.
func NewMeta(sizeBytes int64, opts Options) (*Meta, error) {
	clusterSize := opts.ClusterSize
	if clusterSize == 0 {
		clusterSize = defaultClusterSize
	}
	sectorsPerCluster := clusterSize / bytesPerSector
	if sectorsPerCluster == 0 {
		sectorsPerCluster = 1
	}

	totalSectors := uint32(sizeBytes / bytesPerSector)
	if totalSectors <= reservedSectors {
		return nil, core.ErrInvalid("size_bytes too small to fit reserved regions")
	}

	var clusterCount, fatSize, prevFatSize uint32
	for i := 0; i < 32; i++ {
		entries := clusterCount + minFATEntries
		fatSize = ceilDiv(entries*fatEntrySize, bytesPerSector)
		fatArea := fatSize * numFATs
		if reservedSectors+fatArea >= totalSectors {
			return nil, core.ErrInvalid("size_bytes too small to fit reserved regions")
		}
		dataSectors := totalSectors - reservedSectors - fatArea
		newClusterCount := dataSectors / sectorsPerCluster

		if newClusterCount == clusterCount && fatSize == prevFatSize {
			break
		}
		clusterCount = newClusterCount
		prevFatSize = fatSize
	}

	if clusterCount == 0 {
		return nil, core.ErrInvalid("size_bytes too small to fit at least one data cluster")
	}
	if clusterCount > maxClusterCount {
		return nil, core.ErrInvalid("cluster_count exceeds FAT32 28-bit limit")
	}

	var label [11]byte
	for i := range label {
		label[i] = ' '
	}
	copy(label[:], padLabel(opts.Label))

	guid, volumeID := core.DeriveVolumeIDs(opts.Label, uint64(sizeBytes), clusterSize, 0)

	return &Meta{
		sizeBytes:         sizeBytes,
		label:             label,
		bytesPerSector:    bytesPerSector,
		sectorsPerCluster: sectorsPerCluster,
		clusterSize:       clusterSize,
		reservedSectors:   reservedSectors,
		numFATs:           numFATs,
		fatSizeSectors:    fatSize,
		clusterCount:      clusterCount,
		totalSectors:      totalSectors,
		volumeID:          volumeID,
		volumeGUID:        guid,
	}, nil
}

func ceilDiv(a, b uint32) uint32 {
	return (a + b - 1) / b
}

func padLabel(label string) []byte {
	up := []byte(label)
	for i, c := range up {
		if c >= 'a' && c <= 'z' {
			up[i] = c - 32
		}
	}
	if len(up) > 11 {
		up = up[:11]
	}
	return up
}

// --- filesystem.Meta ---

func (m *Meta) Type() filesystem.Type { return filesystem.TypeFAT32 }
func (m *Meta) UnitSize() int64       { return int64(m.clusterSize) }
func (m *Meta) FirstDataUnit() uint32 { return rootCluster }
func (m *Meta) LastDataUnit() uint32  { return m.clusterCount + 1 }
func (m *Meta) TotalUnits() uint32    { return m.clusterCount }
func (m *Meta) RootUnit() uint32      { return rootCluster }
func (m *Meta) VolumeID() uint32      { return m.volumeID }

// OffsetOf returns the absolute byte offset of the given cluster's data.
func (m *Meta) OffsetOf(cluster uint32) int64 {
	dataStart := int64(m.reservedSectors+m.numFATs*m.fatSizeSectors) * bytesPerSector
	return dataStart + int64(cluster-2)*int64(m.clusterSize)
}

// Region offsets, trivially derived per spec.md §4.2.
func (m *Meta) fatOffset(copyIndex uint32) int64 {
	return int64(m.reservedSectors)*bytesPerSector + int64(copyIndex)*int64(m.fatSizeSectors)*bytesPerSector
}

func (m *Meta) fatOffsets() []int64 {
	offs := make([]int64, m.numFATs)
	for i := range offs {
		offs[i] = m.fatOffset(uint32(i))
	}
	return offs
}

func (m *Meta) entryOffset(cluster uint32) int64 {
	return int64(cluster) * fatEntrySize
}

func (m *Meta) backupVBROffset() int64  { return 6 * bytesPerSector }
func (m *Meta) backupFSInfoOffset() int64 { return 7 * bytesPerSector }
