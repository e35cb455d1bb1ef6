// Package exfat implements the exFAT filesystem family's Meta, Allocator,
// Formatter, Injector, Checker, and Resolver, per spec.md §4.2/§4.4-§4.7. It
// shares the fatchain cluster-chain builder with fat32 (spec.md §9) and is
// grounded on the same teacher conventions, generalized from FAT32's 28-bit
// chain to exFAT's bitmap-tracked 32-bit chain plus an up-case table.
package exfat

import (
	"github.com/imgforge/rim/core"
	"github.com/imgforge/rim/filesystem"
)

const (
	sectorSize = 512

	mainBootSectors   = 12
	backupBootSectors = 12
	reservedSectors   = mainBootSectors + backupBootSectors

	numFATs          = 1
	fatEntrySize     = 4
	rootCluster      = 2
	defaultClusterSize = 32 * 1024

	// maxClusterCount mirrors exFAT's 32-bit cluster index space, minus the
	// reserved low values.
	maxClusterCount = 0xFFFFFFF5
)

// Options configures exFAT Meta construction.
type Options struct {
	Label       string
	ClusterSize uint32 // 0 means defaultClusterSize
}

// Meta is the frozen exFAT geometry for one filesystem instance.
type Meta struct {
	sizeBytes         int64
	label             string
	sectorsPerCluster uint32
	clusterSize       uint32
	fatLengthSectors  uint32
	clusterHeapOffset uint32 // sectors
	clusterCount      uint32
	totalSectors      uint32
	volumeID          uint32
	volumeGUID        [16]byte

	bitmapClusters int64
	upcaseClusters int64
	upcaseChecksum uint32
	upcaseTable    []uint16
}

// NewMeta computes exFAT geometry for a volume of sizeBytes, per spec.md
// §4.2's fixed-point convergence, generalized from FAT32's to exFAT's 4-byte
// FAT entries; as in FAT32, entries 0 and 1 are reserved and cluster
// numbering starts at 2.
func NewMeta(sizeBytes int64, opts Options) (*Meta, error) {
	clusterSize := opts.ClusterSize
	if clusterSize == 0 {
		clusterSize = defaultClusterSize
	}
	sectorsPerCluster := clusterSize / sectorSize
	if sectorsPerCluster == 0 {
		sectorsPerCluster = 1
	}

	totalSectors := uint32(sizeBytes / sectorSize)
	if totalSectors <= reservedSectors {
		return nil, core.ErrInvalid("size_bytes too small to fit reserved boot regions")
	}

	var clusterCount, fatLength uint32
	for i := 0; i < 32; i++ {
		entries := clusterCount + 2
		fatLength = ceilDiv(entries*fatEntrySize, sectorSize)
		heapOffset := reservedSectors + fatLength*numFATs
		if heapOffset >= totalSectors {
			return nil, core.ErrInvalid("size_bytes too small to fit reserved regions")
		}
		dataSectors := totalSectors - heapOffset
		newClusterCount := dataSectors / sectorsPerCluster
		if newClusterCount == clusterCount {
			break
		}
		clusterCount = newClusterCount
	}
	if clusterCount < 4 {
		return nil, core.ErrInvalid("size_bytes too small to fit root/bitmap/upcase clusters")
	}
	if clusterCount > maxClusterCount {
		return nil, core.ErrInvalid("cluster_count exceeds exFAT 32-bit limit")
	}

	table, checksum := buildMinimalUpcaseTable()
	bitmapBytes := ceilDiv(clusterCount, 8)
	bitmapClusters := int64(ceilDiv(bitmapBytes, clusterSize))
	upcaseBytes := uint32(len(table) * 2)
	upcaseClusters := int64(ceilDiv(upcaseBytes, clusterSize))

	guid, volumeID := core.DeriveVolumeIDs(opts.Label, uint64(sizeBytes), clusterSize, 1)

	return &Meta{
		sizeBytes:         sizeBytes,
		label:             opts.Label,
		sectorsPerCluster: sectorsPerCluster,
		clusterSize:       clusterSize,
		fatLengthSectors:  fatLength,
		clusterHeapOffset: reservedSectors + fatLength*numFATs,
		clusterCount:      clusterCount,
		totalSectors:      totalSectors,
		volumeID:          volumeID,
		volumeGUID:        guid,
		bitmapClusters:    bitmapClusters,
		upcaseClusters:    upcaseClusters,
		upcaseChecksum:    checksum,
		upcaseTable:       table,
	}, nil
}

func ceilDiv(a, b uint32) uint32 { return (a + b - 1) / b }

// --- filesystem.Meta ---

func (m *Meta) Type() filesystem.Type { return filesystem.TypeExFAT }
func (m *Meta) UnitSize() int64       { return int64(m.clusterSize) }
func (m *Meta) FirstDataUnit() uint32 { return rootCluster }
func (m *Meta) LastDataUnit() uint32  { return m.clusterCount + 1 }
func (m *Meta) TotalUnits() uint32    { return m.clusterCount }
func (m *Meta) RootUnit() uint32      { return rootCluster }
func (m *Meta) VolumeID() uint32      { return m.volumeID }

// OffsetOf returns the absolute byte offset of the given cluster's data.
func (m *Meta) OffsetOf(cluster uint32) int64 {
	dataStart := int64(m.clusterHeapOffset) * sectorSize
	return dataStart + int64(cluster-2)*int64(m.clusterSize)
}

func (m *Meta) fatOffset() int64 {
	return int64(reservedSectors) * sectorSize
}

func (m *Meta) entryOffset(cluster uint32) int64 {
	return int64(cluster) * fatEntrySize
}

// BitmapCluster is the first cluster of the allocation bitmap, immediately
// after the (always single-cluster, at format time) root directory.
func (m *Meta) BitmapCluster() uint32 { return rootCluster + 1 }

// UpcaseCluster is the first cluster of the up-case table, immediately
// after however many clusters the allocation bitmap needed.
func (m *Meta) UpcaseCluster() uint32 { return m.BitmapCluster() + uint32(m.bitmapClusters) }

// FirstFreeCluster is the first cluster available to the Allocator, after
// root/bitmap/upcase.
func (m *Meta) FirstFreeCluster() uint32 {
	return m.UpcaseCluster() + uint32(m.upcaseClusters)
}

// BitmapLengthBytes is the on-disk length of the allocation bitmap.
func (m *Meta) BitmapLengthBytes() int64 {
	return int64(ceilDiv(m.clusterCount, 8))
}

// UpcaseLengthBytes is the on-disk length of the up-case table.
func (m *Meta) UpcaseLengthBytes() int64 {
	return int64(len(m.upcaseTable) * 2)
}

// bitmapChain and upcaseChain return the contiguous cluster runs the
// Formatter pre-reserves for the allocation bitmap and up-case table.
func (m *Meta) bitmapChain() []uint32 {
	chain := make([]uint32, m.bitmapClusters)
	for i := range chain {
		chain[i] = m.BitmapCluster() + uint32(i)
	}
	return chain
}

func (m *Meta) upcaseChain() []uint32 {
	chain := make([]uint32, m.upcaseClusters)
	for i := range chain {
		chain[i] = m.UpcaseCluster() + uint32(i)
	}
	return chain
}
