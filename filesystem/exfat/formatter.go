package exfat

import (
	"encoding/binary"

	"github.com/imgforge/rim/core"
	"github.com/imgforge/rim/filesystem/fatchain"
	"github.com/imgforge/rim/util/bitmap"
	"github.com/sirupsen/logrus"
)

// Formatter writes the fixed on-disk regions of an empty exFAT filesystem:
// main+backup boot regions, the single FAT's reserved entries and
// bitmap/upcase/root chains, the bitmap and up-case table cluster content,
// and the root directory's mandatory bitmap/upcase entries, per spec.md
// §4.4.
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
	return &Formatter{meta: meta, w: w, clock: clock, log: logrus.WithField("fs", "exfat")}
}

// Format writes the full exFAT structure. When full is true the entire
// image is zero-filled first.
func (f *Formatter) Format(full bool) error {
	if full {
		f.log.Debug("zero-filling full image before format")
		if err := f.w.ZeroFill(0, f.w.Len()); err != nil {
			return err
		}
	}

	region := f.buildBootRegion()
	if err := f.w.WriteAt(0, region); err != nil {
		return err
	}
	if err := f.w.WriteAt(int64(mainBootSectors)*sectorSize, region); err != nil {
		return err
	}

	if err := f.initFAT(); err != nil {
		return err
	}
	if err := f.writeUpcaseCluster(); err != nil {
		return err
	}
	if err := f.writeRootCluster(); err != nil {
		return err
	}
	return f.writeBitmapCluster()
}

// buildBootRegion constructs the 12-sector main boot region (VBR, 8
// reserved extended-boot sectors, OEM parameters, reserved, and a checksum
// sector computed over the first 11 sectors per spec.md §4.2).
func (f *Formatter) buildBootRegion() []byte {
	region := make([]byte, mainBootSectors*sectorSize)

	v := region[0:sectorSize]
	copy(v[3:11], "EXFAT   ")
	binary.LittleEndian.PutUint64(v[72:80], uint64(f.meta.totalSectors))
	binary.LittleEndian.PutUint32(v[80:84], uint32(reservedSectors))
	binary.LittleEndian.PutUint32(v[84:88], f.meta.fatLengthSectors)
	binary.LittleEndian.PutUint32(v[88:92], f.meta.clusterHeapOffset)
	binary.LittleEndian.PutUint32(v[92:96], f.meta.clusterCount)
	binary.LittleEndian.PutUint32(v[96:100], rootCluster)
	binary.LittleEndian.PutUint32(v[100:104], f.meta.volumeID)
	binary.LittleEndian.PutUint16(v[104:106], 0x0100) // FileSystemRevision 1.00
	v[108] = log2(sectorSize)
	v[109] = log2(f.meta.clusterSize / sectorSize)
	v[110] = numFATs
	v[111] = 0x80 // DriveSelect
	binary.LittleEndian.PutUint16(v[510:512], 0xAA55)

	checksum := core.ExFATVBRChecksum(region, sectorSize)
	checksumSector := region[11*sectorSize : 12*sectorSize]
	for i := 0; i < sectorSize; i += 4 {
		binary.LittleEndian.PutUint32(checksumSector[i:i+4], checksum)
	}
	return region
}

func log2(n uint32) uint8 {
	var shift uint8
	for n > 1 {
		n >>= 1
		shift++
	}
	return shift
}

func (f *Formatter) initFAT() error {
	offset := f.meta.fatOffset()
	entries := map[uint32]uint32{0: 0xFFFFFFF8, 1: 0xFFFFFFFF}

	offsets := make([]int64, 0, len(entries))
	data := make([]byte, 0, len(entries)*fatEntrySize)
	for cluster, value := range entries {
		buf := make([]byte, fatEntrySize)
		binary.LittleEndian.PutUint32(buf, value)
		offsets = append(offsets, offset+f.meta.entryOffset(cluster))
		data = append(data, buf...)
	}
	if err := f.w.WriteMultiAt(offsets, fatEntrySize, data); err != nil {
		return err
	}

	chainOffsets := []int64{offset}
	if err := fatchain.WriteChain(f.w, chainParams(), []uint32{rootCluster}, chainOffsets, f.meta.entryOffset); err != nil {
		return err
	}
	if err := fatchain.WriteChain(f.w, chainParams(), f.meta.bitmapChain(), chainOffsets, f.meta.entryOffset); err != nil {
		return err
	}
	return fatchain.WriteChain(f.w, chainParams(), f.meta.upcaseChain(), chainOffsets, f.meta.entryOffset)
}

func (f *Formatter) writeUpcaseCluster() error {
	buf := make([]byte, f.meta.upcaseClusters*int64(f.meta.clusterSize))
	for i, u := range f.meta.upcaseTable {
		binary.LittleEndian.PutUint16(buf[i*2:i*2+2], u)
	}
	return f.w.WriteAt(f.meta.OffsetOf(f.meta.UpcaseCluster()), buf)
}

func (f *Formatter) writeBitmapCluster() error {
	bm := bitmap.NewBytes(int(f.meta.bitmapClusters * int64(f.meta.clusterSize)))
	reserved := append([]uint32{rootCluster}, f.meta.bitmapChain()...)
	reserved = append(reserved, f.meta.upcaseChain()...)
	for _, cl := range reserved {
		if err := bm.Set(int(cl - rootCluster)); err != nil {
			return core.ErrInvalid("seed bitmap: " + err.Error())
		}
	}
	return f.w.WriteAt(f.meta.OffsetOf(f.meta.BitmapCluster()), bm.ToBytes())
}

func (f *Formatter) writeRootCluster() error {
	buf := newDirBuffer()
	buf.seedReserved(f.meta)
	return f.w.WriteAt(f.meta.OffsetOf(rootCluster), buf.toBytes(f.meta.UnitSize()))
}
