package ext4

import (
	"encoding/binary"

	"github.com/imgforge/rim/core"
)

var (
	errShortExtentBody = core.ErrInvalid("inode body too short for an extent header")
	errBadExtentMagic  = core.ErrInvalid("inode extent header has the wrong magic")
)

// extent is a single contiguous run of blocks backing part of a file, per
// spec.md §3: {logical_block, length, physical_block}. Allocator.AllocateChain
// steps around each group's reserved metadata blocks, so a file's blocks are
// not always one contiguous run; extentsForChain splits them into one extent
// per contiguous run. This package only ever encodes those extents inline
// (up to extentMaxInline) and never grows an external extent tree — the
// teacher's extent.go implements that deeper tree-splitting machinery for a
// FileSystem shape this package does not reuse; see DESIGN.md for why it was
// not adapted.
type extent struct {
	logicalBlock  uint32
	physicalBlock uint32
	length        uint16
}

// encodeInlineExtents writes the inode-body extent header plus up to
// extentMaxInline leaf extents, per spec.md §3's {magic, entry_count, max,
// depth} header and original_source/rimfs/src/fs/ext4/types/extent.rs's
// Ext4ExtentHeader/Ext4Extent layout (12 bytes each).
func encodeInlineExtents(exts []extent) [60]byte {
	var body [60]byte
	binary.LittleEndian.PutUint16(body[0:2], extentHeaderMagic)
	binary.LittleEndian.PutUint16(body[2:4], uint16(len(exts)))
	binary.LittleEndian.PutUint16(body[4:6], extentMaxInline)
	binary.LittleEndian.PutUint16(body[6:8], 0)  // depth: leaf
	binary.LittleEndian.PutUint32(body[8:12], 0) // generation

	for i, e := range exts {
		off := 12 + i*12
		binary.LittleEndian.PutUint32(body[off:off+4], e.logicalBlock)
		binary.LittleEndian.PutUint16(body[off+4:off+6], e.length)
		binary.LittleEndian.PutUint16(body[off+6:off+8], uint16(uint64(e.physicalBlock)>>32))
		binary.LittleEndian.PutUint32(body[off+8:off+12], e.physicalBlock)
	}
	return body
}

// decodeInlineExtents reverses encodeInlineExtents, for the Resolver and
// Checker.
func decodeInlineExtents(body []byte) ([]extent, error) {
	if len(body) < 12 {
		return nil, errShortExtentBody
	}
	magic := binary.LittleEndian.Uint16(body[0:2])
	if magic != extentHeaderMagic {
		return nil, errBadExtentMagic
	}
	count := binary.LittleEndian.Uint16(body[2:4])
	exts := make([]extent, 0, count)
	for i := uint16(0); i < count; i++ {
		off := 12 + int(i)*12
		if off+12 > len(body) {
			break
		}
		exts = append(exts, extent{
			logicalBlock:  binary.LittleEndian.Uint32(body[off : off+4]),
			length:        binary.LittleEndian.Uint16(body[off+4 : off+6]),
			physicalBlock: binary.LittleEndian.Uint32(body[off+8 : off+12]),
		})
	}
	return exts, nil
}

// errTooManyExtents is returned when a chain's physical blocks split into
// more contiguous runs than extentMaxInline can hold inline; this package
// never grows an external extent tree (see the extent type's doc comment),
// so such a chain cannot be encoded.
var errTooManyExtents = core.ErrUnsupported("file's allocated blocks split into more runs than fit the inline extent header")

// extentsForChain splits chain into maximal contiguous physical-block runs
// and emits one extent per run, since Allocator.AllocateChain crosses group
// boundaries by skipping each group's reserved metadata blocks and so does
// not guarantee the whole chain is one contiguous run (spec.md §3/§4.3).
func extentsForChain(chain []uint32) ([]extent, error) {
	if len(chain) == 0 {
		return nil, nil
	}
	var exts []extent
	runStart := 0
	logical := uint32(0)
	flush := func(end int) {
		length := uint32(end - runStart)
		exts = append(exts, extent{
			logicalBlock:  logical,
			physicalBlock: chain[runStart],
			length:        uint16(length),
		})
		logical += length
	}
	for i := 1; i <= len(chain); i++ {
		if i < len(chain) && chain[i] == chain[i-1]+1 {
			continue
		}
		flush(i)
		runStart = i
	}
	if len(exts) > int(extentMaxInline) {
		return nil, errTooManyExtents
	}
	return exts, nil
}
