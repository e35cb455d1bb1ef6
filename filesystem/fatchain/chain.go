// Package fatchain implements the cluster-chain builder shared by FAT32 and
// exFAT (spec.md §9: "the same chain builder serves FAT32 and exFAT;
// parameterize by entry size, end-of-chain marker, and entry mask"). It is
// generalized from the teacher's filesystem/fat32/table.go, which hard-coded
// entrySize=4/16/12 for the three FAT widths; here entrySize is 4 for both
// FAT32 (28-bit entries in a 32-bit field) and exFAT (32-bit entries).
package fatchain

import (
	"encoding/binary"

	"github.com/imgforge/rim/core"
)

// Params parameterizes the chain builder per filesystem family.
type Params struct {
	EntrySize  int    // bytes per FAT entry (4 for both FAT32 and exFAT)
	EOCMarker  uint32 // end-of-chain marker written verbatim
	EntryMask  uint32 // 0x0FFFFFFF for FAT32 (28-bit), 0xFFFFFFFF for exFAT (32-bit)
	BadCluster uint32 // marker for a bad/reserved cluster, 0 if unused
}

// BuildChainBytes returns the little-endian FAT entries for a chain of
// clusters: each entry points to the next cluster, the last points to EOC.
// It does not include entries for clusters outside the chain.
func BuildChainBytes(params Params, chain []uint32) map[uint32][]byte {
	out := make(map[uint32][]byte, len(chain))
	for i, cl := range chain {
		var next uint32
		if i == len(chain)-1 {
			next = params.EOCMarker
		} else {
			next = chain[i+1] & params.EntryMask
		}
		buf := make([]byte, params.EntrySize)
		binary.LittleEndian.PutUint32(buf, next)
		out[cl] = buf
	}
	return out
}

// WriteChain writes a chain's FAT entries into every FAT copy of a
// filesystem via BlockIO.WriteMultiAt, scattering across copies in one call
// as spec.md §4.1 describes for write_multi_at. fatOffsets gives, per FAT
// copy, the byte offset of entry 0; entryOffset(cluster) gives the
// byte offset of a cluster's entry within one FAT copy.
func WriteChain(w core.BlockIO, params Params, chain []uint32, fatOffsets []int64, entryOffset func(cluster uint32) int64) error {
	entries := BuildChainBytes(params, chain)
	// Order matters for WriteMultiAt's stride contract: one offset+data
	// slice pair per (fatCopy, cluster) combination.
	offsets := make([]int64, 0, len(chain)*len(fatOffsets))
	data := make([]byte, 0, len(chain)*len(fatOffsets)*params.EntrySize)
	for _, cl := range chain {
		entry := entries[cl]
		for _, fatBase := range fatOffsets {
			offsets = append(offsets, fatBase+entryOffset(cl))
			data = append(data, entry...)
		}
	}
	if len(offsets) == 0 {
		return nil
	}
	return w.WriteMultiAt(offsets, params.EntrySize, data)
}

// ReadChain walks a chain starting at first by reading one FAT copy,
// following next-pointers until an EOC marker. It returns core.ErrInvalid
// ("Loop detected") if a cluster repeats, matching spec.md §9's
// cyclic-graph avoidance: callers maintain no back-edges, only a visited
// set local to this call.
func ReadChain(w core.BlockIO, params Params, fatBase int64, entryOffset func(cluster uint32) int64, first uint32, maxClusters uint32) ([]uint32, error) {
	visited := make(map[uint32]bool)
	chain := []uint32{}
	cur := first
	for {
		if visited[cur] {
			return nil, core.ErrInvalid("Loop detected")
		}
		visited[cur] = true
		chain = append(chain, cur)
		if uint32(len(chain)) > maxClusters {
			return nil, core.ErrInvalid("chain length exceeds cluster_count")
		}
		buf := make([]byte, params.EntrySize)
		if err := w.ReadAt(fatBase+entryOffset(cur), buf); err != nil {
			return nil, err
		}
		next := binary.LittleEndian.Uint32(buf) & params.EntryMask
		if IsEOC(next, params) {
			break
		}
		cur = next
	}
	return chain, nil
}

// IsEOC reports whether a raw FAT entry value is an end-of-chain marker.
// Per FAT semantics any value >= EOCMarker&mask - 7 within the mask's top
// range is a valid EOC; this module only ever writes the canonical marker,
// but recognizes the whole reserved range on read per spec.md's Checker.
func IsEOC(value uint32, params Params) bool {
	masked := value & params.EntryMask
	return masked >= (params.EntryMask - 7)
}
