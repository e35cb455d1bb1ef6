package ext4

import (
	"github.com/imgforge/rim/core"
	"github.com/imgforge/rim/filesystem"
)

// Allocator reserves contiguous block ranges from the cluster heap,
// advancing the cursor across group boundaries and skipping each group's
// reserved metadata blocks transparently, per spec.md §4.3. Ported from
// original_source/rimfs/src/fs/ext4/allocator.rs's Ext4BlockAllocator.
type Allocator struct {
	meta    *Meta
	group   uint32
	cursor  uint32 // next free block within the current group's data region
	used    uint32
}

// NewAllocator builds an Allocator over meta, cursor starting right after
// group 0's root-directory and lost+found data blocks, which the
// Formatter always seeds at format time.
func NewAllocator(meta *Meta) *Allocator {
	layout := meta.computeGroupLayout(0)
	return &Allocator{meta: meta, group: 0, cursor: layout.FirstDataBlock + 2}
}

func (a *Allocator) groupEnd(group uint32) uint32 {
	if group == a.meta.groupCount-1 {
		return a.meta.blockCount
	}
	return a.meta.firstDataBlock + (group+1)*a.meta.blocksPerGroup
}

// AllocateChain reserves count consecutive blocks, skipping into the next
// group's data region when the current one runs out.
func (a *Allocator) AllocateChain(count int) (filesystem.Handle, error) {
	if count <= 0 {
		return filesystem.Handle{}, core.ErrInvalid("allocate_chain requires count > 0")
	}
	chain := make([]uint32, 0, count)
	for len(chain) < count {
		if a.cursor >= a.groupEnd(a.group) {
			a.group++
			if a.group >= a.meta.groupCount {
				return filesystem.Handle{}, core.ErrOutOfBlocks("ext4 block heap exhausted")
			}
			a.cursor = a.meta.computeGroupLayout(a.group).FirstDataBlock
		}
		chain = append(chain, a.cursor)
		a.cursor++
		a.used++
	}
	return filesystem.Handle{First: chain[0], Chain: chain}, nil
}

// AllocateUnit is shorthand for AllocateChain(1).
func (a *Allocator) AllocateUnit() (filesystem.Handle, error) {
	return a.AllocateChain(1)
}

// UsedUnits is the count of blocks allocated so far.
func (a *Allocator) UsedUnits() uint32 { return a.used }

// RemainingUnits is the count of blocks left before exhaustion.
func (a *Allocator) RemainingUnits() uint32 {
	if a.group >= a.meta.groupCount {
		return 0
	}
	var remaining uint32
	if end := a.groupEnd(a.group); a.cursor < end {
		remaining = end - a.cursor
	}
	for g := a.group + 1; g < a.meta.groupCount; g++ {
		if end, first := a.groupEnd(g), a.meta.computeGroupLayout(g).FirstDataBlock; end > first {
			remaining += end - first
		}
	}
	return remaining
}
