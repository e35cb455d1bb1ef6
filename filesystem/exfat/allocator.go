package exfat

import (
	"github.com/imgforge/rim/core"
	"github.com/imgforge/rim/filesystem"
)

// Allocator is the exFAT monotonic append-only cluster allocator, per
// spec.md §4.3, generalized from fat32.Allocator: the cursor starts after
// the root/bitmap/upcase clusters the Formatter pre-reserves.
type Allocator struct {
	meta   *Meta
	cursor uint32
}

// NewAllocator creates an Allocator whose cursor starts at the Meta's first
// free cluster.
func NewAllocator(meta *Meta) *Allocator {
	return &Allocator{meta: meta, cursor: meta.FirstFreeCluster()}
}

func (a *Allocator) AllocateChain(count int) (filesystem.Handle, error) {
	if count <= 0 {
		return filesystem.Handle{}, core.ErrInvalid("allocate count must be positive")
	}
	last := a.meta.LastDataUnit()
	if a.cursor+uint32(count)-1 > last {
		return filesystem.Handle{}, core.ErrOutOfBlocks("exFAT allocator exhausted cluster heap")
	}
	chain := make([]uint32, count)
	for i := 0; i < count; i++ {
		chain[i] = a.cursor
		a.cursor++
	}
	return filesystem.Handle{First: chain[0], Chain: chain}, nil
}

func (a *Allocator) AllocateUnit() (filesystem.Handle, error) {
	return a.AllocateChain(1)
}

func (a *Allocator) UsedUnits() uint32 {
	return a.cursor - a.meta.FirstFreeCluster()
}

func (a *Allocator) RemainingUnits() uint32 {
	last := a.meta.LastDataUnit()
	if a.cursor > last {
		return 0
	}
	return last - a.cursor + 1
}
