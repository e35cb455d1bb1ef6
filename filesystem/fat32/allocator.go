package fat32

import (
	"github.com/imgforge/rim/core"
	"github.com/imgforge/rim/filesystem"
)

// Allocator is the FAT32 monotonic append-only cluster allocator, per
// spec.md §4.3: cursor starts at FirstDataUnit+1 (root cluster 2 is
// pre-reserved by the Formatter), never reclaims, never interleaves.
type Allocator struct {
	meta   *Meta
	cursor uint32
}

// NewAllocator creates an Allocator whose cursor starts immediately after
// the root cluster, which the Formatter has already reserved.
func NewAllocator(meta *Meta) *Allocator {
	return &Allocator{meta: meta, cursor: meta.FirstDataUnit() + 1}
}

func (a *Allocator) AllocateChain(count int) (filesystem.Handle, error) {
	if count <= 0 {
		return filesystem.Handle{}, core.ErrInvalid("allocate count must be positive")
	}
	last := a.meta.LastDataUnit()
	if a.cursor+uint32(count)-1 > last {
		return filesystem.Handle{}, core.ErrOutOfBlocks("FAT32 allocator exhausted data region")
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
	return a.cursor - (a.meta.FirstDataUnit() + 1)
}

func (a *Allocator) RemainingUnits() uint32 {
	last := a.meta.LastDataUnit()
	if a.cursor > last {
		return 0
	}
	return last - a.cursor + 1
}
