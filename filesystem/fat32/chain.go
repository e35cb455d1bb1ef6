package fat32

import "github.com/imgforge/rim/filesystem/fatchain"

// chainParams parameterizes the shared fatchain builder for FAT32's 28-bit
// entries stored in a 32-bit field, per spec.md §9.
func chainParams() fatchain.Params {
	return fatchain.Params{
		EntrySize: fatEntrySize,
		EOCMarker: eocMarker,
		EntryMask: entryMask,
	}
}
