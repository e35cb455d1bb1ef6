package exfat

import "github.com/imgforge/rim/filesystem/fatchain"

// chainParams parameterizes the shared fatchain builder for exFAT's 32-bit
// entries, per spec.md §9 ("the same chain builder serves FAT32 and
// exFAT"). Unlike FAT32's 28-bit-masked entries, exFAT uses the full 32-bit
// range.
func chainParams() fatchain.Params {
	return fatchain.Params{
		EntrySize: fatEntrySize,
		EOCMarker: 0xFFFFFFFF,
		EntryMask: 0xFFFFFFFF,
	}
}
