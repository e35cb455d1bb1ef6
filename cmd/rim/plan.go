package main

import (
	"github.com/imgforge/rim/manifest"
	"github.com/imgforge/rim/partition/gpt"
)

// alignmentSectors is the conventional 1MiB partition alignment most
// partitioning tools default to; spec.md leaves partition placement policy
// unspecified beyond "offsets passed into BlockIO views", so this follows
// the same 2048-sector boundary original_source/rimpart/examples/
// gpt_example.rs uses for its first partition.
const alignmentSectors = 2048

type plannedPartition struct {
	resolved manifest.ResolvedPartition
	entry    gpt.Entry
}

// planLayout lays resolved partitions out sequentially from the first
// aligned usable LBA, returning the plan plus the total sector count the
// disk must be created at, including the trailing backup-GPT reserve.
func planLayout(resolved []manifest.ResolvedPartition) ([]plannedPartition, uint64) {
	cursor := alignUp(gpt.FirstUsableLBA(), alignmentSectors)
	plan := make([]plannedPartition, 0, len(resolved))
	for _, r := range resolved {
		sectors := (uint64(r.SizeBytes) + uint64(gpt.SectorSize) - 1) / uint64(gpt.SectorSize)
		firstLBA := cursor
		lastLBA := firstLBA + sectors - 1
		entry := gpt.NewEntry(r.TypeGUID, r.UniqueGUID, firstLBA, lastLBA, r.Spec.Bootable, r.Spec.Name)
		plan = append(plan, plannedPartition{resolved: r, entry: entry})
		cursor = alignUp(lastLBA+1, alignmentSectors)
	}
	totalSectors := cursor + gpt.ReservedTrailingSectors()
	return plan, totalSectors
}

func alignUp(v, align uint64) uint64 {
	if v%align == 0 {
		return v
	}
	return (v/align + 1) * align
}
