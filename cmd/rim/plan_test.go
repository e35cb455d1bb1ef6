package main

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/imgforge/rim/manifest"
	"github.com/imgforge/rim/partition/gpt"
)

func TestPlanLayoutAlignsAndOrders(t *testing.T) {
	resolved := []manifest.ResolvedPartition{
		{
			Spec:       manifest.PartitionSpec{Name: "esp", FS: manifest.FSFAT32, Bootable: true},
			SizeBytes:  3 * 1024 * 1024,
			TypeGUID:   gpt.EFISystemPartition,
			UniqueGUID: uuid.New(),
		},
		{
			Spec:       manifest.PartitionSpec{Name: "rootfs", FS: manifest.FSExt4},
			SizeBytes:  10 * 1024 * 1024,
			TypeGUID:   gpt.LinuxFilesystem,
			UniqueGUID: uuid.New(),
		},
	}

	plan, totalSectors := planLayout(resolved)
	require.Len(t, plan, 2)

	require.Equal(t, uint64(2048), plan[0].entry.FirstLBA)
	require.Equal(t, "esp", plan[0].entry.Name)
	require.True(t, plan[1].entry.FirstLBA > plan[0].entry.LastLBA)
	require.Equal(t, uint64(0), plan[1].entry.FirstLBA%alignmentSectors)

	require.True(t, totalSectors > uint64(plan[1].entry.LastLBA))
}

func TestAlignUp(t *testing.T) {
	require.Equal(t, uint64(2048), alignUp(1, 2048))
	require.Equal(t, uint64(2048), alignUp(2048, 2048))
	require.Equal(t, uint64(4096), alignUp(2049, 2048))
}
