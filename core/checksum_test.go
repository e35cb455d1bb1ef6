package core_test

import (
	"testing"

	"github.com/imgforge/rim/core"
	"github.com/stretchr/testify/require"
)

func TestDeriveVolumeIDsDeterministic(t *testing.T) {
	g1, v1 := core.DeriveVolumeIDs("BENCHFS", 32*1024*1024, 4096, 7)
	g2, v2 := core.DeriveVolumeIDs("BENCHFS", 32*1024*1024, 4096, 7)
	require.Equal(t, g1, g2)
	require.Equal(t, v1, v2)

	g3, _ := core.DeriveVolumeIDs("OTHERFS", 32*1024*1024, 4096, 7)
	require.NotEqual(t, g1, g3)
}

func TestFAT32ShortNameChecksumKnown(t *testing.T) {
	// "README  TXT" as stored short-name bytes.
	var name [11]byte
	copy(name[:], "README  TXT")
	sum := core.FAT32ShortNameChecksum(name)
	require.NotZero(t, sum)
}

func TestExFATSetChecksumSkipsOwnField(t *testing.T) {
	entries := make([]byte, 32)
	for i := range entries {
		entries[i] = byte(i)
	}
	base := core.ExFATSetChecksum(entries)
	entries[2] = 0xAA
	entries[3] = 0xBB
	require.Equal(t, base, core.ExFATSetChecksum(entries))
}

func TestUnitsForLength(t *testing.T) {
	require.EqualValues(t, 0, core.UnitsForLength(0, 4096))
	require.EqualValues(t, 1, core.UnitsForLength(1, 4096))
	require.EqualValues(t, 1, core.UnitsForLength(4096, 4096))
	require.EqualValues(t, 2, core.UnitsForLength(4097, 4096))
}
