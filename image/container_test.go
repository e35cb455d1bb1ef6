package image

import (
	"encoding/binary"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/imgforge/rim/core"
)

func TestWriteVHDFixed(t *testing.T) {
	raw := core.NewMemBlockIO(1000) // not sector-aligned, forces padding
	for i := range raw.Bytes() {
		raw.Bytes()[i] = 0x7A
	}
	clock := core.FrozenClock{At: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}

	require.NoError(t, WriteVHDFixed(raw, clock))
	require.Equal(t, int64(1536), raw.Len()) // padded to 1024 + 512-byte footer

	footer := make([]byte, 512)
	require.NoError(t, raw.ReadAt(1024, footer))
	require.Equal(t, "conectix", string(footer[0:8]))
	require.Equal(t, uint32(2), binary.BigEndian.Uint32(footer[8:12]))
	require.Equal(t, uint32(0x00010000), binary.BigEndian.Uint32(footer[12:16]))
	require.Equal(t, uint64(0xFFFFFFFFFFFFFFFF), binary.BigEndian.Uint64(footer[16:24]))
	require.Equal(t, "rim\x00", string(footer[28:32]))
	require.Equal(t, "Wi2k", string(footer[36:40]))
	require.Equal(t, uint64(1024), binary.BigEndian.Uint64(footer[40:48]))
	require.Equal(t, uint64(1024), binary.BigEndian.Uint64(footer[48:56]))
	require.Equal(t, uint8(16), footer[58])
	require.Equal(t, uint8(63), footer[59])
	require.Equal(t, uint32(2), binary.BigEndian.Uint32(footer[60:64]))

	// padded original content should be intact ahead of the footer
	body := make([]byte, 1000)
	require.NoError(t, raw.ReadAt(0, body))
	for _, b := range body {
		require.Equal(t, byte(0x7A), b)
	}

	// checksum: ones'-complement of the sum of all footer bytes with the
	// checksum field itself zeroed
	var sum uint32
	for i, b := range footer {
		if i >= 64 && i < 68 {
			continue
		}
		sum += uint32(b)
	}
	require.Equal(t, ^sum, binary.BigEndian.Uint32(footer[64:68]))
}

func TestWriteVMDKMonolithicFlat(t *testing.T) {
	src := core.NewMemBlockIO(2048)
	for i := range src.Bytes() {
		src.Bytes()[i] = 0x11
	}
	dst := core.NewMemBlockIO(512 + src.Len())

	require.NoError(t, WriteVMDKMonolithicFlat(dst, src, "rim-disk"))

	header := make([]byte, 512)
	require.NoError(t, dst.ReadAt(0, header))
	require.True(t, strings.HasPrefix(string(header), "# Disk DescriptorFile"))
	require.Contains(t, string(header), `createType="monolithicFlat"`)
	require.Contains(t, string(header), "RW 4 FLAT")

	body := make([]byte, src.Len())
	require.NoError(t, dst.ReadAt(512, body))
	for _, b := range body {
		require.Equal(t, byte(0x11), b)
	}
}
