package gpt

import (
	"hash/crc32"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/imgforge/rim/core"
	"github.com/imgforge/rim/partition/mbr"
)

// TestGPTRoundTrip implements Scenario E: build a disk with an ESP at LBA
// 2048-4095 and a Linux partition at LBA 4096-9999, then confirm the
// protective MBR and entries CRC32 and that a scan returns the same
// partitions back.
func TestGPTRoundTrip(t *testing.T) {
	const totalSectors = 20000
	w := core.NewMemBlockIO(totalSectors * SectorSize)

	esp := NewEntry(EFISystemPartition, uuid.New(), 2048, 4095, true, "ESP")
	root := NewEntry(LinuxFilesystem, uuid.New(), 4096, 9999, false, "rootfs")

	table := NewTable(uuid.New())
	table.Partitions = []Entry{esp, root}

	require.NoError(t, mbr.WriteProtective(w, totalSectors))
	require.NoError(t, table.Write(w, totalSectors))

	// protective MBR companion
	mbrBuf := make([]byte, 512)
	require.NoError(t, w.ReadAt(0, mbrBuf))
	require.Equal(t, byte(0xEE), mbrBuf[446+4])
	require.Equal(t, byte(0x55), mbrBuf[510])
	require.Equal(t, byte(0xAA), mbrBuf[511])

	hbuf := make([]byte, SectorSize)
	require.NoError(t, w.ReadAt(1*SectorSize, hbuf))
	entriesLBA := uint64(2)
	wantCRC := crc32ChecksumAt(t, w, entriesLBA)
	gotCRC := leU32(hbuf[88:92])
	require.Equal(t, wantCRC, gotCRC)

	got, err := Read(w)
	require.NoError(t, err)
	require.Equal(t, table.DiskGUID, got.DiskGUID)
	require.ElementsMatch(t, table.Partitions, got.Partitions)

	require.NoError(t, Verify(w))
}

func crc32ChecksumAt(t *testing.T, w core.BlockIO, entriesLBA uint64) uint32 {
	t.Helper()
	buf := make([]byte, uint64(entriesPerTable)*uint64(entrySize))
	require.NoError(t, w.ReadAt(int64(entriesLBA)*SectorSize, buf))
	return crc32.ChecksumIEEE(buf)
}

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func TestGUIDMixedEndianRoundTrip(t *testing.T) {
	u := uuid.New()
	require.Equal(t, u, diskToGUID(guidToDisk(u)))
}

func TestTypeName(t *testing.T) {
	require.Equal(t, "ESP", TypeName(EFISystemPartition))
	require.Equal(t, "", TypeName(uuid.New()))
}
