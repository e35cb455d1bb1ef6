package partition

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/imgforge/rim/core"
	"github.com/imgforge/rim/partition/gpt"
)

func buildScenarioEDisk(t *testing.T, totalSectors uint64) (core.BlockIO, *gpt.Table) {
	t.Helper()
	w := core.NewMemBlockIO(int64(totalSectors) * gpt.SectorSize)
	table := gpt.NewTable(uuid.New())
	table.Partitions = []gpt.Entry{
		gpt.NewEntry(gpt.EFISystemPartition, uuid.New(), 2048, 4095, true, "ESP"),
		gpt.NewEntry(gpt.LinuxFilesystem, uuid.New(), 4096, 9999, false, "rootfs"),
	}
	require.NoError(t, Build(w, table, totalSectors))
	return w, table
}

func TestBuildAndScan(t *testing.T) {
	w, table := buildScenarioEDisk(t, 20000)

	scanned, err := Scan(w)
	require.NoError(t, err)
	require.ElementsMatch(t, table.Partitions, scanned.Partitions)
}

// TestTruncate implements Scenario F: after the Scenario E build, truncate
// sets backing length to 10000*512 and reports the saved bytes.
func TestTruncate(t *testing.T) {
	w, table := buildScenarioEDisk(t, 20000)

	report, err := Truncate(w, table.Partitions, gpt.SectorSize)
	require.NoError(t, err)
	require.NotNil(t, report)
	require.Equal(t, uint64(10000*gpt.SectorSize), report.UsedBytes)
	require.Equal(t, uint64(20000*gpt.SectorSize), report.TotalBytes)
	require.Equal(t, report.TotalBytes-report.UsedBytes, report.SavedBytes)
	require.Equal(t, int64(10000*gpt.SectorSize), w.Len())
}

func TestTruncateNoPartitions(t *testing.T) {
	w := core.NewMemBlockIO(1024)
	report, err := Truncate(w, nil, gpt.SectorSize)
	require.NoError(t, err)
	require.Nil(t, report)
}

func TestWritePayload(t *testing.T) {
	w, table := buildScenarioEDisk(t, 20000)
	entry := table.Partitions[1]
	payload := bytes.Repeat([]byte{0xAB}, int((entry.LastLBA-entry.FirstLBA+1)*uint64(gpt.SectorSize)))

	written, err := WritePayload(w, entry, gpt.SectorSize, bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, uint64(len(payload)), written)

	readback := make([]byte, len(payload))
	require.NoError(t, w.ReadAt(int64(entry.FirstLBA)*gpt.SectorSize, readback))
	require.Equal(t, payload, readback)
}

func TestWritePayloadShort(t *testing.T) {
	w, table := buildScenarioEDisk(t, 20000)
	entry := table.Partitions[0]
	short := bytes.Repeat([]byte{0x01}, 512)

	_, err := WritePayload(w, entry, gpt.SectorSize, bytes.NewReader(short))
	require.Error(t, err)
}
