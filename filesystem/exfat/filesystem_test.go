package exfat

import (
	"testing"
	"time"

	"github.com/imgforge/rim/core"
	"github.com/imgforge/rim/filesystem"
	"github.com/stretchr/testify/require"
)

func buildImage(t *testing.T, sizeBytes int64) (*Meta, core.BlockIO) {
	t.Helper()
	meta, err := NewMeta(sizeBytes, Options{Label: "RIMEXFAT", ClusterSize: 4096})
	require.NoError(t, err)

	w := core.NewMemBlockIO(sizeBytes)
	clock := core.FrozenClock{At: time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC)}
	fmtr := NewFormatter(w, meta, clock)
	require.NoError(t, fmtr.Format(true))
	return meta, w
}

// Scenario C: format a minimal exFAT image (bitmap + upcase table seeded),
// inject a small file, verify it round-trips clean through the Checker.
func TestExFATMinimalRoundTrip(t *testing.T) {
	meta, w := buildImage(t, 64*1024*1024)

	alloc := NewAllocator(meta)
	clock := core.FrozenClock{At: time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC)}
	inj := NewInjector(w, meta, alloc, clock)

	require.NoError(t, inj.SetRootContext())
	require.NoError(t, inj.WriteFile("hello.txt", []byte("hello, exfat"), core.FileAttributes{}))
	require.NoError(t, inj.WriteDir("sub", core.FileAttributes{}))
	require.NoError(t, inj.WriteFile("nested.bin", []byte{9, 8, 7}, core.FileAttributes{}))
	require.NoError(t, inj.FlushCurrent())
	require.NoError(t, inj.Flush())

	res := NewResolver(w, meta)
	node, err := res.Resolve("/hello.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("hello, exfat"), node.Content)

	nested, err := res.Resolve("/sub/nested.bin")
	require.NoError(t, err)
	require.Equal(t, []byte{9, 8, 7}, nested.Content)

	root, err := res.Resolve("/*")
	require.NoError(t, err)
	require.Len(t, root.Children, 2)

	chk := NewChecker(w, meta)
	report, err := chk.Check(filesystem.Options{})
	require.NoError(t, err)
	require.False(t, report.HasError(), "%+v", report.Findings)
	require.Equal(t, 0, report.OrphanCount)
}

func TestExFATVolumeLabelSeeded(t *testing.T) {
	meta, w := buildImage(t, 32*1024*1024)
	chk := NewChecker(w, meta)
	report, err := chk.Check(filesystem.Options{Phases: filesystem.PhaseBoot | filesystem.PhaseRoot})
	require.NoError(t, err)
	require.False(t, report.HasError(), "%+v", report.Findings)

	root := make([]byte, meta.UnitSize())
	require.NoError(t, w.ReadAt(meta.OffsetOf(meta.RootUnit()), root))
	require.Equal(t, byte(entryTypeLabel), root[2*entrySize])
}
