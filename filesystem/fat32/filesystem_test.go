package fat32

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/imgforge/rim/core"
	"github.com/imgforge/rim/filesystem"
	"github.com/stretchr/testify/require"
)

func buildImage(t *testing.T, sizeBytes int64) (*Meta, core.BlockIO) {
	t.Helper()
	meta, err := NewMeta(sizeBytes, Options{Label: "RIMTEST"})
	require.NoError(t, err)

	w := core.NewMemBlockIO(sizeBytes)
	clock := core.FrozenClock{At: time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC)}
	fmtr := NewFormatter(w, meta, clock)
	require.NoError(t, fmtr.Format(true))
	return meta, w
}

// Scenario A: format a minimal FAT32 image, inject one small file, verify it
// round-trips through the Resolver clean through the Checker.
func TestFAT32MinimalRoundTrip(t *testing.T) {
	meta, w := buildImage(t, 64*1024*1024)

	alloc := NewAllocator(meta)
	clock := core.FrozenClock{At: time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC)}
	inj := NewInjector(w, meta, alloc, clock)

	require.NoError(t, inj.SetRootContext())
	require.NoError(t, inj.WriteFile("hello.txt", []byte("hello, rim"), core.FileAttributes{}))
	require.NoError(t, inj.Flush())

	res := NewResolver(w, meta)
	node, err := res.Resolve("/hello.txt")
	require.NoError(t, err)
	require.Equal(t, "hello.txt", node.Name)
	require.Equal(t, []byte("hello, rim"), node.Content)

	chk := NewChecker(w, meta)
	report, err := chk.Check(filesystem.Options{})
	require.NoError(t, err)
	require.False(t, report.HasError(), "%+v", report.Findings)
	require.Equal(t, 1, report.FilesWalked)
	require.Equal(t, 0, report.OrphanCount)
}

// Scenario B: a deep tree with 101 files, including one with a 77-character
// long name forcing LFN encoding, and a nested subdirectory.
func TestFAT32DeepTreeWithLongNames(t *testing.T) {
	meta, w := buildImage(t, 256*1024*1024)

	alloc := NewAllocator(meta)
	clock := core.FrozenClock{At: time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC)}
	inj := NewInjector(w, meta, alloc, clock)

	require.NoError(t, inj.SetRootContext())

	longName := strings.Repeat("x", 73) + ".txt" // 77 characters total
	require.NoError(t, inj.WriteFile(longName, []byte("long name content"), core.FileAttributes{}))

	for i := 0; i < 100; i++ {
		name := fmt.Sprintf("file_%03d.txt", i)
		require.NoError(t, inj.WriteFile(name, []byte(fmt.Sprintf("content %d", i)), core.FileAttributes{}))
	}

	require.NoError(t, inj.WriteDir("subdir", core.FileAttributes{}))
	require.NoError(t, inj.WriteFile("nested.bin", []byte{1, 2, 3, 4}, core.FileAttributes{}))
	require.NoError(t, inj.FlushCurrent()) // subdir

	require.NoError(t, inj.Flush())

	res := NewResolver(w, meta)

	longNode, err := res.Resolve("/" + longName)
	require.NoError(t, err)
	require.Equal(t, longName, longNode.Name)

	midNode, err := res.Resolve("/file_050.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("content 50"), midNode.Content)

	nested, err := res.Resolve("/subdir/nested.bin")
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, nested.Content)

	root, err := res.Resolve("/*")
	require.NoError(t, err)
	require.Len(t, root.Children, 102) // 101 files + 1 subdir

	chk := NewChecker(w, meta)
	report, err := chk.Check(filesystem.Options{})
	require.NoError(t, err)
	require.False(t, report.HasError(), "%+v", report.Findings)
	require.Equal(t, 103, report.FilesWalked) // 101 root files + subdir entry + nested file
	require.Equal(t, 0, report.OrphanCount)
}

func TestFAT32ShortNameCollisionGetsNumericTail(t *testing.T) {
	meta, w := buildImage(t, 64*1024*1024)
	alloc := NewAllocator(meta)
	clock := core.FrozenClock{At: time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC)}
	inj := NewInjector(w, meta, alloc, clock)

	require.NoError(t, inj.SetRootContext())
	// both names truncate to the short base "README-F"
	require.NoError(t, inj.WriteFile("readme-file-one.txt", []byte("a"), core.FileAttributes{}))
	require.NoError(t, inj.WriteFile("readme-file-two.txt", []byte("b"), core.FileAttributes{}))
	require.NoError(t, inj.Flush())

	rootRaw := make([]byte, meta.UnitSize())
	require.NoError(t, w.ReadAt(meta.OffsetOf(meta.RootUnit()), rootRaw))
	require.Contains(t, string(rootRaw), "README~1TXT")

	res := NewResolver(w, meta)
	one, err := res.Resolve("/readme-file-one.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("a"), one.Content)
	two, err := res.Resolve("/readme-file-two.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("b"), two.Content)
}
