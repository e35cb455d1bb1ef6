package ext4

import (
	"testing"
	"time"

	"github.com/imgforge/rim/core"
	"github.com/imgforge/rim/filesystem"
	"github.com/stretchr/testify/require"
)

func buildImage(t *testing.T, sizeBytes int64) (*Meta, core.BlockIO) {
	t.Helper()
	meta, err := NewMeta(sizeBytes, Options{Label: "BENCHFS", BlockSize: 4096})
	require.NoError(t, err)

	w := core.NewMemBlockIO(sizeBytes)
	clock := core.FrozenClock{At: time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC)}
	fmtr := NewFormatter(w, meta, clock)
	require.NoError(t, fmtr.Format(true))
	return meta, w
}

// Scenario D: format a 64MiB ext4 image, inject a file and a subdirectory
// holding a nested file, resolve them back, and confirm the Checker finds
// no errors and no orphaned blocks. The seeded root/lost+found inodes and
// the group 3 backup are checked by the tests below.
func TestExt4MinimalRoundTrip(t *testing.T) {
	meta, w := buildImage(t, 64*1024*1024)

	alloc := NewAllocator(meta)
	clock := core.FrozenClock{At: time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC)}
	inj := NewInjector(w, meta, alloc, clock)

	require.NoError(t, inj.SetRootContext())
	require.NoError(t, inj.WriteFile("hello.txt", []byte("hello, ext4"), core.FileAttributes{}))
	require.NoError(t, inj.WriteDir("sub", core.FileAttributes{}))
	require.NoError(t, inj.WriteFile("nested.bin", []byte{9, 8, 7}, core.FileAttributes{}))
	require.NoError(t, inj.FlushCurrent())
	require.NoError(t, inj.Flush())

	res := NewResolver(w, meta)
	node, err := res.Resolve("/hello.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("hello, ext4"), node.Content)

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

func TestExt4RootAndLostFoundSeeded(t *testing.T) {
	meta, w := buildImage(t, 64*1024*1024)

	buf := make([]byte, inodeSize)
	require.NoError(t, w.ReadAt(meta.InodeOffset(rootInode), buf))
	root, err := decodeInode(buf)
	require.NoError(t, err)
	require.True(t, root.isDir())
	require.Len(t, root.extents, 1)
	require.Equal(t, uint16(1), root.extents[0].length)

	require.NoError(t, w.ReadAt(meta.InodeOffset(lostFoundInode), buf))
	lf, err := decodeInode(buf)
	require.NoError(t, err)
	require.True(t, lf.isDir())
	require.Equal(t, uint16(0o700), lf.mode&0xFFF)
}

func TestExt4BackupSuperblockMatchesPrimary(t *testing.T) {
	meta, w := buildImage(t, 64*1024*1024)
	require.Greater(t, meta.GroupCount(), uint32(3), "image must be large enough to contain group 3")
	require.True(t, isSparseSuperGroup(3))

	primary := make([]byte, superblockSize)
	require.NoError(t, w.ReadAt(meta.OffsetOf(0)+superblockOffset, primary))

	layout3 := meta.GroupLayoutAt(3)
	backup := make([]byte, superblockSize)
	require.NoError(t, w.ReadAt(meta.OffsetOf(layout3.GroupStart), backup))
	require.Equal(t, primary, backup)

	bgdtSize := int64(meta.GroupCount()) * int64(groupDescriptorSize)
	layout0 := meta.GroupLayoutAt(0)
	primaryBGDT := make([]byte, bgdtSize)
	require.NoError(t, w.ReadAt(meta.OffsetOf(layout0.GroupStart+1), primaryBGDT))
	backupBGDT := make([]byte, bgdtSize)
	require.NoError(t, w.ReadAt(meta.OffsetOf(layout3.GroupStart+1), backupBGDT))
	require.Equal(t, primaryBGDT, backupBGDT)

	chk := NewChecker(w, meta)
	report, err := chk.Check(filesystem.Options{Phases: filesystem.PhaseBoot | filesystem.PhaseRoot})
	require.NoError(t, err)
	require.False(t, report.HasError(), "%+v", report.Findings)
}

func TestExt4SingleExtentFileInode(t *testing.T) {
	meta, w := buildImage(t, 64*1024*1024)
	alloc := NewAllocator(meta)
	clock := core.FrozenClock{At: time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC)}
	inj := NewInjector(w, meta, alloc, clock)

	require.NoError(t, inj.SetRootContext())
	content := make([]byte, 10000) // spans multiple blocks, contiguous
	for i := range content {
		content[i] = byte(i)
	}
	require.NoError(t, inj.WriteFile("big.bin", content, core.FileAttributes{}))
	require.NoError(t, inj.Flush())

	node, err := NewResolver(w, meta).Resolve("/big.bin")
	require.NoError(t, err)
	require.Equal(t, content, node.Content)

	entries, err := (&Resolver{meta: meta, r: w}).readDir(rootInode)
	require.NoError(t, err)
	var fileIno uint32
	for _, e := range entries {
		if e.name == "big.bin" {
			fileIno = e.inode
		}
	}
	require.NotZero(t, fileIno)

	buf := make([]byte, inodeSize)
	require.NoError(t, w.ReadAt(meta.InodeOffset(fileIno), buf))
	fileInode, err := decodeInode(buf)
	require.NoError(t, err)
	require.Len(t, fileInode.extents, 1)
	require.Equal(t, uint32(0), fileInode.extents[0].logicalBlock)
}
