package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "layout.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAndResolve(t *testing.T) {
	dir := t.TempDir()
	payload := filepath.Join(dir, "rootfs")
	require.NoError(t, os.MkdirAll(payload, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(payload, "a.bin"), make([]byte, 1<<20), 0o644))

	path := writeManifest(t, dir, `
partitions:
  - name: esp
    kind: esp
    size: 64M
    fs: fat32
    bootable: true
    mountpoint: /boot/efi
    label: EFI
  - name: rootfs
    kind: linux
    size: auto
    fs: ext4
    payload: `+payload+`
    label: rootfs
`)

	m, err := Load(path)
	require.NoError(t, err)
	require.Len(t, m.Partitions, 2)

	resolved, err := m.Resolve()
	require.NoError(t, err)
	require.Len(t, resolved, 2)

	require.Equal(t, int64(64<<20), resolved[0].SizeBytes)
	require.Equal(t, FSFAT32, resolved[0].Spec.FS)

	// 1MiB payload * 1.1 is well under the 64MiB floor.
	require.Equal(t, int64(64<<20), resolved[1].SizeBytes)
	require.Equal(t, FSExt4, resolved[1].Spec.FS)
	require.NotEqual(t, resolved[0].UniqueGUID, resolved[1].UniqueGUID)
}

func TestResolveAutoAboveFloor(t *testing.T) {
	dir := t.TempDir()
	payload := filepath.Join(dir, "big")
	require.NoError(t, os.MkdirAll(payload, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(payload, "big.bin"), make([]byte, 100<<20), 0o644))

	path := writeManifest(t, dir, `
partitions:
  - name: data
    kind: data
    size: auto
    fs: ext4
    payload: `+payload+`
`)
	m, err := Load(path)
	require.NoError(t, err)
	resolved, err := m.Resolve()
	require.NoError(t, err)
	require.Equal(t, int64(float64(100<<20)*1.1), resolved[0].SizeBytes)
}

func TestLoadRejectsUnknownKindWithoutGUID(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `
partitions:
  - name: mystery
    kind: not-a-real-kind
    size: 1M
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsEmptyPartitionList(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "partitions: []\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestParseSize(t *testing.T) {
	cases := map[string]int64{
		"512":  512,
		"4K":   4 << 10,
		"64M":  64 << 20,
		"2G":   2 << 30,
		"100k": 100 << 10,
	}
	for in, want := range cases {
		got, err := parseSize(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}
