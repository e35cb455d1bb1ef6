package core_test

import (
	"testing"

	"github.com/imgforge/rim/core"
	"github.com/stretchr/testify/require"
)

func TestMemBlockIOReadWrite(t *testing.T) {
	m := core.NewMemBlockIO(1024)
	require.NoError(t, m.WriteAt(10, []byte("hello")))
	buf := make([]byte, 5)
	require.NoError(t, m.ReadAt(10, buf))
	require.Equal(t, "hello", string(buf))
}

func TestMemBlockIOOutOfBounds(t *testing.T) {
	m := core.NewMemBlockIO(10)
	err := m.WriteAt(8, []byte("abc"))
	require.ErrorIs(t, err, core.IsOutOfBounds)
}

func TestViewBounds(t *testing.T) {
	m := core.NewMemBlockIO(100)
	v := core.View(m, 10, 20)
	require.NoError(t, v.WriteAt(5, []byte("x")))
	err := v.WriteAt(19, []byte("xx"))
	require.ErrorIs(t, err, core.IsOutOfBounds)
	require.EqualValues(t, 10, v.PartitionOffset())
}

func TestWriteMultiAt(t *testing.T) {
	m := core.NewMemBlockIO(100)
	require.NoError(t, m.WriteMultiAt([]int64{0, 10, 20}, 4, []byte{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
	}))
	buf := make([]byte, 4)
	require.NoError(t, m.ReadAt(10, buf))
	require.Equal(t, []byte{5, 6, 7, 8}, buf)
}

func TestCountingBlockIO(t *testing.T) {
	m := core.NewMemBlockIO(1024)
	c := core.NewCountingBlockIO(m)
	require.NoError(t, c.WriteAt(0, make([]byte, 100)))
	require.EqualValues(t, 100, c.BytesWritten)
	require.NotEmpty(t, c.Summary())
}
