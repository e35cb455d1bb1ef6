package core

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
)

// alignmentBucket classifies a write's starting offset by the largest
// power-of-two it is aligned to, capped at 1MiB. Used by CountingBlockIO to
// build a histogram a reviewer can eyeball for "is this writer streaming in
// aligned chunks or scattering small writes".
func alignmentBucket(offset int64) int64 {
	const cap = 1 << 20
	if offset == 0 {
		return cap
	}
	bucket := int64(1)
	for bucket < cap && offset%(bucket<<1) == 0 {
		bucket <<= 1
	}
	return bucket
}

// CountingBlockIO wraps another BlockIO and records byte totals and an
// alignment-bucket histogram of writes, per spec.md §4.1's "counting
// wrapper" variant. It is used to measure a Formatter's full-zero pass or an
// Injector's streaming writes without changing their code.
type CountingBlockIO struct {
	BlockIO
	BytesRead    int64
	BytesWritten int64
	WriteCount   int64
	buckets      map[int64]int64
}

// NewCountingBlockIO wraps inner for measurement.
func NewCountingBlockIO(inner BlockIO) *CountingBlockIO {
	return &CountingBlockIO{BlockIO: inner, buckets: make(map[int64]int64)}
}

func (c *CountingBlockIO) ReadAt(offset int64, buf []byte) error {
	err := c.BlockIO.ReadAt(offset, buf)
	if err == nil {
		c.BytesRead += int64(len(buf))
	}
	return err
}

func (c *CountingBlockIO) WriteAt(offset int64, data []byte) error {
	err := c.BlockIO.WriteAt(offset, data)
	if err == nil {
		c.BytesWritten += int64(len(data))
		c.WriteCount++
		c.buckets[alignmentBucket(offset)]++
	}
	return err
}

func (c *CountingBlockIO) ZeroFill(offset int64, length int64) error {
	err := c.BlockIO.ZeroFill(offset, length)
	if err == nil {
		c.BytesWritten += length
		c.WriteCount++
		c.buckets[alignmentBucket(offset)]++
	}
	return err
}

// Histogram returns the alignment-bucket counts sorted by bucket size.
func (c *CountingBlockIO) Histogram() []struct {
	Bucket int64
	Count  int64
} {
	keys := make([]int64, 0, len(c.buckets))
	for k := range c.buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([]struct {
		Bucket int64
		Count  int64
	}, len(keys))
	for i, k := range keys {
		out[i] = struct {
			Bucket int64
			Count  int64
		}{Bucket: k, Count: c.buckets[k]}
	}
	return out
}

// Summary renders a human-readable one-line report, e.g. for CLI -v output.
func (c *CountingBlockIO) Summary() string {
	return fmt.Sprintf("read=%s written=%s writes=%d",
		humanize.Bytes(uint64(c.BytesRead)), humanize.Bytes(uint64(c.BytesWritten)), c.WriteCount)
}
