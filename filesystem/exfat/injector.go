package exfat

import (
	"github.com/imgforge/rim/core"
	"github.com/imgforge/rim/filesystem"
	"github.com/imgforge/rim/filesystem/fatchain"
	"github.com/imgforge/rim/util/bitmap"
	"github.com/sirupsen/logrus"
)

// dirContext is one open-directory frame of the Injector's stack, per
// spec.md §4.5/§9.
type dirContext struct {
	handle filesystem.Handle
	buf    *dirBuffer
}

// Injector walks a logical tree and writes exFAT directory entry sets and
// file data, per spec.md §4.5.
type Injector struct {
	meta  *Meta
	alloc *Allocator
	w     core.BlockIO
	clock core.Clock
	stack []*dirContext
	log   *logrus.Entry
}

// NewInjector builds an Injector writing through w using meta/alloc.
func NewInjector(w core.BlockIO, meta *Meta, alloc *Allocator, clock core.Clock) *Injector {
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &Injector{meta: meta, alloc: alloc, w: w, clock: clock, log: logrus.WithField("fs", "exfat")}
}

func (inj *Injector) top() *dirContext { return inj.stack[len(inj.stack)-1] }

// SetRootContext pushes a context for the root directory, loading its
// existing raw bytes so the bitmap/upcase/label entries the Formatter
// seeded survive alongside newly appended file entries.
func (inj *Injector) SetRootContext() error {
	raw := make([]byte, inj.meta.UnitSize())
	if err := inj.w.ReadAt(inj.meta.OffsetOf(rootCluster), raw); err != nil {
		return err
	}
	buf := newDirBuffer()
	buf.raw = existingEntryBytes(raw)
	inj.stack = []*dirContext{{
		handle: filesystem.Handle{First: rootCluster, Chain: []uint32{rootCluster}},
		buf:    buf,
	}}
	return nil
}

// existingEntryBytes trims a raw directory cluster buffer to the bytes
// preceding the first unused (0x00) entry.
func existingEntryBytes(raw []byte) []byte {
	for off := 0; off+entrySize <= len(raw); off += entrySize {
		if raw[off] == 0x00 {
			return append([]byte{}, raw[:off]...)
		}
	}
	return append([]byte{}, raw...)
}

// WriteDir allocates the child directory's first cluster, appends its
// entry set into the parent's buffer, and pushes the child context.
func (inj *Injector) WriteDir(name string, attr core.FileAttributes) error {
	parent := inj.top()
	handle, err := inj.alloc.AllocateUnit()
	if err != nil {
		return err
	}
	if err := inj.commitChain(handle.Chain); err != nil {
		return err
	}

	now := inj.clock.Now()
	parent.buf.appendEntry(name, handle.First, 0, true, attr, now)

	inj.stack = append(inj.stack, &dirContext{handle: handle, buf: newDirBuffer()})
	return nil
}

// WriteFile allocates exactly enough clusters for content, streams it in,
// and appends the file entry set into the current directory's buffer.
func (inj *Injector) WriteFile(name string, content []byte, attr core.FileAttributes) error {
	unitCount := core.UnitsForLength(int64(len(content)), inj.meta.UnitSize())
	var first uint32
	if unitCount > 0 {
		handle, err := inj.alloc.AllocateChain(int(unitCount))
		if err != nil {
			return err
		}
		if err := inj.commitChain(handle.Chain); err != nil {
			return err
		}
		if err := core.StreamWriteUnits(inj.w, handle.Chain, inj.meta.UnitSize(), content, inj.meta.OffsetOf); err != nil {
			return err
		}
		first = handle.First
	}
	inj.top().buf.appendEntry(name, first, uint64(len(content)), false, attr, inj.clock.Now())
	return nil
}

// FlushCurrent pops the top context and writes its buffer to its reserved
// units, growing the chain if the buffer outgrew them.
func (inj *Injector) FlushCurrent() error {
	n := len(inj.stack)
	if n == 0 {
		return core.ErrInvalid("no open directory context to flush")
	}
	ctx := inj.stack[n-1]
	inj.stack = inj.stack[:n-1]

	bytes := ctx.buf.toBytes(inj.meta.UnitSize())
	neededUnits := int(int64(len(bytes)) / inj.meta.UnitSize())

	if neededUnits > len(ctx.handle.Chain) {
		extra, err := inj.alloc.AllocateChain(neededUnits - len(ctx.handle.Chain))
		if err != nil {
			return err
		}
		ctx.handle.Chain = append(ctx.handle.Chain, extra.Chain...)
		if err := inj.commitChain(ctx.handle.Chain); err != nil {
			return err
		}
	}

	return core.StreamWriteUnits(inj.w, ctx.handle.Chain, inj.meta.UnitSize(), bytes, inj.meta.OffsetOf)
}

// Flush drains the remaining open-directory stack, innermost first.
func (inj *Injector) Flush() error {
	for len(inj.stack) > 0 {
		if err := inj.FlushCurrent(); err != nil {
			return err
		}
	}
	return nil
}

// commitChain writes a newly (or further) allocated chain's FAT entries and
// marks its clusters used in the on-disk allocation bitmap.
func (inj *Injector) commitChain(chain []uint32) error {
	if err := fatchain.WriteChain(inj.w, chainParams(), chain, []int64{inj.meta.fatOffset()}, inj.meta.entryOffset); err != nil {
		return err
	}
	return inj.markBitmapUsed(chain)
}

// markBitmapUsed sets the bits for chain's clusters in the on-disk
// allocation bitmap via a read-modify-write over the whole bitmap region,
// reusing the teacher's bitmap utility for the bit arithmetic.
func (inj *Injector) markBitmapUsed(chain []uint32) error {
	length := inj.meta.BitmapLengthBytes()
	buf := make([]byte, length)
	if err := inj.w.ReadAt(inj.meta.OffsetOf(inj.meta.BitmapCluster()), buf); err != nil {
		return err
	}
	bm := bitmap.FromBytes(buf)
	for _, cl := range chain {
		if err := bm.Set(int(cl - rootCluster)); err != nil {
			return core.ErrInvalid("mark cluster used: " + err.Error())
		}
	}
	return inj.w.WriteAt(inj.meta.OffsetOf(inj.meta.BitmapCluster()), bm.ToBytes())
}
