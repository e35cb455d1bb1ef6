// Package filesystem declares the capability-set interfaces shared by every
// on-disk format family this module supports (FAT32, exFAT, ext4): Meta,
// Allocator, Formatter, Injector, Checker, Resolver. Concrete
// implementations live in the fat32, exfat, and ext4 subpackages; this
// package is composition glue, not an inheritance root (spec.md §9).
package filesystem

import (
	"github.com/imgforge/rim/core"
)

// Type identifies which on-disk format family a component implements.
type Type int

const (
	// TypeFAT32 is the FAT32 family.
	TypeFAT32 Type = iota
	// TypeExFAT is the exFAT family.
	TypeExFAT
	// TypeExt4 is the ext4 family.
	TypeExt4
)

func (t Type) String() string {
	switch t {
	case TypeFAT32:
		return "fat32"
	case TypeExFAT:
		return "exfat"
	case TypeExt4:
		return "ext4"
	default:
		return "unknown"
	}
}

// Handle is the per-filesystem allocation handle: a first-unit identifier
// plus the ordered chain of allocated unit identifiers, per spec.md §3.
// Invariant: First == Chain[0]; Chain has no duplicates; every element lies
// within the data region of the owning Meta.
type Handle struct {
	First uint32
	Chain []uint32
}

// Meta answers static geometry questions for one filesystem instance, frozen
// at construction. Implementations: fat32.Meta, exfat.Meta, ext4.Meta.
type Meta interface {
	// Type identifies the filesystem family.
	Type() Type
	// UnitSize is the cluster (FAT32/exFAT) or block (ext4) size in bytes.
	UnitSize() int64
	// OffsetOf returns the absolute byte offset of the given unit.
	OffsetOf(unit uint32) int64
	// FirstDataUnit and LastDataUnit bound the allocatable range, inclusive.
	FirstDataUnit() uint32
	LastDataUnit() uint32
	// TotalUnits is the total number of addressable units.
	TotalUnits() uint32
	// RootUnit is the unit holding the root directory/inode.
	RootUnit() uint32
	// VolumeID is the deterministic volume identifier derived at construction.
	VolumeID() uint32
}

// Allocator reserves units from a Meta's data region and returns ordered
// handles. Policy is monotonic append-only per spec.md §4.3: it never
// reclaims and never interleaves within a single build pass.
type Allocator interface {
	// AllocateChain reserves count consecutive units starting at the
	// cursor. Fails with core.ErrOutOfBlocks if the cursor would exceed
	// the Meta's last data unit.
	AllocateChain(count int) (Handle, error)
	// AllocateUnit is shorthand for AllocateChain(1).
	AllocateUnit() (Handle, error)
	// UsedUnits is the count of units allocated so far.
	UsedUnits() uint32
	// RemainingUnits is the count of units left before exhaustion.
	RemainingUnits() uint32
}

// Formatter writes the fixed on-disk regions of an empty, valid filesystem.
type Formatter interface {
	// Format writes boot/superblock structures, FAT/bitmap/BGDT regions,
	// and the seeded root directory. When full is true the entire image is
	// zero-filled first.
	Format(full bool) error
}

// Injector walks a logical tree and writes file data plus directory
// entries, using a stack-based context with no deferred pending state
// (spec.md §4.5).
type Injector interface {
	// SetRootContext pushes a context for the root directory, seeding its
	// buffer with any pre-existing on-disk root entries.
	SetRootContext() error
	// WriteDir allocates the child directory's first unit, builds its
	// in-memory buffer, appends its directory entry into the current
	// parent's buffer, and pushes the child context.
	WriteDir(name string, attr core.FileAttributes) error
	// WriteFile allocates exactly enough units for content, streams it in,
	// and appends the file entry into the current directory's buffer.
	WriteFile(name string, content []byte, attr core.FileAttributes) error
	// FlushCurrent pops the top context and writes its buffer to its
	// reserved units, patching directory-specific trailer invariants.
	FlushCurrent() error
	// Flush drains the remaining open-directory stack.
	Flush() error
}

// Severity classifies a Checker Finding.
type Severity int

const (
	// SeverityInfo is a purely informational finding.
	SeverityInfo Severity = iota
	// SeverityWarn is a non-fatal anomaly.
	SeverityWarn
	// SeverityError is a structural violation.
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "Info"
	case SeverityWarn:
		return "Warn"
	default:
		return "Error"
	}
}

// Phase is a bitflag identifying which verification stage produced a
// Finding, per spec.md §4.6.
type Phase uint32

const (
	PhaseBoot Phase = 1 << iota
	PhaseGeometry
	PhaseChain
	PhaseRoot
	PhaseCrossref
	PhaseContent
	PhaseCustom

	PhaseAll = PhaseBoot | PhaseGeometry | PhaseChain | PhaseRoot | PhaseCrossref | PhaseContent | PhaseCustom
)

// Finding is a single structured checker report item.
type Finding struct {
	Severity Severity
	Phase    Phase
	Code     string
	Message  string
}

// Report is the accumulated result of a Checker run: the Finding log plus
// summary statistics (files/bytes walked, orphan count), per
// original_source/rimfs/src/core/checker/stats.rs.
type Report struct {
	Findings     []Finding
	FilesWalked  int
	BytesWalked  int64
	OrphanCount  int
}

// HasError reports whether any Finding carries SeverityError.
func (r Report) HasError() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Options configures a Checker run.
type Options struct {
	// Phases selects which bits of Phase to run; zero means PhaseAll.
	Phases Phase
	// FailFast makes Check return as soon as a phase itself fails with an
	// error (e.g. an I/O failure reading the boot sector or walking the
	// tree), returning that error. Without it such a failure is recorded as
	// a SeverityError finding and the run goes on. Error findings that a
	// phase records do not stop the run in either case.
	FailFast bool
}

// Checker performs phase-ordered structural verification, appending findings
// rather than failing outright; see Options.FailFast for the one case in
// which Check returns an error.
type Checker interface {
	// Check runs the selected phases and returns the accumulated Report.
	// It returns a non-nil error only when FailFast is set and a phase fails
	// with an error; structural problems are recorded as Findings.
	Check(opts Options) (Report, error)
}

// Resolver reverses an on-disk filesystem into a logical core.Node tree.
type Resolver interface {
	// Resolve returns the Node at path. A trailing "/*" wildcard resolves
	// to a core.NodeContainer whose children are the directory's entries.
	Resolve(path string) (*core.Node, error)
}
