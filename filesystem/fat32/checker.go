package fat32

import (
	"encoding/binary"

	"github.com/imgforge/rim/core"
	"github.com/imgforge/rim/filesystem"
	"github.com/imgforge/rim/filesystem/fatchain"
)

// Checker performs phase-ordered structural verification of a FAT32
// filesystem, per spec.md §4.6.
type Checker struct {
	meta *Meta
	r    core.BlockIO
}

// NewChecker builds a Checker reading through r using meta's geometry.
func NewChecker(r core.BlockIO, meta *Meta) *Checker {
	return &Checker{meta: meta, r: r}
}

// Check runs the selected phases and returns the accumulated Report.
func (c *Checker) Check(opts filesystem.Options) (filesystem.Report, error) {
	phases := opts.Phases
	if phases == 0 {
		phases = filesystem.PhaseAll
	}
	var report filesystem.Report

	if phases&filesystem.PhaseBoot != 0 {
		if err := c.checkBoot(&report); err != nil {
			if opts.FailFast {
				return report, err
			}
			c.addError(&report, filesystem.PhaseBoot, "boot-read-failed", err.Error())
		}
	}
	if phases&filesystem.PhaseGeometry != 0 {
		c.checkGeometry(&report)
	}

	visited := make(map[uint32]int)
	if phases&(filesystem.PhaseChain|filesystem.PhaseRoot|filesystem.PhaseCrossref|filesystem.PhaseContent) != 0 {
		if err := c.walkTree(&report, phases, visited); err != nil {
			if opts.FailFast {
				return report, err
			}
			c.addError(&report, filesystem.PhaseChain, "walk-failed", err.Error())
		}
	}

	if phases&filesystem.PhaseCrossref != 0 {
		c.checkOrphans(&report, visited)
	}

	return report, nil
}

func (c *Checker) addError(r *filesystem.Report, phase filesystem.Phase, code, msg string) {
	r.Findings = append(r.Findings, filesystem.Finding{Severity: filesystem.SeverityError, Phase: phase, Code: code, Message: msg})
}

func (c *Checker) addWarn(r *filesystem.Report, phase filesystem.Phase, code, msg string) {
	r.Findings = append(r.Findings, filesystem.Finding{Severity: filesystem.SeverityWarn, Phase: phase, Code: code, Message: msg})
}

// checkBoot verifies the primary VBR's signatures and that the backup VBR
// is byte-identical to it, per spec.md §4.6.
func (c *Checker) checkBoot(report *filesystem.Report) error {
	var primary vbr
	if err := core.ReadStruct(c.r, 0, 512, &primary); err != nil {
		return err
	}
	if primary.BootSignature != vbrBootSignature {
		c.addError(report, filesystem.PhaseBoot, "bad-boot-signature", "VBR boot signature is not 0xAA55")
	}

	var backup vbr
	if err := core.ReadStruct(c.r, c.meta.backupVBROffset(), 512, &backup); err != nil {
		return err
	}
	if primary != backup {
		c.addError(report, filesystem.PhaseBoot, "backup-vbr-mismatch", "backup VBR does not match primary VBR")
	}

	var info fsInfoSector
	if err := core.ReadStruct(c.r, bytesPerSector, 512, &info); err != nil {
		return err
	}
	if info.LeadSignature != vbrLeadSignature || info.StructSignature != vbrStructSignature || info.TrailSignature != vbrTrailSignature {
		c.addError(report, filesystem.PhaseBoot, "bad-fsinfo-signature", "FSINFO sector signatures invalid")
	}
	return nil
}

// checkGeometry verifies the two FAT copies agree entry-for-entry over the
// addressable cluster range.
func (c *Checker) checkGeometry(report *filesystem.Report) {
	offsets := c.meta.fatOffsets()
	if len(offsets) < 2 {
		return
	}
	bufA := make([]byte, fatEntrySize)
	bufB := make([]byte, fatEntrySize)
	for cl := c.meta.FirstDataUnit(); cl <= c.meta.LastDataUnit(); cl++ {
		entryOff := c.meta.entryOffset(cl)
		if err := c.r.ReadAt(offsets[0]+entryOff, bufA); err != nil {
			c.addError(report, filesystem.PhaseGeometry, "fat-read-failed", err.Error())
			return
		}
		if err := c.r.ReadAt(offsets[1]+entryOff, bufB); err != nil {
			c.addError(report, filesystem.PhaseGeometry, "fat-read-failed", err.Error())
			return
		}
		if binary.LittleEndian.Uint32(bufA)&entryMask != binary.LittleEndian.Uint32(bufB)&entryMask {
			c.addError(report, filesystem.PhaseGeometry, "fat-copy-mismatch", "FAT copies disagree at a data cluster")
			return
		}
	}
}

// walkTree recursively descends from the root directory, validating chains
// (PhaseChain), directory-entry structure (PhaseRoot covers the root;
// ordinary directories are covered implicitly), content size bounds
// (PhaseContent), and recording visited clusters for PhaseCrossref.
func (c *Checker) walkTree(report *filesystem.Report, phases filesystem.Phase, visited map[uint32]int) error {
	return c.walkDir(report, phases, c.meta.RootUnit(), visited, true)
}

func (c *Checker) walkDir(report *filesystem.Report, phases filesystem.Phase, cluster uint32, visited map[uint32]int, isRoot bool) error {
	chain, err := fatchain.ReadChain(c.r, chainParams(), c.meta.fatOffset(0), c.meta.entryOffset, cluster, c.meta.TotalUnits()+1)
	if err != nil {
		if phases&filesystem.PhaseChain != 0 {
			c.addError(report, filesystem.PhaseChain, "chain-read-failed", err.Error())
		}
		return nil
	}
	c.markVisited(report, phases, chain, visited)

	buf := make([]byte, 0, int64(len(chain))*c.meta.UnitSize())
	for _, cl := range chain {
		unit := make([]byte, c.meta.UnitSize())
		if err := c.r.ReadAt(c.meta.OffsetOf(cl), unit); err != nil {
			return err
		}
		buf = append(buf, unit...)
	}
	entries := parseDirEntries(buf)

	if isRoot && phases&filesystem.PhaseRoot != 0 {
		if cluster != rootCluster {
			c.addError(report, filesystem.PhaseRoot, "bad-root-cluster", "root directory does not start at cluster 2")
		}
	}

	for _, e := range entries {
		report.FilesWalked++
		report.BytesWalked += int64(e.Size)

		if phases&filesystem.PhaseContent != 0 && !e.IsDir {
			needed := core.UnitsForLength(int64(e.Size), c.meta.UnitSize())
			if needed > 0 {
				fileChain, err := fatchain.ReadChain(c.r, chainParams(), c.meta.fatOffset(0), c.meta.entryOffset, e.Cluster, c.meta.TotalUnits()+1)
				if err != nil {
					c.addError(report, filesystem.PhaseContent, "file-chain-read-failed", err.Error())
					continue
				}
				c.markVisited(report, phases, fileChain, visited)
				if int64(len(fileChain)) < needed {
					c.addError(report, filesystem.PhaseContent, "short-chain", "file chain shorter than its declared size")
				}
			}
		}

		if e.IsDir && e.Cluster >= c.meta.FirstDataUnit() {
			if err := c.walkDir(report, phases, e.Cluster, visited, false); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Checker) markVisited(report *filesystem.Report, phases filesystem.Phase, chain []uint32, visited map[uint32]int) {
	for _, cl := range chain {
		visited[cl]++
		if phases&filesystem.PhaseCrossref != 0 && visited[cl] == 2 {
			c.addError(report, filesystem.PhaseCrossref, "cross-linked-cluster", "cluster is referenced by more than one chain")
		}
	}
}

// checkOrphans scans the data region for clusters the FAT marks allocated
// (a nonzero entry) that the tree walk never visited.
func (c *Checker) checkOrphans(report *filesystem.Report, visited map[uint32]int) {
	offset := c.meta.fatOffset(0)
	buf := make([]byte, fatEntrySize)
	for cl := c.meta.FirstDataUnit(); cl <= c.meta.LastDataUnit(); cl++ {
		if err := c.r.ReadAt(offset+c.meta.entryOffset(cl), buf); err != nil {
			return
		}
		if binary.LittleEndian.Uint32(buf)&entryMask == 0 {
			continue
		}
		if visited[cl] == 0 {
			report.OrphanCount++
		}
	}
}
