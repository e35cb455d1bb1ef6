package exfat

import (
	"encoding/binary"

	"github.com/imgforge/rim/core"
	"github.com/imgforge/rim/filesystem"
	"github.com/imgforge/rim/filesystem/fatchain"
)

// Checker performs phase-ordered structural verification of an exFAT
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
	if phases&filesystem.PhaseRoot != 0 {
		c.checkRootReserved(&report)
	}

	visited := make(map[uint32]int)
	if phases&(filesystem.PhaseChain|filesystem.PhaseCrossref|filesystem.PhaseContent) != 0 {
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

// checkBoot verifies the main boot region's signature and that the backup
// boot region matches it, and re-derives the boot checksum.
func (c *Checker) checkBoot(report *filesystem.Report) error {
	main := make([]byte, mainBootSectors*sectorSize)
	if err := c.r.ReadAt(0, main); err != nil {
		return err
	}
	backup := make([]byte, mainBootSectors*sectorSize)
	if err := c.r.ReadAt(int64(mainBootSectors)*sectorSize, backup); err != nil {
		return err
	}

	if binary.LittleEndian.Uint16(main[510:512]) != 0xAA55 {
		c.addError(report, filesystem.PhaseBoot, "bad-boot-signature", "VBR boot signature is not 0xAA55")
	}
	if string(main[3:11]) != "EXFAT   " {
		c.addError(report, filesystem.PhaseBoot, "bad-filesystem-name", "VBR FileSystemName is not EXFAT")
	}

	gotChecksum := binary.LittleEndian.Uint32(main[11*sectorSize : 11*sectorSize+4])
	wantChecksum := core.ExFATVBRChecksum(main, sectorSize)
	if gotChecksum != wantChecksum {
		c.addError(report, filesystem.PhaseBoot, "bad-boot-checksum", "VBR checksum sector does not match computed checksum")
	}

	for i := 0; i < mainBootSectors*sectorSize; i++ {
		if i == 106 || i == 107 || i == 112 {
			continue
		}
		if main[i] != backup[i] {
			c.addError(report, filesystem.PhaseBoot, "backup-boot-mismatch", "backup boot region does not match primary")
			break
		}
	}
	return nil
}

// checkRootReserved verifies the root directory's first entries are the
// mandatory bitmap (0x81) and up-case table (0x82) entries.
func (c *Checker) checkRootReserved(report *filesystem.Report) {
	buf := make([]byte, c.meta.UnitSize())
	if err := c.r.ReadAt(c.meta.OffsetOf(rootCluster), buf); err != nil {
		c.addError(report, filesystem.PhaseRoot, "root-read-failed", err.Error())
		return
	}
	if len(buf) < entrySize*2 || buf[0] != entryTypeBitmap {
		c.addError(report, filesystem.PhaseRoot, "missing-bitmap-entry", "root directory does not start with a bitmap entry")
	}
	if len(buf) < entrySize*2 || buf[entrySize] != entryTypeUpcase {
		c.addError(report, filesystem.PhaseRoot, "missing-upcase-entry", "root directory's second entry is not the up-case table")
	}
}

func (c *Checker) walkTree(report *filesystem.Report, phases filesystem.Phase, visited map[uint32]int) error {
	return c.walkDir(report, phases, c.meta.RootUnit(), visited)
}

func (c *Checker) walkDir(report *filesystem.Report, phases filesystem.Phase, cluster uint32, visited map[uint32]int) error {
	chain, err := fatchain.ReadChain(c.r, chainParams(), c.meta.fatOffset(), c.meta.entryOffset, cluster, c.meta.TotalUnits()+1)
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
	entries := parseEntrySet(buf)

	for _, e := range entries {
		report.FilesWalked++
		report.BytesWalked += int64(e.Size)

		if phases&filesystem.PhaseContent != 0 && !e.IsDir {
			needed := core.UnitsForLength(int64(e.Size), c.meta.UnitSize())
			if needed > 0 {
				fileChain, err := fatchain.ReadChain(c.r, chainParams(), c.meta.fatOffset(), c.meta.entryOffset, e.Cluster, c.meta.TotalUnits()+1)
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
			if err := c.walkDir(report, phases, e.Cluster, visited); err != nil {
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

// checkOrphans scans the cluster heap for clusters the FAT marks allocated
// that the tree walk never visited, also excluding the bitmap/upcase
// clusters which are never part of the directory tree.
func (c *Checker) checkOrphans(report *filesystem.Report, visited map[uint32]int) {
	reserved := map[uint32]bool{c.meta.BitmapCluster(): true, c.meta.UpcaseCluster(): true}
	for i := int64(0); i < c.meta.bitmapClusters; i++ {
		reserved[c.meta.BitmapCluster()+uint32(i)] = true
	}
	for i := int64(0); i < c.meta.upcaseClusters; i++ {
		reserved[c.meta.UpcaseCluster()+uint32(i)] = true
	}

	offset := c.meta.fatOffset()
	buf := make([]byte, fatEntrySize)
	for cl := c.meta.FirstDataUnit(); cl <= c.meta.LastDataUnit(); cl++ {
		if reserved[cl] {
			continue
		}
		if err := c.r.ReadAt(offset+c.meta.entryOffset(cl), buf); err != nil {
			return
		}
		if binary.LittleEndian.Uint32(buf) == 0 {
			continue
		}
		if visited[cl] == 0 {
			report.OrphanCount++
		}
	}
}
