package ext4

import (
	"bytes"

	"github.com/imgforge/rim/core"
	"github.com/imgforge/rim/filesystem"
)

// Checker performs phase-ordered structural verification of an ext4
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
		if err := c.checkSuperblocks(&report); err != nil {
			if opts.FailFast {
				return report, err
			}
			c.addError(&report, filesystem.PhaseBoot, "superblock-read-failed", err.Error())
		}
	}
	if phases&filesystem.PhaseRoot != 0 {
		c.checkRootAndLostFound(&report)
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

// checkSuperblocks verifies the primary superblock's magic and re-derives
// every sparse_super backup group's superblock+BGDT, comparing each for
// byte-identity with the primary, per spec.md §4.6.
func (c *Checker) checkSuperblocks(report *filesystem.Report) error {
	primary := make([]byte, superblockSize)
	if err := c.r.ReadAt(c.meta.OffsetOf(0)+superblockOffset, primary); err != nil {
		return err
	}
	if sbMagicAt(primary) != sbMagic {
		c.addError(report, filesystem.PhaseBoot, "bad-superblock-magic", "primary superblock magic is not 0xEF53")
	}

	layout0 := c.meta.computeGroupLayout(0)
	bgdtSize := int64(c.meta.groupCount) * int64(groupDescriptorSize)
	primaryBGDT := make([]byte, bgdtSize)
	if err := c.r.ReadAt(c.meta.OffsetOf(layout0.GroupStart+1), primaryBGDT); err != nil {
		return err
	}

	for g := uint32(1); g < c.meta.groupCount; g++ {
		if !isSparseSuperGroup(g) {
			continue
		}
		layout := c.meta.computeGroupLayout(g)

		backupSB := make([]byte, superblockSize)
		if err := c.r.ReadAt(c.meta.OffsetOf(layout.GroupStart), backupSB); err != nil {
			return err
		}
		if !bytes.Equal(primary, backupSB) {
			c.addError(report, filesystem.PhaseBoot, "backup-superblock-mismatch", "backup superblock does not match primary")
		}

		backupBGDT := make([]byte, bgdtSize)
		if err := c.r.ReadAt(c.meta.OffsetOf(layout.GroupStart+1), backupBGDT); err != nil {
			return err
		}
		if !bytes.Equal(primaryBGDT, backupBGDT) {
			c.addError(report, filesystem.PhaseBoot, "backup-bgdt-mismatch", "backup BGDT does not match primary")
		}
	}
	return nil
}

func sbMagicAt(sb []byte) uint16 {
	return uint16(sb[56]) | uint16(sb[57])<<8
}

// checkRootAndLostFound verifies inode 2 is a directory containing a
// lost+found entry and inode 11 exists with directory mode 0o40700.
func (c *Checker) checkRootAndLostFound(report *filesystem.Report) {
	root, err := c.readInode(rootInode)
	if err != nil {
		c.addError(report, filesystem.PhaseRoot, "root-inode-read-failed", err.Error())
		return
	}
	if !root.isDir() {
		c.addError(report, filesystem.PhaseRoot, "root-not-a-directory", "inode 2 is not a directory")
	}

	lf, err := c.readInode(lostFoundInode)
	if err != nil {
		c.addError(report, filesystem.PhaseRoot, "lost-found-read-failed", err.Error())
		return
	}
	if lf.mode&0xFFF != 0o700 {
		c.addError(report, filesystem.PhaseRoot, "lost-found-bad-mode", "lost+found inode mode is not 0o40700")
	}

	entries, err := c.readDirEntries(root)
	if err != nil {
		c.addError(report, filesystem.PhaseRoot, "root-content-read-failed", err.Error())
		return
	}
	found := false
	for _, e := range entries {
		if e.name == "lost+found" && e.inode == lostFoundInode {
			found = true
		}
	}
	if !found {
		c.addError(report, filesystem.PhaseRoot, "missing-lost-found-entry", "root directory has no lost+found entry")
	}
}

func (c *Checker) readInode(n uint32) (inode, error) {
	buf := make([]byte, inodeSize)
	if err := c.r.ReadAt(c.meta.InodeOffset(n), buf); err != nil {
		return inode{}, err
	}
	return decodeInode(buf)
}

func (c *Checker) readDirEntries(dir inode) ([]dirEntry, error) {
	var entries []dirEntry
	for _, block := range dir.chain() {
		buf := make([]byte, c.meta.blockSize)
		if err := c.r.ReadAt(c.meta.OffsetOf(block), buf); err != nil {
			return nil, err
		}
		blockEntries, err := decodeDirBlock(buf)
		if err != nil {
			return nil, err
		}
		entries = append(entries, blockEntries...)
	}
	return entries, nil
}

func (c *Checker) walkTree(report *filesystem.Report, phases filesystem.Phase, visited map[uint32]int) error {
	root, err := c.readInode(rootInode)
	if err != nil {
		c.addError(report, filesystem.PhaseChain, "root-inode-read-failed", err.Error())
		return nil
	}
	return c.walkDir(report, phases, root, visited)
}

func (c *Checker) walkDir(report *filesystem.Report, phases filesystem.Phase, dir inode, visited map[uint32]int) error {
	c.markVisited(report, phases, dir.chain(), visited)

	entries, err := c.readDirEntries(dir)
	if err != nil {
		c.addError(report, filesystem.PhaseChain, "directory-content-read-failed", err.Error())
		return nil
	}

	for _, e := range entries {
		if e.name == "." || e.name == ".." {
			continue
		}
		child, err := c.readInode(e.inode)
		if err != nil {
			c.addError(report, filesystem.PhaseChain, "inode-read-failed", err.Error())
			continue
		}

		report.FilesWalked++
		report.BytesWalked += int64(child.sizeLo)

		if phases&filesystem.PhaseContent != 0 && !child.isDir() {
			needed := core.UnitsForLength(int64(child.sizeLo), c.meta.UnitSize())
			if int64(len(child.chain())) < needed {
				c.addError(report, filesystem.PhaseContent, "short-extent", "file extent is shorter than its declared size")
			}
		}

		if child.isDir() {
			if err := c.walkDir(report, phases, child, visited); err != nil {
				return err
			}
		} else {
			c.markVisited(report, phases, child.chain(), visited)
		}
	}
	return nil
}

func (c *Checker) markVisited(report *filesystem.Report, phases filesystem.Phase, chain []uint32, visited map[uint32]int) {
	for _, b := range chain {
		visited[b]++
		if phases&filesystem.PhaseCrossref != 0 && visited[b] == 2 {
			c.addError(report, filesystem.PhaseCrossref, "cross-linked-block", "block is referenced by more than one extent")
		}
	}
}

// checkOrphans scans every group's block bitmap for blocks marked used
// that the tree walk never visited.
func (c *Checker) checkOrphans(report *filesystem.Report, visited map[uint32]int) {
	for g := uint32(0); g < c.meta.groupCount; g++ {
		layout := c.meta.computeGroupLayout(g)
		buf := make([]byte, c.meta.blockSize)
		if err := c.r.ReadAt(c.meta.OffsetOf(layout.BlockBitmapBlock), buf); err != nil {
			return
		}
		groupBlocks := c.meta.blocksPerGroup
		if g == c.meta.groupCount-1 {
			groupBlocks = c.meta.blockCount - layout.GroupStart
		}
		for rel := layout.FirstDataBlock - layout.GroupStart; rel < groupBlocks; rel++ {
			byteIdx, bit := rel/8, rel%8
			if int(byteIdx) >= len(buf) {
				break
			}
			if buf[byteIdx]&(1<<bit) == 0 {
				continue
			}
			block := layout.GroupStart + rel
			if visited[block] == 0 {
				report.OrphanCount++
			}
		}
	}
}
