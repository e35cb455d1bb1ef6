// Package partition builds and scans a whole-disk protective-MBR+GPT
// layout, and provides the partition-payload copy step the manifest/image
// layer drives when laying a built filesystem image into its partition
// window. Grounded on original_source/rimpart/examples/gpt_example.rs
// (write-then-scan) and rimpart/src/utils.rs's detect/validate helpers, with
// the per-partition copy contract adapted from the teacher's
// part.Partition ReadContents/WriteContents split.
package partition

import (
	"io"

	"github.com/imgforge/rim/core"
	"github.com/imgforge/rim/partition/gpt"
	"github.com/imgforge/rim/partition/mbr"
	"github.com/imgforge/rim/partition/part"
)

// Build writes a protective MBR followed by the primary and backup GPT
// structures for table, over a BlockIO already sized to totalSectors *
// gpt.SectorSize bytes.
func Build(w core.BlockIO, table *gpt.Table, totalSectors uint64) error {
	if err := mbr.WriteProtective(w, totalSectors); err != nil {
		return err
	}
	return table.Write(w, totalSectors)
}

// Scan validates the protective MBR against the disk's actual sector count
// and returns the GPT partition table read back from w.
func Scan(w core.BlockIO) (*gpt.Table, error) {
	totalSectors := uint64(w.Len() / gpt.SectorSize)
	if err := mbr.ValidateProtective(w, totalSectors); err != nil {
		return nil, err
	}
	return gpt.Read(w)
}

// WritePayload copies exactly (entry.LastLBA-entry.FirstLBA+1)*sectorSize
// bytes from src into w at entry's partition window, returning
// part.IncompletePartitionWriteError if src yields fewer bytes than the
// partition holds.
func WritePayload(w core.BlockIO, entry gpt.Entry, sectorSize int64, src io.Reader) (uint64, error) {
	total := (entry.LastLBA - entry.FirstLBA + 1) * uint64(sectorSize)
	view := core.View(w, int64(entry.FirstLBA)*sectorSize, int64(total))

	buf := make([]byte, 1<<20)
	var written uint64
	for written < total {
		chunk := buf
		if remaining := total - written; remaining < uint64(len(chunk)) {
			chunk = chunk[:remaining]
		}
		n, err := io.ReadFull(src, chunk)
		if n > 0 {
			if werr := view.WriteAt(int64(written), chunk[:n]); werr != nil {
				return written, werr
			}
			written += uint64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return written, core.ErrIO("read partition payload", err)
		}
	}
	if written < total {
		return written, part.NewIncompletePartitionWriteError(written, total)
	}
	return written, nil
}
