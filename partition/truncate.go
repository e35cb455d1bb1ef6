package partition

import (
	"github.com/imgforge/rim/core"
	"github.com/imgforge/rim/partition/gpt"
)

// TruncateReport summarizes a Truncate call, per spec.md §4.8/Scenario F.
type TruncateReport struct {
	TotalBytes uint64
	UsedBytes  uint64
	SavedBytes uint64
}

// Truncate finds the highest LastLBA across partitions and shrinks w to
// hold exactly that many sectors, per spec.md §4.8's "find max last_lba
// across entries; trim backing store to (max+1) * sector_size". Ported from
// original_source/rimpart/src/utils.rs's truncate_image_custom_sector.
// Returns nil, nil when partitions is empty - there is nothing to trim to.
func Truncate(w core.BlockIO, partitions []gpt.Entry, sectorSize int64) (*TruncateReport, error) {
	if len(partitions) == 0 {
		return nil, nil
	}
	var maxLastLBA uint64
	for i, p := range partitions {
		if i == 0 || p.LastLBA > maxLastLBA {
			maxLastLBA = p.LastLBA
		}
	}
	usedBytes := (maxLastLBA + 1) * uint64(sectorSize)
	totalBytes := uint64(w.Len())
	var savedBytes uint64
	if totalBytes > usedBytes {
		savedBytes = totalBytes - usedBytes
	}

	if err := w.SetLen(int64(usedBytes)); err != nil {
		return nil, err
	}
	return &TruncateReport{TotalBytes: totalBytes, UsedBytes: usedBytes, SavedBytes: savedBytes}, nil
}
