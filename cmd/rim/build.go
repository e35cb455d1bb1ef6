package main

import (
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/imgforge/rim/core"
	"github.com/imgforge/rim/image"
	"github.com/imgforge/rim/manifest"
	"github.com/imgforge/rim/partition"
	"github.com/imgforge/rim/partition/gpt"
)

func newBuildCmd() *cobra.Command {
	var layoutPath, outputPath string
	var dryRun, truncateImage bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "build a raw disk image from a layout manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			setVerbosity(cmd)
			return runBuild(layoutPath, outputPath, dryRun, truncateImage)
		},
	}
	cmd.Flags().StringVar(&layoutPath, "layout", "", "path to the layout manifest")
	cmd.Flags().StringVar(&outputPath, "output", "", "path to write the built image")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "resolve and log the plan without writing an image")
	cmd.Flags().BoolVar(&truncateImage, "truncate", false, "shrink the image to its used extent after building")
	_ = cmd.MarkFlagRequired("layout")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func runBuild(layoutPath, outputPath string, dryRun, truncateImage bool) error {
	log := logrus.WithField("cmd", "build")

	m, err := manifest.Load(layoutPath)
	if err != nil {
		return err
	}
	resolved, err := m.Resolve()
	if err != nil {
		return err
	}
	plan, totalSectors := planLayout(resolved)
	log.WithField("partitions", len(plan)).WithField("total_sectors", totalSectors).Info("resolved layout")

	if dryRun {
		logPlan(plan, log)
		return nil
	}

	tmpPath := outputPath + ".rim-tmp"
	handle, err := image.CreateImage(tmpPath, int64(totalSectors)*gpt.SectorSize)
	if err != nil {
		return err
	}

	if err := buildInto(handle, plan, totalSectors, truncateImage, log); err != nil {
		_ = handle.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	finalTmpPath, err := finalizeContainer(handle, tmpPath, outputPath, core.SystemClock{})
	if err != nil {
		return err
	}
	if err := os.Rename(finalTmpPath, outputPath); err != nil {
		return core.ErrIO("rename built image to output path", err)
	}
	log.WithField("output", outputPath).Info("build complete")
	return nil
}

func logPlan(plan []plannedPartition, log *logrus.Entry) {
	for _, p := range plan {
		log.WithField("name", p.entry.Name).
			WithField("fs", string(p.resolved.Spec.FS)).
			WithField("first_lba", p.entry.FirstLBA).
			WithField("last_lba", p.entry.LastLBA).
			Info("planned partition")
	}
}

// buildInto writes the partition table and every partition's filesystem
// into handle. The caller owns closing handle and renaming or removing the
// temp file depending on the outcome.
func buildInto(handle *image.Handle, plan []plannedPartition, totalSectors uint64, truncateImage bool, log *logrus.Entry) error {
	table := gpt.NewTable(uuid.New())
	for _, p := range plan {
		table.Partitions = append(table.Partitions, p.entry)
	}
	if err := partition.Build(handle, table, totalSectors); err != nil {
		return err
	}

	clock := core.SystemClock{}
	for _, p := range plan {
		size := int64(p.entry.LastLBA-p.entry.FirstLBA+1) * gpt.SectorSize
		view := core.View(handle, int64(p.entry.FirstLBA)*gpt.SectorSize, size)
		if err := formatPartition(view, p, clock, true, log); err != nil {
			return err
		}
	}

	if !truncateImage {
		return nil
	}
	entries := make([]gpt.Entry, len(plan))
	for i, p := range plan {
		entries[i] = p.entry
	}
	report, err := partition.Truncate(handle, entries, gpt.SectorSize)
	if err != nil {
		return err
	}
	if report != nil {
		log.WithField("saved_bytes", report.SavedBytes).Info("truncated image to used extent")
	}
	return nil
}
