package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/imgforge/rim/core"
	"github.com/imgforge/rim/image"
	"github.com/imgforge/rim/manifest"
	"github.com/imgforge/rim/partition"
	"github.com/imgforge/rim/partition/gpt"
)

func newFlashCmd() *cobra.Command {
	var layoutPath, devicePath string
	var dryRun, noConfirm, noVerify bool

	cmd := &cobra.Command{
		Use:   "flash",
		Short: "write a disk image built from a layout manifest directly to a device",
		RunE: func(cmd *cobra.Command, args []string) error {
			setVerbosity(cmd)
			return runFlash(layoutPath, devicePath, dryRun, noConfirm, noVerify)
		},
	}
	cmd.Flags().StringVar(&layoutPath, "layout", "", "path to the layout manifest")
	cmd.Flags().StringVar(&devicePath, "device", "", "path to the target block device")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "resolve and log the plan without writing to the device")
	cmd.Flags().BoolVar(&noConfirm, "no-confirm", false, "skip the interactive confirmation prompt")
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "skip the structural checker after writing each filesystem")
	_ = cmd.MarkFlagRequired("layout")
	_ = cmd.MarkFlagRequired("device")
	return cmd
}

func runFlash(layoutPath, devicePath string, dryRun, noConfirm, noVerify bool) error {
	log := logrus.WithField("cmd", "flash")

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

	if !noConfirm {
		if err := confirmFlash(devicePath); err != nil {
			return err
		}
	}

	handle, err := image.OpenDevice(devicePath)
	if err != nil {
		return err
	}
	defer handle.Close()

	needed := int64(totalSectors) * gpt.SectorSize
	if handle.Len() < needed {
		return core.ErrInvalid(fmt.Sprintf("device %s (%d bytes) is smaller than the planned layout (%d bytes)", devicePath, handle.Len(), needed))
	}

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
		if err := formatPartition(view, p, clock, !noVerify, log); err != nil {
			return err
		}
	}

	if err := image.ReReadPartitionTable(handle); err != nil {
		return err
	}
	log.WithField("device", devicePath).Info("flash complete")
	return nil
}

func confirmFlash(devicePath string) error {
	fmt.Printf("This will overwrite all data on %s. Type \"yes\" to continue: ", devicePath)
	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	if strings.TrimSpace(answer) != "yes" {
		return core.ErrInvalid("flash aborted: confirmation not given")
	}
	return nil
}
