package main

import (
	"github.com/sirupsen/logrus"

	"github.com/imgforge/rim/core"
	"github.com/imgforge/rim/filesystem"
	"github.com/imgforge/rim/filesystem/exfat"
	"github.com/imgforge/rim/filesystem/ext4"
	"github.com/imgforge/rim/filesystem/fat32"
	"github.com/imgforge/rim/manifest"
)

// formatPartition formats view per the partition's fs kind, injects its
// payload tree when one is named, and, when verify is set, runs the
// structural checker and fails the build on any error-severity finding.
func formatPartition(view core.BlockIO, p plannedPartition, clock core.Clock, verify bool, log *logrus.Entry) error {
	spec := p.resolved.Spec
	flog := log.WithField("partition", spec.Name).WithField("fs", string(spec.FS))

	switch spec.FS {
	case manifest.FSNone:
		flog.Debug("raw partition, no filesystem to format")
		return nil

	case manifest.FSFAT32:
		meta, err := fat32.NewMeta(view.Len(), fat32.Options{Label: spec.Label})
		if err != nil {
			return err
		}
		if err := fat32.NewFormatter(view, meta, clock).Format(true); err != nil {
			return err
		}
		if spec.Payload != "" {
			tree, err := core.TreeFromHost(spec.Payload)
			if err != nil {
				return err
			}
			if err := injectTree(fat32.NewInjector(view, meta, fat32.NewAllocator(meta), clock), tree); err != nil {
				return err
			}
		}
		if !verify {
			return nil
		}
		return runChecker(fat32.NewChecker(view, meta), spec.Name, flog)

	case manifest.FSExFAT:
		meta, err := exfat.NewMeta(view.Len(), exfat.Options{Label: spec.Label})
		if err != nil {
			return err
		}
		if err := exfat.NewFormatter(view, meta, clock).Format(true); err != nil {
			return err
		}
		if spec.Payload != "" {
			tree, err := core.TreeFromHost(spec.Payload)
			if err != nil {
				return err
			}
			if err := injectTree(exfat.NewInjector(view, meta, exfat.NewAllocator(meta), clock), tree); err != nil {
				return err
			}
		}
		if !verify {
			return nil
		}
		return runChecker(exfat.NewChecker(view, meta), spec.Name, flog)

	case manifest.FSExt4:
		meta, err := ext4.NewMeta(view.Len(), ext4.Options{Label: spec.Label})
		if err != nil {
			return err
		}
		if err := ext4.NewFormatter(view, meta, clock).Format(true); err != nil {
			return err
		}
		if spec.Payload != "" {
			tree, err := core.TreeFromHost(spec.Payload)
			if err != nil {
				return err
			}
			if err := injectTree(ext4.NewInjector(view, meta, ext4.NewAllocator(meta), clock), tree); err != nil {
				return err
			}
		}
		if !verify {
			return nil
		}
		return runChecker(ext4.NewChecker(view, meta), spec.Name, flog)

	default:
		return core.ErrUnsupported("unknown filesystem " + string(spec.FS))
	}
}

func runChecker(checker filesystem.Checker, partitionName string, log *logrus.Entry) error {
	report, err := checker.Check(filesystem.Options{})
	if err != nil {
		return err
	}
	log.WithField("findings", len(report.Findings)).
		WithField("files", report.FilesWalked).
		Debug("checker finished")
	if report.HasError() {
		return core.ErrInvalid("structural check reported errors in partition " + partitionName)
	}
	return nil
}
