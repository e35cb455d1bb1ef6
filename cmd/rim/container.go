package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/imgforge/rim/core"
	"github.com/imgforge/rim/image"
)

// finalizeContainer closes rawHandle and converts its contents into the
// container format named by outputPath's extension, per spec.md §6. It
// returns the path of the temp file that should be renamed to outputPath.
// ".img" (or any other/no extension) needs no conversion: the raw temp file
// is already the final byte-for-byte content.
func finalizeContainer(rawHandle *image.Handle, rawTmpPath, outputPath string, clock core.Clock) (string, error) {
	switch strings.ToLower(filepath.Ext(outputPath)) {
	case ".vhd":
		if err := image.WriteVHDFixed(rawHandle, clock); err != nil {
			_ = rawHandle.Close()
			return "", err
		}
		if err := rawHandle.Close(); err != nil {
			return "", err
		}
		return rawTmpPath, nil

	case ".vmdk":
		return finalizeVMDK(rawHandle, rawTmpPath, outputPath)

	default:
		if err := rawHandle.Close(); err != nil {
			return "", err
		}
		return rawTmpPath, nil
	}
}

func finalizeVMDK(rawHandle *image.Handle, rawTmpPath, outputPath string) (string, error) {
	ext := filepath.Ext(outputPath)
	diskName := strings.TrimSuffix(filepath.Base(outputPath), ext) + "-flat.vmdk"
	vmdkTmpPath := outputPath + ".rim-container-tmp"

	dst, err := image.CreateImage(vmdkTmpPath, int64(image.VMDKDescriptorSize)+rawHandle.Len())
	if err != nil {
		_ = rawHandle.Close()
		return "", err
	}
	writeErr := image.WriteVMDKMonolithicFlat(dst, rawHandle, diskName)
	closeErr := dst.Close()
	_ = rawHandle.Close()
	_ = os.Remove(rawTmpPath)

	if writeErr != nil {
		_ = os.Remove(vmdkTmpPath)
		return "", writeErr
	}
	if closeErr != nil {
		return "", closeErr
	}
	return vmdkTmpPath, nil
}
