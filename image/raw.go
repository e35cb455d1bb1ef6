package image

// raw images need no emitter: per spec.md §6, ".img: raw image, byte-for-byte
// the BlockIO contents." A *Handle's own core.BlockIO already holds exactly
// those bytes once build/flash finishes, so the CLI writes a .img output by
// simply leaving the backing file (or device) as-is after the partition and
// filesystem writes complete; there is no additional container step to run,
// unlike WriteVHDFixed and WriteVMDKMonolithicFlat.
