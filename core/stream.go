package core

// StreamWriteUnits writes content into a sequence of equal-sized on-disk
// units (clusters/blocks) via a single reusable buffer, computing each
// target offset with offsetOf(unitIndex). This backs the Injector's
// per-file algorithm (spec.md §4.5) and is shared across FAT32, exFAT, and
// ext4 since the only thing that differs between them is the offset
// function and unit size.
func StreamWriteUnits(w BlockIO, units []uint32, unitSize int64, content []byte, offsetOf func(unit uint32) int64) error {
	remaining := content
	buf := make([]byte, unitSize)
	for _, unit := range units {
		n := int64(len(remaining))
		if n > unitSize {
			n = unitSize
		}
		for i := range buf {
			buf[i] = 0
		}
		copy(buf, remaining[:n])
		if err := w.WriteAt(offsetOf(unit), buf); err != nil {
			return err
		}
		remaining = remaining[n:]
	}
	return nil
}

// UnitsForLength returns ceil(length/unitSize), the number of units a file
// of this length needs; zero-length files need zero units.
func UnitsForLength(length int64, unitSize int64) int64 {
	if length <= 0 {
		return 0
	}
	return (length + unitSize - 1) / unitSize
}
