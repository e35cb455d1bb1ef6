package core

import "os"

// FileBlockIO is a BlockIO backed by a stdlib *os.File, the way the
// teacher's backend/file.rawBackend wraps os.File for device and image
// paths. readOnly governs whether WriteAt/SetLen are permitted.
type FileBlockIO struct {
	f        *os.File
	readOnly bool
	length   int64
}

// OpenFileBlockIO opens an existing file/device as a BlockIO.
func OpenFileBlockIO(path string, readOnly bool) (*FileBlockIO, error) {
	flag := os.O_RDONLY
	if !readOnly {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0o600)
	if err != nil {
		return nil, ErrIO("open backing file", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, ErrIO("stat backing file", err)
	}
	return &FileBlockIO{f: f, readOnly: readOnly, length: info.Size()}, nil
}

// CreateFileBlockIO creates a new file/device of the given size as a BlockIO.
func CreateFileBlockIO(path string, size int64) (*FileBlockIO, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
	if err != nil {
		return nil, ErrIO("create backing file", err)
	}
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		return nil, ErrIO("truncate backing file", err)
	}
	return &FileBlockIO{f: f, readOnly: false, length: size}, nil
}

func (b *FileBlockIO) checkBounds(offset, n int64) error {
	if offset < 0 || n < 0 || offset+n > b.length {
		return ErrOutOfBounds("offset/length escapes file-backed store bounds")
	}
	return nil
}

func (b *FileBlockIO) ReadAt(offset int64, buf []byte) error {
	if err := b.checkBounds(offset, int64(len(buf))); err != nil {
		return err
	}
	if _, err := b.f.ReadAt(buf, offset); err != nil {
		return ErrIO("read backing file", err)
	}
	return nil
}

func (b *FileBlockIO) WriteAt(offset int64, data []byte) error {
	if b.readOnly {
		return ErrUnsupported("write to read-only backing file")
	}
	if err := b.checkBounds(offset, int64(len(data))); err != nil {
		return err
	}
	if _, err := b.f.WriteAt(data, offset); err != nil {
		return ErrIO("write backing file", err)
	}
	return nil
}

func (b *FileBlockIO) WriteMultiAt(offsets []int64, stride int, data []byte) error {
	if len(data) < len(offsets)*stride {
		return ErrInvalid("data too short for requested stride/offset count")
	}
	for i, off := range offsets {
		if err := b.WriteAt(off, data[i*stride:(i+1)*stride]); err != nil {
			return err
		}
	}
	return nil
}

func (b *FileBlockIO) CopyFrom(src BlockIO, srcOff, dstOff int64, length int64) error {
	const chunk = 1 << 20
	buf := make([]byte, chunk)
	for remaining := length; remaining > 0; {
		n := remaining
		if n > chunk {
			n = chunk
		}
		if err := src.ReadAt(srcOff, buf[:n]); err != nil {
			return err
		}
		if err := b.WriteAt(dstOff, buf[:n]); err != nil {
			return err
		}
		srcOff += n
		dstOff += n
		remaining -= n
	}
	return nil
}

func (b *FileBlockIO) ZeroFill(offset int64, length int64) error {
	if b.readOnly {
		return ErrUnsupported("zero-fill on read-only backing file")
	}
	if err := b.checkBounds(offset, length); err != nil {
		return err
	}
	const chunk = 1 << 20
	zeros := make([]byte, chunk)
	for remaining := length; remaining > 0; {
		n := remaining
		if n > chunk {
			n = chunk
		}
		if _, err := b.f.WriteAt(zeros[:n], offset); err != nil {
			return ErrIO("zero-fill backing file", err)
		}
		offset += n
		remaining -= n
	}
	return nil
}

func (b *FileBlockIO) Flush() error {
	if err := b.f.Sync(); err != nil {
		return ErrIO("flush backing file", err)
	}
	return nil
}

func (b *FileBlockIO) SetLen(length int64) error {
	if b.readOnly {
		return ErrUnsupported("set-length on read-only backing file")
	}
	if err := b.f.Truncate(length); err != nil {
		return ErrIO("truncate backing file", err)
	}
	b.length = length
	return nil
}

func (b *FileBlockIO) Len() int64 { return b.length }

func (b *FileBlockIO) PartitionOffset() int64 { return 0 }

func (b *FileBlockIO) Close() error {
	if err := b.f.Close(); err != nil {
		return ErrIO("close backing file", err)
	}
	return nil
}
