package core

import (
	"encoding/binary"

	"github.com/go-restruct/restruct"
)

// ReadStruct reads a fixed-size little-endian packed struct at offset,
// following spec.md §4.1's read_struct<T> contract. Field layout comes from
// `struct` tags the way go-restruct (pulled in from dsoprea-go-exfat's
// go.mod) expects; see filesystem/fat32/bootsector.go for an example.
func ReadStruct(b BlockIO, offset int64, size int64, v interface{}) error {
	buf := make([]byte, size)
	if err := b.ReadAt(offset, buf); err != nil {
		return err
	}
	if err := restruct.Unpack(buf, binary.LittleEndian, v); err != nil {
		return ErrInvalid("unpack struct: " + err.Error())
	}
	return nil
}

// WriteStruct packs v as a fixed-size little-endian struct and writes it at
// offset, following spec.md §4.1's write_struct<T> contract.
func WriteStruct(b BlockIO, offset int64, v interface{}) error {
	buf, err := restruct.Pack(binary.LittleEndian, v)
	if err != nil {
		return ErrInvalid("pack struct: " + err.Error())
	}
	return b.WriteAt(offset, buf)
}
