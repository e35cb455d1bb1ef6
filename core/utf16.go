package core

import (
	"golang.org/x/text/encoding/unicode"
)

var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// EncodeUTF16LE encodes a Go string to UTF-16LE bytes, used for FAT32 LFN
// entries and exFAT name entries alike.
func EncodeUTF16LE(s string) ([]byte, error) {
	enc := utf16LE.NewEncoder()
	b, err := enc.Bytes([]byte(s))
	if err != nil {
		return nil, ErrInvalid("encode UTF-16LE: " + err.Error())
	}
	return b, nil
}

// DecodeUTF16LE decodes UTF-16LE bytes (an even length) back to a Go string.
func DecodeUTF16LE(b []byte) (string, error) {
	dec := utf16LE.NewDecoder()
	out, err := dec.Bytes(b)
	if err != nil {
		return "", ErrInvalid("decode UTF-16LE: " + err.Error())
	}
	return string(out), nil
}

// UpcaseASCII uppercases the ASCII range only, leaving other UTF-16 code
// units untouched; used by FAT32 short-name synthesis.
func UpcaseASCII(u uint16) uint16 {
	if u >= 'a' && u <= 'z' {
		return u - 32
	}
	return u
}
