// Package textio provides text decoding helpers tolerant of the encodings
// Windows editors and CLIs tend to produce.
package textio

import (
	"bytes"
	"strings"
	"unicode"
	"unicode/utf8"

	xunicode "golang.org/x/text/encoding/unicode"
)

// DecodeAuto sniffs a BOM and decodes UTF-16 of either endianness or UTF-8.
// Undecodable bytes are replaced instead of failing, so a half-written file
// still yields usable text.
func DecodeAuto(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte{0xff, 0xfe}):
		return decodeUTF16(data[2:], xunicode.LittleEndian)
	case bytes.HasPrefix(data, []byte{0xfe, 0xff}):
		return decodeUTF16(data[2:], xunicode.BigEndian)
	case bytes.HasPrefix(data, []byte{0xef, 0xbb, 0xbf}):
		return toValidUTF8(data[3:])
	default:
		return toValidUTF8(data)
	}
}

// StripControl removes non-printable control characters, keeping newlines,
// tabs and carriage returns.
func StripControl(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\t', '\r':
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

func decodeUTF16(data []byte, endianness xunicode.Endianness) string {
	out, err := xunicode.UTF16(endianness, xunicode.IgnoreBOM).NewDecoder().Bytes(data)
	if err != nil {
		return toValidUTF8(data)
	}
	return string(out)
}

func toValidUTF8(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), string(utf8.RuneError))
}
