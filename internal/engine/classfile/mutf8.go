package classfile

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// decodeModifiedUTF8 converts the class file string encoding to UTF-8.
// NUL is stored as C0 80 and supplementary characters as surrogate pairs.
func decodeModifiedUTF8(b []byte) string {
	ascii := true
	for _, c := range b {
		if c == 0 || c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b)
	}

	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0 && i+1 < len(b):
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0 && i+2 < len(b):
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			units = append(units, utf8.RuneError)
			i++
		}
	}
	return string(utf16.Decode(units))
}

// encodeModifiedUTF8 is the inverse of decodeModifiedUTF8.
func encodeModifiedUTF8(s string) []byte {
	plain := true
	for i := 0; i < len(s); i++ {
		if s[i] == 0 || s[i] >= 0x80 {
			plain = false
			break
		}
	}
	if plain {
		return []byte(s)
	}

	var sb strings.Builder
	for _, u := range utf16.Encode([]rune(s)) {
		switch {
		case u != 0 && u < 0x80:
			sb.WriteByte(byte(u))
		case u < 0x800:
			sb.WriteByte(byte(0xC0 | u>>6))
			sb.WriteByte(byte(0x80 | u&0x3F))
		default:
			sb.WriteByte(byte(0xE0 | u>>12))
			sb.WriteByte(byte(0x80 | (u>>6)&0x3F))
			sb.WriteByte(byte(0x80 | u&0x3F))
		}
	}
	return []byte(sb.String())
}
