// Package literal encodes and decodes PDF literal strings, the `(...)`
// syntax used for widget values and appearance defaults.
package literal

import (
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Encode produces the body of a PDF literal string: backslash, '(' and ')'
// are escaped with a preceding backslash, and line breaks become \n and \r
// so an encoded value never spans lines. Nothing else is altered; callers
// are expected to pre-normalize text to a byte encoding, typically Latin-1
// via NormalizeLatin1.
func Encode(s []byte) []byte {
	out := make([]byte, 0, len(s)+4)
	for _, c := range s {
		switch c {
		case '\\', '(', ')':
			out = append(out, '\\', c)
		case '\n':
			out = append(out, '\\', 'n')
		case '\r':
			out = append(out, '\\', 'r')
		default:
			out = append(out, c)
		}
	}
	return out
}

// Decode interprets the bytes between an opening '(' and its matching
// unescaped ')'. Escapes n, r, t, b and f map to control characters,
// '(' ')' and '\' map to themselves, and 1-3 consecutive octal digits map
// to the byte they denote. Any other escaped character is kept verbatim;
// an unknown escape is not an error. A dangling backslash at the end of
// the input is dropped.
func Decode(s []byte) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		c := s[i]
		if c != '\\' {
			out = append(out, c)
			i++
			continue
		}
		i++
		if i >= len(s) {
			break
		}
		e := s[i]
		switch e {
		case 'n':
			out = append(out, '\n')
			i++
		case 'r':
			out = append(out, '\r')
			i++
		case 't':
			out = append(out, '\t')
			i++
		case 'b':
			out = append(out, '\b')
			i++
		case 'f':
			out = append(out, '\f')
			i++
		case '\\', '(', ')':
			out = append(out, e)
			i++
		default:
			if e >= '0' && e <= '7' {
				val := int(e - '0')
				i++
				for k := 0; k < 2 && i < len(s); k++ {
					d := s[i]
					if d < '0' || d > '7' {
						break
					}
					val = (val << 3) + int(d-'0')
					i++
				}
				out = append(out, byte(val))
				continue
			}
			// Unknown escape: keep the escaped character.
			out = append(out, e)
			i++
		}
	}
	return out
}

// ScanBalanced locates the terminating ')' of the literal string whose
// opening '(' sits at data[open]. Escaped parentheses are skipped; the
// first unescaped ')' is terminal. Nested unescaped parentheses are not
// supported, matching the value syntax seen in form widgets. Returns the
// index of the closing ')' and false if the string is unterminated.
func ScanBalanced(data []byte, open int) (int, bool) {
	if open < 0 || open >= len(data) || data[open] != '(' {
		return 0, false
	}
	for i := open + 1; i < len(data); i++ {
		switch data[i] {
		case '\\':
			i++
		case ')':
			return i, true
		}
	}
	return 0, false
}

// NormalizeLatin1 converts a Go string to Latin-1 bytes, replacing
// unmappable runes. Literal strings carry raw bytes; the single-byte
// encoding keeps Encode/Decode byte-for-byte.
func NormalizeLatin1(s string) []byte {
	enc := encoding.ReplaceUnsupported(charmap.ISO8859_1.NewEncoder())
	out, err := enc.Bytes([]byte(s))
	if err != nil {
		// The replacing encoder does not fail on unmappable input; any
		// residual error means the input itself was unusable.
		return []byte(s)
	}
	return out
}

// Latin1String interprets raw literal-string bytes as Latin-1 text.
func Latin1String(b []byte) string {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}
