// Package resources rewrites page resource dictionaries so the flattening
// overlay's /Helv font is reachable, without disturbing the other entries.
package resources

import (
	"bytes"
	"fmt"
	"regexp"

	"pdfcodec/scanner"
)

var helvEntry = regexp.MustCompile(`/Helv\s+\d+\s+\d+\s+R\s*`)

// MergeFont returns a resources dictionary whose /Font maps /Helv to
// helvRef. Existing font entries and every other resource key, /ProcSet
// included, are preserved. An empty input yields a minimal dictionary.
func MergeFont(res []byte, helvRef int) []byte {
	if len(res) == 0 {
		return fmt.Appendf(nil, "<< /Font << /Helv %d 0 R >> >>", helvRef)
	}

	start, end, ok := fontDictSpan(res)
	if !ok {
		// No inline font dictionary: splice a fresh one in after the
		// opening delimiter.
		if i := bytes.Index(res, []byte("<<")); i >= 0 {
			out := make([]byte, 0, len(res)+32)
			out = append(out, res[:i+2]...)
			out = fmt.Appendf(out, " /Font << /Helv %d 0 R >>", helvRef)
			out = append(out, res[i+2:]...)
			return out
		}
		return fmt.Appendf(nil, "<< /Font << /Helv %d 0 R >> >>", helvRef)
	}

	merged := MergeFontDict(res[start:end], helvRef)
	out := make([]byte, 0, len(res)-(end-start)+len(merged))
	out = append(out, res[:start]...)
	out = append(out, merged...)
	out = append(out, res[end:]...)
	return out
}

// MergeFontDict returns fontDict with /Helv mapped to helvRef, replacing
// any previous /Helv entry and keeping the rest.
func MergeFontDict(fontDict []byte, helvRef int) []byte {
	interior := bytes.TrimSpace(fontDict)
	if len(interior) >= 4 && bytes.HasPrefix(interior, []byte("<<")) && bytes.HasSuffix(interior, []byte(">>")) {
		interior = bytes.TrimSpace(interior[2 : len(interior)-2])
	}
	interior = bytes.TrimSpace(helvEntry.ReplaceAll(interior, nil))

	out := make([]byte, 0, len(interior)+32)
	out = fmt.Appendf(out, "<< /Helv %d 0 R", helvRef)
	if len(interior) > 0 {
		out = append(out, ' ')
		out = append(out, interior...)
	}
	out = append(out, " >>"...)
	return out
}

// FontRef returns the indirect /Font reference when the resources
// dictionary does not inline its font dictionary.
func FontRef(res []byte) (int, bool) {
	if _, _, ok := fontDictSpan(res); ok {
		return 0, false
	}
	return scanner.RefAfter(res, "Font")
}

// ReplaceFontRef substitutes dict for the indirect /Font reference value
// in res, leaving every other entry alone. res is returned unchanged when
// no such reference exists.
func ReplaceFontRef(res, dict []byte) []byte {
	start, end, ok := fontRefSpan(res)
	if !ok {
		return res
	}
	out := make([]byte, 0, len(res)-(end-start)+len(dict))
	out = append(out, res[:start]...)
	out = append(out, dict...)
	out = append(out, res[end:]...)
	return out
}

// fontRefSpan locates the `N G R` value of an indirect /Font entry.
func fontRefSpan(res []byte) (start, end int, ok bool) {
	pos := 0
	for {
		rel := bytes.Index(res[pos:], []byte("/Font"))
		if rel < 0 {
			return 0, 0, false
		}
		k := pos + rel + len("/Font")
		if k < len(res) && !isDelimiter(res[k]) {
			pos = k
			continue
		}
		for k < len(res) && isSpace(res[k]) {
			k++
		}
		v := k
		for k < len(res) && res[k] >= '0' && res[k] <= '9' {
			k++
		}
		if k == v {
			return 0, 0, false
		}
		g := k
		for g < len(res) && isSpace(res[g]) {
			g++
		}
		h := g
		for h < len(res) && res[h] >= '0' && res[h] <= '9' {
			h++
		}
		if h == g {
			return 0, 0, false
		}
		r := h
		for r < len(res) && isSpace(res[r]) {
			r++
		}
		if r >= len(res) || res[r] != 'R' {
			return 0, 0, false
		}
		return v, r + 1, true
	}
}

// fontDictSpan locates the inline dictionary value of the /Font key.
func fontDictSpan(res []byte) (start, end int, ok bool) {
	pos := 0
	for {
		rel := bytes.Index(res[pos:], []byte("/Font"))
		if rel < 0 {
			return 0, 0, false
		}
		k := pos + rel + len("/Font")
		// /FontFile and friends must not match.
		if k < len(res) && !isDelimiter(res[k]) {
			pos = k
			continue
		}
		for k < len(res) && isSpace(res[k]) {
			k++
		}
		if k+1 >= len(res) || res[k] != '<' || res[k+1] != '<' {
			return 0, 0, false
		}
		e, err := scanner.DictSpan(res, k)
		if err != nil {
			return 0, 0, false
		}
		return k, e, true
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == 0x00 || c == 0x0C
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return isSpace(c)
	}
}
