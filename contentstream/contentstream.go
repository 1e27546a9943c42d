// Package contentstream synthesizes the text-drawing overlay that replaces
// widget annotations when a form is flattened.
package contentstream

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"

	"pdfcodec/forms"
	"pdfcodec/literal"
)

// DefaultFontSize is used when neither the widget's /DA nor the AcroForm
// /DA names a usable size.
const DefaultFontSize = 12

// A /DA string sets the size via a Tf operator, e.g. `/Helv 10 Tf 0 g`.
var tfSize = regexp.MustCompile(`(\d+(?:\.\d+)?)\s+Tf`)

// FontSize extracts the font size from the widget's own /DA, falling back
// to the form-level /DA, then DefaultFontSize. A `0 Tf` (auto-size) does
// not count as usable.
func FontSize(da, formDA string) float64 {
	for _, s := range []string{da, formDA} {
		if m := tfSize.FindStringSubmatch(s); m != nil {
			size, err := strconv.ParseFloat(m[1], 64)
			if err == nil && size > 0 {
				return size
			}
		}
	}
	return DefaultFontSize
}

// BuildOverlay renders one text-showing block per widget, wrapped in a
// single q/Q pair so graphics state cannot leak into the page. The text
// origin is inset 2 points from the left edge and centered vertically in
// the widget rectangle. Returns nil when there is nothing to draw.
func BuildOverlay(widgets []*forms.Widget, defaults forms.Defaults) []byte {
	if len(widgets) == 0 {
		return nil
	}
	buf := &bytes.Buffer{}
	buf.WriteString("q\n")
	for _, w := range widgets {
		if w.Rect == nil || len(w.Value) == 0 {
			continue
		}
		size := FontSize(w.DA, defaults.DA)
		x := w.Rect[0] + 2
		height := w.Rect[3] - w.Rect[1]
		pad := (height - size) / 2
		if pad < 0 {
			pad = 0
		}
		y := w.Rect[1] + pad
		fmt.Fprintf(buf, "BT /Helv %s Tf 0 0 0 rg %.3f %.3f Td (%s) Tj ET\n",
			strconv.FormatFloat(size, 'f', -1, 64), x, y, literal.Encode(w.Value))
	}
	buf.WriteString("Q")
	return buf.Bytes()
}
