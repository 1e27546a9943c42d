// Package forms reads AcroForm structure out of scanned objects: widget
// annotations, their values, and the document's appearance defaults.
package forms

import (
	"sort"

	"pdfcodec/literal"
	"pdfcodec/scanner"
)

// Widget is one /Subtype /Widget annotation. Value holds the decoded /V
// literal; DA holds the raw /DA string exactly as it appears in the file.
type Widget struct {
	Ref       int
	Rect      *[4]float64
	Value     []byte
	DA        string
	FieldType string
	Parent    int
}

// ParseWidget reads a widget out of an annotation body, returning nil for
// non-widget annotations.
func ParseWidget(ref int, body []byte) *Widget {
	if sub, ok := scanner.NameAfter(body, "Subtype"); !ok || sub != "Widget" {
		return nil
	}
	w := &Widget{Ref: ref}
	if nums, ok := scanner.NumbersAfter(body, "Rect", 4); ok {
		rect := [4]float64{nums[0], nums[1], nums[2], nums[3]}
		w.Rect = &rect
	}
	if raw, ok := scanner.LiteralAfter(body, "V"); ok {
		w.Value = literal.Decode(raw)
	}
	if raw, ok := scanner.LiteralAfter(body, "DA"); ok {
		w.DA = string(raw)
	}
	if ft, ok := scanner.NameAfter(body, "FT"); ok {
		w.FieldType = ft
	}
	if parent, ok := scanner.RefAfter(body, "Parent"); ok {
		w.Parent = parent
	}
	return w
}

// ResolveFieldType returns the widget's field type, consulting its parent
// field one hop up when the widget itself carries none.
func ResolveFieldType(w *Widget, objects map[int][]byte) string {
	if w.FieldType != "" {
		return w.FieldType
	}
	if w.Parent > 0 {
		if body, ok := objects[w.Parent]; ok {
			if ft, ok := scanner.NameAfter(body, "FT"); ok {
				return ft
			}
		}
	}
	return ""
}

// IsButton reports whether the widget is a pushbutton, checkbox or radio
// field. Button widgets keep their annotation instead of being drawn.
func IsButton(w *Widget, objects map[int][]byte) bool {
	return ResolveFieldType(w, objects) == "Btn"
}

// Defaults carries the document-level appearance fallbacks from the
// AcroForm dictionary.
type Defaults struct {
	// DA is the AcroForm /DA string, consulted when a widget has none.
	DA string
	// FontRef is the object number behind /Helv in the AcroForm /DR font
	// resources, or 0 when absent.
	FontRef int
}

// AcroFormDefaults locates the interactive-form dictionary and extracts
// its /DA and /DR /Font /Helv reference. The form dictionary is found via
// the lowest-numbered object carrying /AcroForm, following one reference
// hop when the entry is indirect.
func AcroFormDefaults(objects map[int][]byte) Defaults {
	var d Defaults
	form := findAcroForm(objects)
	if form == nil {
		return d
	}
	if raw, ok := scanner.LiteralAfter(form, "DA"); ok {
		d.DA = string(raw)
	}
	if dr, ok := scanner.DictAfter(form, "DR"); ok {
		if ref, ok := scanner.RefAfter(dr, "Helv"); ok {
			d.FontRef = ref
		}
	}
	return d
}

func findAcroForm(objects map[int][]byte) []byte {
	ids := make([]int, 0, len(objects))
	for id := range objects {
		ids = append(ids, id)
	}
	// Ascending scan keeps the result deterministic.
	sort.Ints(ids)
	for _, id := range ids {
		body := objects[id]
		if dict, ok := scanner.DictAfter(body, "AcroForm"); ok {
			return dict
		}
		if ref, ok := scanner.RefAfter(body, "AcroForm"); ok {
			if target, ok := objects[ref]; ok {
				return target
			}
		}
	}
	return nil
}

// Classify splits a page's annotations into widgets to draw and
// annotation references to keep. Non-widget annotations and button
// widgets are kept; every other widget is consumed by the overlay.
func Classify(annots []int, objects map[int][]byte) (draw []*Widget, kept []int) {
	for _, ref := range annots {
		body, ok := objects[ref]
		if !ok {
			continue
		}
		w := ParseWidget(ref, body)
		if w == nil {
			kept = append(kept, ref)
			continue
		}
		if IsButton(w, objects) {
			kept = append(kept, ref)
			continue
		}
		if w.Rect != nil && len(w.Value) > 0 {
			draw = append(draw, w)
		}
	}
	return draw, kept
}
