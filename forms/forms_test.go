package forms_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"pdfcodec/forms"
)

func TestParseWidget(t *testing.T) {
	body := []byte(`<< /Type /Annot /Subtype /Widget /FT /Tx /T (name) ` +
		`/Rect [150 700 350 720] /V (John \(JD\) Doe) /DA (/Helv 10 Tf 0 g) /Parent 9 0 R >>`)
	w := forms.ParseWidget(6, body)
	if w == nil {
		t.Fatalf("widget not recognized")
	}
	if w.Ref != 6 || w.FieldType != "Tx" || w.Parent != 9 {
		t.Fatalf("widget: %+v", w)
	}
	if w.Rect == nil || *w.Rect != [4]float64{150, 700, 350, 720} {
		t.Fatalf("rect: %v", w.Rect)
	}
	// /V comes back decoded, /DA stays raw.
	if string(w.Value) != "John (JD) Doe" {
		t.Fatalf("value: %q", w.Value)
	}
	if w.DA != "/Helv 10 Tf 0 g" {
		t.Fatalf("da: %q", w.DA)
	}
}

func TestParseWidgetRejectsOtherAnnotations(t *testing.T) {
	if w := forms.ParseWidget(3, []byte(`<< /Type /Annot /Subtype /Link /Rect [0 0 1 1] >>`)); w != nil {
		t.Fatalf("link parsed as widget: %+v", w)
	}
	if w := forms.ParseWidget(3, []byte(`<< /Type /Page >>`)); w != nil {
		t.Fatalf("page parsed as widget: %+v", w)
	}
}

func TestResolveFieldTypeParentHop(t *testing.T) {
	objects := map[int][]byte{
		9: []byte(`<< /FT /Tx /T (group) /Kids [6 0 R] >>`),
	}
	w := forms.ParseWidget(6, []byte(`<< /Subtype /Widget /Parent 9 0 R /Rect [0 0 10 10] /V (x) >>`))
	if got := forms.ResolveFieldType(w, objects); got != "Tx" {
		t.Fatalf("inherited type: %q", got)
	}

	// Own type wins over the parent's.
	w2 := forms.ParseWidget(6, []byte(`<< /Subtype /Widget /FT /Ch /Parent 9 0 R >>`))
	if got := forms.ResolveFieldType(w2, objects); got != "Ch" {
		t.Fatalf("own type: %q", got)
	}

	// One hop only: a grandparent's type is not consulted.
	deep := map[int][]byte{
		9:  []byte(`<< /Parent 10 0 R >>`),
		10: []byte(`<< /FT /Tx >>`),
	}
	if got := forms.ResolveFieldType(w, deep); got != "" {
		t.Fatalf("grandparent type leaked through: %q", got)
	}
}

func TestAcroFormDefaults(t *testing.T) {
	objects := map[int][]byte{
		1: []byte(`<< /Type /Catalog /Pages 2 0 R /AcroForm << /Fields [6 0 R] ` +
			`/DA (/Helv 0 Tf 0 g) /DR << /Font << /Helv 5 0 R >> >> >> >>`),
		5: []byte(`<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>`),
	}
	d := forms.AcroFormDefaults(objects)
	if d.DA != "/Helv 0 Tf 0 g" {
		t.Fatalf("da: %q", d.DA)
	}
	if d.FontRef != 5 {
		t.Fatalf("font ref: %d", d.FontRef)
	}
}

func TestAcroFormDefaultsIndirect(t *testing.T) {
	objects := map[int][]byte{
		1: []byte(`<< /Type /Catalog /AcroForm 8 0 R >>`),
		8: []byte(`<< /Fields [] /DA (/Helv 12 Tf) /DR << /Font << /Helv 4 0 R >> >> >>`),
	}
	d := forms.AcroFormDefaults(objects)
	if d.DA != "/Helv 12 Tf" || d.FontRef != 4 {
		t.Fatalf("defaults: %+v", d)
	}
}

func TestAcroFormDefaultsAbsent(t *testing.T) {
	d := forms.AcroFormDefaults(map[int][]byte{1: []byte(`<< /Type /Catalog >>`)})
	if d.DA != "" || d.FontRef != 0 {
		t.Fatalf("expected zero defaults, got %+v", d)
	}
}

func TestClassify(t *testing.T) {
	objects := map[int][]byte{
		6: []byte(`<< /Subtype /Widget /FT /Tx /Rect [150 700 350 720] /V (John Doe) >>`),
		7: []byte(`<< /Subtype /Widget /FT /Btn /Rect [10 10 25 25] /V (Yes) >>`),
		8: []byte(`<< /Subtype /Link /Rect [0 0 5 5] >>`),
		9: []byte(`<< /Subtype /Widget /FT /Tx /Rect [0 0 100 20] >>`), // no value
	}
	draw, kept := forms.Classify([]int{6, 7, 8, 9, 99}, objects)

	if len(draw) != 1 || draw[0].Ref != 6 {
		refs := make([]int, len(draw))
		for i, w := range draw {
			refs[i] = w.Ref
		}
		t.Fatalf("draw: %v", refs)
	}
	if want := []int{7, 8}; !cmp.Equal(kept, want) {
		t.Fatalf("kept: %v", kept)
	}
}
