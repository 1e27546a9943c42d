package resources_test

import (
	"testing"

	"pdfcodec/resources"
)

func TestMergeFontPreservesEntriesAndProcSet(t *testing.T) {
	res := []byte("<< /Font << /F1 4 0 R >> /ProcSet [/PDF /Text] >>")
	got := string(resources.MergeFont(res, 5))
	want := "<< /Font << /Helv 5 0 R /F1 4 0 R >> /ProcSet [/PDF /Text] >>"
	if got != want {
		t.Fatalf("merge:\n got %s\nwant %s", got, want)
	}
}

func TestMergeFontReplacesExistingHelv(t *testing.T) {
	res := []byte("<< /Font << /Helv 3 0 R /F1 4 0 R >> >>")
	got := string(resources.MergeFont(res, 9))
	want := "<< /Font << /Helv 9 0 R /F1 4 0 R >> >>"
	if got != want {
		t.Fatalf("merge:\n got %s\nwant %s", got, want)
	}
}

func TestMergeFontWithoutFontKey(t *testing.T) {
	res := []byte("<< /ProcSet [/PDF] >>")
	got := string(resources.MergeFont(res, 5))
	want := "<< /Font << /Helv 5 0 R >> /ProcSet [/PDF] >>"
	if got != want {
		t.Fatalf("merge:\n got %s\nwant %s", got, want)
	}
}

func TestMergeFontEmptyInput(t *testing.T) {
	got := string(resources.MergeFont(nil, 5))
	if got != "<< /Font << /Helv 5 0 R >> >>" {
		t.Fatalf("merge: %s", got)
	}
}

func TestMergeFontDoesNotMatchFontFile(t *testing.T) {
	res := []byte("<< /FontFile 8 0 R >>")
	got := string(resources.MergeFont(res, 5))
	want := "<< /Font << /Helv 5 0 R >> /FontFile 8 0 R >>"
	if got != want {
		t.Fatalf("merge:\n got %s\nwant %s", got, want)
	}
}

func TestMergeFontDict(t *testing.T) {
	got := string(resources.MergeFontDict([]byte("<< /F1 4 0 R /F2 7 0 R >>"), 5))
	want := "<< /Helv 5 0 R /F1 4 0 R /F2 7 0 R >>"
	if got != want {
		t.Fatalf("merge dict:\n got %s\nwant %s", got, want)
	}
	if got := string(resources.MergeFontDict([]byte("<< >>"), 5)); got != "<< /Helv 5 0 R >>" {
		t.Fatalf("empty dict: %s", got)
	}
}

func TestReplaceFontRef(t *testing.T) {
	res := []byte("<< /Font 5 0 R /ProcSet [/PDF /Text] >>")
	got := string(resources.ReplaceFontRef(res, []byte("<< /Helv 8 0 R /F1 7 0 R >>")))
	want := "<< /Font << /Helv 8 0 R /F1 7 0 R >> /ProcSet [/PDF /Text] >>"
	if got != want {
		t.Fatalf("replace:\n got %s\nwant %s", got, want)
	}
	// Inline font dictionaries carry no reference to replace.
	same := []byte("<< /Font << /F1 4 0 R >> >>")
	if got := string(resources.ReplaceFontRef(same, []byte("<< >>"))); got != string(same) {
		t.Fatalf("inline dictionary rewritten: %s", got)
	}
}

func TestMergeFontDictFromObjectBody(t *testing.T) {
	// Bodies resolved from the store may carry surrounding whitespace.
	got := string(resources.MergeFontDict([]byte("  << /F1 7 0 R >>\n"), 8))
	if got != "<< /Helv 8 0 R /F1 7 0 R >>" {
		t.Fatalf("merge dict: %s", got)
	}
}

func TestFontRef(t *testing.T) {
	if ref, ok := resources.FontRef([]byte("<< /Font 9 0 R /ProcSet [/PDF] >>")); !ok || ref != 9 {
		t.Fatalf("indirect ref: %d ok=%v", ref, ok)
	}
	if _, ok := resources.FontRef([]byte("<< /Font << /F1 4 0 R >> >>")); ok {
		t.Fatalf("inline font dictionary reported as indirect")
	}
}
