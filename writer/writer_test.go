package writer_test

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"pdfcodec/filters"
	"pdfcodec/objstream"
	"pdfcodec/scanner"
	"pdfcodec/writer"
	"pdfcodec/xref"
)

func TestStoreAllocAndPut(t *testing.T) {
	s := writer.NewStore()
	if id := s.Alloc([]byte("<< /A 1 >>")); id != 1 {
		t.Fatalf("first alloc: %d", id)
	}
	s.Put(5, []byte("<< /B 2 >>"))
	if id := s.Alloc([]byte("<< /C 3 >>")); id != 6 {
		t.Fatalf("alloc after put(5): %d", id)
	}
	if s.MaxID() != 6 || s.Len() != 3 {
		t.Fatalf("max %d len %d", s.MaxID(), s.Len())
	}
	if got := s.IDs(); len(got) != 3 || got[0] != 1 || got[1] != 5 || got[2] != 6 {
		t.Fatalf("ids: %v", got)
	}
}

func TestAssembleClassic(t *testing.T) {
	s := writer.NewStore()
	s.Put(1, []byte("<< /Type /Catalog /Pages 2 0 R >>"))
	s.Put(2, []byte("<< /Type /Pages /Kids [4 0 R] /Count 1 >>"))
	// Object 3 left free: the writer must null-fill it.
	s.Put(4, []byte("<< /Type /Page /Parent 2 0 R >>"))

	out, err := writer.Assemble(s, 1, writer.Config{})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	if !bytes.HasPrefix(out, []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")) {
		t.Fatalf("header: %q", out[:20])
	}
	if !bytes.Contains(out, []byte("3 0 obj\n<< /Type /Null >>\nendobj\n")) {
		t.Fatalf("gap was not null-filled")
	}
	if !bytes.HasSuffix(bytes.TrimRight(out, "\n"), []byte("%%EOF")) {
		t.Fatalf("missing %%%%EOF terminator")
	}

	table, err := xref.NewResolver().Resolve(out)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if size, _ := table.Size(); size != 5 {
		t.Fatalf("size: %d", size)
	}
	root, _ := table.Root()
	e, ok := table.Get(root)
	if !ok || e.Type != xref.TypeNormal {
		t.Fatalf("root entry: %+v ok=%v", e, ok)
	}
	// The offset points at the catalog's own header line.
	if !bytes.HasPrefix(out[e.Offset:], []byte("1 0 obj")) {
		t.Fatalf("root offset lands on %q", out[e.Offset:e.Offset+12])
	}
}

func TestAssembleClassicReusesTrailer(t *testing.T) {
	s := writer.NewStore()
	s.Put(1, []byte("<< /Type /Catalog >>"))
	s.Put(2, []byte("<< /Type /Page >>"))

	out, err := writer.Assemble(s, 0, writer.Config{
		TrailerExtra: []byte("<< /Size 99 /Root 1 0 R /Info 2 0 R >>"),
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if !bytes.Contains(out, []byte("trailer\n<< /Size 3 /Root 1 0 R /Info 2 0 R >>")) {
		t.Fatalf("trailer not reused with rewritten size:\n%s", out)
	}
}

func TestAssembleRequiresRoot(t *testing.T) {
	s := writer.NewStore()
	s.Put(1, []byte("<< /Type /Page >>"))
	if _, err := writer.Assemble(s, 7, writer.Config{}); !errors.Is(err, writer.ErrMissingRoot) {
		t.Fatalf("expected ErrMissingRoot for absent id, got %v", err)
	}
	if _, err := writer.Assemble(s, 0, writer.Config{}); !errors.Is(err, writer.ErrMissingRoot) {
		t.Fatalf("expected ErrMissingRoot for no trailer root, got %v", err)
	}
}

func TestAssembleCompressed(t *testing.T) {
	s := writer.NewStore()
	content := []byte("BT /Helv 10 Tf 72 720 Td (hello) Tj ET")
	s.Put(1, []byte("<< /Type /Catalog /Pages 2 0 R >>"))
	s.Put(2, []byte("<< /Type /Pages /Kids [3 0 R] /Count 1 >>"))
	s.Put(3, []byte("<< /Type /Page /Parent 2 0 R /Contents 4 0 R >>"))
	s.Put(4, fmt.Appendf(nil, "<< /Length %d >>\nstream\n%s\nendstream", len(content), content))

	out, err := writer.Assemble(s, 1, writer.Config{XRefStreams: true, ObjectStreams: true})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	if !bytes.HasPrefix(out, []byte("%PDF-1.6\n%\xe2\xe3\xcf\xd3\n")) {
		t.Fatalf("header: %q", out[:20])
	}
	if !bytes.Contains(out, []byte("/Type /ObjStm")) || !bytes.Contains(out, []byte("/Type /XRef")) {
		t.Fatalf("missing compressed structures")
	}

	table, err := xref.NewResolver().Resolve(out)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// Ids 0..4 plus the object stream and the xref stream itself.
	if size, _ := table.Size(); size != 7 {
		t.Fatalf("size: %d", size)
	}
	root, _ := table.Root()
	rootEntry, ok := table.Get(root)
	if !ok || rootEntry.Type != xref.TypeCompressed {
		t.Fatalf("catalog should live in the object stream: %+v", rootEntry)
	}
	// The content stream stays a top-level object.
	if e, _ := table.Get(4); e.Type != xref.TypeNormal {
		t.Fatalf("content stream entry: %+v", e)
	}

	// Walk into the object stream and recover the catalog body.
	stmEntry, ok := table.Get(rootEntry.StreamObj)
	if !ok || stmEntry.Type != xref.TypeNormal {
		t.Fatalf("object stream entry: %+v ok=%v", stmEntry, ok)
	}
	stm := out[stmEntry.Offset:]
	dictStart := bytes.Index(stm, []byte("<<"))
	dictEnd, err := scanner.DictSpan(stm, dictStart)
	if err != nil {
		t.Fatalf("object stream dict: %v", err)
	}
	dict := stm[dictStart:dictEnd]
	n, _ := scanner.IntAfter(dict, "N")
	first, _ := scanner.IntAfter(dict, "First")
	length, _ := scanner.IntAfter(dict, "Length")

	payloadStart := bytes.Index(stm, []byte("stream\n")) + len("stream\n")
	payload, err := filters.NewFlateCodec().Decode(stm[payloadStart : payloadStart+length])
	if err != nil {
		t.Fatalf("decode object stream: %v", err)
	}
	members, err := objstream.Unpack(payload, n, first)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if got := string(members[root]); got != "<< /Type /Catalog /Pages 2 0 R >>" {
		t.Fatalf("catalog body: %q", got)
	}
	if e, _ := table.Get(3); e.StreamObj != rootEntry.StreamObj {
		t.Fatalf("page should share the object stream: %+v", e)
	}
}
