// Package writer assembles complete PDF files from a store of object
// bodies, either in classic form with an ASCII cross-reference table or in
// compressed form with object streams and a cross-reference stream.
package writer

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"pdfcodec/filters"
	"pdfcodec/objstream"
	"pdfcodec/observability"
	"pdfcodec/scanner"
	"pdfcodec/xref"
)

var ErrMissingRoot = errors.New("catalog object missing from store")

// Store holds object bodies keyed by object number. Generation numbers are
// always zero.
type Store struct {
	objects map[int][]byte
	next    int
}

func NewStore() *Store {
	return &Store{objects: make(map[int][]byte), next: 1}
}

// NewStoreFrom copies an existing object map, such as a scan result.
func NewStoreFrom(objects map[int][]byte) *Store {
	s := NewStore()
	for id, body := range objects {
		s.Put(id, body)
	}
	return s
}

// Alloc stores body under the next unused object number and returns it.
func (s *Store) Alloc(body []byte) int {
	id := s.next
	s.Put(id, body)
	return id
}

func (s *Store) Put(id int, body []byte) {
	s.objects[id] = body
	if id >= s.next {
		s.next = id + 1
	}
}

func (s *Store) Get(id int) ([]byte, bool) {
	body, ok := s.objects[id]
	return body, ok
}

func (s *Store) Len() int { return len(s.objects) }

func (s *Store) MaxID() int {
	max := 0
	for id := range s.objects {
		if id > max {
			max = id
		}
	}
	return max
}

// IDs returns the stored object numbers in ascending order.
func (s *Store) IDs() []int {
	ids := make([]int, 0, len(s.objects))
	for id := range s.objects {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Config controls the output form. The zero value produces a classic file
// with an ASCII table. ObjectStreams implies XRefStreams: compressed
// entries are only expressible in a cross-reference stream.
type Config struct {
	// Version overrides the header version; defaults to 1.4 for classic
	// output and 1.6 for cross-reference stream output.
	Version       string
	XRefStreams   bool
	ObjectStreams bool
	// TrailerExtra carries a pre-existing trailer dictionary to reuse in
	// classic output; its /Size is rewritten to match the new table.
	TrailerExtra []byte
	Logger       observability.Logger
}

const binaryMarker = "%\xE2\xE3\xCF\xD3"

var nullBody = []byte("<< /Type /Null >>")

var sizeValue = regexp.MustCompile(`/Size\s+\d+`)

// Assemble renders the store as a complete PDF. rootID names the catalog;
// it may be zero only when TrailerExtra already carries /Root.
func Assemble(store *Store, rootID int, cfg Config) ([]byte, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger{}
	}
	if rootID > 0 {
		if _, ok := store.Get(rootID); !ok {
			return nil, fmt.Errorf("root %d: %w", rootID, ErrMissingRoot)
		}
	} else if _, ok := scanner.RefAfter(cfg.TrailerExtra, "Root"); !ok {
		return nil, ErrMissingRoot
	}

	useXRefStream := cfg.XRefStreams || cfg.ObjectStreams
	if rootID == 0 && useXRefStream {
		// The stream dictionary names /Root directly; pull it out of the
		// reused trailer.
		rootID, _ = scanner.RefAfter(cfg.TrailerExtra, "Root")
	}
	version := cfg.Version
	if version == "" {
		if useXRefStream {
			version = "1.6"
		} else {
			version = "1.4"
		}
	}

	var out []byte
	var err error
	if useXRefStream {
		out, err = assembleCompressed(store, rootID, version, cfg.ObjectStreams)
	} else {
		out, err = assembleClassic(store, rootID, version, cfg.TrailerExtra)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("document assembled",
		observability.Int(observability.MetricObjectCount, store.Len()),
		observability.Int(observability.MetricCompressedBytes, len(out)),
		observability.String("version", version))
	return out, nil
}

// assembleClassic writes every object uncompressed in ascending order,
// filling numbering gaps with null objects so the table stays contiguous.
func assembleClassic(store *Store, rootID int, version string, trailerExtra []byte) ([]byte, error) {
	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "%%PDF-%s\n%s\n", version, binaryMarker)

	max := store.MaxID()
	entries := make([]xref.Entry, max+1)
	for id := 1; id <= max; id++ {
		body, ok := store.Get(id)
		if !ok {
			body = nullBody
		}
		entries[id] = xref.Entry{Type: xref.TypeNormal, Offset: int64(buf.Len())}
		fmt.Fprintf(buf, "%d 0 obj\n", id)
		buf.Write(body)
		buf.WriteString("\nendobj\n")
	}

	start := buf.Len()
	buf.Write(xref.EncodeClassic(entries))
	buf.WriteString("trailer\n")
	buf.Write(classicTrailer(trailerExtra, max+1, rootID))
	fmt.Fprintf(buf, "\nstartxref\n%d\n%%%%EOF\n", start)
	return buf.Bytes(), nil
}

// classicTrailer reuses extra with its /Size rewritten, or synthesizes a
// minimal trailer dictionary.
func classicTrailer(extra []byte, size, rootID int) []byte {
	if len(extra) == 0 {
		return fmt.Appendf(nil, "<< /Size %d /Root %d 0 R >>", size, rootID)
	}
	replacement := fmt.Appendf(nil, "/Size %d", size)
	if sizeValue.Match(extra) {
		return sizeValue.ReplaceAll(extra, replacement)
	}
	// No /Size in the original: prepend one inside the dictionary.
	if i := bytes.Index(extra, []byte("<<")); i >= 0 {
		out := make([]byte, 0, len(extra)+len(replacement)+1)
		out = append(out, extra[:i+2]...)
		out = append(out, ' ')
		out = append(out, replacement...)
		out = append(out, extra[i+2:]...)
		return out
	}
	return extra
}

// assembleCompressed packs every non-stream object into a single object
// stream and indexes the file with a cross-reference stream. Objects whose
// body carries a stream payload stay at top level.
func assembleCompressed(store *Store, rootID int, version string, packObjects bool) ([]byte, error) {
	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "%%PDF-%s\n%s\n", version, binaryMarker)

	members := make(map[int][]byte)
	var topLevel []int
	for _, id := range store.IDs() {
		body, _ := store.Get(id)
		if packObjects && !hasStreamPayload(body) {
			members[id] = body
		} else {
			topLevel = append(topLevel, id)
		}
	}

	objStmID := 0
	xrefID := store.MaxID() + 1
	if len(members) > 0 {
		objStmID = xrefID
		xrefID++
	}

	entries := make([]xref.Entry, xrefID+1)
	for _, id := range topLevel {
		body, _ := store.Get(id)
		entries[id] = xref.Entry{Type: xref.TypeNormal, Offset: int64(buf.Len())}
		fmt.Fprintf(buf, "%d 0 obj\n", id)
		buf.Write(body)
		buf.WriteString("\nendobj\n")
	}

	if len(members) > 0 {
		packed, err := objstream.Pack(members)
		if err != nil {
			return nil, err
		}
		for id, e := range packed.Entries(objStmID) {
			entries[id] = e
		}
		entries[objStmID] = xref.Entry{Type: xref.TypeNormal, Offset: int64(buf.Len())}
		fmt.Fprintf(buf, "%d 0 obj\n", objStmID)
		buf.Write(packed.Dict())
		buf.WriteString("\nstream\n")
		buf.Write(packed.Compressed)
		buf.WriteString("\nendstream\nendobj\n")
	}

	start := buf.Len()
	entries[xrefID] = xref.Entry{Type: xref.TypeNormal, Offset: int64(start)}
	rows, err := encodeXRefRows(entries)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(buf, "%d 0 obj\n", xrefID)
	fmt.Fprintf(buf, "<< /Type /XRef /Size %d /Root %d 0 R /W [1 4 2] /Index [0 %d] "+
		"/Filter /FlateDecode /Length %d /ID [<12345> <12345>] >>\nstream\n",
		len(entries), rootID, len(entries), len(rows))
	buf.Write(rows)
	fmt.Fprintf(buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", start)
	return buf.Bytes(), nil
}

func encodeXRefRows(entries []xref.Entry) ([]byte, error) {
	return filters.NewFlateCodec().Encode(xref.EncodeStream(entries))
}

// hasStreamPayload reports whether body is a stream object, which cannot
// be packed into an object stream.
func hasStreamPayload(body []byte) bool {
	return bytes.HasSuffix(bytes.TrimSpace(body), []byte("endstream"))
}
