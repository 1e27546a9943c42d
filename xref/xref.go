// Package xref encodes and resolves PDF cross-reference data, in both the
// classic ASCII table form and the binary cross-reference stream form.
package xref

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"

	"pdfcodec/filters"
	"pdfcodec/scanner"
)

var (
	ErrNoStartXRef = errors.New("startxref not found")
	ErrMalformed   = errors.New("malformed cross-reference data")
)

// Entry types mirror the cross-reference stream type field.
const (
	TypeFree       byte = 0
	TypeNormal     byte = 1
	TypeCompressed byte = 2
)

// Entry locates one object. TypeNormal entries carry a byte Offset;
// TypeCompressed entries name the containing object stream and the
// object's index within it.
type Entry struct {
	Type      byte
	Offset    int64
	StreamObj int
	Index     int
}

// StreamWidths is the /W layout emitted for cross-reference streams:
// a one-byte type, a four-byte second field, a two-byte third field,
// all big-endian.
var StreamWidths = [3]int{1, 4, 2}

// EncodeClassic renders a single-section classic table covering objects
// 0..len(entries)-1. Entry 0 is the free-list head regardless of its Type.
func EncodeClassic(entries []Entry) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "xref\n0 %d\n", len(entries))
	for i, e := range entries {
		if i == 0 || e.Type == TypeFree {
			gen := 0
			if i == 0 {
				gen = 65535
			}
			fmt.Fprintf(&b, "%010d %05d f \n", 0, gen)
			continue
		}
		fmt.Fprintf(&b, "%010d %05d n \n", e.Offset, 0)
	}
	return b.Bytes()
}

// EncodeStream renders the uncompressed row data for a cross-reference
// stream covering objects 0..len(entries)-1, using StreamWidths.
func EncodeStream(entries []Entry) []byte {
	var b bytes.Buffer
	var f2 [4]byte
	var f3 [2]byte
	for i, e := range entries {
		typ := e.Type
		var second uint32
		var third uint16
		switch typ {
		case TypeFree:
			if i == 0 {
				third = 65535
			}
		case TypeNormal:
			second = uint32(e.Offset)
		case TypeCompressed:
			second = uint32(e.StreamObj)
			third = uint16(e.Index)
		}
		binary.BigEndian.PutUint32(f2[:], second)
		binary.BigEndian.PutUint16(f3[:], third)
		b.WriteByte(typ)
		b.Write(f2[:])
		b.Write(f3[:])
	}
	return b.Bytes()
}

// Table is a resolved cross-reference section. Trailer holds the trailer
// dictionary span for classic tables, or the stream dictionary span for
// cross-reference streams; either carries /Size and /Root.
type Table struct {
	Entries map[int]Entry
	Trailer []byte
}

func (t *Table) Get(id int) (Entry, bool) {
	e, ok := t.Entries[id]
	return e, ok
}

// Root returns the catalog object number from the trailer.
func (t *Table) Root() (int, bool) {
	return scanner.RefAfter(t.Trailer, "Root")
}

// Size returns the declared /Size.
func (t *Table) Size() (int, bool) {
	return scanner.IntAfter(t.Trailer, "Size")
}

// Resolver parses the cross-reference section a document's startxref
// pointer designates.
type Resolver struct {
	pipeline *filters.Pipeline
}

func NewResolver() *Resolver {
	return &Resolver{pipeline: filters.Default()}
}

// Resolve locates the last startxref pointer and parses the table or
// stream found at its offset.
func (r *Resolver) Resolve(data []byte) (*Table, error) {
	off, err := startXRefOffset(data)
	if err != nil {
		return nil, err
	}
	pos := skipSpace(data, int(off))
	if pos >= len(data) {
		return nil, fmt.Errorf("startxref offset %d out of range: %w", off, ErrMalformed)
	}
	if bytes.HasPrefix(data[pos:], []byte("xref")) {
		return parseClassic(data, pos)
	}
	return r.parseStream(data, pos)
}

// startXRefOffset reads the integer after the last startxref keyword.
func startXRefOffset(data []byte) (int64, error) {
	k := bytes.LastIndex(data, []byte("startxref"))
	if k < 0 {
		return 0, ErrNoStartXRef
	}
	i := skipSpace(data, k+len("startxref"))
	start := i
	for i < len(data) && isDigit(data[i]) {
		i++
	}
	if i == start {
		return 0, fmt.Errorf("startxref missing offset: %w", ErrMalformed)
	}
	off, err := strconv.ParseInt(string(data[start:i]), 10, 64)
	if err != nil || off < 0 || off >= int64(len(data)) {
		return 0, fmt.Errorf("startxref offset %s: %w", data[start:i], ErrMalformed)
	}
	return off, nil
}

func parseClassic(data []byte, pos int) (*Table, error) {
	pos += len("xref")
	t := &Table{Entries: make(map[int]Entry)}
	for {
		pos = skipSpace(data, pos)
		if pos >= len(data) {
			return nil, fmt.Errorf("table ends before trailer: %w", ErrMalformed)
		}
		if bytes.HasPrefix(data[pos:], []byte("trailer")) {
			pos = skipSpace(data, pos+len("trailer"))
			end, err := scanner.DictSpan(data, pos)
			if err != nil {
				return nil, err
			}
			t.Trailer = data[pos:end]
			return t, nil
		}

		start, next, ok := readInt(data, pos)
		if !ok {
			return nil, fmt.Errorf("subsection header at offset %d: %w", pos, ErrMalformed)
		}
		count, next, ok := readInt(data, skipSpace(data, next))
		if !ok {
			return nil, fmt.Errorf("subsection header at offset %d: %w", pos, ErrMalformed)
		}
		pos = next
		for i := 0; i < count; i++ {
			off, n1, ok1 := readInt(data, skipSpace(data, pos))
			_, n2, ok2 := readInt(data, skipSpace(data, n1))
			k := skipSpace(data, n2)
			if !ok1 || !ok2 || k >= len(data) || (data[k] != 'n' && data[k] != 'f') {
				return nil, fmt.Errorf("entry %d at offset %d: %w", start+i, pos, ErrMalformed)
			}
			if data[k] == 'n' {
				t.Entries[start+i] = Entry{Type: TypeNormal, Offset: int64(off)}
			} else {
				t.Entries[start+i] = Entry{Type: TypeFree}
			}
			pos = k + 1
		}
	}
}

func (r *Resolver) parseStream(data []byte, pos int) (*Table, error) {
	dictStart := bytes.Index(data[pos:], []byte("<<"))
	if dictStart < 0 {
		return nil, fmt.Errorf("no dictionary at startxref target: %w", ErrMalformed)
	}
	dictStart += pos
	dictEnd, err := scanner.DictSpan(data, dictStart)
	if err != nil {
		return nil, err
	}
	dict := data[dictStart:dictEnd]

	if typ, _ := scanner.NameAfter(dict, "Type"); typ != "XRef" {
		return nil, fmt.Errorf("startxref target is not an XRef stream: %w", ErrMalformed)
	}
	widths, ok := scanner.IntsAfter(dict, "W")
	if !ok || len(widths) != 3 {
		return nil, fmt.Errorf("bad /W array: %w", ErrMalformed)
	}
	size, ok := scanner.IntAfter(dict, "Size")
	if !ok {
		return nil, fmt.Errorf("missing /Size: %w", ErrMalformed)
	}
	length, ok := scanner.IntAfter(dict, "Length")
	if !ok {
		return nil, fmt.Errorf("missing /Length: %w", ErrMalformed)
	}
	index, ok := scanner.IntsAfter(dict, "Index")
	if !ok {
		index = []int{0, size}
	}
	if len(index)%2 != 0 {
		return nil, fmt.Errorf("odd /Index array: %w", ErrMalformed)
	}

	payload, err := streamPayload(data, dictEnd, length)
	if err != nil {
		return nil, err
	}
	if filter, ok := scanner.NameAfter(dict, "Filter"); ok {
		payload, err = r.pipeline.Decode(payload, []string{filter})
		if err != nil {
			return nil, err
		}
	}

	rowWidth := widths[0] + widths[1] + widths[2]
	if rowWidth == 0 {
		return nil, fmt.Errorf("zero-width rows: %w", ErrMalformed)
	}

	t := &Table{Entries: make(map[int]Entry), Trailer: dict}
	row := 0
	for p := 0; p+1 < len(index); p += 2 {
		first, count := index[p], index[p+1]
		for i := 0; i < count; i++ {
			base := row * rowWidth
			row++
			if base+rowWidth > len(payload) {
				return nil, fmt.Errorf("row for object %d past stream end: %w", first+i, ErrMalformed)
			}
			f1 := readField(payload[base:], 0, widths[0])
			f2 := readField(payload[base:], widths[0], widths[1])
			f3 := readField(payload[base:], widths[0]+widths[1], widths[2])
			if widths[0] == 0 {
				f1 = uint64(TypeNormal)
			}
			id := first + i
			switch byte(f1) {
			case TypeFree:
				t.Entries[id] = Entry{Type: TypeFree}
			case TypeNormal:
				t.Entries[id] = Entry{Type: TypeNormal, Offset: int64(f2)}
			case TypeCompressed:
				t.Entries[id] = Entry{Type: TypeCompressed, StreamObj: int(f2), Index: int(f3)}
			default:
				return nil, fmt.Errorf("entry type %d for object %d: %w", f1, id, ErrMalformed)
			}
		}
	}
	return t, nil
}

// streamPayload returns length bytes starting just past the stream
// keyword's end-of-line after dictEnd.
func streamPayload(data []byte, dictEnd, length int) ([]byte, error) {
	k := bytes.Index(data[dictEnd:], []byte("stream"))
	if k < 0 {
		return nil, fmt.Errorf("missing stream keyword: %w", ErrMalformed)
	}
	start := dictEnd + k + len("stream")
	if start < len(data) && data[start] == '\r' {
		start++
	}
	if start < len(data) && data[start] == '\n' {
		start++
	}
	if start+length > len(data) {
		return nil, fmt.Errorf("stream length %d past end of input: %w", length, ErrMalformed)
	}
	return data[start : start+length], nil
}

// readField reads width big-endian bytes at off. Zero width yields zero.
func readField(row []byte, off, width int) uint64 {
	var v uint64
	for i := 0; i < width; i++ {
		v = v<<8 | uint64(row[off+i])
	}
	return v
}

func readInt(data []byte, pos int) (val, next int, ok bool) {
	start := pos
	for pos < len(data) && isDigit(data[pos]) {
		pos++
	}
	if pos == start {
		return 0, pos, false
	}
	n, err := strconv.Atoi(string(data[start:pos]))
	if err != nil {
		return 0, pos, false
	}
	return n, pos, true
}

func skipSpace(data []byte, i int) int {
	for i < len(data) && (data[i] == ' ' || data[i] == '\t' || data[i] == '\r' || data[i] == '\n' || data[i] == 0x00 || data[i] == 0x0C) {
		i++
	}
	return i
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
