// Package objstream packs non-stream objects into /ObjStm object streams
// and unpacks them again. The packed payload is `id offset` pairs followed
// by the member bodies; offsets are relative to /First.
package objstream

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"pdfcodec/filters"
	"pdfcodec/xref"
)

var (
	ErrEmpty     = errors.New("object stream has no members")
	ErrBadHeader = errors.New("malformed object stream header")
)

// Packed is one assembled object stream. Payload is the uncompressed
// header-plus-bodies form; Compressed is its Flate encoding, which is what
// gets written to the file.
type Packed struct {
	IDs        []int
	Payload    []byte
	Compressed []byte
	First      int
}

// Pack assembles members into a single object stream. Members are ordered
// by ascending object number; an object's index within the stream is its
// position in that order.
func Pack(members map[int][]byte) (*Packed, error) {
	if len(members) == 0 {
		return nil, ErrEmpty
	}
	ids := make([]int, 0, len(members))
	for id := range members {
		if id <= 0 {
			return nil, fmt.Errorf("object number %d: %w", id, ErrBadHeader)
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)

	// Bodies are separated by a single space; Unpack trims it back off,
	// so member bodies round-trip byte for byte.
	var bodies bytes.Buffer
	offsets := make([]int, len(ids))
	for i, id := range ids {
		if i > 0 {
			bodies.WriteByte(' ')
		}
		offsets[i] = bodies.Len()
		bodies.Write(members[id])
	}

	var header bytes.Buffer
	for i, id := range ids {
		if i > 0 {
			header.WriteByte(' ')
		}
		fmt.Fprintf(&header, "%d %d", id, offsets[i])
	}

	first := header.Len() + 1
	payload := make([]byte, 0, first+bodies.Len())
	payload = append(payload, header.Bytes()...)
	payload = append(payload, ' ')
	payload = append(payload, bodies.Bytes()...)

	compressed, err := filters.NewFlateCodec().Encode(payload)
	if err != nil {
		return nil, err
	}
	return &Packed{IDs: ids, Payload: payload, Compressed: compressed, First: first}, nil
}

// Dict renders the object stream's dictionary.
func (p *Packed) Dict() []byte {
	return fmt.Appendf(nil, "<< /Type /ObjStm /N %d /First %d /Length %d /Filter /FlateDecode >>",
		len(p.IDs), p.First, len(p.Compressed))
}

// Entries returns the compressed cross-reference entries for every member,
// keyed by object number. streamObj is the object stream's own number.
func (p *Packed) Entries(streamObj int) map[int]xref.Entry {
	entries := make(map[int]xref.Entry, len(p.IDs))
	for i, id := range p.IDs {
		entries[id] = xref.Entry{Type: xref.TypeCompressed, StreamObj: streamObj, Index: i}
	}
	return entries
}

// Unpack splits a decoded object stream payload back into member bodies.
// n and first come from the stream dictionary's /N and /First.
func Unpack(payload []byte, n, first int) (map[int][]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("/N %d: %w", n, ErrBadHeader)
	}
	if first <= 0 || first > len(payload) {
		return nil, fmt.Errorf("/First %d outside payload of %d bytes: %w", first, len(payload), ErrBadHeader)
	}

	fields := bytes.Fields(payload[:first])
	if len(fields) != 2*n {
		return nil, fmt.Errorf("header has %d tokens, want %d: %w", len(fields), 2*n, ErrBadHeader)
	}
	ids := make([]int, n)
	offsets := make([]int, n)
	for i := 0; i < n; i++ {
		id, err1 := strconv.Atoi(string(fields[2*i]))
		off, err2 := strconv.Atoi(string(fields[2*i+1]))
		if err1 != nil || err2 != nil || id <= 0 || off < 0 {
			return nil, fmt.Errorf("header pair %d: %w", i, ErrBadHeader)
		}
		ids[i] = id
		offsets[i] = off
	}

	section := payload[first:]
	members := make(map[int][]byte, n)
	for i := 0; i < n; i++ {
		start := offsets[i]
		end := len(section)
		if i+1 < n {
			end = offsets[i+1]
		}
		if start > end || end > len(section) {
			return nil, fmt.Errorf("member %d span [%d:%d): %w", ids[i], start, end, ErrBadHeader)
		}
		members[ids[i]] = bytes.TrimSpace(section[start:end])
	}
	return members, nil
}
