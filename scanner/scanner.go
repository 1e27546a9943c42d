// Package scanner extracts top-level objects, the trailer, and dictionary
// sub-ranges from raw PDF bytes. It expects a classic-style document whose
// objects are declared sequentially and uncompressed; objects packed into
// object streams are handled one level up by the flatten orchestration.
package scanner

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"pdfcodec/literal"
	"pdfcodec/recovery"
)

var (
	ErrNoPage          = errors.New("no page object found")
	ErrUnbalanced      = errors.New("unbalanced dictionary delimiters")
	ErrTruncatedObject = errors.New("truncated object")
)

type Config struct {
	Recovery recovery.Strategy
}

// Document is the scan result: object number to trimmed body, plus the
// trailer dictionary bytes and the header version.
type Document struct {
	Objects map[int][]byte
	Trailer []byte
	Version string
}

// IDs returns the object numbers in ascending order.
func (d *Document) IDs() []int {
	ids := make([]int, 0, len(d.Objects))
	for id := range d.Objects {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// MaxID returns the highest object number seen, or 0 for an empty scan.
func (d *Document) MaxID() int {
	max := 0
	for id := range d.Objects {
		if id > max {
			max = id
		}
	}
	return max
}

// Scan extracts every `N 0 obj ... endobj` span. Stream payloads are kept
// intact: an `endobj` appearing inside `stream ... endstream` data does not
// terminate the object.
func Scan(data []byte, cfg Config) (*Document, error) {
	doc := &Document{
		Objects: make(map[int][]byte),
		Version: headerVersion(data),
	}

	pos := 0
	for {
		num, bodyStart, headerStart, ok := nextObjectHeader(data, pos)
		if !ok {
			break
		}
		end := findEndObj(data, bodyStart)
		if end < 0 {
			err := fmt.Errorf("object %d at offset %d: %w", num, headerStart, ErrTruncatedObject)
			if cfg.Recovery != nil {
				action := cfg.Recovery.OnError(err, recovery.Location{
					ByteOffset: int64(headerStart),
					ObjectNum:  num,
					Component:  "scanner",
				})
				if action == recovery.ActionFix || action == recovery.ActionSkip {
					break
				}
			}
			return nil, err
		}
		doc.Objects[num] = bytes.TrimSpace(data[bodyStart:end])
		pos = end + len("endobj")
	}

	doc.Trailer = trailerSection(data)
	return doc, nil
}

// nextObjectHeader finds the next `N 0 obj` header at or after pos. It
// returns the object number, the index just past the `obj` keyword, and the
// index where the number begins.
func nextObjectHeader(data []byte, pos int) (num, bodyStart, headerStart int, ok bool) {
	for {
		k := indexKeyword(data, pos, "obj")
		if k < 0 {
			return 0, 0, 0, false
		}
		n, g, start, matched := headerBefore(data, k)
		if matched && g == 0 {
			return n, k + 3, start, true
		}
		pos = k + 3
	}
}

// headerBefore walks backwards from the `obj` keyword over `<num> <gen>`.
func headerBefore(data []byte, objPos int) (num, gen, start int, ok bool) {
	i := objPos
	i = skipSpaceBack(data, i)
	genEnd := i
	for i > 0 && isDigit(data[i-1]) {
		i--
	}
	if i == genEnd {
		return 0, 0, 0, false
	}
	g, err := strconv.Atoi(string(data[i:genEnd]))
	if err != nil {
		return 0, 0, 0, false
	}
	i = skipSpaceBack(data, i)
	numEnd := i
	for i > 0 && isDigit(data[i-1]) {
		i--
	}
	if i == numEnd {
		return 0, 0, 0, false
	}
	n, err := strconv.Atoi(string(data[i:numEnd]))
	if err != nil || n <= 0 {
		return 0, 0, 0, false
	}
	// The number must start a token.
	if i > 0 && !isDelimiter(data[i-1]) {
		return 0, 0, 0, false
	}
	return n, g, i, true
}

// findEndObj locates the `endobj` keyword terminating the object that
// starts at from, stepping over any `stream ... endstream` payload.
func findEndObj(data []byte, from int) int {
	i := from
	for {
		e := indexKeyword(data, i, "endobj")
		if e < 0 {
			return -1
		}
		s := indexKeyword(data, i, "stream")
		if s >= 0 && s < e {
			es := indexKeyword(data, s+len("stream"), "endstream")
			if es < 0 {
				return -1
			}
			i = es + len("endstream")
			continue
		}
		return e
	}
}

// trailerSection returns the trimmed bytes between the last `trailer`
// keyword and the `startxref` that follows it, or nil when absent.
func trailerSection(data []byte) []byte {
	t := lastIndexKeyword(data, "trailer")
	if t < 0 {
		return nil
	}
	s := indexKeyword(data, t, "startxref")
	if s < 0 {
		return nil
	}
	return bytes.TrimSpace(data[t+len("trailer") : s])
}

func headerVersion(data []byte) string {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return ""
	}
	line := data[len("%PDF-"):]
	if i := bytes.IndexAny(line, "\r\n"); i >= 0 {
		line = line[:i]
	}
	return string(bytes.TrimSpace(line))
}

// FindPage returns the lowest-numbered object declaring /Type /Page.
func (d *Document) FindPage() (int, []byte, error) {
	for _, id := range d.IDs() {
		if hasPageType(d.Objects[id]) {
			return id, d.Objects[id], nil
		}
	}
	return 0, nil, ErrNoPage
}

// Pages returns every object number declaring /Type /Page.
func (d *Document) Pages() []int {
	var pages []int
	for _, id := range d.IDs() {
		if hasPageType(d.Objects[id]) {
			pages = append(pages, id)
		}
	}
	return pages
}

// hasPageType reports whether body declares /Type /Page. /Type /Pages does
// not match: the name must end at a delimiter.
func hasPageType(body []byte) bool {
	pos := 0
	for {
		k := indexName(body, pos, "Type")
		if k < 0 {
			return false
		}
		j := skipSpace(body, k+len("/Type"))
		if bytes.HasPrefix(body[j:], []byte("/Page")) {
			after := j + len("/Page")
			if after >= len(body) || isDelimiter(body[after]) {
				return true
			}
		}
		pos = k + 1
	}
}

// PageInfo captures the page-object structure the flatten path rewrites.
type PageInfo struct {
	Annots    []int
	HasAnnots bool
	Contents  int
	// Resources is the inline << ... >> span; Start/End index it within
	// the page body. Start is -1 when the page has no inline Resources.
	Resources []byte
	ResStart  int
	ResEnd    int
}

// ExtractPageInfo pulls /Annots, /Contents and the /Resources span out of
// a page body.
func ExtractPageInfo(body []byte) (*PageInfo, error) {
	info := &PageInfo{ResStart: -1, ResEnd: -1}

	if k := indexName(body, 0, "Annots"); k >= 0 {
		j := skipSpace(body, k+len("/Annots"))
		if j < len(body) && body[j] == '[' {
			end, err := arraySpan(body, j)
			if err != nil {
				return nil, err
			}
			info.HasAnnots = true
			info.Annots = parseRefs(body[j+1 : end])
		}
	}

	if ref, ok := RefAfter(body, "Contents"); ok {
		info.Contents = ref
	}

	if k := indexName(body, 0, "Resources"); k >= 0 {
		j := skipSpace(body, k+len("/Resources"))
		if j+1 < len(body) && body[j] == '<' && body[j+1] == '<' {
			end, err := DictSpan(body, j)
			if err != nil {
				return nil, err
			}
			info.Resources = body[j:end]
			info.ResStart = j
			info.ResEnd = end
		}
	}

	return info, nil
}

// DictSpan returns the index just past the `>>` matching the `<<` at
// start. Nesting is tracked with an explicit depth counter; literal
// strings are skipped so parentheses content cannot unbalance the scan.
func DictSpan(data []byte, start int) (int, error) {
	if start+1 >= len(data) || data[start] != '<' || data[start+1] != '<' {
		return 0, fmt.Errorf("offset %d: %w", start, ErrUnbalanced)
	}
	depth := 0
	for i := start; i < len(data); i++ {
		switch data[i] {
		case '<':
			if i+1 < len(data) && data[i+1] == '<' {
				depth++
				i++
			} else {
				// Hex string: skip to its terminator.
				for i++; i < len(data) && data[i] != '>'; i++ {
				}
			}
		case '>':
			if i+1 < len(data) && data[i+1] == '>' {
				depth--
				i++
				if depth == 0 {
					return i + 1, nil
				}
			}
		case '(':
			end, ok := literal.ScanBalanced(data, i)
			if !ok {
				return 0, fmt.Errorf("offset %d: %w", i, ErrUnbalanced)
			}
			i = end
		}
	}
	return 0, fmt.Errorf("offset %d: %w", start, ErrUnbalanced)
}

// arraySpan returns the index of the `]` matching the `[` at start.
func arraySpan(data []byte, start int) (int, error) {
	depth := 0
	for i := start; i < len(data); i++ {
		switch data[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i, nil
			}
		case '(':
			end, ok := literal.ScanBalanced(data, i)
			if !ok {
				return 0, fmt.Errorf("offset %d: %w", i, ErrUnbalanced)
			}
			i = end
		}
	}
	return 0, fmt.Errorf("offset %d: %w", start, ErrUnbalanced)
}

// parseRefs extracts the object numbers of every `N 0 R` reference in span.
func parseRefs(span []byte) []int {
	var refs []int
	for i := 0; i < len(span); {
		if !isDigit(span[i]) {
			i++
			continue
		}
		num, next, ok := parseRefAt(span, i)
		if ok {
			refs = append(refs, num)
			i = next
			continue
		}
		for i < len(span) && isDigit(span[i]) {
			i++
		}
	}
	return refs
}

// parseRefAt parses `N G R` starting at i, returning N and the index past
// the R keyword.
func parseRefAt(data []byte, i int) (num, next int, ok bool) {
	start := i
	for i < len(data) && isDigit(data[i]) {
		i++
	}
	if i == start {
		return 0, 0, false
	}
	n, _ := strconv.Atoi(string(data[start:i]))
	i = skipSpace(data, i)
	genStart := i
	for i < len(data) && isDigit(data[i]) {
		i++
	}
	if i == genStart {
		return 0, 0, false
	}
	i = skipSpace(data, i)
	if i >= len(data) || data[i] != 'R' {
		return 0, 0, false
	}
	if i+1 < len(data) && !isDelimiter(data[i+1]) {
		return 0, 0, false
	}
	return n, i + 1, true
}

// RefAfter finds `/key N G R` and returns N.
func RefAfter(data []byte, key string) (int, bool) {
	k := indexName(data, 0, key)
	if k < 0 {
		return 0, false
	}
	j := skipSpace(data, k+len(key)+1)
	num, _, ok := parseRefAt(data, j)
	return num, ok
}

// NameAfter finds `/key /Value` and returns Value.
func NameAfter(data []byte, key string) (string, bool) {
	k := indexName(data, 0, key)
	if k < 0 {
		return "", false
	}
	j := skipSpace(data, k+len(key)+1)
	if j >= len(data) || data[j] != '/' {
		return "", false
	}
	j++
	start := j
	for j < len(data) && !isDelimiter(data[j]) {
		j++
	}
	if j == start {
		return "", false
	}
	return string(data[start:j]), true
}

// LiteralAfter finds `/key (...)` and returns the raw, undecoded interior
// of the first balanced literal string after the key.
func LiteralAfter(data []byte, key string) ([]byte, bool) {
	k := indexName(data, 0, key)
	if k < 0 {
		return nil, false
	}
	j := skipSpace(data, k+len(key)+1)
	if j >= len(data) || data[j] != '(' {
		return nil, false
	}
	end, ok := literal.ScanBalanced(data, j)
	if !ok {
		return nil, false
	}
	return data[j+1 : end], true
}

// KeyValueSpan returns the byte range covering `/key` and its direct
// value: a reference, array, dictionary, literal string, name, or plain
// token.
func KeyValueSpan(data []byte, key string) (start, end int, ok bool) {
	k := indexName(data, 0, key)
	if k < 0 {
		return 0, 0, false
	}
	j := skipSpace(data, k+len(key)+1)
	if j >= len(data) {
		return 0, 0, false
	}
	switch {
	case data[j] == '[':
		e, err := arraySpan(data, j)
		if err != nil {
			return 0, 0, false
		}
		return k, e + 1, true
	case data[j] == '<' && j+1 < len(data) && data[j+1] == '<':
		e, err := DictSpan(data, j)
		if err != nil {
			return 0, 0, false
		}
		return k, e, true
	case data[j] == '(':
		e, balanced := literal.ScanBalanced(data, j)
		if !balanced {
			return 0, 0, false
		}
		return k, e + 1, true
	case isDigit(data[j]):
		if _, next, refOK := parseRefAt(data, j); refOK {
			return k, next, true
		}
		fallthrough
	default:
		e := j
		if data[e] == '/' {
			e++
		}
		for e < len(data) && !isDelimiter(data[e]) {
			e++
		}
		if e == j {
			return 0, 0, false
		}
		return k, e, true
	}
}

// DictAfter finds `/key << ... >>` and returns the inline dictionary span.
// Indirect values do not match.
func DictAfter(data []byte, key string) ([]byte, bool) {
	k := indexName(data, 0, key)
	if k < 0 {
		return nil, false
	}
	j := skipSpace(data, k+len(key)+1)
	if j+1 >= len(data) || data[j] != '<' || data[j+1] != '<' {
		return nil, false
	}
	end, err := DictSpan(data, j)
	if err != nil {
		return nil, false
	}
	return data[j:end], true
}

// IntAfter finds `/key N` for a direct integer value N.
func IntAfter(data []byte, key string) (int, bool) {
	k := indexName(data, 0, key)
	if k < 0 {
		return 0, false
	}
	j := skipSpace(data, k+len(key)+1)
	start := j
	if j < len(data) && (data[j] == '+' || data[j] == '-') {
		j++
	}
	for j < len(data) && isDigit(data[j]) {
		j++
	}
	if j == start {
		return 0, false
	}
	n, err := strconv.Atoi(string(data[start:j]))
	if err != nil {
		return 0, false
	}
	return n, true
}

// IntsAfter finds `/key [ ... ]` and returns every integer in the array.
func IntsAfter(data []byte, key string) ([]int, bool) {
	k := indexName(data, 0, key)
	if k < 0 {
		return nil, false
	}
	j := skipSpace(data, k+len(key)+1)
	if j >= len(data) || data[j] != '[' {
		return nil, false
	}
	end, err := arraySpan(data, j)
	if err != nil {
		return nil, false
	}
	fields := bytes.Fields(data[j+1 : end])
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(string(f))
		if err != nil {
			return nil, false
		}
		out = append(out, n)
	}
	return out, true
}

// NumbersAfter finds `/key [ a b c d ]` and returns up to want numbers.
func NumbersAfter(data []byte, key string, want int) ([]float64, bool) {
	k := indexName(data, 0, key)
	if k < 0 {
		return nil, false
	}
	j := skipSpace(data, k+len(key)+1)
	if j >= len(data) || data[j] != '[' {
		return nil, false
	}
	end, err := arraySpan(data, j)
	if err != nil {
		return nil, false
	}
	fields := bytes.Fields(data[j+1 : end])
	if len(fields) < want {
		return nil, false
	}
	out := make([]float64, 0, want)
	for _, f := range fields[:want] {
		v, err := strconv.ParseFloat(string(f), 64)
		if err != nil {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

// indexName finds the token `/name` (delimiter-terminated) at or after pos.
func indexName(data []byte, pos int, name string) int {
	needle := []byte("/" + name)
	for {
		rel := bytes.Index(data[pos:], needle)
		if rel < 0 {
			return -1
		}
		k := pos + rel
		after := k + len(needle)
		if after >= len(data) || isDelimiter(data[after]) {
			return k
		}
		pos = k + 1
	}
}

// indexKeyword finds a bare keyword delimited on both sides.
func indexKeyword(data []byte, pos int, kw string) int {
	needle := []byte(kw)
	for {
		rel := bytes.Index(data[pos:], needle)
		if rel < 0 {
			return -1
		}
		k := pos + rel
		after := k + len(needle)
		beforeOK := k == 0 || isDelimiter(data[k-1])
		afterOK := after >= len(data) || isDelimiter(data[after])
		if beforeOK && afterOK {
			return k
		}
		pos = k + 1
	}
}

func lastIndexKeyword(data []byte, kw string) int {
	last := -1
	pos := 0
	for {
		k := indexKeyword(data, pos, kw)
		if k < 0 {
			return last
		}
		last = k
		pos = k + len(kw)
	}
}

func skipSpace(data []byte, i int) int {
	for i < len(data) && isWhitespace(data[i]) {
		i++
	}
	return i
}

func skipSpaceBack(data []byte, i int) int {
	for i > 0 && isWhitespace(data[i-1]) {
		i--
	}
	return i
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// whitespace per PDF spec (space, tab, CR, LF, FF, null)
func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return isWhitespace(c)
	}
}
