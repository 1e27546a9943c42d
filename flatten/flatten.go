// Package flatten turns a single-page AcroForm document into a flat one:
// widget values are painted into an overlay content stream, consumed
// widget annotations are dropped, and the file is rebuilt with a classic
// cross-reference table.
package flatten

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"pdfcodec/contentstream"
	"pdfcodec/filters"
	"pdfcodec/forms"
	"pdfcodec/literal"
	"pdfcodec/objstream"
	"pdfcodec/observability"
	"pdfcodec/recovery"
	"pdfcodec/resources"
	"pdfcodec/scanner"
	"pdfcodec/writer"
)

var ErrUnsupportedStructure = errors.New("unsupported document structure")

type Config struct {
	Logger   observability.Logger
	Recovery recovery.Strategy
}

// Flatten rewrites pdf with its form values painted onto the page. A
// document with no drawable widget values is returned unchanged, which
// also makes the operation idempotent.
func Flatten(pdf []byte, cfg Config) ([]byte, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger{}
	}
	started := time.Now()

	doc, err := scanner.Scan(pdf, scanner.Config{Recovery: cfg.Recovery})
	if err != nil {
		return nil, err
	}
	if err := inlineObjectStreams(doc); err != nil {
		return nil, err
	}
	logger.Debug("document scanned",
		observability.Int(observability.MetricObjectCount, len(doc.Objects)))

	pageID, pageBody, err := doc.FindPage()
	if err != nil {
		return nil, err
	}
	if pages := doc.Pages(); len(pages) > 1 {
		return nil, fmt.Errorf("%d page objects: %w", len(pages), ErrUnsupportedStructure)
	}
	info, err := scanner.ExtractPageInfo(pageBody)
	if err != nil {
		return nil, err
	}

	defaults := forms.AcroFormDefaults(doc.Objects)
	draw, kept := forms.Classify(info.Annots, doc.Objects)
	logger.Debug("fields resolved",
		observability.Int(observability.MetricWidgetCount, len(draw)),
		observability.Int("annotations.kept", len(kept)))

	for _, w := range draw {
		w.Value = literal.NormalizeLatin1(string(w.Value))
	}
	overlay := contentstream.BuildOverlay(draw, defaults)
	if overlay == nil {
		logger.Info("nothing to flatten, returning input unchanged")
		return pdf, nil
	}

	store := writer.NewStoreFrom(doc.Objects)
	// Cross-reference and object-stream carriers are superseded by the
	// classic rebuild.
	for id, body := range doc.Objects {
		if typ, _ := scanner.NameAfter(body, "Type"); typ == "ObjStm" || typ == "XRef" {
			store.Put(id, []byte("<< /Type /Null >>"))
		}
	}

	fontRef := defaults.FontRef
	if fontRef == 0 {
		fontRef = store.Alloc([]byte("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>"))
	}
	overlayID := store.Alloc(fmt.Appendf(nil, "<< /Length %d >>\nstream\n%s\nendstream", len(overlay), overlay))
	logger.Debug("overlay built",
		observability.Int("overlay.object", overlayID),
		observability.Int("overlay.bytes", len(overlay)))

	newPage, err := rewritePage(pageBody, info, kept, overlayID, fontRef, store)
	if err != nil {
		return nil, err
	}
	store.Put(pageID, newPage)
	logger.Debug("page rewritten", observability.Int("page.object", pageID))

	rootID := 0
	if _, ok := scanner.RefAfter(doc.Trailer, "Root"); !ok {
		rootID = findCatalog(doc.Objects)
		if rootID == 0 {
			return nil, fmt.Errorf("no catalog object: %w", ErrUnsupportedStructure)
		}
	}

	out, err := writer.Assemble(store, rootID, writer.Config{
		Version:      doc.Version,
		TrailerExtra: doc.Trailer,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("document flattened",
		observability.Int64(observability.MetricFlattenTime, time.Since(started).Milliseconds()),
		observability.Int(observability.MetricCompressedBytes, len(out)))
	return out, nil
}

// inlineObjectStreams replaces nothing but adds: members of every /ObjStm
// object are unpacked into the document's object map so later stages see
// one flat namespace. Top-level declarations win on collision.
func inlineObjectStreams(doc *scanner.Document) error {
	pipeline := filters.Default()
	for _, id := range doc.IDs() {
		body := doc.Objects[id]
		if typ, _ := scanner.NameAfter(body, "Type"); typ != "ObjStm" {
			continue
		}
		n, okN := scanner.IntAfter(body, "N")
		first, okF := scanner.IntAfter(body, "First")
		length, okL := scanner.IntAfter(body, "Length")
		if !okN || !okF || !okL {
			return fmt.Errorf("object stream %d missing /N, /First or /Length: %w", id, ErrUnsupportedStructure)
		}
		payload, err := streamPayload(body, length)
		if err != nil {
			return fmt.Errorf("object stream %d: %w", id, err)
		}
		if filter, ok := scanner.NameAfter(body, "Filter"); ok {
			if filter != filters.FlateName {
				return fmt.Errorf("object stream %d filter %s: %w", id, filter, ErrUnsupportedStructure)
			}
			payload, err = pipeline.Decode(payload, []string{filter})
			if err != nil {
				return fmt.Errorf("object stream %d: %w", id, err)
			}
		}
		members, err := objstream.Unpack(payload, n, first)
		if err != nil {
			return fmt.Errorf("object stream %d: %w", id, err)
		}
		for memberID, memberBody := range members {
			if _, exists := doc.Objects[memberID]; !exists {
				doc.Objects[memberID] = memberBody
			}
		}
	}
	return nil
}

// streamPayload slices length bytes following the stream keyword's
// end-of-line inside an object body.
func streamPayload(body []byte, length int) ([]byte, error) {
	k := bytes.Index(body, []byte("stream"))
	if k < 0 {
		return nil, errors.New("missing stream keyword")
	}
	start := k + len("stream")
	if start < len(body) && body[start] == '\r' {
		start++
	}
	if start < len(body) && body[start] == '\n' {
		start++
	}
	if start+length > len(body) {
		return nil, fmt.Errorf("stream length %d past object end", length)
	}
	return body[start : start+length], nil
}

// rewritePage produces the flattened page body: surviving annotations,
// the overlay appended to /Contents, and resources that expose /Helv.
func rewritePage(body []byte, info *scanner.PageInfo, kept []int, overlayID, fontRef int, store *writer.Store) ([]byte, error) {
	out := append([]byte(nil), body...)

	if info.HasAnnots {
		if start, end, ok := scanner.KeyValueSpan(out, "Annots"); ok {
			if len(kept) == 0 {
				out = splice(out, start, end, nil)
			} else {
				arr := &bytes.Buffer{}
				arr.WriteString("/Annots [")
				for i, ref := range kept {
					if i > 0 {
						arr.WriteByte(' ')
					}
					fmt.Fprintf(arr, "%d 0 R", ref)
				}
				arr.WriteByte(']')
				out = splice(out, start, end, arr.Bytes())
			}
		}
	}

	if info.Contents > 0 {
		start, end, ok := scanner.KeyValueSpan(out, "Contents")
		if !ok {
			return nil, fmt.Errorf("page /Contents vanished during rewrite: %w", ErrUnsupportedStructure)
		}
		repl := fmt.Appendf(nil, "/Contents [%d 0 R %d 0 R]", info.Contents, overlayID)
		out = splice(out, start, end, repl)
	} else {
		// No original content: the overlay becomes the page content.
		out = insertAfterOpen(out, fmt.Appendf(nil, " /Contents %d 0 R", overlayID))
	}

	switch {
	case info.ResStart >= 0:
		start, end, ok := scanner.KeyValueSpan(out, "Resources")
		if !ok {
			return nil, fmt.Errorf("page /Resources vanished during rewrite: %w", ErrUnsupportedStructure)
		}
		span := bytes.TrimSpace(out[start+len("/Resources") : end])
		merged, err := mergeResources(span, fontRef, store)
		if err != nil {
			return nil, err
		}
		repl := append([]byte("/Resources "), merged...)
		out = splice(out, start, end, repl)
	default:
		if ref, ok := scanner.RefAfter(body, "Resources"); ok {
			resBody, found := store.Get(ref)
			if !found {
				return nil, fmt.Errorf("resources object %d missing: %w", ref, ErrUnsupportedStructure)
			}
			merged, err := mergeResources(resBody, fontRef, store)
			if err != nil {
				return nil, err
			}
			store.Put(ref, merged)
		} else {
			out = insertAfterOpen(out, fmt.Appendf(nil, " /Resources %s", resources.MergeFont(nil, fontRef)))
		}
	}

	return out, nil
}

// mergeResources exposes /Helv in a resources dictionary. An indirect
// /Font entry is resolved and replaced with the merged inline dictionary
// so the page's original font entries stay reachable alongside /Helv.
func mergeResources(res []byte, helvRef int, store *writer.Store) ([]byte, error) {
	if ref, ok := resources.FontRef(res); ok {
		fontBody, found := store.Get(ref)
		if !found {
			return nil, fmt.Errorf("font object %d missing: %w", ref, ErrUnsupportedStructure)
		}
		merged := resources.MergeFontDict(fontBody, helvRef)
		return resources.ReplaceFontRef(res, merged), nil
	}
	return resources.MergeFont(res, helvRef), nil
}

func findCatalog(objects map[int][]byte) int {
	best := 0
	for id, body := range objects {
		if typ, _ := scanner.NameAfter(body, "Type"); typ == "Catalog" {
			if best == 0 || id < best {
				best = id
			}
		}
	}
	return best
}

func splice(data []byte, start, end int, repl []byte) []byte {
	out := make([]byte, 0, len(data)-(end-start)+len(repl))
	out = append(out, data[:start]...)
	out = append(out, repl...)
	out = append(out, data[end:]...)
	return out
}

// insertAfterOpen adds an entry right after the page dictionary's opening
// delimiter.
func insertAfterOpen(data, entry []byte) []byte {
	i := bytes.Index(data, []byte("<<"))
	if i < 0 {
		return data
	}
	return splice(data, i+2, i+2, entry)
}
