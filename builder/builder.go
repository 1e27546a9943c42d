// Package builder assembles single-page AcroForm documents from scratch:
// a titled page, static labels, and widget annotations for each field. The
// output uses object streams and a cross-reference stream.
package builder

import (
	"bytes"
	"errors"
	"fmt"

	"pdfcodec/filters"
	"pdfcodec/literal"
	"pdfcodec/observability"
	"pdfcodec/writer"
)

var ErrInvalidField = errors.New("invalid field definition")

// Field flag bits, as stored in /Ff.
const (
	FlagMultiline = 1 << 12       // 4096
	FlagRadio     = 1<<15 | 1<<14 // 49152: radio with no-toggle-to-off
)

type fieldKind int

const (
	kindText fieldKind = iota
	kindMultiline
	kindCheckbox
	kindRadio
)

type field struct {
	kind  fieldKind
	name  string
	label string
	value string
	rect  [4]float64
}

// Document accumulates page content and fields; Build renders them.
type Document struct {
	title    string
	subtitle string
	fields   []field
	logger   observability.Logger
	err      error
}

func New(title, subtitle string) *Document {
	return &Document{title: title, subtitle: subtitle, logger: observability.NopLogger{}}
}

// WithLogger attaches a logger used during Build.
func (d *Document) WithLogger(logger observability.Logger) *Document {
	if logger != nil {
		d.logger = logger
	}
	return d
}

func (d *Document) add(f field) *Document {
	if d.err != nil {
		return d
	}
	if f.name == "" {
		d.err = fmt.Errorf("field needs a name: %w", ErrInvalidField)
		return d
	}
	if f.rect[2] <= f.rect[0] || f.rect[3] <= f.rect[1] {
		d.err = fmt.Errorf("field %s: degenerate rectangle %v: %w", f.name, f.rect, ErrInvalidField)
		return d
	}
	d.fields = append(d.fields, f)
	return d
}

// AddTextField adds a single-line text field with an initial value.
func (d *Document) AddTextField(name, label, value string, rect [4]float64) *Document {
	return d.add(field{kind: kindText, name: name, label: label, value: value, rect: rect})
}

// AddMultilineTextField adds a text field with the multiline flag set.
func (d *Document) AddMultilineTextField(name, label, value string, rect [4]float64) *Document {
	return d.add(field{kind: kindMultiline, name: name, label: label, value: value, rect: rect})
}

// AddCheckbox adds a checkbox; checked maps to the conventional /V (Yes).
func (d *Document) AddCheckbox(name, label string, checked bool, rect [4]float64) *Document {
	value := "Off"
	if checked {
		value = "Yes"
	}
	return d.add(field{kind: kindCheckbox, name: name, label: label, value: value, rect: rect})
}

// AddRadioGroup adds a radio button group holding the selected value.
func (d *Document) AddRadioGroup(name, label, value string, rect [4]float64) *Document {
	return d.add(field{kind: kindRadio, name: name, label: label, value: value, rect: rect})
}

// Fixed object numbers for the document skeleton; widgets follow.
const (
	catalogID     = 1
	pagesID       = 2
	pageID        = 3
	contentID     = 4
	fontID        = 5
	firstWidgetID = 6
)

// Build renders the accumulated document into an object store rooted at
// the catalog.
func (d *Document) Build() (*writer.Store, int, error) {
	if d.err != nil {
		return nil, 0, d.err
	}

	store := writer.NewStore()

	widgetIDs := make([]int, len(d.fields))
	for i := range d.fields {
		widgetIDs[i] = firstWidgetID + i
	}

	fieldRefs := &bytes.Buffer{}
	for i, id := range widgetIDs {
		if i > 0 {
			fieldRefs.WriteByte(' ')
		}
		fmt.Fprintf(fieldRefs, "%d 0 R", id)
	}
	store.Put(catalogID, fmt.Appendf(nil,
		"<< /Type /Catalog /Pages %d 0 R /AcroForm << /Fields [%s] /NeedAppearances true "+
			"/DA (/Helv 0 Tf 0 g) /DR << /Font << /Helv %d 0 R >> >> >> >>",
		pagesID, fieldRefs.Bytes(), fontID))

	store.Put(pagesID, fmt.Appendf(nil,
		"<< /Type /Pages /Kids [%d 0 R] /Count 1 >>", pageID))

	annots := &bytes.Buffer{}
	if len(widgetIDs) > 0 {
		annots.WriteString(" /Annots [")
		for i, id := range widgetIDs {
			if i > 0 {
				annots.WriteByte(' ')
			}
			fmt.Fprintf(annots, "%d 0 R", id)
		}
		annots.WriteByte(']')
	}
	store.Put(pageID, fmt.Appendf(nil,
		"<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792] /Contents %d 0 R "+
			"/Resources << /Font << /Helv %d 0 R >> /ProcSet [/PDF /Text] >>%s >>",
		pagesID, contentID, fontID, annots.Bytes()))

	content, err := d.labelStream()
	if err != nil {
		return nil, 0, err
	}
	store.Put(contentID, content)

	store.Put(fontID, []byte("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>"))

	for i, f := range d.fields {
		store.Put(widgetIDs[i], widgetBody(f, pageID))
	}

	d.logger.Info("form document built",
		observability.Int(observability.MetricWidgetCount, len(d.fields)),
		observability.Int(observability.MetricObjectCount, store.Len()))
	return store, catalogID, nil
}

// Bytes builds the document and assembles it in compressed form.
func (d *Document) Bytes() ([]byte, error) {
	store, root, err := d.Build()
	if err != nil {
		return nil, err
	}
	return writer.Assemble(store, root, writer.Config{
		XRefStreams:   true,
		ObjectStreams: true,
		Logger:        d.logger,
	})
}

// labelStream draws the title, subtitle and field labels as a compressed
// content stream object.
func (d *Document) labelStream() ([]byte, error) {
	ops := &bytes.Buffer{}
	if d.title != "" {
		fmt.Fprintf(ops, "BT /Helv 18 Tf 0 0 0 rg 72 740 Td (%s) Tj ET\n",
			literal.Encode(literal.NormalizeLatin1(d.title)))
	}
	if d.subtitle != "" {
		fmt.Fprintf(ops, "BT /Helv 11 Tf 0 0 0 rg 72 722 Td (%s) Tj ET\n",
			literal.Encode(literal.NormalizeLatin1(d.subtitle)))
	}
	for _, f := range d.fields {
		if f.label == "" {
			continue
		}
		// Labels sit to the left of their field, on the field baseline.
		y := f.rect[1] + (f.rect[3]-f.rect[1]-10)/2
		if y < f.rect[1] {
			y = f.rect[1]
		}
		fmt.Fprintf(ops, "BT /Helv 10 Tf 0 0 0 rg 72 %.3f Td (%s) Tj ET\n",
			y, literal.Encode(literal.NormalizeLatin1(f.label)))
	}

	compressed, err := filters.NewFlateCodec().Encode(ops.Bytes())
	if err != nil {
		return nil, err
	}
	body := fmt.Appendf(nil, "<< /Length %d /Filter /FlateDecode >>\nstream\n", len(compressed))
	body = append(body, compressed...)
	body = append(body, "\nendstream"...)
	return body, nil
}

func widgetBody(f field, page int) []byte {
	body := &bytes.Buffer{}
	ft := "Tx"
	if f.kind == kindCheckbox || f.kind == kindRadio {
		ft = "Btn"
	}
	fmt.Fprintf(body, "<< /Type /Annot /Subtype /Widget /FT /%s /T (%s)", ft,
		literal.Encode(literal.NormalizeLatin1(f.name)))
	fmt.Fprintf(body, " /Rect [%.3f %.3f %.3f %.3f] /P %d 0 R /DA (/Helv 10 Tf 0 g)",
		f.rect[0], f.rect[1], f.rect[2], f.rect[3], page)
	switch f.kind {
	case kindMultiline:
		fmt.Fprintf(body, " /Ff %d", FlagMultiline)
	case kindRadio:
		fmt.Fprintf(body, " /Ff %d", FlagRadio)
	}
	if f.value != "" {
		fmt.Fprintf(body, " /V (%s)", literal.Encode(literal.NormalizeLatin1(f.value)))
	}
	body.WriteString(" >>")
	return body.Bytes()
}
