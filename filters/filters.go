// Package filters implements the codec's stream filter pipeline. Flate is
// the only filter the document codec reads or writes; other content-stream
// filters are out of scope and surface as unknown-filter errors.
package filters

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
)

// FlateName is the PDF name of the codec's standard compression filter.
const FlateName = "FlateDecode"

type Decoder interface {
	Name() string
	Decode(input []byte) ([]byte, error)
}

type Encoder interface {
	Name() string
	Encode(input []byte) ([]byte, error)
}

type Limits struct {
	MaxDecompressedSize int64
}

type Pipeline struct {
	decoders []Decoder
	limits   Limits
}

// NewPipeline constructs a pipeline with the provided decoders and limits.
func NewPipeline(decoders []Decoder, limits Limits) *Pipeline {
	return &Pipeline{decoders: decoders, limits: limits}
}

// Default returns a pipeline holding the codec's standard filter set.
func Default() *Pipeline {
	return NewPipeline([]Decoder{NewFlateCodec()}, Limits{})
}

func (p *Pipeline) findDecoder(name string) Decoder {
	for _, d := range p.decoders {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

// Decode runs input through the named filters in order.
func (p *Pipeline) Decode(input []byte, filterNames []string) ([]byte, error) {
	data := input
	for _, name := range filterNames {
		dec := p.findDecoder(name)
		if dec == nil {
			return nil, fmt.Errorf("unknown filter: %s", name)
		}
		out, err := dec.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(out)) > p.limits.MaxDecompressedSize {
			return nil, errors.New("decompressed size exceeds limit")
		}
		data = out
	}
	return data, nil
}

// flateCodec implements FlateDecode both ways. PDF FlateDecode is the
// zlib-wrapped form of deflate, not raw deflate.
type flateCodec struct{}

// NewFlateCodec returns the Flate encoder/decoder pair.
func NewFlateCodec() interface {
	Encoder
	Decoder
} {
	return flateCodec{}
}

func (flateCodec) Name() string { return FlateName }

func (flateCodec) Encode(in []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(in); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (flateCodec) Decode(in []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(in))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out bytes.Buffer
	if _, err := io.Copy(&out, r); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
