package literal

import (
	"bytes"
	"testing"
)

func FuzzDecode(f *testing.F) {
	f.Add([]byte(`plain`))
	f.Add([]byte(`\n\r\t\b\f`))
	f.Add([]byte(`\101\102\103`))
	f.Add([]byte(`\q`))
	f.Add([]byte(`trailing\`))

	f.Fuzz(func(t *testing.T, data []byte) {
		out := Decode(data)
		if len(out) > len(data) {
			t.Fatalf("decode grew input: %d > %d", len(out), len(data))
		}
	})
}

func FuzzEncodeRoundTrip(f *testing.F) {
	f.Add([]byte("John Doe"))
	f.Add([]byte("(nested) \\ mix"))
	f.Add([]byte{0x00, 0x29, 0x5c, 0x28})

	f.Fuzz(func(t *testing.T, data []byte) {
		if got := Decode(Encode(data)); !bytes.Equal(got, data) {
			t.Fatalf("round trip mismatch: %q -> %q", data, got)
		}
	})
}
