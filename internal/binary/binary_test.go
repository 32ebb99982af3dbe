package binary

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestReaderReadByte(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	r := NewReader(bytes.NewReader(data))

	for i, want := range data {
		if r.Position() != i {
			t.Errorf("position before read %d: got %d, want %d", i, r.Position(), i)
		}
		b, err := r.ReadByte()
		if err != nil {
			t.Fatalf("ReadByte %d: %v", i, err)
		}
		if b != want {
			t.Errorf("ReadByte %d: got 0x%02x, want 0x%02x", i, b, want)
		}
	}

	_, err := r.ReadByte()
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestReaderReadU32(t *testing.T) {
	tests := []struct {
		encoded []byte
		want    uint32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x01}, 1},
		{[]byte{0x7f}, 127},
		{[]byte{0x80, 0x01}, 128},
		{[]byte{0xff, 0x01}, 255},
		{[]byte{0xe5, 0x8e, 0x26}, 624485},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0x0f}, 0xFFFFFFFF},
	}

	for _, tt := range tests {
		r := NewReader(bytes.NewReader(tt.encoded))
		got, err := r.ReadU32()
		if err != nil {
			t.Errorf("ReadU32(%v): %v", tt.encoded, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ReadU32(%v): got %d, want %d", tt.encoded, got, tt.want)
		}
	}
}

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter()
	w.Byte(0x42)
	w.WriteU32(624485)
	w.WriteU64(1<<62 + 17)
	w.WriteS64(-300)
	w.WriteName("VertexBuffer")
	w.WriteBytes([]byte{0xde, 0xad})

	r := NewReader(bytes.NewReader(w.Bytes()))

	b, err := r.ReadByte()
	if err != nil || b != 0x42 {
		t.Fatalf("ReadByte: got 0x%02x, %v", b, err)
	}
	u32, err := r.ReadU32()
	if err != nil || u32 != 624485 {
		t.Fatalf("ReadU32: got %d, %v", u32, err)
	}
	u64, err := r.ReadU64()
	if err != nil || u64 != 1<<62+17 {
		t.Fatalf("ReadU64: got %d, %v", u64, err)
	}
	s64, err := r.ReadS64()
	if err != nil || s64 != -300 {
		t.Fatalf("ReadS64: got %d, %v", s64, err)
	}
	name, err := r.ReadName()
	if err != nil || name != "VertexBuffer" {
		t.Fatalf("ReadName: got %q, %v", name, err)
	}
	rest, err := r.ReadBytes(2)
	if err != nil || !bytes.Equal(rest, []byte{0xde, 0xad}) {
		t.Fatalf("ReadBytes: got %v, %v", rest, err)
	}
}

func TestReaderOverflow(t *testing.T) {
	// Six continuation bytes exceed the u32 range.
	data := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}
	r := NewReader(bytes.NewReader(data))
	if _, err := r.ReadU32(); !errors.Is(err, ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestReadNameInvalidUTF8(t *testing.T) {
	w := NewWriter()
	w.WriteU32(2)
	w.WriteBytes([]byte{0xff, 0xfe})

	r := NewReader(bytes.NewReader(w.Bytes()))
	if _, err := r.ReadName(); err == nil {
		t.Error("expected error for invalid UTF-8 name")
	}
}
