package relay

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()

	var stream bytes.Buffer
	fw := NewFrameWriter(&stream)
	payloads := [][]byte{[]byte("hello"), bytes.Repeat([]byte{0xab}, 1400), {0x01}}
	for _, p := range payloads {
		if err := fw.WriteFrame(p); err != nil {
			t.Fatalf("WriteFrame() error = %v", err)
		}
	}

	if got := stream.Bytes()[:2]; !bytes.Equal(got, []byte{0x00, 0x05}) {
		t.Fatalf("first header = %x, want 0005", got)
	}

	fr := NewFrameReader(&stream)
	buf := make([]byte, MaxFrameSize)
	for i, want := range payloads {
		n, err := fr.ReadFrame(buf)
		if err != nil {
			t.Fatalf("ReadFrame(%d) error = %v", i, err)
		}
		if !bytes.Equal(buf[:n], want) {
			t.Fatalf("frame %d = %x, want %x", i, buf[:n], want)
		}
	}
	if _, err := fr.ReadFrame(buf); !errors.Is(err, io.EOF) {
		t.Fatalf("ReadFrame() at end error = %v, want EOF", err)
	}
}

func TestWriteFrameRejectsInvalidSizes(t *testing.T) {
	t.Parallel()

	fw := NewFrameWriter(io.Discard)
	if err := fw.WriteFrame(nil); !errors.Is(err, ErrEmptyFrame) {
		t.Fatalf("WriteFrame(nil) error = %v, want ErrEmptyFrame", err)
	}
	if err := fw.WriteFrame(make([]byte, MaxFrameSize+1)); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("WriteFrame(oversized) error = %v, want ErrFrameTooLarge", err)
	}
}

func TestReadFrameZeroLength(t *testing.T) {
	t.Parallel()

	fr := NewFrameReader(bytes.NewReader([]byte{0, 0}))
	if _, err := fr.ReadFrame(make([]byte, 16)); !errors.Is(err, ErrEmptyFrame) {
		t.Fatalf("ReadFrame() error = %v, want ErrEmptyFrame", err)
	}
}

func TestReadFrameShortBufferKeepsAlignment(t *testing.T) {
	t.Parallel()

	var stream bytes.Buffer
	fw := NewFrameWriter(&stream)
	if err := fw.WriteFrame(bytes.Repeat([]byte{1}, 32)); err != nil {
		t.Fatal(err)
	}
	if err := fw.WriteFrame([]byte("next")); err != nil {
		t.Fatal(err)
	}

	fr := NewFrameReader(&stream)
	buf := make([]byte, 8)
	if _, err := fr.ReadFrame(buf); !errors.Is(err, io.ErrShortBuffer) {
		t.Fatalf("ReadFrame() error = %v, want ErrShortBuffer", err)
	}
	n, err := fr.ReadFrame(buf)
	if err != nil {
		t.Fatalf("ReadFrame() after drain error = %v", err)
	}
	if string(buf[:n]) != "next" {
		t.Fatalf("frame after drain = %q, want next", buf[:n])
	}
}
