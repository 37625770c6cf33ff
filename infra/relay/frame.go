package relay

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// MaxFrameSize is the largest datagram a u16 length prefix can carry.
const MaxFrameSize = math.MaxUint16

var (
	ErrEmptyFrame    = errors.New("empty frame")
	ErrFrameTooLarge = errors.New("frame too large")
)

// FrameWriter writes datagrams to a stream, each prefixed with its length as
// a big-endian uint16.
type FrameWriter struct {
	w   io.Writer
	buf []byte
}

func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w, buf: make([]byte, 2+MaxFrameSize)}
}

// WriteFrame writes one frame with a single Write call so that concurrent
// readers on the far side never observe a header without its payload.
func (fw *FrameWriter) WriteFrame(p []byte) error {
	if len(p) == 0 {
		return ErrEmptyFrame
	}
	if len(p) > MaxFrameSize {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(p), MaxFrameSize)
	}
	binary.BigEndian.PutUint16(fw.buf[:2], uint16(len(p)))
	n := copy(fw.buf[2:], p)
	if err := writeFull(fw.w, fw.buf[:2+n]); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if n > 0 {
			p = p[n:]
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
	}
	return nil
}

// FrameReader reads length-prefixed datagrams from a stream.
type FrameReader struct {
	r io.Reader
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// ReadFrame reads exactly one frame into buf and returns the payload size.
// A frame larger than buf is drained so the stream stays aligned, and
// io.ErrShortBuffer is returned.
func (fr *FrameReader) ReadFrame(buf []byte) (int, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		return 0, err
	}
	length := int(binary.BigEndian.Uint16(hdr[:]))
	if length == 0 {
		return 0, ErrEmptyFrame
	}
	if length > len(buf) {
		if _, err := io.CopyN(io.Discard, fr.r, int64(length)); err != nil {
			return 0, fmt.Errorf("drain oversized frame: %w", err)
		}
		return 0, io.ErrShortBuffer
	}
	if _, err := io.ReadFull(fr.r, buf[:length]); err != nil {
		return 0, fmt.Errorf("read frame payload: %w", err)
	}
	return length, nil
}
