// Package transport batches packed record words into host frames and
// reads and writes those frames on a byte stream.
//
// A frame on the wire is a little-endian uint32 length, a little-endian
// uint32 timestamp and length-8 payload bytes. The length counts the eight
// header bytes plus the payload rounded up to whole words.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderLen is the size of the length and timestamp fields.
const HeaderLen = 8

var (
	ErrShortHeader     = errors.New("transport: short frame header")
	ErrLengthTooSmall  = errors.New("transport: frame length smaller than header")
	ErrFrameTooLarge   = errors.New("transport: frame too large")
	ErrLengthMismatch  = errors.New("transport: payload does not match frame length")
	ErrUnalignedLength = errors.New("transport: frame length not word aligned")
)

// Frame is one flush batch.
type Frame struct {
	Length    uint32
	Timestamp uint32
	Payload   []byte
}

// FrameLength returns the length field for n payload bytes: the payload
// rounded up to a multiple of four plus the header. The arithmetic is on
// uint32 so n == 0 yields a bare header.
func FrameLength(n uint32) uint32 {
	return ((n - 1) &^ 3) + HeaderLen + 4
}

// NewFrame builds a frame around payload. A payload that does not end on a
// word boundary is copied and zero-padded, matching the length field.
func NewFrame(timestamp uint32, payload []byte) Frame {
	if rem := len(payload) % 4; rem != 0 {
		padded := make([]byte, len(payload)+4-rem)
		copy(padded, payload)
		payload = padded
	}
	return Frame{
		Length:    FrameLength(uint32(len(payload))),
		Timestamp: timestamp,
		Payload:   payload,
	}
}

// PayloadLen returns the payload size the length field announces.
func (f Frame) PayloadLen() int {
	if f.Length < HeaderLen {
		return 0
	}
	return int(f.Length - HeaderLen)
}

// Words returns the number of payload words.
func (f Frame) Words() int {
	return len(f.Payload) / 4
}

// AppendBinary appends the wire form of f.
func (f Frame) AppendBinary(b []byte) ([]byte, error) {
	if f.Length < HeaderLen {
		return b, ErrLengthTooSmall
	}
	if f.PayloadLen() != len(f.Payload) {
		return b, fmt.Errorf("%w: length %d, payload %d", ErrLengthMismatch, f.Length, len(f.Payload))
	}
	b = binary.LittleEndian.AppendUint32(b, f.Length)
	b = binary.LittleEndian.AppendUint32(b, f.Timestamp)
	return append(b, f.Payload...), nil
}

// Limits constrains frame decode memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

// DefaultLimits allows frames up to 16 MiB.
func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 16 << 20}
}

// ReadFrame reads one frame. It returns io.EOF only when r is exhausted on
// a frame boundary.
func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var hdr [HeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}
	f := Frame{
		Length:    binary.LittleEndian.Uint32(hdr[0:4]),
		Timestamp: binary.LittleEndian.Uint32(hdr[4:8]),
	}
	if f.Length < HeaderLen {
		return Frame{}, ErrLengthTooSmall
	}
	if f.Length%4 != 0 {
		return Frame{}, ErrUnalignedLength
	}
	n := f.Length - HeaderLen
	if n > limits.MaxPayloadBytes {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	f.Payload = make([]byte, n)
	if _, err := io.ReadFull(r, f.Payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, fmt.Errorf("read frame payload: %w", err)
	}
	return f, nil
}

// WriteFrame writes f in wire form.
func WriteFrame(w io.Writer, f Frame) error {
	b, err := f.AppendBinary(make([]byte, 0, HeaderLen+len(f.Payload)))
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// DecodeFrames calls fn for every frame in r until EOF.
func DecodeFrames(r io.Reader, limits Limits, fn func(Frame) error) error {
	for {
		f, err := ReadFrame(r, limits)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			return err
		}
	}
}
