// Package capture provides the sources that feed captured bytes into the
// pipeline: serial ports, pcap files, live interfaces and plain readers.
package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/banshee-data/usbsniff/internal/framing"
)

// Input is one captured byte with its control flag.
type Input = framing.Input

// ErrSourceClosed is returned by Read after Close.
var ErrSourceClosed = errors.New("capture: source closed")

// Source delivers captured inputs in order. Read blocks until at least one
// input is available and returns io.EOF when the capture has ended.
type Source interface {
	Read(p []Input) (int, error)
	Close() error
}

// Format says how a byte stream maps to inputs.
type Format string

const (
	// FormatRaw treats every byte as data.
	FormatRaw Format = "raw"
	// FormatTagged reads (flags, byte) pairs; flag bit 0 marks a control
	// byte.
	FormatTagged Format = "tagged"
)

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatRaw:
		return FormatRaw, nil
	case FormatTagged:
		return FormatTagged, nil
	default:
		return "", fmt.Errorf("unknown capture format %q", s)
	}
}

const flagControl = 0x01

// readerSource decodes inputs from a byte stream.
type readerSource struct {
	r      *bufio.Reader
	c      io.Closer
	format Format
	closed atomic.Bool
}

// NewReaderSource returns a source decoding r in the given format. If r is
// an io.Closer it is closed with the source.
func NewReaderSource(r io.Reader, format Format) Source {
	s := &readerSource{r: bufio.NewReaderSize(r, 64*1024), format: format}
	if c, ok := r.(io.Closer); ok {
		s.c = c
	}
	return s
}

func (s *readerSource) width() int {
	if s.format == FormatTagged {
		return 2
	}
	return 1
}

// Read fills p with as many inputs as are buffered, blocking only for the
// first. It must not be called concurrently with itself.
func (s *readerSource) Read(p []Input) (int, error) {
	if s.closed.Load() {
		return 0, ErrSourceClosed
	}
	n := 0
	for n < len(p) {
		if n > 0 && s.r.Buffered() < s.width() {
			break
		}
		in, err := s.next()
		if err != nil && s.closed.Load() {
			return n, ErrSourceClosed
		}
		if err != nil {
			if n > 0 && errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}
		p[n] = in
		n++
	}
	return n, nil
}

func (s *readerSource) next() (Input, error) {
	if s.format != FormatTagged {
		b, err := s.r.ReadByte()
		return Input{Byte: b}, err
	}
	flags, err := s.r.ReadByte()
	if err != nil {
		return Input{}, err
	}
	b, err := s.r.ReadByte()
	if errors.Is(err, io.EOF) {
		return Input{}, fmt.Errorf("tagged input cut after flags byte: %w", io.ErrUnexpectedEOF)
	}
	if err != nil {
		return Input{}, err
	}
	return Input{Byte: b, Control: flags&flagControl != 0}, nil
}

// Close unblocks a pending Read by closing the underlying reader.
func (s *readerSource) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.c != nil {
		return s.c.Close()
	}
	return nil
}

// EncodeTagged appends the tagged form of inputs to dst.
func EncodeTagged(dst []byte, inputs []Input) []byte {
	for _, in := range inputs {
		var flags byte
		if in.Control {
			flags |= flagControl
		}
		dst = append(dst, flags, in.Byte)
	}
	return dst
}

// SliceSource replays a fixed set of inputs, at most Chunk per Read.
type SliceSource struct {
	Inputs []Input
	Chunk  int

	pos    int
	closed atomic.Bool
}

func (s *SliceSource) Read(p []Input) (int, error) {
	if s.closed.Load() {
		return 0, ErrSourceClosed
	}
	if s.pos >= len(s.Inputs) {
		return 0, io.EOF
	}
	if s.Chunk > 0 && len(p) > s.Chunk {
		p = p[:s.Chunk]
	}
	n := copy(p, s.Inputs[s.pos:])
	s.pos += n
	return n, nil
}

func (s *SliceSource) Close() error {
	s.closed.Store(true)
	return nil
}
