// Package resync emits a fixed byte pattern that lets a host decoder regain
// record alignment after data loss.
package resync

import (
	"encoding/binary"
	"fmt"

	"github.com/banshee-data/usbsniff/internal/framing"
	"github.com/banshee-data/usbsniff/internal/stream"
)

// Defaults. On the wire the pattern reads 50 00 E0, a valid event record
// carrying code 0xE0 with a zero delta.
const (
	DefaultPattern uint32 = 0xE00050
	DefaultLength         = 3
	DefaultRepeats        = 4
)

// Generator is idle until started, then emits its pattern a fixed number of
// times, one record slot per cycle.
type Generator struct {
	pattern framing.Packed
	repeats int

	left     int
	triggers uint64
	emitted  uint64
}

// New returns a generator for the low length bytes of pattern, sent least
// significant byte first.
func New(pattern uint32, length, repeats int) (*Generator, error) {
	if length < framing.MinRecordLen || length > 4 {
		return nil, fmt.Errorf("resync length %d outside [%d,4]", length, framing.MinRecordLen)
	}
	if repeats < 1 {
		return nil, fmt.Errorf("resync repeats must be positive, got %d", repeats)
	}
	if length < 4 && pattern>>(8*length) != 0 {
		return nil, fmt.Errorf("resync pattern %#x wider than %d bytes", pattern, length)
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], pattern)
	p, err := framing.PackBytes(b[:length])
	if err != nil {
		return nil, err
	}
	return &Generator{pattern: p, repeats: repeats}, nil
}

// Default returns a generator using the default pattern.
func Default() *Generator {
	g, err := New(DefaultPattern, DefaultLength, DefaultRepeats)
	if err != nil {
		panic(err)
	}
	return g
}

// Start arms the generator. It returns false if a pattern is already in
// progress; the trigger is then ignored.
func (g *Generator) Start() bool {
	if g.left > 0 {
		return false
	}
	g.left = g.repeats
	g.triggers++
	return true
}

// Busy reports whether pattern slots remain to be sent.
func (g *Generator) Busy() bool {
	return g.left > 0
}

// Step offers one pattern slot to out.
func (g *Generator) Step(out *stream.Reg[framing.Packed]) {
	if g.left == 0 {
		return
	}
	if out.TryPut(g.pattern) {
		g.left--
		g.emitted++
	}
}

// Pattern returns the encoded pattern bytes.
func (g *Generator) Pattern() []byte {
	return g.pattern.Slice()
}

// Triggers returns how many starts were accepted.
func (g *Generator) Triggers() uint64 { return g.triggers }

// Emitted returns how many pattern slots were sent.
func (g *Generator) Emitted() uint64 { return g.emitted }

// Reset stops any pattern in progress and zeroes the counters.
func (g *Generator) Reset() {
	g.left = 0
	g.triggers = 0
	g.emitted = 0
}
