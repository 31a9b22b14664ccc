// Package widthconv repacks 2 to 5 byte records into 32-bit words without
// padding. Bytes are packed little-endian: the first byte of the stream lands
// in the least significant byte of a word.
package widthconv

import (
	"encoding/binary"

	"github.com/banshee-data/usbsniff/internal/framing"
	"github.com/banshee-data/usbsniff/internal/stream"
)

// WordBytes is the output word width.
const WordBytes = 4

// action says what one record does to the carry, given how many bytes are
// already carried (remain) and the record length modulo four.
type action struct {
	emit  bool // a word is completed this cycle
	take  int  // record bytes that complete the word
	carry int  // carry length afterwards
	extra bool // a second full word follows in an extra cycle
}

// classLen maps a record length class (n mod 4) back to the length.
var classLen = [4]int{4, 5, 2, 3}

// table is indexed by [remain][n mod 4].
var table = [4][4]action{
	0: {
		0: {emit: true, take: 4, carry: 0},
		1: {emit: true, take: 4, carry: 1},
		2: {carry: 2},
		3: {carry: 3},
	},
	1: {
		0: {emit: true, take: 3, carry: 1},
		1: {emit: true, take: 3, carry: 2},
		2: {carry: 3},
		3: {emit: true, take: 3, carry: 0},
	},
	2: {
		0: {emit: true, take: 2, carry: 2},
		1: {emit: true, take: 2, carry: 3},
		2: {emit: true, take: 2, carry: 0},
		3: {emit: true, take: 2, carry: 1},
	},
	3: {
		0: {emit: true, take: 1, carry: 3},
		1: {emit: true, take: 1, carry: 0, extra: true},
		2: {emit: true, take: 1, carry: 1},
		3: {emit: true, take: 1, carry: 2},
	},
}

// Converter holds at most three carried bytes between records.
type Converter struct {
	carry  [WordBytes - 1]byte
	remain int

	extra     uint32
	sendExtra bool

	records uint64
	words   uint64
}

// New returns an empty converter.
func New() *Converter {
	return &Converter{}
}

// Step runs one cycle. A record is accepted only when the word it completes
// can be handed to out in the same cycle. While an extra word is pending no
// input is accepted.
func (c *Converter) Step(in *stream.Reg[framing.Packed], out *stream.Reg[uint32]) {
	if c.sendExtra {
		if out.TryPut(c.extra) {
			c.sendExtra = false
			c.words++
		}
		return
	}
	if in == nil {
		return
	}
	p, ok := in.Peek()
	if !ok {
		return
	}
	b := p.Slice()
	a := table[c.remain][len(b)%WordBytes]
	if a.emit && !out.Ready() {
		return
	}
	in.Take()
	c.records++

	if !a.emit {
		copy(c.carry[c.remain:], b)
		c.remain = a.carry
		return
	}

	var w [WordBytes]byte
	copy(w[:], c.carry[:c.remain])
	copy(w[c.remain:], b[:a.take])
	out.TryPut(binary.LittleEndian.Uint32(w[:]))
	c.words++

	rest := b[a.take:]
	if a.extra {
		c.extra = binary.LittleEndian.Uint32(rest[:WordBytes])
		c.sendExtra = true
		rest = rest[WordBytes:]
	}
	copy(c.carry[:], rest)
	c.remain = a.carry
}

// Remain returns the number of carried bytes.
func (c *Converter) Remain() int { return c.remain }

// ExtraPending reports whether a second word still waits to be sent.
func (c *Converter) ExtraPending() bool { return c.sendExtra }

// Idle reports whether nothing is carried or pending.
func (c *Converter) Idle() bool {
	return c.remain == 0 && !c.sendExtra
}

// Flush returns the carried bytes and empties the carry. It is meant for end
// of stream; a pending extra word is not included.
func (c *Converter) Flush() []byte {
	out := append([]byte(nil), c.carry[:c.remain]...)
	c.remain = 0
	return out
}

// Records returns the number of records accepted.
func (c *Converter) Records() uint64 { return c.records }

// Words returns the number of words emitted.
func (c *Converter) Words() uint64 { return c.words }

// Reset empties the converter.
func (c *Converter) Reset() {
	*c = Converter{}
}
