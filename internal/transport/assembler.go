package transport

import (
	"encoding/binary"
	"fmt"
)

// Assembler rebuilds frames from a beat stream.
type Assembler struct {
	words []uint32
}

// Add consumes one beat and returns a frame when b closes one.
func (a *Assembler) Add(b Beat) (Frame, bool, error) {
	if b.First && len(a.words) > 0 {
		n := len(a.words)
		a.words = a.words[:0]
		return Frame{}, false, fmt.Errorf("transport: frame restarted after %d beats", n)
	}
	a.words = append(a.words, b.Word)
	if !b.Last {
		return Frame{}, false, nil
	}
	defer func() { a.words = a.words[:0] }()
	if len(a.words) < 2 {
		return Frame{}, false, fmt.Errorf("transport: frame of %d beats", len(a.words))
	}
	payload := make([]byte, 0, 4*(len(a.words)-2))
	for _, w := range a.words[2:] {
		payload = binary.LittleEndian.AppendUint32(payload, w)
	}
	f := Frame{Length: a.words[0], Timestamp: a.words[1], Payload: payload}
	if f.PayloadLen() != len(payload) {
		return Frame{}, false, fmt.Errorf("%w: length %d, payload %d", ErrLengthMismatch, f.Length, len(payload))
	}
	return f, true, nil
}

// Partial returns the number of beats of an unfinished frame.
func (a *Assembler) Partial() int {
	return len(a.words)
}

// Reset drops an unfinished frame.
func (a *Assembler) Reset() {
	a.words = a.words[:0]
}
