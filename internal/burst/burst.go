// Package burst provides the large ordered word FIFO that absorbs rate
// bursts between the width converter and the host framer.
package burst

import (
	"fmt"

	"github.com/banshee-data/usbsniff/internal/stream"
)

// DefaultCapacity is the buffer size in words.
const DefaultCapacity = 1 << 20

// Policy selects what happens when a word arrives at a full buffer.
type Policy uint8

const (
	// Backpressure leaves the word in the producer's register.
	Backpressure Policy = iota
	// Drop discards the word and counts the loss.
	Drop
)

func (p Policy) String() string {
	switch p {
	case Backpressure:
		return "backpressure"
	case Drop:
		return "drop"
	default:
		return fmt.Sprintf("Policy(%d)", uint8(p))
	}
}

// ParsePolicy parses the config spelling of a policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "backpressure":
		return Backpressure, nil
	case "drop":
		return Drop, nil
	default:
		return 0, fmt.Errorf("unknown overflow policy %q", s)
	}
}

// Buffer is a ring FIFO of words. It never reorders.
type Buffer struct {
	policy Policy
	words  []uint32
	head   int
	level  int

	highWater int
	overflows uint64
	stalls    uint64
	accepted  uint64
}

// New allocates a buffer of capacity words.
func New(capacity int, policy Policy) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{policy: policy, words: make([]uint32, capacity)}
}

// Step moves at most one word from in into the buffer.
func (b *Buffer) Step(in *stream.Reg[uint32]) {
	w, ok := in.Peek()
	if !ok {
		return
	}
	if b.Push(w) {
		in.Take()
		return
	}
	if b.policy == Drop {
		in.Take()
		b.overflows++
		return
	}
	b.stalls++
}

// Push appends w, returning false when the buffer is full.
func (b *Buffer) Push(w uint32) bool {
	if b.level == len(b.words) {
		return false
	}
	b.words[(b.head+b.level)%len(b.words)] = w
	b.level++
	b.accepted++
	if b.level > b.highWater {
		b.highWater = b.level
	}
	return true
}

// Pop removes the oldest word.
func (b *Buffer) Pop() (uint32, bool) {
	if b.level == 0 {
		return 0, false
	}
	w := b.words[b.head]
	b.head = (b.head + 1) % len(b.words)
	b.level--
	return w, true
}

// Level returns the number of buffered words.
func (b *Buffer) Level() int { return b.level }

// Capacity returns the buffer size in words.
func (b *Buffer) Capacity() int { return len(b.words) }

// Policy returns the full-buffer policy.
func (b *Buffer) Policy() Policy { return b.policy }

// HighWater returns the largest level seen since the last reset.
func (b *Buffer) HighWater() int { return b.highWater }

// Overflows returns the number of words discarded under Drop.
func (b *Buffer) Overflows() uint64 { return b.overflows }

// Stalls returns the number of cycles a word was refused under Backpressure.
func (b *Buffer) Stalls() uint64 { return b.stalls }

// Accepted returns the number of words stored.
func (b *Buffer) Accepted() uint64 { return b.accepted }

// Reset empties the buffer and zeroes the counters.
func (b *Buffer) Reset() {
	b.head = 0
	b.level = 0
	b.highWater = 0
	b.overflows = 0
	b.stalls = 0
	b.accepted = 0
}
