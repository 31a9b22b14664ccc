package transport

import (
	"math"

	"github.com/banshee-data/usbsniff/internal/stream"
)

// DefaultIdleTimeout is the number of cycles a non-empty batch may wait
// before it is flushed.
const DefaultIdleTimeout = 1_000_000

// DefaultDepth is the batch size in words that forces a flush.
const DefaultDepth = 512

// NoFlush is returned by CyclesUntilFlush when no flush is scheduled.
const NoFlush = math.MaxUint64

// Beat is one 32-bit transfer on the host link. The first two beats of a
// frame carry the length and the timestamp.
type Beat struct {
	Word  uint32
	First bool
	Last  bool
}

// WordSource is where a framer pulls payload words from.
type WordSource interface {
	Pop() (uint32, bool)
	Level() int
}

// FlushReason says what triggered a flush.
type FlushReason uint8

const (
	FlushDepth FlushReason = iota
	FlushIdle
	FlushForced
)

func (r FlushReason) String() string {
	switch r {
	case FlushDepth:
		return "depth"
	case FlushIdle:
		return "idle"
	default:
		return "forced"
	}
}

// HostFramer is implemented by both framer variants.
type HostFramer interface {
	// Step runs one cycle.
	Step(src WordSource, out *stream.Reg[Beat])
	// Advance runs n cycles during which src stays empty and no flush
	// falls due.
	Advance(n uint64)
	// CyclesUntilFlush returns how many Steps with an empty source remain
	// before an idle flush, or NoFlush.
	CyclesUntilFlush() uint64
	// ForceFlush starts a frame with whatever is pending. It returns false
	// if there is nothing to send or a frame is already in flight.
	ForceFlush(src WordSource) bool
	// Idle reports whether nothing is pending or in flight.
	Idle() bool
	// Transferring reports whether a frame is being sent.
	Transferring() bool
	Stats() FramerStats
	Reset()
}

// FramerStats are cumulative framer counters.
type FramerStats struct {
	Frames   uint64    `json:"frames"`
	Words    uint64    `json:"words"`
	Bytes    uint64    `json:"bytes"`
	ByReason [3]uint64 `json:"flushes_by_reason"`
	Pending  int       `json:"pending_words"`
	Now      uint32    `json:"timestamp"`
}

type framerState uint8

const (
	stateBuffering framerState = iota
	stateTransfer
)

// Framer accumulates up to depth words, then sends them as one frame. One
// word is pulled per cycle while buffering; the idle timer runs while the
// batch is non-empty.
type Framer struct {
	depth int
	idle  uint64

	state framerState
	acc   []uint32
	timer uint64
	now   uint32

	head [2]uint32
	pos  int

	stats FramerStats
}

// NewFramer returns a batch framer. Non-positive arguments select the
// defaults.
func NewFramer(depth int, idleTimeout uint64) *Framer {
	if depth <= 0 {
		depth = DefaultDepth
	}
	if idleTimeout == 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Framer{depth: depth, idle: idleTimeout, acc: make([]uint32, 0, depth)}
}

// Step runs one cycle.
func (f *Framer) Step(src WordSource, out *stream.Reg[Beat]) {
	switch f.state {
	case stateBuffering:
		if len(f.acc) < f.depth {
			if w, ok := src.Pop(); ok {
				f.acc = append(f.acc, w)
			}
		}
		if len(f.acc) > 0 {
			f.timer++
		}
		switch {
		case len(f.acc) >= f.depth:
			f.flush(FlushDepth)
		case len(f.acc) > 0 && f.timer >= f.idle:
			f.flush(FlushIdle)
		}
	case stateTransfer:
		if f.sendBeat(out) {
			f.acc = f.acc[:0]
			f.timer = 0
			f.state = stateBuffering
		}
	}
	f.now++
}

func (f *Framer) flush(reason FlushReason) {
	f.head[0] = FrameLength(uint32(4 * len(f.acc)))
	f.head[1] = f.now
	f.pos = 0
	f.state = stateTransfer
	f.stats.ByReason[reason]++
}

// sendBeat offers the next beat and reports whether it was the last.
func (f *Framer) sendBeat(out *stream.Reg[Beat]) bool {
	total := len(f.head) + len(f.acc)
	b := Beat{First: f.pos == 0, Last: f.pos == total-1}
	if f.pos < len(f.head) {
		b.Word = f.head[f.pos]
	} else {
		b.Word = f.acc[f.pos-len(f.head)]
	}
	if !out.TryPut(b) {
		return false
	}
	f.pos++
	if !b.Last {
		return false
	}
	f.stats.Frames++
	f.stats.Words += uint64(len(f.acc))
	f.stats.Bytes += uint64(f.head[0])
	return true
}

// Advance runs n idle cycles.
func (f *Framer) Advance(n uint64) {
	if f.state == stateBuffering && len(f.acc) > 0 {
		f.timer += n
	}
	f.now += uint32(n)
}

// CyclesUntilFlush returns the Steps left before an idle flush.
func (f *Framer) CyclesUntilFlush() uint64 {
	if f.state != stateBuffering || len(f.acc) == 0 {
		return NoFlush
	}
	if f.timer >= f.idle {
		return 1
	}
	return f.idle - f.timer
}

// ForceFlush sends the pending batch now.
func (f *Framer) ForceFlush(WordSource) bool {
	if f.state != stateBuffering || len(f.acc) == 0 {
		return false
	}
	f.flush(FlushForced)
	return true
}

// Idle reports whether the batch is empty and no frame is in flight.
func (f *Framer) Idle() bool {
	return f.state == stateBuffering && len(f.acc) == 0
}

// Transferring reports whether a frame is being sent.
func (f *Framer) Transferring() bool {
	return f.state == stateTransfer
}

// Stats returns the counters.
func (f *Framer) Stats() FramerStats {
	s := f.stats
	s.Pending = len(f.acc)
	s.Now = f.now
	return s
}

// Reset drops any pending batch and zeroes the counters.
func (f *Framer) Reset() {
	f.state = stateBuffering
	f.acc = f.acc[:0]
	f.timer = 0
	f.now = 0
	f.pos = 0
	f.stats = FramerStats{}
}
