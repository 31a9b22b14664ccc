package transport

import "github.com/banshee-data/usbsniff/internal/stream"

// StreamFramer sizes a frame from the source level at the flush instant,
// sends the header and then streams the body straight out of the source.
type StreamFramer struct {
	depth int
	idle  uint64

	state framerState
	timer uint64
	now   uint32

	head  [2]uint32
	count int
	pos   int

	stats FramerStats
}

// NewStreamFramer returns a streaming framer. Non-positive arguments
// select the defaults.
func NewStreamFramer(depth int, idleTimeout uint64) *StreamFramer {
	if depth <= 0 {
		depth = DefaultDepth
	}
	if idleTimeout == 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &StreamFramer{depth: depth, idle: idleTimeout}
}

// Step runs one cycle.
func (f *StreamFramer) Step(src WordSource, out *stream.Reg[Beat]) {
	switch f.state {
	case stateBuffering:
		level := src.Level()
		if level > 0 {
			f.timer++
		}
		switch {
		case level >= f.depth:
			f.flush(f.depth, FlushDepth)
		case level > 0 && f.timer >= f.idle:
			f.flush(level, FlushIdle)
		}
	case stateTransfer:
		f.sendBeat(src, out)
	}
	f.now++
}

func (f *StreamFramer) flush(count int, reason FlushReason) {
	f.count = count
	f.head[0] = FrameLength(uint32(4 * count))
	f.head[1] = f.now
	f.pos = 0
	f.state = stateTransfer
	f.stats.ByReason[reason]++
}

func (f *StreamFramer) sendBeat(src WordSource, out *stream.Reg[Beat]) {
	if !out.Ready() {
		return
	}
	total := len(f.head) + f.count
	b := Beat{First: f.pos == 0, Last: f.pos == total-1}
	if f.pos < len(f.head) {
		b.Word = f.head[f.pos]
	} else {
		// the level sampled at the flush guarantees the word is there
		w, _ := src.Pop()
		b.Word = w
	}
	out.TryPut(b)
	f.pos++
	if b.Last {
		f.stats.Frames++
		f.stats.Words += uint64(f.count)
		f.stats.Bytes += uint64(f.head[0])
		f.count = 0
		f.timer = 0
		f.state = stateBuffering
	}
}

// Advance runs n cycles with an unchanged source.
func (f *StreamFramer) Advance(n uint64) {
	f.now += uint32(n)
}

// CyclesUntilFlush always reports NoFlush: the stream framer watches the
// source level, which is zero whenever the pipeline can fast-forward.
func (f *StreamFramer) CyclesUntilFlush() uint64 {
	return NoFlush
}

// ForceFlush sends whatever the source holds, up to depth words.
func (f *StreamFramer) ForceFlush(src WordSource) bool {
	if f.state != stateBuffering {
		return false
	}
	level := src.Level()
	if level == 0 {
		return false
	}
	f.flush(min(level, f.depth), FlushForced)
	return true
}

// Idle reports whether no frame is in flight.
func (f *StreamFramer) Idle() bool {
	return f.state == stateBuffering
}

// Transferring reports whether a frame is being sent.
func (f *StreamFramer) Transferring() bool {
	return f.state == stateTransfer
}

// Stats returns the counters.
func (f *StreamFramer) Stats() FramerStats {
	s := f.stats
	s.Pending = f.count
	s.Now = f.now
	return s
}

// Reset abandons any frame in flight and zeroes the counters.
func (f *StreamFramer) Reset() {
	f.state = stateBuffering
	f.timer = 0
	f.now = 0
	f.count = 0
	f.pos = 0
	f.stats = FramerStats{}
}
