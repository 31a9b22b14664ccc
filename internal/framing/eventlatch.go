package framing

// EventLatch holds at most one out-of-band event code until the encoder
// acknowledges it. A write while an event is pending replaces it; the lost
// event is counted.
type EventLatch struct {
	code    byte
	pending bool

	wcode byte
	write bool
	ack   bool

	overwritten uint64
}

// Write requests code be latched at the end of the cycle. Multiple writes in
// one cycle keep the last.
func (l *EventLatch) Write(code byte) {
	if l.write {
		l.overwritten++
	}
	l.wcode = code
	l.write = true
}

// Ack requests the pending event be released. A write in the same cycle wins.
func (l *EventLatch) Ack() {
	l.ack = true
}

// Pending returns the latched code and whether it is still unacknowledged.
func (l *EventLatch) Pending() (byte, bool) {
	return l.code, l.pending
}

// Overwritten returns how many events were replaced before being encoded.
func (l *EventLatch) Overwritten() uint64 {
	return l.overwritten
}

// Tick commits one cycle.
func (l *EventLatch) Tick() {
	switch {
	case l.write:
		if l.pending && !l.ack {
			l.overwritten++
		}
		l.code = l.wcode
		l.pending = true
	case l.ack:
		l.pending = false
	}
	l.write = false
	l.ack = false
}

// Idle reports whether nothing is latched or requested.
func (l *EventLatch) Idle() bool {
	return !l.pending && !l.write
}

// Reset clears the latch and its counter.
func (l *EventLatch) Reset() {
	*l = EventLatch{}
}
