package framing

import "github.com/banshee-data/usbsniff/internal/stream"

// Arbiter picks the next record from the overflow flag, the event latch and
// the capture input, in that order.
type Arbiter struct {
	Time   TimeAccumulator
	Events EventLatch
}

// Select returns the highest priority record available this cycle and
// performs the matching side effects: an event is acknowledged, an input is
// taken from in, and the time counter is consumed. An overflow record only
// snapshots; the caller clears the flag once the record has been accepted
// downstream.
func (a *Arbiter) Select(in *stream.Reg[Input]) (Record, bool) {
	if a.Time.Overflow() {
		return OverflowRecord(), true
	}
	if code, ok := a.Events.Pending(); ok {
		a.Events.Ack()
		delta, length := a.Time.Consume()
		return Record{Type: TypeEvent, Payload: code, TimeDelta: delta, TimeLen: length}, true
	}
	if in != nil {
		if v, ok := in.Take(); ok {
			delta, length := a.Time.Consume()
			typ := TypeData
			if v.Control {
				typ = TypeControl
			}
			return Record{Type: typ, Payload: v.Byte, TimeDelta: delta, TimeLen: length}, true
		}
	}
	return Record{}, false
}

// Tick commits the cycle on both sources.
func (a *Arbiter) Tick() {
	a.Time.Tick()
	a.Events.Tick()
}

// Advance commits n cycles.
func (a *Arbiter) Advance(n uint64) {
	if n == 0 {
		return
	}
	a.Time.Advance(n)
	a.Events.Tick()
}

// Reset returns both sources to power-on state.
func (a *Arbiter) Reset() {
	a.Time.Reset()
	a.Events.Reset()
}
