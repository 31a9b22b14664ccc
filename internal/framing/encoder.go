package framing

import "github.com/banshee-data/usbsniff/internal/stream"

type encoderState uint8

const (
	stateIdle encoderState = iota
	stateHeader
	stateTimestamp
	statePayload
)

// Encoder serialises records one byte per cycle.
type Encoder struct {
	Arbiter

	state encoderState
	rec   Record
	shift uint32 // timestamp bits not yet sent
	left  uint8  // timestamp bytes not yet sent

	records [4]uint64
}

// NewEncoder returns an idle serial encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Step runs one cycle: it either selects a new record or offers the next byte
// of the current one to out, holding state when out is full.
func (e *Encoder) Step(in *stream.Reg[Input], out *stream.Reg[byte]) {
	switch e.state {
	case stateIdle:
		if rec, ok := e.Select(in); ok {
			e.rec = rec
			e.state = stateHeader
		}
	case stateHeader:
		if out.TryPut(e.rec.Header()) {
			e.shift = e.rec.TimeDelta >> 4
			e.left = e.rec.TimeLen
			e.afterHeader()
		}
	case stateTimestamp:
		if out.TryPut(byte(e.shift)) {
			e.shift >>= 8
			e.left--
			if e.left == 0 {
				e.afterTimestamp()
			}
		}
	case statePayload:
		if out.TryPut(e.rec.Payload) {
			e.finish()
		}
	}
	e.Tick()
}

func (e *Encoder) afterHeader() {
	if e.left > 0 {
		e.state = stateTimestamp
		return
	}
	e.afterTimestamp()
}

func (e *Encoder) afterTimestamp() {
	if e.rec.HasPayload() {
		e.state = statePayload
		return
	}
	e.finish()
}

func (e *Encoder) finish() {
	if e.rec.Type == TypeOverflow {
		e.Time.ClearOverflow()
	}
	e.records[e.rec.Type&3]++
	e.state = stateIdle
}

// Busy reports whether a record is partially emitted.
func (e *Encoder) Busy() bool {
	return e.state != stateIdle
}

// Records returns how many records of type t have been fully emitted.
func (e *Encoder) Records(t RecordType) uint64 {
	return e.records[t&3]
}

// Reset returns the encoder and its sources to power-on state.
func (e *Encoder) Reset() {
	*e = Encoder{}
}

// RecordEncoder emits a whole record per cycle as a Packed slot. Its bytes
// match the serial Encoder's.
type RecordEncoder struct {
	Arbiter

	records [4]uint64
}

// NewRecordEncoder returns an idle whole-record encoder.
func NewRecordEncoder() *RecordEncoder {
	return &RecordEncoder{}
}

// Step runs one cycle. Nothing is selected while out is full, so the input
// and the event latch keep their values until there is room.
func (e *RecordEncoder) Step(in *stream.Reg[Input], out *stream.Reg[Packed]) {
	if out.Ready() {
		if rec, ok := e.Select(in); ok {
			out.TryPut(Pack(rec))
			if rec.Type == TypeOverflow {
				e.Time.ClearOverflow()
			}
			e.records[rec.Type&3]++
		}
	}
	e.Tick()
}

// Pending reports whether the encoder has something to emit without new
// input: a saturated counter or a latched event.
func (e *RecordEncoder) Pending() bool {
	return e.Time.Overflow() || !e.Events.Idle()
}

// Records returns how many records of type t have been emitted.
func (e *RecordEncoder) Records(t RecordType) uint64 {
	return e.records[t&3]
}

// Reset returns the encoder and its sources to power-on state.
func (e *RecordEncoder) Reset() {
	*e = RecordEncoder{}
}
