package pipeline

import (
	"github.com/banshee-data/usbsniff/internal/framing"
	"github.com/banshee-data/usbsniff/internal/transport"
)

// Stats is a snapshot of the pipeline counters.
type Stats struct {
	Cycle  uint64 `json:"cycle"`
	Inputs uint64 `json:"inputs"`

	Records struct {
		Overflow uint64 `json:"overflow"`
		Event    uint64 `json:"event"`
		Data     uint64 `json:"data"`
		Control  uint64 `json:"control"`
	} `json:"records"`
	EventsOverwritten uint64 `json:"events_overwritten"`

	ResyncTriggers uint64 `json:"resync_triggers"`
	ResyncEmitted  uint64 `json:"resync_emitted"`

	Words        uint64 `json:"words"`
	CarryBytes   int    `json:"carry_bytes"`
	PaddingBytes uint64 `json:"padding_bytes"`

	Buffer struct {
		Level     int    `json:"level"`
		Capacity  int    `json:"capacity"`
		HighWater int    `json:"high_water"`
		Overflows uint64 `json:"overflows"`
		Stalls    uint64 `json:"stalls"`
		Policy    string `json:"policy"`
	} `json:"buffer"`

	Framer       transport.FramerStats `json:"framer"`
	FrameErrors  uint64                `json:"frame_errors"`
	FastForwards uint64                `json:"fast_forwards"`
}

// Stats returns the current counters.
func (p *Pipeline) Stats() Stats {
	var s Stats
	s.Cycle = p.cycle
	s.Inputs = p.inputs
	s.Records.Overflow = p.enc.Records(framing.TypeOverflow)
	s.Records.Event = p.enc.Records(framing.TypeEvent)
	s.Records.Data = p.enc.Records(framing.TypeData)
	s.Records.Control = p.enc.Records(framing.TypeControl)
	s.EventsOverwritten = p.enc.Events.Overwritten()
	s.ResyncTriggers = p.gen.Triggers()
	s.ResyncEmitted = p.gen.Emitted()
	s.Words = p.conv.Words()
	s.CarryBytes = p.conv.Remain()
	s.PaddingBytes = p.padBytes
	s.Buffer.Level = p.buf.Level()
	s.Buffer.Capacity = p.buf.Capacity()
	s.Buffer.HighWater = p.buf.HighWater()
	s.Buffer.Overflows = p.buf.Overflows()
	s.Buffer.Stalls = p.buf.Stalls()
	s.Buffer.Policy = p.buf.Policy().String()
	s.Framer = p.framer.Stats()
	s.FrameErrors = p.frameErrors
	s.FastForwards = p.fastForwards
	return s
}
