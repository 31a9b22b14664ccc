// Package pipeline assembles the capture stages into a cycle-stepped
// pipeline and runs it against live sources.
package pipeline

import (
	"encoding/binary"
	"fmt"

	"github.com/banshee-data/usbsniff/internal/burst"
	"github.com/banshee-data/usbsniff/internal/framing"
	"github.com/banshee-data/usbsniff/internal/monitoring"
	"github.com/banshee-data/usbsniff/internal/resync"
	"github.com/banshee-data/usbsniff/internal/stream"
	"github.com/banshee-data/usbsniff/internal/transport"
	"github.com/banshee-data/usbsniff/internal/widthconv"
)

// FramerKind selects the host framer variant.
type FramerKind string

const (
	FramerBatch  FramerKind = "batch"
	FramerStream FramerKind = "stream"
)

// Config sizes the pipeline stages.
type Config struct {
	FlushDepth     int
	IdleTimeout    uint64
	BurstCapacity  int
	OverflowPolicy burst.Policy
	Framer         FramerKind

	ResyncPattern uint32
	ResyncLength  int
	ResyncRepeats int
}

// DefaultConfig returns the stage defaults.
func DefaultConfig() Config {
	return Config{
		FlushDepth:     transport.DefaultDepth,
		IdleTimeout:    transport.DefaultIdleTimeout,
		BurstCapacity:  burst.DefaultCapacity,
		OverflowPolicy: burst.Backpressure,
		Framer:         FramerBatch,
		ResyncPattern:  resync.DefaultPattern,
		ResyncLength:   resync.DefaultLength,
		ResyncRepeats:  resync.DefaultRepeats,
	}
}

// Pipeline wires encoder, resync generator, width converter, burst buffer and
// host framer through one-slot registers. Each Step evaluates the stages
// downstream first.
type Pipeline struct {
	cfg Config

	enc    *framing.RecordEncoder
	gen    *resync.Generator
	conv   *widthconv.Converter
	buf    *burst.Buffer
	framer transport.HostFramer
	asm    transport.Assembler

	capture stream.Reg[framing.Input]
	encOut  stream.Reg[framing.Packed]
	convIn  stream.Reg[framing.Packed]
	convOut stream.Reg[uint32]
	hostOut stream.Reg[transport.Beat]

	frames []transport.Frame

	cycle        uint64
	inputs       uint64
	padBytes     uint64
	frameErrors  uint64
	fastForwards uint64
}

// New builds a pipeline from cfg.
func New(cfg Config) (*Pipeline, error) {
	gen, err := resync.New(cfg.ResyncPattern, cfg.ResyncLength, cfg.ResyncRepeats)
	if err != nil {
		return nil, err
	}
	var framer transport.HostFramer
	switch cfg.Framer {
	case FramerBatch, "":
		framer = transport.NewFramer(cfg.FlushDepth, cfg.IdleTimeout)
	case FramerStream:
		framer = transport.NewStreamFramer(cfg.FlushDepth, cfg.IdleTimeout)
	default:
		return nil, fmt.Errorf("unknown framer %q", cfg.Framer)
	}
	return &Pipeline{
		cfg:    cfg,
		enc:    framing.NewRecordEncoder(),
		gen:    gen,
		conv:   widthconv.New(),
		buf:    burst.New(cfg.BurstCapacity, cfg.OverflowPolicy),
		framer: framer,
	}, nil
}

// Offer presents one capture input for the next Step. It returns false if
// the previous input has not been accepted yet.
func (p *Pipeline) Offer(in framing.Input) bool {
	if !p.capture.TryPut(in) {
		return false
	}
	p.inputs++
	return true
}

// WriteEvent latches an out-of-band event code at the end of the next Step.
func (p *Pipeline) WriteEvent(code byte) {
	p.enc.Events.Write(code)
}

// TriggerResync starts the resync pattern. It returns false while a pattern
// is already being sent.
func (p *Pipeline) TriggerResync() bool {
	return p.gen.Start()
}

// Step advances every stage by one cycle.
func (p *Pipeline) Step() {
	p.collect()
	p.framer.Step(p.buf, &p.hostOut)
	p.buf.Step(&p.convOut)
	p.conv.Step(&p.convIn, &p.convOut)
	p.mux()
	p.enc.Step(&p.capture, &p.encOut)
	p.cycle++
}

// collect is the host end: it always accepts a beat.
func (p *Pipeline) collect() {
	b, ok := p.hostOut.Take()
	if !ok {
		return
	}
	f, done, err := p.asm.Add(b)
	if err != nil {
		p.frameErrors++
		monitoring.Warnf("pipeline: dropping malformed frame at cycle %d: %v", p.cycle, err)
		return
	}
	if done {
		p.frames = append(p.frames, f)
	}
}

// mux gives the resync generator priority over encoder records. Records
// move whole, so pattern and record bytes never interleave.
func (p *Pipeline) mux() {
	if p.gen.Busy() {
		p.gen.Step(&p.convIn)
		return
	}
	if !p.convIn.Ready() {
		return
	}
	if rec, ok := p.encOut.Take(); ok {
		p.convIn.TryPut(rec)
	}
}

// upstreamEmpty reports whether no data sits between the capture input and
// the burst buffer, apart from the converter carry.
func (p *Pipeline) upstreamEmpty() bool {
	return !p.capture.Valid() && !p.encOut.Valid() && !p.convIn.Valid() &&
		!p.convOut.Valid() && !p.gen.Busy() && !p.conv.ExtraPending() &&
		!p.enc.Pending()
}

// quiescent reports whether idle cycles can be skipped in bulk: only the
// time counter and the framer timer would change.
func (p *Pipeline) quiescent() bool {
	return p.upstreamEmpty() && p.buf.Level() == 0 &&
		!p.framer.Transferring() && !p.hostOut.Valid()
}

// Advance runs n cycles. Stretches where the pipeline is quiescent are
// skipped in bulk, stopping short of any overflow or idle flush so those
// happen on a real Step.
func (p *Pipeline) Advance(n uint64) {
	for n > 0 {
		if !p.quiescent() {
			p.Step()
			n--
			continue
		}
		k := min(n, p.enc.Time.TicksUntilOverflow()-1)
		if f := p.framer.CyclesUntilFlush(); f != transport.NoFlush {
			k = min(k, f-1)
		}
		if k == 0 {
			p.Step()
			n--
			continue
		}
		p.enc.Advance(k)
		p.framer.Advance(k)
		p.cycle += k
		p.fastForwards++
		n -= k
	}
}

// Drain steps until every stage is empty and all data has reached the host
// as frames. A partial word left in the converter is zero padded; the
// decoder skips zero bytes between records.
func (p *Pipeline) Drain() {
	for {
		if p.upstreamEmpty() {
			if p.conv.Remain() > 0 && p.convOut.Ready() {
				var w [widthconv.WordBytes]byte
				tail := p.conv.Flush()
				copy(w[:], tail)
				p.padBytes += uint64(len(w) - len(tail))
				p.convOut.TryPut(binary.LittleEndian.Uint32(w[:]))
			}
			if !p.convOut.Valid() && (p.buf.Level() == 0 || p.cfg.Framer == FramerStream) {
				p.framer.ForceFlush(p.buf)
			}
			if !p.convOut.Valid() && p.buf.Level() == 0 && p.framer.Idle() && !p.hostOut.Valid() {
				return
			}
		}
		p.Step()
	}
}

// Frames returns and clears the frames completed so far.
func (p *Pipeline) Frames() []transport.Frame {
	out := p.frames
	p.frames = nil
	return out
}

// Cycle returns the number of cycles run.
func (p *Pipeline) Cycle() uint64 { return p.cycle }

// Reset clears every register and stage.
func (p *Pipeline) Reset() {
	p.enc.Reset()
	p.gen.Reset()
	p.conv.Reset()
	p.buf.Reset()
	p.framer.Reset()
	p.asm.Reset()
	p.capture.Reset()
	p.encOut.Reset()
	p.convIn.Reset()
	p.convOut.Reset()
	p.hostOut.Reset()
	p.frames = nil
	p.cycle = 0
	p.inputs = 0
	p.padBytes = 0
	p.frameErrors = 0
	p.fastForwards = 0
}
