package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/usbsniff/internal/capture"
	"github.com/banshee-data/usbsniff/internal/framing"
	"github.com/banshee-data/usbsniff/internal/monitoring"
	"github.com/banshee-data/usbsniff/internal/timeutil"
	"github.com/banshee-data/usbsniff/internal/transport"
)

// FrameSink receives every completed frame in order.
type FrameSink interface {
	WriteFrame(f transport.Frame) error
}

// FrameSinkFunc adapts a function to FrameSink.
type FrameSinkFunc func(transport.Frame) error

func (f FrameSinkFunc) WriteFrame(fr transport.Frame) error { return f(fr) }

// ErrRunnerStopped is returned by requests made after Run has returned.
var ErrRunnerStopped = errors.New("pipeline: runner stopped")

// RunnerOptions tune the runtime loop.
type RunnerOptions struct {
	// ClockHz converts wall-clock time into pipeline cycles while the
	// source is idle. Zero disables idle advancing.
	ClockHz uint64
	// TickInterval is how often idle time is accounted.
	TickInterval time.Duration
	// ReadBatch is the number of inputs requested per source read.
	ReadBatch int
	Clock     timeutil.Clock
}

func (o RunnerOptions) withDefaults() RunnerOptions {
	if o.TickInterval <= 0 {
		o.TickInterval = 10 * time.Millisecond
	}
	if o.ReadBatch <= 0 {
		o.ReadBatch = 4096
	}
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
	return o
}

type readResult struct {
	inputs []capture.Input
	err    error
}

// Runner owns a Pipeline on a single goroutine. Inputs come from a capture
// source; event writes, resync triggers and stats reads are marshalled onto
// the same goroutine.
type Runner struct {
	p     *Pipeline
	src   capture.Source
	sinks []FrameSink
	opts  RunnerOptions

	cmds chan func(*Pipeline)
	done chan struct{}

	mu        sync.Mutex
	snapshot  Stats
	sinkErrs  uint64
	startedAt time.Time
}

// NewRunner returns a runner feeding src into p and frames into sinks.
func NewRunner(p *Pipeline, src capture.Source, opts RunnerOptions, sinks ...FrameSink) *Runner {
	return &Runner{
		p:     p,
		src:   src,
		sinks: sinks,
		opts:  opts.withDefaults(),
		cmds:  make(chan func(*Pipeline)),
		done:  make(chan struct{}),
	}
}

// Run captures until the source ends or ctx is cancelled. An EventStart
// record opens the capture and an EventStop record closes it; on return
// every captured byte has been flushed to the sinks.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.done)

	reads := make(chan readResult, 4)
	readerCtx, stopReader := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.readLoop(readerCtx, reads)
	}()
	defer func() {
		stopReader()
		r.src.Close()
		wg.Wait()
	}()

	ticker := r.opts.Clock.NewTicker(r.opts.TickInterval)
	defer ticker.Stop()

	r.mu.Lock()
	r.startedAt = r.opts.Clock.Now()
	r.mu.Unlock()
	baseCycle := r.p.Cycle()

	r.p.WriteEvent(framing.EventStart)
	r.p.Step()
	monitoring.Logf("capture: started at cycle %d", baseCycle)

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case res := <-reads:
			for _, in := range res.inputs {
				for !r.p.Offer(in) {
					r.p.Step()
				}
				r.p.Step()
			}
			r.deliver()
			if res.err != nil {
				if !errors.Is(res.err, io.EOF) {
					runErr = fmt.Errorf("capture source: %w", res.err)
				}
				break loop
			}
		case fn := <-r.cmds:
			fn(r.p)
			r.deliver()
		case now := <-ticker.C():
			r.catchUp(baseCycle, now)
			r.deliver()
		}
	}

	r.p.WriteEvent(framing.EventStop)
	r.p.Step()
	r.p.Drain()
	r.deliver()
	s := r.p.Stats()
	monitoring.Logf("capture: stopped at cycle %d after %d inputs, %d frames, %d buffer overflows",
		s.Cycle, s.Inputs, s.Framer.Frames, s.Buffer.Overflows)
	return runErr
}

func (r *Runner) readLoop(ctx context.Context, out chan<- readResult) {
	buf := make([]capture.Input, r.opts.ReadBatch)
	for {
		n, err := r.src.Read(buf)
		res := readResult{inputs: append([]capture.Input(nil), buf[:n]...), err: err}
		if errors.Is(err, capture.ErrSourceClosed) && ctx.Err() != nil {
			return
		}
		select {
		case out <- res:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// catchUp advances the pipeline so its cycle count tracks wall-clock time.
func (r *Runner) catchUp(baseCycle uint64, now time.Time) {
	if r.opts.ClockHz == 0 {
		return
	}
	r.mu.Lock()
	elapsed := now.Sub(r.startedAt)
	r.mu.Unlock()
	if elapsed <= 0 {
		return
	}
	target := baseCycle + uint64(elapsed.Seconds()*float64(r.opts.ClockHz))
	if c := r.p.Cycle(); target > c {
		r.p.Advance(target - c)
	}
}

func (r *Runner) deliver() {
	frames := r.p.Frames()
	var failed uint64
	for _, f := range frames {
		for _, sink := range r.sinks {
			if err := sink.WriteFrame(f); err != nil {
				failed++
				monitoring.Warnf("capture: frame sink error: %v", err)
			}
		}
	}
	s := r.p.Stats()
	r.mu.Lock()
	r.snapshot = s
	r.sinkErrs += failed
	r.mu.Unlock()
}

// do runs fn on the pipeline goroutine.
func (r *Runner) do(ctx context.Context, fn func(*Pipeline)) error {
	ran := make(chan struct{})
	select {
	case r.cmds <- func(p *Pipeline) { fn(p); close(ran) }:
	case <-r.done:
		return ErrRunnerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-ran
	return nil
}

// WriteEvent latches an event code into the capture stream.
func (r *Runner) WriteEvent(ctx context.Context, code byte) error {
	return r.do(ctx, func(p *Pipeline) {
		p.WriteEvent(code)
		p.Step()
	})
}

// TriggerResync starts the resync pattern. started is false when a pattern
// was already in progress.
func (r *Runner) TriggerResync(ctx context.Context) (started bool, err error) {
	err = r.do(ctx, func(p *Pipeline) {
		started = p.TriggerResync()
		p.Step()
	})
	return started, err
}

// Stats returns the counters as of the last processed batch.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}

// SinkErrors returns how many frame deliveries failed.
func (r *Runner) SinkErrors() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sinkErrs
}
