package pipeline

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/usbsniff/internal/capture"
	"github.com/banshee-data/usbsniff/internal/framing"
	"github.com/banshee-data/usbsniff/internal/testutil"
	"github.com/banshee-data/usbsniff/internal/timeutil"
	"github.com/banshee-data/usbsniff/internal/transport"
)

// chanSource blocks until inputs are sent or the channel is closed.
type chanSource struct {
	ch   chan []capture.Input
	once sync.Once
	done chan struct{}
}

func newChanSource() *chanSource {
	return &chanSource{ch: make(chan []capture.Input), done: make(chan struct{})}
}

func (s *chanSource) Read(p []capture.Input) (int, error) {
	select {
	case in, ok := <-s.ch:
		if !ok {
			return 0, io.EOF
		}
		return copy(p, in), nil
	case <-s.done:
		return 0, capture.ErrSourceClosed
	}
}

func (s *chanSource) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func events(recs []framing.Decoded) []byte {
	var out []byte
	for _, r := range recs {
		if r.Type == framing.TypeEvent {
			out = append(out, r.Payload)
		}
	}
	return out
}

func TestRunner_CapturesUntilEOF(t *testing.T) {
	p := newPipeline(t, nil)
	inputs := testutil.RandomInputs(21, 500)
	src := &capture.SliceSource{Inputs: inputs, Chunk: 37}
	var sink testutil.FrameLog

	r := NewRunner(p, src, RunnerOptions{}, &sink)
	require.NoError(t, r.Run(context.Background()))

	recs := decodeFrames(t, sink.Frames())
	if diff := cmp.Diff(inputs, payloads(recs)); diff != "" {
		t.Fatalf("payloads differ (-want +got):\n%s", diff)
	}
	assert.Equal(t, []byte{framing.EventStart, framing.EventStop}, events(recs))
	assert.Equal(t, framing.EventStart, recs[0].Payload)
	assert.Equal(t, uint64(len(inputs)), r.Stats().Inputs)
	assert.Zero(t, r.SinkErrors())

	_, err := r.TriggerResync(context.Background())
	assert.ErrorIs(t, err, ErrRunnerStopped)
}

func TestRunner_Commands(t *testing.T) {
	p := newPipeline(t, nil)
	src := newChanSource()
	var sink testutil.FrameLog
	r := NewRunner(p, src, RunnerOptions{}, &sink)

	errc := make(chan error, 1)
	go func() { errc <- r.Run(context.Background()) }()

	ctx := context.Background()
	src.ch <- []capture.Input{{Byte: 1}, {Byte: 2}}
	require.NoError(t, r.WriteEvent(ctx, 0x42))
	started, err := r.TriggerResync(ctx)
	require.NoError(t, err)
	assert.True(t, started)
	src.ch <- []capture.Input{{Byte: 3}}
	close(src.ch)
	require.NoError(t, <-errc)

	recs := decodeFrames(t, sink.Frames())
	assert.Equal(t, []framing.Input{{Byte: 1}, {Byte: 2}, {Byte: 3}}, payloads(recs))
	evs := events(recs)
	assert.Contains(t, evs, byte(0x42))
	assert.Equal(t, framing.EventStop, evs[len(evs)-1])
	assert.Equal(t, uint64(1), r.Stats().ResyncTriggers)
}

func TestRunner_IdleTimeFlushes(t *testing.T) {
	p := newPipeline(t, func(c *Config) { c.IdleTimeout = 500 })
	src := newChanSource()
	var sink testutil.FrameLog
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	r := NewRunner(p, src, RunnerOptions{ClockHz: 1000, Clock: clock}, &sink)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()

	src.ch <- []capture.Input{{Byte: 0xaa}}
	require.Eventually(t, func() bool { return r.Stats().Inputs == 1 }, 5*time.Second, time.Millisecond)
	require.Empty(t, sink.Frames())

	require.Eventually(t, func() bool {
		clock.Advance(100 * time.Millisecond)
		return len(sink.Frames()) > 0
	}, 5*time.Second, time.Millisecond)

	frames := sink.Frames()
	recs := decodeFrames(t, frames)
	assert.Equal(t, []framing.Input{{Byte: 0xaa}}, payloads(recs))
	assert.Equal(t, uint64(1), r.Stats().Framer.ByReason[transport.FlushIdle])

	cancel()
	require.NoError(t, <-errc)
	recs = decodeFrames(t, sink.Frames())
	assert.Equal(t, framing.EventStop, recs[len(recs)-1].Payload)
}
