package hostlink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/banshee-data/usbsniff/internal/transport"
)

func startPublisher(t *testing.T, cfg PublisherConfig) *Publisher {
	t.Helper()
	cfg.ListenAddr = "127.0.0.1:0"
	p := NewPublisher(cfg)
	require.NoError(t, p.Start())
	t.Cleanup(func() { p.Close() })
	return p
}

// subscribe runs Subscribe in the background and waits until the
// publisher has registered the client.
func subscribe(t *testing.T, ctx context.Context, p *Publisher, want int32) (<-chan StreamedFrame, <-chan error) {
	t.Helper()
	frames := make(chan StreamedFrame, 16)
	done := make(chan error, 1)
	go func() {
		done <- Subscribe(ctx, p.Addr(), "test", func(f StreamedFrame) error {
			frames <- f
			return nil
		})
	}()
	require.Eventually(t, func() bool { return p.Stats().Clients == want }, 5*time.Second, 10*time.Millisecond)
	return frames, done
}

func next(t *testing.T, frames <-chan StreamedFrame) StreamedFrame {
	t.Helper()
	select {
	case f := <-frames:
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("no frame received")
		return StreamedFrame{}
	}
}

func TestNewPublisher_Defaults(t *testing.T) {
	p := NewPublisher(PublisherConfig{})
	assert.Equal(t, DefaultPublisherConfig(), p.cfg)
	assert.Equal(t, "localhost:50051", p.Addr())
}

func TestPublisher_StreamsFrames(t *testing.T) {
	p := startPublisher(t, PublisherConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	frames, done := subscribe(t, ctx, p, 1)

	want := []transport.Frame{
		transport.NewFrame(100, []byte{0x91, 0x05, 0x00, 0x00}),
		transport.NewFrame(200, nil),
		transport.NewFrame(300, []byte{1, 2, 3, 4, 5, 6, 7, 8}),
	}
	for _, f := range want {
		require.NoError(t, p.WriteFrame(f))
	}
	for i, f := range want {
		got := next(t, frames)
		assert.Equal(t, uint64(i+1), got.Seq)
		assert.Zero(t, got.Dropped)
		assert.Equal(t, f.Length, got.Length)
		assert.Equal(t, f.Timestamp, got.Timestamp)
		assert.Equal(t, len(f.Payload), len(got.Payload))
		if len(f.Payload) > 0 {
			assert.Equal(t, f.Payload, got.Payload)
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber did not stop")
	}
	require.Eventually(t, func() bool { return p.Stats().Clients == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(3), p.Stats().Published)
}

func TestPublisher_MaxClients(t *testing.T) {
	p := startPublisher(t, PublisherConfig{MaxClients: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	subscribe(t, ctx, p, 1)

	err := Subscribe(ctx, p.Addr(), "second", func(StreamedFrame) error { return nil })
	require.Error(t, err)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err), err.Error())
}

func TestPublisher_SlowClientMissesFrames(t *testing.T) {
	p := NewPublisher(PublisherConfig{ClientQueue: 1})
	sub, err := p.addClient("slow")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, p.WriteFrame(transport.NewFrame(uint32(i), nil)))
	}
	first := <-sub.frames
	assert.Equal(t, uint64(1), first.seq)
	assert.Zero(t, first.dropped)
	assert.Equal(t, uint64(2), p.Stats().Dropped)

	require.NoError(t, p.WriteFrame(transport.NewFrame(3, nil)))
	msg := (<-sub.frames).toProto()
	assert.Equal(t, uint64(4), msg.GetSeq())
	assert.Equal(t, uint64(2), msg.GetDropped(), "frames 2 and 3 were missed")
	assert.Equal(t, uint32(3), msg.GetTimestamp())
}

func TestPublisher_Close(t *testing.T) {
	p := startPublisher(t, PublisherConfig{})
	frames, done := subscribe(t, context.Background(), p, 1)

	require.NoError(t, p.WriteFrame(transport.NewFrame(1, []byte{1, 2, 3, 4})))
	next(t, frames)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	select {
	case err := <-done:
		assert.NoError(t, err, "publisher shutdown ends the stream cleanly")
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber did not stop")
	}
	assert.ErrorIs(t, p.WriteFrame(transport.NewFrame(2, nil)), ErrClosed)
	assert.ErrorIs(t, p.Start(), ErrClosed)
}

func TestPublisher_Errors(t *testing.T) {
	p := startPublisher(t, PublisherConfig{})
	assert.ErrorIs(t, p.Start(), ErrPublisherRunning)

	bad := transport.Frame{Length: 16, Payload: []byte{1}}
	assert.ErrorIs(t, p.WriteFrame(bad), transport.ErrLengthMismatch)

	busy := NewPublisher(PublisherConfig{ListenAddr: p.Addr()})
	assert.Error(t, busy.Start())
}
