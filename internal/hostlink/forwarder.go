// Package hostlink delivers host frames off the capture machine, either as
// UDP datagrams or as a gRPC stream to subscribers.
package hostlink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/usbsniff/internal/monitoring"
	"github.com/banshee-data/usbsniff/internal/transport"
)

// MaxDatagram is the largest UDP payload the forwarder sends.
const MaxDatagram = 65507

// ErrClosed is returned by WriteFrame after Close.
var ErrClosed = errors.New("hostlink: sink closed")

// Options tune a Forwarder.
type Options struct {
	// Mux prefixes every datagram with a transport mux header on
	// transport.StreamCapture.
	Mux bool
	// QueueLen bounds the frames waiting to be sent. Default 1000.
	QueueLen int
	// LogInterval is how often drops are reported. Default 2s.
	LogInterval time.Duration
}

// Stats counts forwarder outcomes.
type Stats struct {
	Queued      uint64 `json:"queued"`
	Sent        uint64 `json:"sent"`
	Dropped     uint64 `json:"dropped"`
	Oversize    uint64 `json:"oversize"`
	WriteErrors uint64 `json:"write_errors"`
}

// Forwarder sends frames to a UDP address from its own goroutine. Frames
// arriving while the queue is full are dropped and counted; the pipeline is
// never blocked by the network.
type Forwarder struct {
	conn    *net.UDPConn
	queue   chan []byte
	opts    Options
	address string

	queued, sent, dropped, oversize, writeErrors atomic.Uint64

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
	closed    atomic.Bool
}

// NewForwarder dials addr ("host:port").
func NewForwarder(addr string, opts Options) (*Forwarder, error) {
	if opts.QueueLen <= 0 {
		opts.QueueLen = 1000
	}
	if opts.LogInterval <= 0 {
		opts.LogInterval = 2 * time.Second
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve forward address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create forward connection: %w", err)
	}
	return &Forwarder{
		conn:    conn,
		queue:   make(chan []byte, opts.QueueLen),
		opts:    opts,
		address: udpAddr.String(),
		done:    make(chan struct{}),
	}, nil
}

// Address returns the resolved destination.
func (f *Forwarder) Address() string {
	return f.address
}

// Start launches the send loop. It stops when ctx is cancelled or Close is
// called. Calling Start more than once has no effect.
func (f *Forwarder) Start(ctx context.Context) {
	f.startOnce.Do(func() {
		f.wg.Add(1)
		go f.loop(ctx)
		monitoring.Logf("hostlink: forwarding frames to %s (mux=%v)", f.address, f.opts.Mux)
	})
}

func (f *Forwarder) loop(ctx context.Context) {
	defer f.wg.Done()
	ticker := time.NewTicker(f.opts.LogInterval)
	defer ticker.Stop()

	var lastDropped, lastErrors uint64
	var lastErr error
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		case pkt := <-f.queue:
			if _, err := f.conn.Write(pkt); err != nil {
				f.writeErrors.Add(1)
				lastErr = err
				continue
			}
			f.sent.Add(1)
		case <-ticker.C:
			dropped, errs := f.dropped.Load(), f.writeErrors.Load()
			if dropped != lastDropped || errs != lastErrors {
				monitoring.Warnf("hostlink: %d frames dropped, %d write errors since last report (latest: %v)",
					dropped-lastDropped, errs-lastErrors, lastErr)
				lastDropped, lastErrors, lastErr = dropped, errs, nil
			}
		}
	}
}

// WriteFrame encodes f and queues it without blocking. A full queue drops
// the frame and counts it; only a closed forwarder or a malformed frame
// returns an error.
func (f *Forwarder) WriteFrame(fr transport.Frame) error {
	if f.closed.Load() {
		return ErrClosed
	}
	body, err := fr.AppendBinary(make([]byte, 0, transport.HeaderLen+len(fr.Payload)))
	if err != nil {
		return err
	}
	pkt := body
	if f.opts.Mux {
		pkt = transport.AppendMux(make([]byte, 0, transport.MuxHeaderLen+len(body)), transport.StreamCapture, body)
	}
	if len(pkt) > MaxDatagram {
		f.oversize.Add(1)
		f.dropped.Add(1)
		return nil
	}
	select {
	case f.queue <- pkt:
		f.queued.Add(1)
	default:
		f.dropped.Add(1)
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (f *Forwarder) Stats() Stats {
	return Stats{
		Queued:      f.queued.Load(),
		Sent:        f.sent.Load(),
		Dropped:     f.dropped.Load(),
		Oversize:    f.oversize.Load(),
		WriteErrors: f.writeErrors.Load(),
	}
}

// Close stops the send loop and closes the connection. Frames still queued
// are discarded.
func (f *Forwarder) Close() error {
	var err error
	f.closeOnce.Do(func() {
		f.closed.Store(true)
		close(f.done)
		f.wg.Wait()
		err = f.conn.Close()
	})
	return err
}
