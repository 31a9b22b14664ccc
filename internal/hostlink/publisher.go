package hostlink

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/banshee-data/usbsniff/internal/hostlink/pb"
	"github.com/banshee-data/usbsniff/internal/monitoring"
	"github.com/banshee-data/usbsniff/internal/transport"
)

// maxMsgSize covers the largest frame the framer can build at the default
// limits.
const maxMsgSize = 16<<20 + 1024

// ErrPublisherRunning is returned by Start on a running publisher.
var ErrPublisherRunning = errors.New("hostlink: publisher already running")

// Ensure Publisher implements the gRPC interface.
var _ pb.CaptureServiceServer = (*Publisher)(nil)

// PublisherConfig configures the gRPC frame publisher.
type PublisherConfig struct {
	// ListenAddr is the TCP address to serve on, e.g. "localhost:50051".
	ListenAddr string
	// MaxClients bounds concurrent StreamFrames calls.
	MaxClients int
	// ClientQueue is the per-subscriber frame backlog.
	ClientQueue int
}

// DefaultPublisherConfig returns the defaults.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		ListenAddr:  "localhost:50051",
		MaxClients:  5,
		ClientQueue: 64,
	}
}

// PublisherStats counts publisher outcomes.
type PublisherStats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Clients   int32  `json:"clients"`
}

// published is a frame queued for one subscriber.
type published struct {
	seq     uint64
	dropped uint64
	frame   transport.Frame
}

type subscriber struct {
	id     string
	frames chan published
	// frames missed since the last one queued
	missed atomic.Uint64
}

// Publisher is a frame sink serving CaptureService. Every frame written is
// offered to each connected subscriber without blocking; a subscriber whose
// queue is full misses the frame and is told how many it missed with the
// next one it receives.
type Publisher struct {
	pb.UnimplementedCaptureServiceServer

	cfg      PublisherConfig
	server   *grpc.Server
	listener net.Listener

	clients   map[string]*subscriber
	clientsMu sync.RWMutex
	clientSeq atomic.Uint64

	seq         atomic.Uint64
	dropped     atomic.Uint64
	clientCount atomic.Int32

	running atomic.Bool
	closed  atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewPublisher returns a stopped publisher. Zero fields take the defaults.
func NewPublisher(cfg PublisherConfig) *Publisher {
	def := DefaultPublisherConfig()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = def.MaxClients
	}
	if cfg.ClientQueue <= 0 {
		cfg.ClientQueue = def.ClientQueue
	}
	return &Publisher{
		cfg:     cfg,
		clients: make(map[string]*subscriber),
		stopCh:  make(chan struct{}),
	}
}

// Start listens on the configured address and serves in the background.
func (p *Publisher) Start() error {
	if p.closed.Load() {
		return ErrClosed
	}
	if !p.running.CompareAndSwap(false, true) {
		return ErrPublisherRunning
	}
	lis, err := net.Listen("tcp", p.cfg.ListenAddr)
	if err != nil {
		p.running.Store(false)
		return fmt.Errorf("failed to listen on %s: %w", p.cfg.ListenAddr, err)
	}
	p.listener = lis
	p.server = grpc.NewServer(grpc.MaxSendMsgSize(maxMsgSize))
	pb.RegisterCaptureServiceServer(p.server, p)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			monitoring.Warnf("hostlink: gRPC server error: %v", err)
		}
	}()
	monitoring.Logf("hostlink: publishing frames over gRPC on %s", lis.Addr())
	return nil
}

// Addr returns the bound address once started, else the configured one.
func (p *Publisher) Addr() string {
	if p.listener != nil {
		return p.listener.Addr().String()
	}
	return p.cfg.ListenAddr
}

// WriteFrame offers f to every subscriber. It never blocks.
func (p *Publisher) WriteFrame(f transport.Frame) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if f.PayloadLen() != len(f.Payload) {
		return fmt.Errorf("%w: length %d, payload %d", transport.ErrLengthMismatch, f.Length, len(f.Payload))
	}
	seq := p.seq.Add(1)

	p.clientsMu.RLock()
	defer p.clientsMu.RUnlock()
	for _, sub := range p.clients {
		item := published{seq: seq, frame: f, dropped: sub.missed.Swap(0)}
		select {
		case sub.frames <- item:
		default:
			sub.missed.Add(item.dropped + 1)
			p.dropped.Add(1)
		}
	}
	return nil
}

// StreamFrames implements the streaming RPC.
func (p *Publisher) StreamFrames(req *pb.StreamRequest, stream pb.CaptureService_StreamFramesServer) error {
	sub, err := p.addClient(req.GetClientId())
	if err != nil {
		return err
	}
	defer p.removeClient(sub.id)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case item := <-sub.frames:
			if err := stream.Send(item.toProto()); err != nil {
				return err
			}
		}
	}
}

func (item published) toProto() *pb.Frame {
	return &pb.Frame{
		Seq:       item.seq,
		Length:    item.frame.Length,
		Timestamp: item.frame.Timestamp,
		Payload:   item.frame.Payload,
		Dropped:   item.dropped,
	}
}

func (p *Publisher) addClient(name string) (*subscriber, error) {
	if name == "" {
		name = "grpc"
	}
	sub := &subscriber{
		id:     fmt.Sprintf("%s-%d", name, p.clientSeq.Add(1)),
		frames: make(chan published, p.cfg.ClientQueue),
	}

	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if len(p.clients) >= p.cfg.MaxClients {
		return nil, status.Errorf(codes.ResourceExhausted, "publisher has %d clients", len(p.clients))
	}
	p.clients[sub.id] = sub
	n := p.clientCount.Add(1)
	monitoring.Logf("hostlink: client connected: %s (total: %d)", sub.id, n)
	return sub, nil
}

func (p *Publisher) removeClient(id string) {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if _, ok := p.clients[id]; !ok {
		return
	}
	delete(p.clients, id)
	n := p.clientCount.Add(-1)
	monitoring.Logf("hostlink: client disconnected: %s (remaining: %d)", id, n)
}

// Stats returns a snapshot of the counters.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		Published: p.seq.Load(),
		Dropped:   p.dropped.Load(),
		Clients:   p.clientCount.Load(),
	}
}

// Close ends every stream and stops the server. Later writes return
// ErrClosed.
func (p *Publisher) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	close(p.stopCh)
	if p.running.Swap(false) {
		p.server.GracefulStop()
		p.wg.Wait()
		monitoring.Logf("hostlink: gRPC publisher stopped after %d frames, %d dropped", p.seq.Load(), p.dropped.Load())
	}
	return nil
}
