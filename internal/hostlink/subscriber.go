package hostlink

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/banshee-data/usbsniff/internal/hostlink/pb"
	"github.com/banshee-data/usbsniff/internal/transport"
)

// StreamedFrame is a frame received from a Publisher.
type StreamedFrame struct {
	transport.Frame
	// Seq is the publisher sequence number.
	Seq uint64
	// Dropped counts frames this subscriber missed just before this one.
	Dropped uint64
}

// Subscribe streams frames from the publisher at addr into fn until ctx is
// done, the publisher closes the stream or fn returns an error. A stream
// closed by the publisher returns nil.
func Subscribe(ctx context.Context, addr, clientID string, fn func(StreamedFrame) error) error {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxMsgSize)),
	)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer conn.Close()

	stream, err := pb.NewCaptureServiceClient(conn).StreamFrames(ctx, &pb.StreamRequest{ClientId: clientID})
	if err != nil {
		return fmt.Errorf("stream frames from %s: %w", addr, err)
	}
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		f := transport.Frame{Length: msg.GetLength(), Timestamp: msg.GetTimestamp(), Payload: msg.GetPayload()}
		if f.PayloadLen() != len(f.Payload) {
			return fmt.Errorf("%w: seq %d length %d, payload %d", transport.ErrLengthMismatch, msg.GetSeq(), f.Length, len(f.Payload))
		}
		if err := fn(StreamedFrame{Frame: f, Seq: msg.GetSeq(), Dropped: msg.GetDropped()}); err != nil {
			return err
		}
	}
}
