package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MuxMagic opens every packet on a multiplexed host link.
const MuxMagic uint32 = 0x5AA55AA5

// MuxHeaderLen is the size of a mux header.
const MuxHeaderLen = 12

// Stream identifiers on a multiplexed host link.
const (
	StreamControl uint32 = 0
	StreamCapture uint32 = 1
)

var ErrBadMagic = errors.New("transport: bad mux magic")

// MuxHeader precedes a packet on a link shared by several streams.
type MuxHeader struct {
	StreamID uint32
	Length   uint32
}

// AppendMux appends a mux header and payload.
func AppendMux(b []byte, streamID uint32, payload []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, MuxMagic)
	b = binary.LittleEndian.AppendUint32(b, streamID)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(payload)))
	return append(b, payload...)
}

// WriteMux writes one multiplexed packet.
func WriteMux(w io.Writer, streamID uint32, payload []byte) error {
	_, err := w.Write(AppendMux(make([]byte, 0, MuxHeaderLen+len(payload)), streamID, payload))
	return err
}

// ReadMux reads one multiplexed packet.
func ReadMux(r io.Reader, limits Limits) (MuxHeader, []byte, error) {
	var hdr [MuxHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return MuxHeader{}, nil, ErrShortHeader
		}
		return MuxHeader{}, nil, err
	}
	if m := binary.LittleEndian.Uint32(hdr[0:4]); m != MuxMagic {
		return MuxHeader{}, nil, fmt.Errorf("%w: %#08x", ErrBadMagic, m)
	}
	h := MuxHeader{
		StreamID: binary.LittleEndian.Uint32(hdr[4:8]),
		Length:   binary.LittleEndian.Uint32(hdr[8:12]),
	}
	if h.Length > limits.MaxPayloadBytes+HeaderLen {
		return MuxHeader{}, nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, h.Length)
	}
	payload := make([]byte, h.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return MuxHeader{}, nil, fmt.Errorf("read mux payload: %w", err)
	}
	return h, payload, nil
}
