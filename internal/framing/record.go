// Package framing turns a captured byte stream into timestamped,
// variable-length records.
//
// Each record starts with a header byte: bits 0-3 hold the low four bits of
// the time delta, bits 4-5 the number of extra timestamp bytes and bits 6-7
// the record type. Up to three timestamp bytes follow, carrying delta bits
// [4:12), [12:20) and [20:28), and then a single payload byte for every type
// except Overflow.
package framing

import "fmt"

// RecordType is the two-bit type tag stored in the top of a header byte.
type RecordType uint8

const (
	TypeOverflow RecordType = iota
	TypeEvent
	TypeData
	TypeControl
)

func (t RecordType) String() string {
	switch t {
	case TypeOverflow:
		return "overflow"
	case TypeEvent:
		return "event"
	case TypeData:
		return "data"
	case TypeControl:
		return "control"
	default:
		return fmt.Sprintf("RecordType(%d)", uint8(t))
	}
}

// Event codes the capture runtime emits around a session.
const (
	EventStart byte = 0xE0
	EventStop  byte = 0xF1
)

const (
	// DeltaBits is the width of the elapsed-time counter.
	DeltaBits = 28
	// MaxDelta is the largest value the elapsed-time counter can hold.
	MaxDelta uint32 = 1<<DeltaBits - 1

	// MinRecordLen and MaxRecordLen bound an encoded record.
	MinRecordLen = 2
	MaxRecordLen = 5
)

// Input is one accepted capture cycle.
type Input struct {
	Byte    byte
	Control bool
}

// Record is one unit of output, snapshotted when the arbiter selects it.
type Record struct {
	Type      RecordType
	Payload   byte
	TimeDelta uint32
	TimeLen   uint8
}

// OverflowRecord is the record emitted when the elapsed-time counter
// saturates.
func OverflowRecord() Record {
	return Record{Type: TypeOverflow, TimeDelta: MaxDelta, TimeLen: 3}
}

// EncodedLength returns the minimal number of timestamp bytes needed beyond
// the low four bits carried in the header.
func EncodedLength(delta uint32) uint8 {
	switch {
	case delta < 1<<4:
		return 0
	case delta < 1<<12:
		return 1
	case delta < 1<<20:
		return 2
	default:
		return 3
	}
}

// HasPayload reports whether the record carries a payload byte.
func (r Record) HasPayload() bool {
	return r.Type != TypeOverflow
}

// Header returns the first encoded byte.
func (r Record) Header() byte {
	return byte(r.TimeDelta&0x0f) | (r.TimeLen&0x03)<<4 | byte(r.Type&0x03)<<6
}

// Len returns the encoded size in bytes.
func (r Record) Len() int {
	n := 1 + int(r.TimeLen)
	if r.HasPayload() {
		n++
	}
	return n
}

// AppendEncoded appends the encoded record to dst.
func (r Record) AppendEncoded(dst []byte) []byte {
	dst = append(dst, r.Header())
	d := r.TimeDelta >> 4
	for i := uint8(0); i < r.TimeLen; i++ {
		dst = append(dst, byte(d))
		d >>= 8
	}
	if r.HasPayload() {
		dst = append(dst, r.Payload)
	}
	return dst
}

func (r Record) String() string {
	if !r.HasPayload() {
		return fmt.Sprintf("%s delta=%d", r.Type, r.TimeDelta)
	}
	return fmt.Sprintf("%s 0x%02x delta=%d", r.Type, r.Payload, r.TimeDelta)
}

// Packed is a whole encoded record in a fixed five-byte slot. LenCode holds
// the byte count minus two, so a record of 2..5 bytes fits in two bits.
type Packed struct {
	Bytes   [MaxRecordLen]byte
	LenCode uint8
}

// Pack encodes r into a fixed slot.
func Pack(r Record) Packed {
	var p Packed
	b := r.AppendEncoded(p.Bytes[:0])
	p.LenCode = uint8(len(b) - MinRecordLen)
	return p
}

// PackBytes builds a slot from 2..5 raw bytes.
func PackBytes(b []byte) (Packed, error) {
	if len(b) < MinRecordLen || len(b) > MaxRecordLen {
		return Packed{}, fmt.Errorf("record length %d outside [%d,%d]", len(b), MinRecordLen, MaxRecordLen)
	}
	var p Packed
	copy(p.Bytes[:], b)
	p.LenCode = uint8(len(b) - MinRecordLen)
	return p, nil
}

// Len returns the number of meaningful bytes in the slot.
func (p Packed) Len() int {
	return int(p.LenCode&0x03) + MinRecordLen
}

// Slice returns the meaningful bytes.
func (p Packed) Slice() []byte {
	return p.Bytes[:p.Len()]
}
