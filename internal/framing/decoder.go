package framing

import (
	"errors"
	"fmt"
)

// ErrTruncatedRecord is returned when input ends inside a record.
var ErrTruncatedRecord = errors.New("framing: truncated record")

// Decoded is a record with its reconstructed capture time.
type Decoded struct {
	Record
	// Time is the running sum of record deltas. An overflow record adds
	// one full counter period.
	Time uint64
}

// Decoder reassembles records from frame payloads. A record may span frame
// boundaries, so partial bytes are kept between calls to Feed.
type Decoder struct {
	time    uint64
	partial []byte
	padding uint64
}

// Feed decodes as many complete records as p allows. A zero byte where a
// header is expected is padding and skipped; zero is never a valid header
// because an overflow record always carries three timestamp bytes.
func (d *Decoder) Feed(p []byte) []Decoded {
	var out []Decoded
	if len(d.partial) > 0 {
		need := recordLen(d.partial[0]) - len(d.partial)
		if len(p) < need {
			d.partial = append(d.partial, p...)
			return nil
		}
		d.partial = append(d.partial, p[:need]...)
		out = append(out, d.emit(d.partial))
		d.partial = d.partial[:0]
		p = p[need:]
	}
	for len(p) > 0 {
		if p[0] == 0 {
			d.padding++
			p = p[1:]
			continue
		}
		n := recordLen(p[0])
		if len(p) < n {
			d.partial = append(d.partial[:0], p...)
			break
		}
		out = append(out, d.emit(p[:n]))
		p = p[n:]
	}
	return out
}

// Close reports whether input ended mid-record.
func (d *Decoder) Close() error {
	if len(d.partial) > 0 {
		return fmt.Errorf("%w: %d of %d bytes", ErrTruncatedRecord, len(d.partial), recordLen(d.partial[0]))
	}
	return nil
}

// Time returns the capture time of the last decoded record.
func (d *Decoder) Time() uint64 { return d.time }

// Padding returns how many padding bytes were skipped.
func (d *Decoder) Padding() uint64 { return d.padding }

func (d *Decoder) emit(b []byte) Decoded {
	rec := parseRecord(b)
	if rec.Type == TypeOverflow {
		d.time += uint64(MaxDelta) + 1
	} else {
		d.time += uint64(rec.TimeDelta)
	}
	return Decoded{Record: rec, Time: d.time}
}

// Decode decodes a complete buffer.
func Decode(p []byte) ([]Decoded, error) {
	var d Decoder
	out := d.Feed(p)
	return out, d.Close()
}

func recordLen(header byte) int {
	n := 1 + int(header>>4&0x03)
	if RecordType(header>>6) != TypeOverflow {
		n++
	}
	return n
}

func parseRecord(b []byte) Record {
	h := b[0]
	rec := Record{
		Type:      RecordType(h >> 6),
		TimeLen:   h >> 4 & 0x03,
		TimeDelta: uint32(h & 0x0f),
	}
	for i := 0; i < int(rec.TimeLen); i++ {
		rec.TimeDelta |= uint32(b[1+i]) << (4 + 8*i)
	}
	if rec.HasPayload() {
		rec.Payload = b[len(b)-1]
	}
	return rec
}
