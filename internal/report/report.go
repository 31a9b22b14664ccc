// Package report summarises recorded host frames.
package report

import (
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/usbsniff/internal/framing"
	"github.com/banshee-data/usbsniff/internal/transport"
)

// RecordMix counts records by type.
type RecordMix struct {
	Overflow uint64 `json:"overflow"`
	Event    uint64 `json:"event"`
	Data     uint64 `json:"data"`
	Control  uint64 `json:"control"`
}

func (m *RecordMix) add(t framing.RecordType) {
	switch t {
	case framing.TypeOverflow:
		m.Overflow++
	case framing.TypeEvent:
		m.Event++
	case framing.TypeData:
		m.Data++
	case framing.TypeControl:
		m.Control++
	}
}

// Total returns the number of records.
func (m RecordMix) Total() uint64 {
	return m.Overflow + m.Event + m.Data + m.Control
}

// Distribution describes one sample set.
type Distribution struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	P50    float64 `json:"p50"`
	P95    float64 `json:"p95"`
	Max    float64 `json:"max"`
}

func describe(xs []float64) Distribution {
	if len(xs) == 0 {
		return Distribution{}
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	d := Distribution{
		Count: len(sorted),
		Mean:  stat.Mean(sorted, nil),
		Min:   sorted[0],
		P50:   stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P95:   stat.Quantile(0.95, stat.Empirical, sorted, nil),
		Max:   sorted[len(sorted)-1],
	}
	if len(sorted) > 1 {
		d.StdDev = stat.StdDev(sorted, nil)
	}
	return d
}

// Summary is the result of analysing a frame stream.
type Summary struct {
	Frames       uint64       `json:"frames"`
	Bytes        uint64       `json:"bytes"`
	Words        uint64       `json:"words"`
	FrameWords   Distribution `json:"frame_words"`
	FlushGaps    Distribution `json:"flush_gap_cycles"`
	Records      RecordMix    `json:"records"`
	PaddingBytes uint64       `json:"padding_bytes"`
	CaptureTime  uint64       `json:"capture_cycles"`
	Truncated    bool         `json:"truncated"`
}

// FrameRecords is the record mix decoded from one frame.
type FrameRecords struct {
	Seq       uint64
	Timestamp uint32
	Mix       RecordMix
}

// Collector accumulates frame statistics. It implements the pipeline frame
// sink interface so it can run alongside a live capture.
type Collector struct {
	mu sync.Mutex

	dec      framing.Decoder
	summary  Summary
	words    []float64
	gaps     []float64
	perFrame []FrameRecords
	lastTS   uint32
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// WriteFrame adds one frame.
func (c *Collector) WriteFrame(f transport.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq := c.summary.Frames
	if seq > 0 {
		// timestamps are a free-running 32-bit cycle count
		c.gaps = append(c.gaps, float64(f.Timestamp-c.lastTS))
	}
	c.lastTS = f.Timestamp
	c.summary.Frames++
	c.summary.Bytes += uint64(f.Length)
	c.summary.Words += uint64(f.Words())
	c.words = append(c.words, float64(f.Words()))

	fr := FrameRecords{Seq: seq, Timestamp: f.Timestamp}
	for _, d := range c.dec.Feed(f.Payload) {
		fr.Mix.add(d.Type)
		c.summary.Records.add(d.Type)
	}
	c.perFrame = append(c.perFrame, fr)
	return nil
}

// Summary computes the statistics over all frames so far.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.summary
	s.FrameWords = describe(c.words)
	s.FlushGaps = describe(c.gaps)
	s.PaddingBytes = c.dec.Padding()
	s.CaptureTime = c.dec.Time()
	s.Truncated = c.dec.Close() != nil
	return s
}

// FrameSizes returns the payload size in words of every frame.
func (c *Collector) FrameSizes() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]float64(nil), c.words...)
}

// PerFrame returns the record mix of every frame.
func (c *Collector) PerFrame() []FrameRecords {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]FrameRecords(nil), c.perFrame...)
}
