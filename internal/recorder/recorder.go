// Package recorder provides recording and replay of host frames.
//
// A log is a directory holding header.json, an index.bin seek index and
// frames/chunk_NNNN.bin files. Each chunk is a plain concatenation of frames
// in wire form, so a chunk can also be fed directly to transport.DecodeFrames.
package recorder

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/usbsniff/internal/monitoring"
	"github.com/banshee-data/usbsniff/internal/timeutil"
	"github.com/banshee-data/usbsniff/internal/transport"
)

// FormatVersion is written into every header.
const FormatVersion = "1.0"

// ChunkSize is the number of frames per chunk file.
const ChunkSize = 1000

// ErrClosed is returned when writing to a closed recorder.
var ErrClosed = errors.New("recorder: closed")

// LogHeader contains metadata about a recorded log.
type LogHeader struct {
	Version     string `json:"version"`
	SessionID   string `json:"session_id"`
	CreatedNs   int64  `json:"created_ns"`
	ClockHz     uint64 `json:"clock_hz,omitempty"`
	Framer      string `json:"framer,omitempty"`
	TotalFrames uint64 `json:"total_frames"`
	TotalBytes  uint64 `json:"total_bytes"`
	Chunks      int    `json:"chunks"`
	StartNs     int64  `json:"start_ns"`
	EndNs       int64  `json:"end_ns"`
}

// IndexEntry is an entry in the seek index. Its on-disk form is the
// little-endian encoding of the fields in order.
type IndexEntry struct {
	Seq       uint64
	WallNs    int64
	Timestamp uint32
	ChunkID   uint32
	Offset    uint32
	Length    uint32
}

const indexEntrySize = 32

// Options describe the capture a log belongs to.
type Options struct {
	SessionID string
	ClockHz   uint64
	Framer    string
	// Clock stamps frames with wall time; nil means the real clock.
	Clock timeutil.Clock
}

func chunkPath(base string, idx int) string {
	return filepath.Join(base, "frames", fmt.Sprintf("chunk_%04d.bin", idx))
}

// Recorder writes frames to a log directory. It implements the pipeline
// frame sink interface.
type Recorder struct {
	basePath string
	clock    timeutil.Clock

	header       LogHeader
	index        []IndexEntry
	currentChunk int
	chunkFile    *os.File
	chunkBuf     *bufio.Writer
	chunkOffset  uint32
	scratch      []byte

	mu     sync.Mutex
	closed bool
}

// NewRecorder creates a Recorder writing under basePath. If basePath is
// empty a directory named after the session is created in the temp dir.
func NewRecorder(basePath string, opts Options) (*Recorder, error) {
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if basePath == "" {
		basePath = filepath.Join(os.TempDir(), "usbsniff_"+opts.SessionID)
	}
	if err := os.MkdirAll(filepath.Join(basePath, "frames"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	r := &Recorder{
		basePath:     basePath,
		clock:        opts.Clock,
		currentChunk: -1,
		header: LogHeader{
			Version:   FormatVersion,
			SessionID: opts.SessionID,
			CreatedNs: opts.Clock.Now().UnixNano(),
			ClockHz:   opts.ClockHz,
			Framer:    opts.Framer,
		},
	}
	monitoring.Logf("recorder: logging session %s to %s", opts.SessionID, basePath)
	return r, nil
}

// WriteFrame appends f to the log.
func (r *Recorder) WriteFrame(f transport.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	data, err := f.AppendBinary(r.scratch[:0])
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	r.scratch = data

	seq := r.header.TotalFrames
	chunkIdx := int(seq / ChunkSize)
	if chunkIdx != r.currentChunk {
		if err := r.rotateChunk(chunkIdx); err != nil {
			return err
		}
	}

	if _, err := r.chunkBuf.Write(data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	now := r.clock.Now().UnixNano()
	if seq == 0 {
		r.header.StartNs = now
	}
	r.header.EndNs = now

	r.index = append(r.index, IndexEntry{
		Seq:       seq,
		WallNs:    now,
		Timestamp: f.Timestamp,
		ChunkID:   uint32(chunkIdx),
		Offset:    r.chunkOffset,
		Length:    uint32(len(data)),
	})
	r.chunkOffset += uint32(len(data))
	r.header.TotalFrames++
	r.header.TotalBytes += uint64(len(data))
	return nil
}

func (r *Recorder) closeChunk() error {
	if r.chunkFile == nil {
		return nil
	}
	err := r.chunkBuf.Flush()
	if cerr := r.chunkFile.Close(); err == nil {
		err = cerr
	}
	r.chunkFile = nil
	r.chunkBuf = nil
	return err
}

func (r *Recorder) rotateChunk(chunkIdx int) error {
	if err := r.closeChunk(); err != nil {
		return fmt.Errorf("failed to close chunk %d: %w", r.currentChunk, err)
	}
	f, err := os.Create(chunkPath(r.basePath, chunkIdx))
	if err != nil {
		return fmt.Errorf("failed to create chunk file: %w", err)
	}
	r.chunkFile = f
	r.chunkBuf = bufio.NewWriter(f)
	r.currentChunk = chunkIdx
	r.chunkOffset = 0
	r.header.Chunks = chunkIdx + 1
	return nil
}

// Close finalises the log and writes the header and index.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.closeChunk(); err != nil {
		return fmt.Errorf("failed to close chunk: %w", err)
	}

	headerData, err := json.MarshalIndent(r.header, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.basePath, "header.json"), headerData, 0644); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	indexFile, err := os.Create(filepath.Join(r.basePath, "index.bin"))
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	w := bufio.NewWriter(indexFile)
	for _, entry := range r.index {
		if err := binary.Write(w, binary.LittleEndian, entry); err != nil {
			indexFile.Close()
			return fmt.Errorf("failed to write index: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		indexFile.Close()
		return fmt.Errorf("failed to write index: %w", err)
	}
	monitoring.Logf("recorder: closed %s with %d frames in %d chunks", r.basePath, r.header.TotalFrames, r.header.Chunks)
	return indexFile.Close()
}

// Path returns the base path of the log.
func (r *Recorder) Path() string {
	return r.basePath
}

// FrameCount returns the number of frames recorded.
func (r *Recorder) FrameCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.header.TotalFrames
}

// Header returns a snapshot of the log header.
func (r *Recorder) Header() LogHeader {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.header
}

// Replayer reads frames back from a log directory.
type Replayer struct {
	basePath string
	header   LogHeader
	index    []IndexEntry

	currentFrame uint64
	currentChunk int
	chunkData    []byte

	mu sync.Mutex
}

// NewReplayer opens a log for replay.
func NewReplayer(basePath string) (*Replayer, error) {
	r := &Replayer{
		basePath:     basePath,
		currentChunk: -1,
	}

	headerData, err := os.ReadFile(filepath.Join(basePath, "header.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if err := json.Unmarshal(headerData, &r.header); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	indexData, err := os.ReadFile(filepath.Join(basePath, "index.bin"))
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	if len(indexData)%indexEntrySize != 0 {
		return nil, fmt.Errorf("index size %d is not a multiple of %d", len(indexData), indexEntrySize)
	}
	r.index = make([]IndexEntry, len(indexData)/indexEntrySize)
	if err := binary.Read(bytes.NewReader(indexData), binary.LittleEndian, r.index); err != nil {
		return nil, fmt.Errorf("failed to parse index: %w", err)
	}
	if uint64(len(r.index)) != r.header.TotalFrames {
		return nil, fmt.Errorf("index holds %d frames, header says %d", len(r.index), r.header.TotalFrames)
	}
	return r, nil
}

// Header returns the log header.
func (r *Replayer) Header() LogHeader {
	return r.header
}

// TotalFrames returns the total number of frames in the log.
func (r *Replayer) TotalFrames() uint64 {
	return r.header.TotalFrames
}

// Index returns a copy of the seek index.
func (r *Replayer) Index() []IndexEntry {
	return append([]IndexEntry(nil), r.index...)
}

// CurrentFrame returns the index of the next frame ReadFrame returns.
func (r *Replayer) CurrentFrame() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentFrame
}

// Seek positions the replayer at frame idx.
func (r *Replayer) Seek(idx uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if idx >= uint64(len(r.index)) {
		return fmt.Errorf("frame index out of range: %d >= %d", idx, len(r.index))
	}
	r.currentFrame = idx
	return nil
}

// SeekToWallTime positions the replayer at the first frame recorded at or
// after wallNs. Past the end it positions at the last frame.
func (r *Replayer) SeekToWallTime(wallNs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.index) == 0 {
		return io.EOF
	}
	i := sort.Search(len(r.index), func(i int) bool {
		return r.index[i].WallNs >= wallNs
	})
	if i == len(r.index) {
		i--
	}
	r.currentFrame = uint64(i)
	return nil
}

// ReadFrame returns the current frame and advances. It returns io.EOF after
// the last frame.
func (r *Replayer) ReadFrame() (transport.Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentFrame >= uint64(len(r.index)) {
		return transport.Frame{}, io.EOF
	}
	entry := r.index[r.currentFrame]

	if int(entry.ChunkID) != r.currentChunk {
		data, err := os.ReadFile(chunkPath(r.basePath, int(entry.ChunkID)))
		if err != nil {
			return transport.Frame{}, fmt.Errorf("failed to read chunk: %w", err)
		}
		r.chunkData = data
		r.currentChunk = int(entry.ChunkID)
	}

	end := uint64(entry.Offset) + uint64(entry.Length)
	if entry.Length < transport.HeaderLen || end > uint64(len(r.chunkData)) {
		return transport.Frame{}, fmt.Errorf("invalid index entry %d: offset %d length %d", entry.Seq, entry.Offset, entry.Length)
	}
	limits := transport.Limits{MaxPayloadBytes: entry.Length - transport.HeaderLen}
	f, err := transport.ReadFrame(bytes.NewReader(r.chunkData[entry.Offset:end]), limits)
	if err != nil {
		return transport.Frame{}, fmt.Errorf("frame %d: %w", entry.Seq, err)
	}
	r.currentFrame++
	return f, nil
}

// Each calls fn for every remaining frame.
func (r *Replayer) Each(fn func(IndexEntry, transport.Frame) error) error {
	for {
		r.mu.Lock()
		idx := r.currentFrame
		r.mu.Unlock()

		f, err := r.ReadFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(r.index[idx], f); err != nil {
			return err
		}
	}
}

// Close releases the cached chunk.
func (r *Replayer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunkData = nil
	r.currentChunk = -1
	return nil
}
