package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/banshee-data/usbsniff/internal/timeutil"
	"github.com/banshee-data/usbsniff/internal/transport"
)

// DefaultFrameBatch is the number of frame rows written per transaction.
const DefaultFrameBatch = 256

// FrameRow is the stored metadata of one host frame.
type FrameRow struct {
	Seq      uint64 `json:"seq"`
	DeviceTS uint32 `json:"device_ts"`
	Length   uint32 `json:"length"`
	Words    int    `json:"words"`
	WallNs   int64  `json:"wall_ns"`
}

// FrameStore records frame metadata for one session. It implements the
// pipeline frame sink interface; rows are buffered and written in batches.
type FrameStore struct {
	db        *DB
	sessionID string
	clock     timeutil.Clock
	batch     int

	mu      sync.Mutex
	seq     uint64
	pending []FrameRow
}

// NewFrameStore returns a sink writing rows for sessionID. batch <= 0 uses
// DefaultFrameBatch; a nil clock uses the real clock.
func NewFrameStore(db *DB, sessionID string, clock timeutil.Clock, batch int) *FrameStore {
	if batch <= 0 {
		batch = DefaultFrameBatch
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &FrameStore{db: db, sessionID: sessionID, clock: clock, batch: batch}
}

// WriteFrame buffers one row and writes the batch when it is full.
func (s *FrameStore) WriteFrame(f transport.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, FrameRow{
		Seq:      s.seq,
		DeviceTS: f.Timestamp,
		Length:   f.Length,
		Words:    f.Words(),
		WallNs:   s.clock.Now().UnixNano(),
	})
	s.seq++
	if len(s.pending) < s.batch {
		return nil
	}
	return s.flushLocked(context.Background())
}

// Flush writes any buffered rows.
func (s *FrameStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

func (s *FrameStore) flushLocked(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin frame batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO frames (session_id, seq, device_ts, length, words, wall_ns)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare frame insert: %w", err)
	}
	for _, r := range s.pending {
		if _, err := stmt.ExecContext(ctx, s.sessionID, int64(r.Seq), int64(r.DeviceTS), int64(r.Length), r.Words, r.WallNs); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("insert frame %d: %w", r.Seq, err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit frame batch: %w", err)
	}
	s.pending = s.pending[:0]
	return nil
}

// Close flushes remaining rows.
func (s *FrameStore) Close() error {
	return s.Flush(context.Background())
}

// Written returns the number of frames accepted so far.
func (s *FrameStore) Written() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Frames returns the stored rows of a session in sequence order.
func (db *DB) Frames(ctx context.Context, sessionID string) ([]FrameRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT seq, device_ts, length, words, wall_ns
		FROM frames WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FrameRow
	for rows.Next() {
		var (
			r               FrameRow
			seq, ts, length int64
		)
		if err := rows.Scan(&seq, &ts, &length, &r.Words, &r.WallNs); err != nil {
			return nil, err
		}
		r.Seq, r.DeviceTS, r.Length = uint64(seq), uint32(ts), uint32(length)
		out = append(out, r)
	}
	return out, rows.Err()
}
