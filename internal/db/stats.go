package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/usbsniff/internal/pipeline"
)

// StatsSnapshot is a stored copy of the pipeline counters.
type StatsSnapshot struct {
	ID     int64          `json:"snapshot_id"`
	WallNs int64          `json:"wall_ns"`
	Stats  pipeline.Stats `json:"stats"`
}

// RecordStats stores a counter snapshot for a session.
func (db *DB) RecordStats(ctx context.Context, sessionID string, at time.Time, st pipeline.Stats) error {
	blob, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO stats_snapshots
			(session_id, wall_ns, cycle, inputs, frames, buffer_overflows, buffer_high_water, stats_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, at.UnixNano(), int64(st.Cycle), int64(st.Inputs), int64(st.Framer.Frames),
		int64(st.Buffer.Overflows), st.Buffer.HighWater, string(blob))
	if err != nil {
		return fmt.Errorf("insert stats: %w", err)
	}
	return nil
}

// StatsSnapshots returns the snapshots of a session in time order.
func (db *DB) StatsSnapshots(ctx context.Context, sessionID string) ([]StatsSnapshot, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT snapshot_id, wall_ns, stats_json
		FROM stats_snapshots WHERE session_id = ? ORDER BY wall_ns, snapshot_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatsSnapshot
	for rows.Next() {
		var (
			s    StatsSnapshot
			blob string
		)
		if err := rows.Scan(&s.ID, &s.WallNs, &blob); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(blob), &s.Stats); err != nil {
			return nil, fmt.Errorf("snapshot %d: %w", s.ID, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
