package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("db: session not found")

// Session is one capture run.
type Session struct {
	ID        string          `json:"session_id"`
	Source    string          `json:"source"`
	Framer    string          `json:"framer"`
	ClockHz   uint64          `json:"clock_hz"`
	Config    json.RawMessage `json:"config,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
}

// StartSession inserts s. An empty ID is replaced by a new UUID, which is
// returned.
func (db *DB) StartSession(ctx context.Context, s Session) (string, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}
	cfg := string(s.Config)
	if cfg == "" {
		cfg = "{}"
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, source, framer, clock_hz, config_json, started_ns)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.Source, s.Framer, int64(s.ClockHz), cfg, s.StartedAt.UnixNano())
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return s.ID, nil
}

// EndSession stamps the end time of a session.
func (db *DB) EndSession(ctx context.Context, id string, at time.Time) error {
	res, err := db.ExecContext(ctx, `UPDATE sessions SET ended_ns = ? WHERE session_id = ?`, at.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var (
		s       Session
		clockHz int64
		cfg     string
		started int64
		ended   sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.Source, &s.Framer, &clockHz, &cfg, &started, &ended); err != nil {
		return Session{}, err
	}
	s.ClockHz = uint64(clockHz)
	s.Config = json.RawMessage(cfg)
	s.StartedAt = time.Unix(0, started)
	if ended.Valid {
		t := time.Unix(0, ended.Int64)
		s.EndedAt = &t
	}
	return s, nil
}

const sessionColumns = `session_id, source, framer, clock_hz, config_json, started_ns, ended_ns`

// GetSession returns one session.
func (db *DB) GetSession(ctx context.Context, id string) (Session, error) {
	row := db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, err
}

// Sessions lists sessions, newest first.
func (db *DB) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY started_ns DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
