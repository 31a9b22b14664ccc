package db

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/usbsniff/internal/pipeline"
	"github.com/banshee-data/usbsniff/internal/testutil"
	"github.com/banshee-data/usbsniff/internal/timeutil"
	"github.com/banshee-data/usbsniff/internal/transport"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDB_AppliesMigrations(t *testing.T) {
	db := newTestDB(t)

	status, err := db.GetMigrationStatus(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, uint(3), status.Latest)
	assert.Equal(t, status.Latest, status.Current)
	assert.False(t, status.Dirty)
	assert.False(t, status.Pending())

	// reopening is a no-op
	require.NoError(t, db.MigrateUp(MigrationsFS()))
}

func TestMigrateDownAndUp(t *testing.T) {
	db := newTestDB(t)
	fsys := MigrationsFS()

	require.NoError(t, db.MigrateDown(fsys))
	v, _, err := db.MigrateVersion(fsys)
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
	_, err = db.TableCount(context.Background(), "stats_snapshots")
	assert.Error(t, err, "stats table should be gone")

	require.NoError(t, db.MigrateTo(fsys, 3))
	v, _, err = db.MigrateVersion(fsys)
	require.NoError(t, err)
	assert.Equal(t, uint(3), v)
}

func TestOpenDB_NoSchema(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "bare.db"))
	require.NoError(t, err)
	defer db.Close()

	status, err := db.GetMigrationStatus(MigrationsFS())
	require.NoError(t, err)
	assert.Zero(t, status.Current)
	assert.True(t, status.Pending())
}

func TestTableCount_UnknownTable(t *testing.T) {
	db := newTestDB(t)
	_, err := db.TableCount(context.Background(), "sqlite_master; DROP TABLE frames")
	assert.Error(t, err)
}

func TestSessions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	start := time.Unix(1_700_000_000, 0)

	id, err := db.StartSession(ctx, Session{Source: "serial:/dev/ttyUSB0", Framer: "batch", ClockHz: 60_000_000, StartedAt: start})
	require.NoError(t, err)
	assert.Len(t, id, 36)

	_, err = db.StartSession(ctx, Session{ID: "fixed", Source: "pcap", Framer: "stream", StartedAt: start.Add(time.Minute)})
	require.NoError(t, err)

	require.NoError(t, db.EndSession(ctx, id, start.Add(time.Second)))
	assert.ErrorIs(t, db.EndSession(ctx, "missing", start), ErrSessionNotFound)

	s, err := db.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(60_000_000), s.ClockHz)
	require.NotNil(t, s.EndedAt)
	assert.Equal(t, time.Second, s.EndedAt.Sub(s.StartedAt))
	assert.JSONEq(t, `{}`, string(s.Config))

	all, err := db.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "fixed", all[0].ID)
	assert.Nil(t, all[0].EndedAt)

	_, err = db.GetSession(ctx, "missing")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestFrameStore(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	id, err := db.StartSession(ctx, Session{Source: "test", Framer: "batch"})
	require.NoError(t, err)

	clock := timeutil.NewMockClock(time.Unix(100, 0))
	store := NewFrameStore(db, id, clock, 4)
	for i := 0; i < 10; i++ {
		require.NoError(t, store.WriteFrame(transport.NewFrame(uint32(i*10), make([]byte, 4*i))))
		clock.Advance(time.Millisecond)
	}

	// two full batches written, two rows pending
	n, err := db.TableCount(ctx, "frames")
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)

	require.NoError(t, store.Close())
	rows, err := db.Frames(ctx, id)
	require.NoError(t, err)
	require.Len(t, rows, 10)
	assert.Equal(t, uint64(10), store.Written())
	for i, r := range rows {
		assert.Equal(t, uint64(i), r.Seq)
		assert.Equal(t, uint32(i*10), r.DeviceTS)
		assert.Equal(t, i, r.Words)
		assert.Equal(t, transport.FrameLength(uint32(4*i)), r.Length)
	}
	assert.Equal(t, int64(9*time.Millisecond), rows[9].WallNs-rows[0].WallNs)
}

func TestFrameStore_UnknownSession(t *testing.T) {
	db := newTestDB(t)
	store := NewFrameStore(db, "nope", nil, 1)
	err := store.WriteFrame(transport.NewFrame(0, nil))
	assert.Error(t, err, "foreign key should reject unknown session")
}

func TestStatsSnapshots(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	id, err := db.StartSession(ctx, Session{Source: "test", Framer: "batch"})
	require.NoError(t, err)

	var st pipeline.Stats
	st.Cycle = 1234
	st.Inputs = 99
	st.Buffer.Overflows = 3
	st.Buffer.Policy = "drop"
	st.Framer.Frames = 5
	require.NoError(t, db.RecordStats(ctx, id, time.Unix(10, 0), st))
	st.Cycle = 2000
	require.NoError(t, db.RecordStats(ctx, id, time.Unix(11, 0), st))

	snaps, err := db.StatsSnapshots(ctx, id)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, uint64(1234), snaps[0].Stats.Cycle)
	assert.Equal(t, uint64(2000), snaps[1].Stats.Cycle)
	assert.Equal(t, "drop", snaps[1].Stats.Buffer.Policy)
}

func TestAttachAdminRoutes(t *testing.T) {
	db := newTestDB(t)
	_, err := db.StartSession(context.Background(), Session{Source: "test", Framer: "batch"})
	require.NoError(t, err)

	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, testutil.LocalRequest(http.MethodGet, path, nil))
		return w
	}

	t.Run("db-stats", func(t *testing.T) {
		w := get("/debug/db-stats")
		testutil.AssertStatusCode(t, w.Code, http.StatusOK)
		var st DatabaseStats
		require.NoError(t, json.NewDecoder(w.Body).Decode(&st))
		assert.Equal(t, 1, st.Sessions)
		assert.Positive(t, st.SizeBytes)
	})

	t.Run("backup", func(t *testing.T) {
		w := get("/debug/backup")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Disposition"), "backup-")
		zr, err := gzip.NewReader(w.Body)
		require.NoError(t, err)
		data, err := io.ReadAll(zr)
		require.NoError(t, err)
		assert.Equal(t, "SQLite format 3\x00", string(data[:16]))
	})

	t.Run("tailsql", func(t *testing.T) {
		w := get("/debug/tailsql/")
		assert.NotEqual(t, http.StatusNotFound, w.Code)
	})
}
