package db

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/usbsniff/internal/monitoring"
)

// DatabaseStats is served by /debug/db-stats.
type DatabaseStats struct {
	Path      string           `json:"path"`
	SizeBytes int64            `json:"size_bytes"`
	Tables    map[string]int64 `json:"tables"`
	Sessions  int              `json:"sessions"`
}

// GetDatabaseStats reports row counts and file size.
func (db *DB) GetDatabaseStats() (DatabaseStats, error) {
	st := DatabaseStats{Path: db.path, Tables: map[string]int64{}}
	for _, table := range []string{"sessions", "frames", "stats_snapshots"} {
		n, err := db.TableCount(context.Background(), table)
		if err != nil {
			return st, err
		}
		st.Tables[table] = n
	}
	st.Sessions = int(st.Tables["sessions"])
	if fi, err := os.Stat(db.path); err == nil {
		st.SizeBytes = fi.Size()
	}
	return st, nil
}

// AttachAdminRoutes mounts tailsql, db-stats and backup under /debug/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "Capture DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("db-stats", "Capture database row counts", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st, err := db.GetDatabaseStats()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(st)
	}))

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.serveBackup))
	return nil
}

func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("backup-%d.db", time.Now().Unix())
	dir, err := os.MkdirTemp("", "usbsniff-backup")
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup dir: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			monitoring.Warnf("db: failed to remove backup dir: %v", err)
		}
	}()

	backupPath := filepath.Join(dir, name)
	if _, err := db.ExecContext(r.Context(), "VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer backupFile.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Encoding", "gzip")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, backupFile); err != nil {
		monitoring.Warnf("db: backup transfer failed: %v", err)
	}
}
