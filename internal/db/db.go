package db

import (
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"gonum.org/v1/gonum/stat"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/attentive-data/focus.report/internal/session"
)

type DB struct {
	*sql.DB
}

func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id                 TEXT PRIMARY KEY,
			user_id            TEXT NOT NULL,
			target_seconds     BIGINT NOT NULL,
			duration_seconds   BIGINT NOT NULL DEFAULT 0,
			focus_percent      DOUBLE NOT NULL DEFAULT 100,
			distraction_count  BIGINT NOT NULL DEFAULT 0,
			completed          INTEGER NOT NULL DEFAULT 0,
			camera_enabled     INTEGER NOT NULL DEFAULT 1,
			start_time         TIMESTAMP NOT NULL,
			end_time           TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS distractions (
			session_id         TEXT NOT NULL,
			kind               TEXT NOT NULL,
			severity           BIGINT NOT NULL,
			note               TEXT,
			timestamp          TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(session_id) REFERENCES sessions(id)
		);
		CREATE TABLE IF NOT EXISTS timeline_samples (
			session_id         TEXT NOT NULL,
			offset_seconds     BIGINT NOT NULL,
			focused            INTEGER NOT NULL,
			confidence         DOUBLE NOT NULL,
			FOREIGN KEY(session_id) REFERENCES sessions(id)
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// CreateSession inserts a new session row.
func (db *DB) CreateSession(ctx context.Context, s *session.FocusSession) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO sessions (
			id, user_id, target_seconds, duration_seconds, focus_percent,
			distraction_count, completed, camera_enabled, start_time, end_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.TargetSeconds, s.DurationSeconds, s.FocusPercent,
		s.DistractionCount, s.Completed, s.CameraEnabled,
		s.StartTime.UTC(), nullTime(s.EndTime),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", s.ID, err)
	}
	return nil
}

// UpdateSession applies a partial update; nil fields in u leave the
// corresponding columns untouched.
func (db *DB) UpdateSession(ctx context.Context, id string, u session.Update) error {
	var sets []string
	var args []interface{}

	if u.DurationSeconds != nil {
		sets = append(sets, "duration_seconds = ?")
		args = append(args, *u.DurationSeconds)
	}
	if u.FocusPercent != nil {
		sets = append(sets, "focus_percent = ?")
		args = append(args, *u.FocusPercent)
	}
	if u.DistractionCount != nil {
		sets = append(sets, "distraction_count = ?")
		args = append(args, *u.DistractionCount)
	}
	if u.Completed != nil {
		sets = append(sets, "completed = ?")
		args = append(args, *u.Completed)
	}
	if u.EndTime != nil {
		sets = append(sets, "end_time = ?")
		args = append(args, u.EndTime.UTC())
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := db.ExecContext(ctx,
		"UPDATE sessions SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

// AppendDistraction records one distraction event against a session.
func (db *DB) AppendDistraction(ctx context.Context, sessionID string, ev session.DistractionEvent) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO distractions (session_id, kind, severity, note, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		sessionID, ev.Kind, ev.Severity, ev.Note, ev.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert distraction for session %s: %w", sessionID, err)
	}
	return nil
}

// SaveTimeline replaces the stored timeline for a session. The write is
// transactional so a re-save after a retried stop never duplicates
// samples.
func (db *DB) SaveTimeline(ctx context.Context, sessionID string, samples []session.TimelineSample) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin timeline transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM timeline_samples WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to clear timeline for session %s: %w", sessionID, err)
	}
	for _, s := range samples {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO timeline_samples (session_id, offset_seconds, focused, confidence)
			 VALUES (?, ?, ?, ?)`,
			sessionID, s.OffsetSeconds, s.Focused, s.Confidence); err != nil {
			return fmt.Errorf("failed to insert timeline sample for session %s: %w", sessionID, err)
		}
	}
	return tx.Commit()
}

// GetSession loads one session with its timeline and distraction count.
func (db *DB) GetSession(ctx context.Context, id string) (*session.FocusSession, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, user_id, target_seconds, duration_seconds, focus_percent,
			distraction_count, completed, camera_enabled, start_time, end_time
		 FROM sessions WHERE id = ?`, id)

	s, err := scanSession(row)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT offset_seconds, focused, confidence FROM timeline_samples
		 WHERE session_id = ? ORDER BY offset_seconds`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var ts session.TimelineSample
		if err := rows.Scan(&ts.OffsetSeconds, &ts.Focused, &ts.Confidence); err != nil {
			return nil, err
		}
		s.Timeline = append(s.Timeline, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

// RecentSessions returns the most recently started sessions, newest
// first. Timelines are not loaded.
func (db *DB) RecentSessions(ctx context.Context, limit int) ([]session.FocusSession, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, user_id, target_seconds, duration_seconds, focus_percent,
			distraction_count, completed, camera_enabled, start_time, end_time
		 FROM sessions ORDER BY start_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []session.FocusSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Distractions returns a session's distraction events in order.
func (db *DB) Distractions(ctx context.Context, sessionID string) ([]session.DistractionEvent, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT kind, severity, note, timestamp FROM distractions
		 WHERE session_id = ? ORDER BY timestamp`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []session.DistractionEvent
	for rows.Next() {
		var ev session.DistractionEvent
		var note sql.NullString
		if err := rows.Scan(&ev.Kind, &ev.Severity, &note, &ev.Timestamp); err != nil {
			return nil, err
		}
		ev.Note = note.String
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// CompletedSessionDays returns the distinct UTC days on which the user
// completed at least one session, for streak computation.
func (db *DB) CompletedSessionDays(ctx context.Context, userID string) ([]time.Time, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT DISTINCT date(start_time) FROM sessions
		 WHERE user_id = ? AND completed = 1 ORDER BY date(start_time)`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, err
		}
		t, err := time.ParseInLocation("2006-01-02", day, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("failed to parse session day %q: %w", day, err)
		}
		days = append(days, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return days, nil
}

// DailyFocusStat is one day of completed-session focus statistics.
type DailyFocusStat struct {
	Day          string  `json:"day"`
	Sessions     int     `json:"sessions"`
	TotalSeconds int     `json:"total_seconds"`
	Distractions int     `json:"distractions"`
	AvgFocus     float64 `json:"avg_focus"`
	P50Focus     float64 `json:"p50_focus"`
	P85Focus     float64 `json:"p85_focus"`
	P98Focus     float64 `json:"p98_focus"`
}

// FocusRollup aggregates completed sessions from the last N days into
// per-day focus statistics, oldest day first.
func (db *DB) FocusRollup(ctx context.Context, days int) ([]DailyFocusStat, error) {
	if days < 1 {
		return nil, fmt.Errorf("days must be at least 1, got %d", days)
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	rows, err := db.QueryContext(ctx,
		`SELECT date(start_time), duration_seconds, focus_percent, distraction_count
		 FROM sessions
		 WHERE completed = 1 AND start_time >= ?
		 ORDER BY date(start_time)`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type bucket struct {
		focus        []float64
		totalSeconds int
		distractions int
	}
	buckets := make(map[string]*bucket)
	var order []string
	for rows.Next() {
		var day string
		var duration, distractions int
		var focus float64
		if err := rows.Scan(&day, &duration, &focus, &distractions); err != nil {
			return nil, err
		}
		b, ok := buckets[day]
		if !ok {
			b = &bucket{}
			buckets[day] = b
			order = append(order, day)
		}
		b.focus = append(b.focus, focus)
		b.totalSeconds += duration
		b.distractions += distractions
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stats := make([]DailyFocusStat, 0, len(order))
	for _, day := range order {
		b := buckets[day]
		sort.Float64s(b.focus)
		stats = append(stats, DailyFocusStat{
			Day:          day,
			Sessions:     len(b.focus),
			TotalSeconds: b.totalSeconds,
			Distractions: b.distractions,
			AvgFocus:     stat.Mean(b.focus, nil),
			P50Focus:     stat.Quantile(0.50, stat.Empirical, b.focus, nil),
			P85Focus:     stat.Quantile(0.85, stat.Empirical, b.focus, nil),
			P98Focus:     stat.Quantile(0.98, stat.Empirical, b.focus, nil),
		})
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*session.FocusSession, error) {
	var s session.FocusSession
	var endTime sql.NullTime
	if err := row.Scan(
		&s.ID, &s.UserID, &s.TargetSeconds, &s.DurationSeconds, &s.FocusPercent,
		&s.DistractionCount, &s.Completed, &s.CameraEnabled, &s.StartTime, &endTime,
	); err != nil {
		return nil, err
	}
	if endTime.Valid {
		t := endTime.Time
		s.EndTime = &t
	}
	return &s, nil
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// TableStats describes one table's row count.
type TableStats struct {
	Name string `json:"name"`
	Rows int64  `json:"rows"`
}

// DatabaseStats summarises on-disk size and per-table row counts.
type DatabaseStats struct {
	TotalSizeMB float64      `json:"total_size_mb"`
	Tables      []TableStats `json:"tables"`
}

// GetDatabaseStats collects size and row-count statistics for the
// admin stats endpoint.
func (db *DB) GetDatabaseStats() (*DatabaseStats, error) {
	var pageCount, pageSize int64
	if err := db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, fmt.Errorf("failed to read page_count: %w", err)
	}
	if err := db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, fmt.Errorf("failed to read page_size: %w", err)
	}

	stats := &DatabaseStats{
		TotalSizeMB: float64(pageCount*pageSize) / (1024 * 1024),
	}

	rows, err := db.Query(
		`SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, name := range names {
		var count int64
		if err := db.QueryRow("SELECT COUNT(*) FROM " + name).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count rows in %s: %w", name, err)
		}
		stats.Tables = append(stats.Tables, TableStats{Name: name, Rows: count})
	}

	return stats, nil
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://focus.db", db.DB, &tailsql.DBOptions{
		Label: "Focus DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("db-stats", "Database size and row counts", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := db.GetDatabaseStats()
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to collect database stats: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			http.Error(w, "Failed to write database stats", http.StatusInternalServerError)
		}
	}))

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}

		// close the backup file after sending it
		// and remove it from the filesystem
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()

		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
