package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/attentive-data/focus.report/internal/session"
	"github.com/attentive-data/focus.report/internal/testutil"
)

// Helper functions for creating pointer values
func intPtr(i int) *int {
	return &i
}

func floatPtr(f float64) *float64 {
	return &f
}

func boolPtr(b bool) *bool {
	return &b
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// newTestDB opens a fresh database in a per-test temp directory.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := NewDB(testutil.TempDBPath(t))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// createTestSession inserts a completed session starting at the given
// time, so rollup and streak queries have rows to aggregate.
func createTestSession(t *testing.T, db *DB, userID string, start time.Time, focus float64, durationSeconds int) *session.FocusSession {
	t.Helper()

	end := start.Add(time.Duration(durationSeconds) * time.Second)
	s := &session.FocusSession{
		ID:              uuid.NewString(),
		UserID:          userID,
		TargetSeconds:   durationSeconds,
		DurationSeconds: durationSeconds,
		FocusPercent:    focus,
		Completed:       true,
		CameraEnabled:   true,
		StartTime:       start,
		EndTime:         &end,
	}
	if err := db.CreateSession(context.Background(), s); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return s
}
