package db

import (
	"context"
	"testing"
	"time"

	"github.com/attentive-data/focus.report/internal/session"
)

// The DB must satisfy the session store contract.
var _ session.Store = (*DB)(nil)

func TestCreateAndGetSession(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	created := createTestSession(t, database, "alice", start, 87.5, 1500)

	got, err := database.GetSession(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.UserID != "alice" {
		t.Errorf("UserID = %q, want alice", got.UserID)
	}
	if got.TargetSeconds != 1500 {
		t.Errorf("TargetSeconds = %d, want 1500", got.TargetSeconds)
	}
	if got.FocusPercent != 87.5 {
		t.Errorf("FocusPercent = %f, want 87.5", got.FocusPercent)
	}
	if !got.Completed {
		t.Error("Completed = false, want true")
	}
	if got.EndTime == nil {
		t.Fatal("EndTime is nil, want set")
	}
	if !got.StartTime.Equal(start) {
		t.Errorf("StartTime = %v, want %v", got.StartTime, start)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	database := newTestDB(t)

	_, err := database.GetSession(context.Background(), "no-such-session")
	if err == nil {
		t.Fatal("expected error for unknown session, got nil")
	}
}

func TestUpdateSessionPartial(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	s := createTestSession(t, database, "alice", start, 100, 1500)

	err := database.UpdateSession(ctx, s.ID, session.Update{
		DurationSeconds: intPtr(600),
		FocusPercent:    floatPtr(72.5),
	})
	if err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}

	got, err := database.GetSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.DurationSeconds != 600 {
		t.Errorf("DurationSeconds = %d, want 600", got.DurationSeconds)
	}
	if got.FocusPercent != 72.5 {
		t.Errorf("FocusPercent = %f, want 72.5", got.FocusPercent)
	}
	// Untouched columns stay put.
	if !got.Completed {
		t.Error("Completed was clobbered by a partial update")
	}
}

func TestUpdateSessionFinal(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	s := createTestSession(t, database, "alice", start, 100, 1500)

	end := start.Add(25 * time.Minute)
	err := database.UpdateSession(ctx, s.ID, session.Update{
		DurationSeconds:  intPtr(1500),
		FocusPercent:     floatPtr(91.0),
		DistractionCount: intPtr(2),
		Completed:        boolPtr(true),
		EndTime:          timePtr(end),
	})
	if err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}

	got, err := database.GetSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.DistractionCount != 2 {
		t.Errorf("DistractionCount = %d, want 2", got.DistractionCount)
	}
	if got.EndTime == nil || !got.EndTime.Equal(end) {
		t.Errorf("EndTime = %v, want %v", got.EndTime, end)
	}
}

func TestUpdateSessionUnknownID(t *testing.T) {
	database := newTestDB(t)

	err := database.UpdateSession(context.Background(), "no-such-session",
		session.Update{DurationSeconds: intPtr(10)})
	if err == nil {
		t.Fatal("expected error updating unknown session, got nil")
	}
}

func TestUpdateSessionEmptyUpdate(t *testing.T) {
	database := newTestDB(t)
	s := createTestSession(t, database, "alice",
		time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), 100, 1500)

	// An all-nil update is a no-op, not an error.
	if err := database.UpdateSession(context.Background(), s.ID, session.Update{}); err != nil {
		t.Fatalf("empty update failed: %v", err)
	}
}

func TestAppendAndListDistractions(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	s := createTestSession(t, database, "alice", start, 100, 1500)

	events := []session.DistractionEvent{
		{Kind: "phone", Severity: 3, Note: "notification", Timestamp: start.Add(time.Minute)},
		{Kind: "interruption", Severity: 7, Timestamp: start.Add(5 * time.Minute)},
	}
	for _, ev := range events {
		if err := database.AppendDistraction(ctx, s.ID, ev); err != nil {
			t.Fatalf("AppendDistraction failed: %v", err)
		}
	}

	got, err := database.Distractions(ctx, s.ID)
	if err != nil {
		t.Fatalf("Distractions failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d distractions, want 2", len(got))
	}
	if got[0].Kind != "phone" || got[0].Severity != 3 || got[0].Note != "notification" {
		t.Errorf("first event = %+v, want phone/3/notification", got[0])
	}
	if got[1].Kind != "interruption" || got[1].Note != "" {
		t.Errorf("second event = %+v, want interruption with empty note", got[1])
	}
}

func TestSaveTimelineIsIdempotent(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	s := createTestSession(t, database, "alice", start, 100, 1500)

	samples := []session.TimelineSample{
		{OffsetSeconds: 1, Focused: true, Confidence: 95},
		{OffsetSeconds: 2, Focused: true, Confidence: 90},
		{OffsetSeconds: 3, Focused: false, Confidence: 40},
	}
	if err := database.SaveTimeline(ctx, s.ID, samples); err != nil {
		t.Fatalf("SaveTimeline failed: %v", err)
	}
	// A retried save replaces rather than duplicates.
	if err := database.SaveTimeline(ctx, s.ID, samples); err != nil {
		t.Fatalf("second SaveTimeline failed: %v", err)
	}

	got, err := database.GetSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if len(got.Timeline) != 3 {
		t.Fatalf("got %d timeline samples, want 3", len(got.Timeline))
	}
	if got.Timeline[2].Focused || got.Timeline[2].Confidence != 40 {
		t.Errorf("third sample = %+v, want unfocused at 40", got.Timeline[2])
	}
}

func TestRecentSessionsOrderAndLimit(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		createTestSession(t, database, "alice", base.Add(time.Duration(i)*time.Hour), 80, 1500)
	}

	got, err := database.RecentSessions(ctx, 3)
	if err != nil {
		t.Fatalf("RecentSessions failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d sessions, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].StartTime.After(got[i-1].StartTime) {
			t.Errorf("sessions out of order: %v before %v", got[i-1].StartTime, got[i].StartTime)
		}
	}
}

func TestCompletedSessionDays(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	// Two sessions on the same day collapse to one entry; other users
	// and incomplete sessions are excluded.
	createTestSession(t, database, "alice", time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), 80, 1500)
	createTestSession(t, database, "alice", time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC), 90, 1500)
	createTestSession(t, database, "alice", time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC), 85, 1500)
	createTestSession(t, database, "bob", time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC), 85, 1500)

	abandoned := createTestSession(t, database, "alice", time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC), 50, 1500)
	if err := database.UpdateSession(ctx, abandoned.ID, session.Update{Completed: boolPtr(false)}); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}

	days, err := database.CompletedSessionDays(ctx, "alice")
	if err != nil {
		t.Fatalf("CompletedSessionDays failed: %v", err)
	}
	want := []time.Time{
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
	}
	if len(days) != len(want) {
		t.Fatalf("got %d days, want %d: %v", len(days), len(want), days)
	}
	for i := range want {
		if !days[i].Equal(want[i]) {
			t.Errorf("day[%d] = %v, want %v", i, days[i], want[i])
		}
	}
}
