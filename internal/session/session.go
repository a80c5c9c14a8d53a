// Package session owns the lifecycle of a timed focus session: the
// state machine driven by user commands and timer ticks, the
// authoritative focus percentage and distraction count, and the narrow
// persistence contract the machine writes through.
package session

import (
	"context"
	"errors"
	"time"
)

// State is the lifecycle state of the session machine. The machine
// rests at Idle, runs at most one session at a time, and returns to
// Idle once a session completes; completion itself is recorded on the
// finished FocusSession, which is immutable from then on.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StatePaused  State = "paused"
)

var (
	// ErrSessionActive is returned by Start while a session exists.
	ErrSessionActive = errors.New("session already active")
	// ErrNotRunning is returned by Tick and Pause outside Running.
	ErrNotRunning = errors.New("no running session")
	// ErrNotPaused is returned by Resume outside Paused.
	ErrNotPaused = errors.New("no paused session")
	// ErrNotActive is returned by AddDistraction outside Running/Paused.
	ErrNotActive = errors.New("no active session")
	// ErrBadSeverity is returned for distraction severities outside 1..10.
	ErrBadSeverity = errors.New("severity must be between 1 and 10")
)

// FocusSession is the long-lived aggregate for one timed work session.
// It is created at Start, mutated by the machine on every tick, pause,
// resume and distraction event, and becomes immutable once Completed.
type FocusSession struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	TargetSeconds int    `json:"target_seconds"`
	// DurationSeconds is the realised duration, finalised at stop as
	// target minus remaining.
	DurationSeconds  int        `json:"duration_seconds"`
	FocusPercent     float64    `json:"focus_percent"`
	DistractionCount int        `json:"distraction_count"`
	Completed        bool       `json:"completed"`
	CameraEnabled    bool       `json:"camera_enabled"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`

	// Timeline holds one sample per tick while the camera is enabled.
	// It is persisted once, at stop.
	Timeline []TimelineSample `json:"timeline,omitempty"`
}

// TimelineSample is one per-tick observation on a session's timeline.
type TimelineSample struct {
	OffsetSeconds int     `json:"t"`
	Focused       bool    `json:"focused"`
	Confidence    float64 `json:"confidence,omitempty"`
}

// DistractionEvent is a discrete distraction scoped to one session;
// events are append-only.
type DistractionEvent struct {
	Kind      string    `json:"kind"`
	Severity  int       `json:"severity"`
	Note      string    `json:"note,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Update is a partial persistence snapshot. Nil fields are left
// untouched by the store, so checkpoints and the final write share one
// shape.
type Update struct {
	DurationSeconds  *int
	FocusPercent     *float64
	DistractionCount *int
	Completed        *bool
	EndTime          *time.Time
}

// Store is the external persistence collaborator. All methods are
// treated as fallible network calls; the machine decides per call site
// whether a failure is recoverable (autosave, checkpoint) or must be
// surfaced (start, stop).
type Store interface {
	CreateSession(ctx context.Context, s *FocusSession) error
	UpdateSession(ctx context.Context, id string, u Update) error
	AppendDistraction(ctx context.Context, sessionID string, ev DistractionEvent) error
	SaveTimeline(ctx context.Context, sessionID string, samples []TimelineSample) error
}
