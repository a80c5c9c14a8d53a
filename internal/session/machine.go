package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/attentive-data/focus.report/internal/focus"
	"github.com/attentive-data/focus.report/internal/monitoring"
	"github.com/attentive-data/focus.report/internal/timeutil"
)

// SnapshotFunc supplies the newest debounced presence snapshot to the
// tick loop. The frame loop produces snapshots continuously; only the
// value sampled at each tick feeds the authoritative integration.
type SnapshotFunc func() focus.Snapshot

// MachineConfig holds the machine's timing and integration parameters.
type MachineConfig struct {
	Rates            focus.Rates
	TickInterval     time.Duration
	AutosaveInterval time.Duration

	// DistractionThreshold is the number of consecutive defocused
	// ticks after which, with PauseOnDistraction set, the machine
	// auto-pauses the session.
	DistractionThreshold int
	PauseOnDistraction   bool
}

// DefaultMachineConfig returns the default machine configuration.
func DefaultMachineConfig() MachineConfig {
	return MachineConfig{
		Rates:                focus.DefaultRates(),
		TickInterval:         time.Second,
		AutosaveInterval:     10 * time.Second,
		DistractionThreshold: 3,
		PauseOnDistraction:   false,
	}
}

// Machine is the session state machine. One machine instance serves one
// session timeline; a server running sessions for many users must hold
// one isolated machine per user session.
//
// All exported methods are safe for concurrent use; the internal tick
// and autosave loops run in a single goroutine started by Start and
// cancelled by Stop.
type Machine struct {
	mu     sync.Mutex
	clock  timeutil.Clock
	store  Store
	latest SnapshotFunc
	cfg    MachineConfig

	state       State
	sess        *FocusSession
	integ       *focus.Integrator
	remaining   int
	elapsed     int
	awayTicks   int
	cancelLoops context.CancelFunc
}

// NewMachine creates a session machine writing through store and
// sampling presence from latest. A nil latest is treated as a
// permanently absent face. A nil clock uses the real one.
func NewMachine(store Store, latest SnapshotFunc, cfg MachineConfig, clock timeutil.Clock) *Machine {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if latest == nil {
		latest = func() focus.Snapshot { return focus.Snapshot{} }
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.AutosaveInterval <= 0 {
		cfg.AutosaveInterval = 10 * time.Second
	}
	return &Machine{
		clock:  clock,
		store:  store,
		latest: latest,
		cfg:    cfg,
		state:  StateIdle,
	}
}

// State returns the machine's current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns a copy of the active session, or nil when Idle.
func (m *Machine) Current() *FocusSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return nil
	}
	c := *m.sess
	return &c
}

// Remaining returns the seconds left on the active session's clock.
func (m *Machine) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remaining
}

// Start creates a new session and transitions Idle -> Running. The
// session is persisted before the machine commits to it: if the create
// write fails the machine stays Idle and the error is returned.
func (m *Machine) Start(ctx context.Context, userID string, targetSeconds int, cameraEnabled bool) (*FocusSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle {
		return nil, ErrSessionActive
	}
	if targetSeconds <= 0 {
		return nil, fmt.Errorf("target duration must be positive, got %d", targetSeconds)
	}

	sess := &FocusSession{
		ID:            uuid.NewString(),
		UserID:        userID,
		TargetSeconds: targetSeconds,
		FocusPercent:  100,
		CameraEnabled: cameraEnabled,
		StartTime:     m.clock.Now(),
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	m.state = StateRunning
	m.sess = sess
	m.integ = focus.NewIntegrator(m.cfg.Rates)
	m.remaining = targetSeconds
	m.elapsed = 0
	m.awayTicks = 0

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancelLoops = cancel
	go m.run(loopCtx)

	c := *sess
	return &c, nil
}

// run drives the tick and autosave loops until the session stops.
func (m *Machine) run(ctx context.Context) {
	tick := m.clock.NewTicker(m.cfg.TickInterval)
	defer tick.Stop()
	save := m.clock.NewTicker(m.cfg.AutosaveInterval)
	defer save.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C():
			if err := m.Tick(); err != nil && err != ErrNotRunning {
				monitoring.Logf("session tick: %v", err)
			}
		case <-save.C():
			m.Autosave(ctx)
		}
	}
}

// Tick advances the session clock by one tick: it decrements the
// remaining time, integrates the latest presence snapshot, and stops
// the session automatically when the clock runs out. Valid only while
// Running.
func (m *Machine) Tick() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateRunning {
		return ErrNotRunning
	}

	m.elapsed++
	if m.remaining > 0 {
		m.remaining--
	}

	if m.sess.CameraEnabled {
		snap := m.latest()
		m.sess.FocusPercent = m.integ.Apply(snap, m.cfg.TickInterval.Seconds())

		focused := m.cfg.Rates.Focused(snap)
		m.sess.Timeline = append(m.sess.Timeline, TimelineSample{
			OffsetSeconds: m.elapsed,
			Focused:       focused,
			Confidence:    snap.Confidence,
		})

		if focused {
			m.awayTicks = 0
		} else {
			m.awayTicks++
		}

		if m.cfg.PauseOnDistraction && m.awayTicks >= m.cfg.DistractionThreshold {
			m.awayTicks = 0
			m.pauseLocked(context.Background())
			return nil
		}
	}

	if m.remaining == 0 {
		// Auto-completion: the clock ran out.
		_, err := m.stopLocked(context.Background())
		return err
	}
	return nil
}

// Pause freezes the session: Running -> Paused. The current progress is
// persisted as a checkpoint; a checkpoint write failure is recoverable
// and only logged, since the next autosave or the final stop write
// supersedes it.
func (m *Machine) Pause(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateRunning {
		return ErrNotRunning
	}
	m.pauseLocked(ctx)
	return nil
}

func (m *Machine) pauseLocked(ctx context.Context) {
	m.state = StatePaused
	if err := m.store.UpdateSession(ctx, m.sess.ID, m.progressUpdate()); err != nil {
		monitoring.Logf("pause checkpoint for session %s failed: %v", m.sess.ID, err)
	}
}

// Resume restarts a paused session: Paused -> Running. Neither the
// remaining time nor the focus percentage is reset.
func (m *Machine) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StatePaused {
		return ErrNotPaused
	}
	m.state = StateRunning
	return nil
}

// Stop finalises the active session from Running or Paused. Calling
// Stop with no active session is a no-op returning (nil, nil).
//
// The final write is the last write for the session: the loops are
// cancelled before it so no autosave can race it. If the write fails
// the local timers are still cleared (no stuck running clock) and the
// finished session is returned alongside the error so the caller can
// reconcile the backing record.
func (m *Machine) Stop(ctx context.Context) (*FocusSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateIdle || m.sess == nil {
		return nil, nil
	}
	return m.stopLocked(ctx)
}

func (m *Machine) stopLocked(ctx context.Context) (*FocusSession, error) {
	if m.cancelLoops != nil {
		m.cancelLoops()
		m.cancelLoops = nil
	}

	sess := m.sess
	sess.DurationSeconds = sess.TargetSeconds - m.remaining
	end := m.clock.Now()
	sess.EndTime = &end
	sess.Completed = true

	var err error
	if updErr := m.store.UpdateSession(ctx, sess.ID, finalUpdate(sess)); updErr != nil {
		err = fmt.Errorf("failed to persist final session state: %w", updErr)
	} else if len(sess.Timeline) > 0 {
		if tlErr := m.store.SaveTimeline(ctx, sess.ID, sess.Timeline); tlErr != nil {
			monitoring.Logf("saving timeline for session %s failed: %v", sess.ID, tlErr)
		}
	}

	// Local state clears regardless of the write outcome so a failed
	// stop never leaves a running clock with no backing record.
	m.state = StateIdle
	m.sess = nil
	m.integ = nil
	m.remaining = 0
	m.elapsed = 0
	m.awayTicks = 0

	return sess, err
}

// AddDistraction records a discrete distraction event on the active
// session. It increments the distraction count and appends the event to
// the store; it does not touch the focus percentage, which is driven
// continuously by the integrator.
func (m *Machine) AddDistraction(ctx context.Context, kind string, severity int, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateRunning && m.state != StatePaused {
		return ErrNotActive
	}
	if severity < 1 || severity > 10 {
		return ErrBadSeverity
	}

	ev := DistractionEvent{
		Kind:      kind,
		Severity:  severity,
		Note:      note,
		Timestamp: m.clock.Now(),
	}
	m.sess.DistractionCount++

	if err := m.store.AppendDistraction(ctx, m.sess.ID, ev); err != nil {
		// The local count is kept; the stop write carries it even if
		// this event record is lost.
		return fmt.Errorf("failed to append distraction: %w", err)
	}
	return nil
}

// Autosave persists a non-authoritative snapshot of the in-progress
// session. Failures are recoverable: the next autosave supersedes them.
func (m *Machine) Autosave(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess == nil || m.state == StateIdle {
		return
	}
	if err := m.store.UpdateSession(ctx, m.sess.ID, m.progressUpdate()); err != nil {
		monitoring.Logf("autosave for session %s failed: %v", m.sess.ID, err)
	}
}

// progressUpdate builds the partial snapshot written by autosave and
// pause checkpoints.
func (m *Machine) progressUpdate() Update {
	duration := m.sess.TargetSeconds - m.remaining
	pct := m.sess.FocusPercent
	count := m.sess.DistractionCount
	return Update{
		DurationSeconds:  &duration,
		FocusPercent:     &pct,
		DistractionCount: &count,
	}
}

func finalUpdate(sess *FocusSession) Update {
	completed := true
	return Update{
		DurationSeconds:  &sess.DurationSeconds,
		FocusPercent:     &sess.FocusPercent,
		DistractionCount: &sess.DistractionCount,
		Completed:        &completed,
		EndTime:          sess.EndTime,
	}
}
