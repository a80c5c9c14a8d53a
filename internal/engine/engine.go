// Package engine runs the per-frame detection pipeline: detector
// invocation, gaze classification, presence debouncing, and synchronous
// fan-out of the resulting snapshots to registered handlers.
//
// An Engine is explicitly constructed and caller-owned; there is no
// package-level state. One engine serves one capture timeline.
package engine

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/attentive-data/focus.report/internal/focus"
	"github.com/attentive-data/focus.report/internal/gaze"
	"github.com/attentive-data/focus.report/internal/monitoring"
	"github.com/attentive-data/focus.report/internal/presence"
	"github.com/attentive-data/focus.report/internal/timeutil"
)

// Frame is one captured frame handed to the detector. The payload is
// opaque to the engine; only the detector interprets it.
type Frame struct {
	Data      []byte
	Timestamp time.Time
}

// Detector locates facial landmarks in a frame. Implementations may be
// slow; the engine never runs more than one detection at a time. A
// detection error is treated as "no face in frame", not propagated.
type Detector interface {
	Detect(ctx context.Context, f Frame) ([]gaze.Keypoint, error)
}

// Handler receives each published snapshot. Handlers run synchronously
// on the pipeline goroutine and must not block.
type Handler func(focus.Snapshot)

// Engine drives frames through detection, classification and
// debouncing, and publishes the resulting snapshots.
type Engine struct {
	det   Detector
	clock timeutil.Clock

	ctx    context.Context
	cancel context.CancelFunc

	inflight atomic.Bool

	mu       sync.Mutex
	deb      *presence.Debouncer
	handlers map[string]Handler
	latest   focus.Snapshot
}

// New creates an engine around the given detector. A nil clock uses the
// real one; a nil debouncer uses the default windows.
func New(det Detector, deb *presence.Debouncer, clock timeutil.Clock) *Engine {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if deb == nil {
		deb = presence.NewDebouncer(0, 0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		det:      det,
		clock:    clock,
		ctx:      ctx,
		cancel:   cancel,
		deb:      deb,
		handlers: make(map[string]Handler),
	}
}

// randomID generates a random handler ID (8 byte random hex encoded value).
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe registers a handler for every published snapshot and
// returns an ID for unsubscribing.
func (e *Engine) Subscribe(h Handler) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := randomID()
	e.handlers[id] = h
	return id
}

// Unsubscribe removes a previously registered handler.
func (e *Engine) Unsubscribe(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers, id)
}

// Latest returns the most recently published snapshot. The session tick
// loop samples this once per tick; frame-rate output between ticks is
// advisory only.
func (e *Engine) Latest() focus.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latest
}

// OnFrame feeds one frame into the pipeline. It never blocks: if a
// detection is still in flight the frame is skipped and OnFrame returns
// false. Detection runs on its own goroutine; classification,
// debouncing and handler fan-out happen there once it returns.
func (e *Engine) OnFrame(f Frame) bool {
	if e.ctx.Err() != nil {
		return false
	}
	if !e.inflight.CompareAndSwap(false, true) {
		return false
	}

	go func() {
		defer e.inflight.Store(false)
		e.process(f)
	}()
	return true
}

func (e *Engine) process(f Frame) {
	points, err := e.det.Detect(e.ctx, f)
	if err != nil {
		if e.ctx.Err() != nil {
			return
		}
		// Detector failure reads as an empty frame for this cycle.
		monitoring.Logf("detector: %v", err)
		points = nil
	}

	res := gaze.Classify(points)
	now := e.clock.Now()

	e.mu.Lock()
	faceDetected := e.deb.Observe(len(points) > 0, now)
	snap := focus.Snapshot{
		FaceDetected: faceDetected,
		Looking:      res.Looking,
		Confidence:   res.Confidence,
		FPS:          e.deb.FPS(),
		Timestamp:    now,
	}
	e.latest = snap
	handlers := make([]Handler, 0, len(e.handlers))
	for _, h := range e.handlers {
		handlers = append(handlers, h)
	}
	e.mu.Unlock()

	// Publish outside the lock so a handler may call back into the
	// engine. Fan-out is synchronous: every handler sees the snapshot
	// before the next frame is processed.
	for _, h := range handlers {
		h(snap)
	}
}

// Close cancels any pending detection and stops accepting frames.
func (e *Engine) Close() {
	e.cancel()
}
