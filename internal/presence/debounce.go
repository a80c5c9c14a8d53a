// Package presence stabilises the raw per-frame face-detection signal.
// A single missed frame must not read as the user leaving, so detection
// dropouts shorter than the debounce window are suppressed. The package
// also maintains a rolling frames-per-second estimate of the detection
// loop.
package presence

import "time"

// Default windows. The debounce window covers a couple of dropped
// frames at typical camera rates; the fps window trades latency for a
// stable readout.
const (
	DefaultDebounceWindow = 200 * time.Millisecond
	DefaultFPSWindow      = 500 * time.Millisecond
)

// Debouncer filters single-frame detection dropouts and tracks the
// frame rate of the detection loop. It is a small explicit state
// machine with two timers and is not safe for concurrent use; the
// detection pipeline runs it from a single goroutine.
type Debouncer struct {
	debounceWindow time.Duration
	fpsWindow      time.Duration

	lastFaceSeen time.Time
	present      bool

	windowStart time.Time
	frames      int
	fps         float64
}

// NewDebouncer returns a Debouncer with the given windows. Zero or
// negative values fall back to the defaults.
func NewDebouncer(debounceWindow, fpsWindow time.Duration) *Debouncer {
	if debounceWindow <= 0 {
		debounceWindow = DefaultDebounceWindow
	}
	if fpsWindow <= 0 {
		fpsWindow = DefaultFPSWindow
	}
	return &Debouncer{
		debounceWindow: debounceWindow,
		fpsWindow:      fpsWindow,
	}
}

// Observe records one frame of raw detector output and returns the
// debounced faceDetected value: true while the raw signal is true, and
// held true for up to the debounce window after the last raw detection.
func (d *Debouncer) Observe(rawDetected bool, now time.Time) bool {
	d.countFrame(now)

	if rawDetected {
		d.lastFaceSeen = now
		d.present = true
	} else if now.Sub(d.lastFaceSeen) > d.debounceWindow {
		d.present = false
	}

	return rawDetected || d.present
}

// FPS returns the most recently completed window's frame rate estimate.
// It reports 0 until the first window has elapsed.
func (d *Debouncer) FPS() float64 {
	return d.fps
}

func (d *Debouncer) countFrame(now time.Time) {
	if d.windowStart.IsZero() {
		d.windowStart = now
	}
	d.frames++

	elapsed := now.Sub(d.windowStart)
	if elapsed >= d.fpsWindow && elapsed > 0 {
		d.fps = float64(d.frames) * 1000 / float64(elapsed.Milliseconds())
		d.frames = 0
		d.windowStart = now
	}
}
