// Package focus accumulates the per-session focus percentage. The
// integrator is a leaky accumulator over the stabilised presence
// signal: attention gained slowly while looking at the screen, lost
// faster while looking away, and fastest while no face is in frame.
package focus

import "time"

// Default integration rates, in percentage points per second, and the
// confidence gate below which a "looking" classification is not
// trusted. Loss rates deliberately exceed the gain rate so distraction
// is punished faster than refocus is rewarded.
const (
	DefaultGainPerSec        = 1.2
	DefaultDefocusLossPerSec = 4.0
	DefaultNoFaceLossPerSec  = 6.0
	DefaultMinConfidence     = 35.0
)

// Snapshot is one debounced observation of the user, produced by the
// detection pipeline once per frame and sampled by the session tick
// loop. It is not persisted frame-by-frame.
type Snapshot struct {
	FaceDetected bool      `json:"face_detected"`
	Looking      bool      `json:"looking"`
	Confidence   float64   `json:"confidence"`
	FPS          float64   `json:"fps"`
	Timestamp    time.Time `json:"timestamp"`
}

// Rates holds the integration parameters. All values come from user
// settings; see the tuning config for defaults.
type Rates struct {
	GainPerSec        float64
	DefocusLossPerSec float64
	NoFaceLossPerSec  float64
	MinConfidence     float64
}

// DefaultRates returns the built-in integration rates.
func DefaultRates() Rates {
	return Rates{
		GainPerSec:        DefaultGainPerSec,
		DefocusLossPerSec: DefaultDefocusLossPerSec,
		NoFaceLossPerSec:  DefaultNoFaceLossPerSec,
		MinConfidence:     DefaultMinConfidence,
	}
}

// Focused reports whether a snapshot counts as attentive under these
// rates: a face in frame, classified as looking, at or above the
// confidence gate.
func (r Rates) Focused(s Snapshot) bool {
	return s.FaceDetected && s.Looking && s.Confidence >= r.MinConfidence
}

// Integrator maintains the focus percentage for a single session. It
// has no memory beyond the current value, so equal gain and loss
// periods cancel regardless of tick granularity. The integrator is
// observation-only: it never raises distraction events itself.
type Integrator struct {
	rates Rates
	pct   float64
}

// NewIntegrator returns an integrator starting at 100 percent.
func NewIntegrator(rates Rates) *Integrator {
	return &Integrator{rates: rates, pct: 100}
}

// Apply integrates one observation over dt seconds and returns the
// updated percentage, clamped to [0, 100].
func (i *Integrator) Apply(s Snapshot, dt float64) float64 {
	switch {
	case !s.FaceDetected:
		i.pct -= i.rates.NoFaceLossPerSec * dt
	case i.rates.Focused(s):
		i.pct += i.rates.GainPerSec * dt
	default:
		i.pct -= i.rates.DefocusLossPerSec * dt
	}

	if i.pct < 0 {
		i.pct = 0
	} else if i.pct > 100 {
		i.pct = 100
	}
	return i.pct
}

// Percent returns the current focus percentage.
func (i *Integrator) Percent() float64 {
	return i.pct
}

// Reset returns the integrator to its starting value for a new session.
func (i *Integrator) Reset() {
	i.pct = 100
}
