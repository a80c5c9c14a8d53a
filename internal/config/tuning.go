package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/attentive-data/focus.report/internal/focus"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the user-adjustable tuning parameters. The
// schema matches the /api/config endpoint so the same JSON can be used
// for both startup configuration and runtime updates. Fields omitted
// from the JSON retain their defaults, so partial configs are safe.
type TuningConfig struct {
	// Integration rates (percentage points per second) and the
	// confidence gate below which "looking" is not trusted.
	FocusGainPerSec    *float64 `json:"focus_gain_per_sec,omitempty"`
	DefocusLossPerSec  *float64 `json:"defocus_loss_per_sec,omitempty"`
	NoFaceLossPerSec   *float64 `json:"no_face_loss_per_sec,omitempty"`
	MinFocusConfidence *float64 `json:"min_focus_confidence,omitempty"`

	// Distraction policy
	DistractionThreshold *int  `json:"distraction_threshold,omitempty"`
	PauseOnDistraction   *bool `json:"pause_on_distraction,omitempty"`

	// Detection pipeline params
	DebounceWindow *string `json:"debounce_window,omitempty"` // duration string like "200ms"
	FPSWindow      *string `json:"fps_window,omitempty"`      // duration string like "500ms"

	// Session loop params
	TickInterval     *string `json:"tick_interval,omitempty"`     // duration string like "1s"
	AutosaveInterval *string `json:"autosave_interval,omitempty"` // duration string like "10s"
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file is
// validated to ensure it has a .json extension and is under the max
// file size.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into an empty config. The Get* methods provide
	// fallback defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath, searching the current directory and common parent
// directories. Panics if the file cannot be loaded; intended for test
// setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	for name, v := range map[string]*float64{
		"focus_gain_per_sec":   c.FocusGainPerSec,
		"defocus_loss_per_sec": c.DefocusLossPerSec,
		"no_face_loss_per_sec": c.NoFaceLossPerSec,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, *v)
		}
	}

	if c.MinFocusConfidence != nil {
		if *c.MinFocusConfidence < 0 || *c.MinFocusConfidence > 100 {
			return fmt.Errorf("min_focus_confidence must be between 0 and 100, got %f", *c.MinFocusConfidence)
		}
	}

	if c.DistractionThreshold != nil && *c.DistractionThreshold < 1 {
		return fmt.Errorf("distraction_threshold must be >= 1, got %d", *c.DistractionThreshold)
	}

	for name, v := range map[string]*string{
		"debounce_window":   c.DebounceWindow,
		"fps_window":        c.FPSWindow,
		"tick_interval":     c.TickInterval,
		"autosave_interval": c.AutosaveInterval,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}

	return nil
}

// GetFocusGainPerSec returns the focus_gain_per_sec value or the default.
func (c *TuningConfig) GetFocusGainPerSec() float64 {
	if c.FocusGainPerSec == nil {
		return focus.DefaultGainPerSec
	}
	return *c.FocusGainPerSec
}

// GetDefocusLossPerSec returns the defocus_loss_per_sec value or the default.
func (c *TuningConfig) GetDefocusLossPerSec() float64 {
	if c.DefocusLossPerSec == nil {
		return focus.DefaultDefocusLossPerSec
	}
	return *c.DefocusLossPerSec
}

// GetNoFaceLossPerSec returns the no_face_loss_per_sec value or the default.
func (c *TuningConfig) GetNoFaceLossPerSec() float64 {
	if c.NoFaceLossPerSec == nil {
		return focus.DefaultNoFaceLossPerSec
	}
	return *c.NoFaceLossPerSec
}

// GetMinFocusConfidence returns the min_focus_confidence value or the default.
func (c *TuningConfig) GetMinFocusConfidence() float64 {
	if c.MinFocusConfidence == nil {
		return focus.DefaultMinConfidence
	}
	return *c.MinFocusConfidence
}

// GetDistractionThreshold returns the distraction_threshold value or the default.
func (c *TuningConfig) GetDistractionThreshold() int {
	if c.DistractionThreshold == nil {
		return 3
	}
	return *c.DistractionThreshold
}

// GetPauseOnDistraction returns the pause_on_distraction value or the default.
func (c *TuningConfig) GetPauseOnDistraction() bool {
	if c.PauseOnDistraction == nil {
		return false
	}
	return *c.PauseOnDistraction
}

// GetDebounceWindow parses and returns the DebounceWindow as a time.Duration.
func (c *TuningConfig) GetDebounceWindow() time.Duration {
	return c.duration(c.DebounceWindow, 200*time.Millisecond)
}

// GetFPSWindow parses and returns the FPSWindow as a time.Duration.
func (c *TuningConfig) GetFPSWindow() time.Duration {
	return c.duration(c.FPSWindow, 500*time.Millisecond)
}

// GetTickInterval parses and returns the TickInterval as a time.Duration.
func (c *TuningConfig) GetTickInterval() time.Duration {
	return c.duration(c.TickInterval, time.Second)
}

// GetAutosaveInterval parses and returns the AutosaveInterval as a time.Duration.
func (c *TuningConfig) GetAutosaveInterval() time.Duration {
	return c.duration(c.AutosaveInterval, 10*time.Second)
}

// Rates bundles the integration parameters for the focus integrator.
func (c *TuningConfig) Rates() focus.Rates {
	return focus.Rates{
		GainPerSec:        c.GetFocusGainPerSec(),
		DefocusLossPerSec: c.GetDefocusLossPerSec(),
		NoFaceLossPerSec:  c.GetNoFaceLossPerSec(),
		MinConfidence:     c.GetMinFocusConfidence(),
	}
}

func (c *TuningConfig) duration(v *string, fallback time.Duration) time.Duration {
	if v == nil || *v == "" {
		return fallback
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fallback
	}
	return d
}
