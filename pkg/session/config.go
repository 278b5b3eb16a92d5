package session

import (
	"errors"
	"fmt"
	"time"
)

// Config holds per-session settings. Cadence is fixed for the life of the
// session.
type Config struct {
	ID        string
	SubjectID string // profile the emitted events are attributed to

	// Estimation
	MaxFaces        int
	RefineLandmarks bool
	TargetMaxSide   int // 0 keeps the captured size

	// Scheduling. CadenceMs > 0 runs a fixed-interval ticker; 0 runs
	// continuously with ContinuousGap between attempts.
	CadenceMs     int
	ContinuousGap time.Duration
	ErrorBackoff  time.Duration // continuous mode only

	// Watchdogs
	CaptureTimeout  time.Duration
	EstimateTimeout time.Duration

	// Readiness
	ReadyTimeout      time.Duration
	ReadyPollInterval time.Duration

	// Emission
	EmitWindow time.Duration
	FriendIDs  []string // empty broadcasts

	SkipLogInterval time.Duration
}

// DefaultConfig returns defaults for a one-face session at 2 Hz.
func DefaultConfig() Config {
	return Config{
		MaxFaces:          1,
		RefineLandmarks:   true,
		TargetMaxSide:     640,
		CadenceMs:         500,
		ErrorBackoff:      250 * time.Millisecond,
		CaptureTimeout:    5 * time.Second,
		EstimateTimeout:   8 * time.Second,
		ReadyTimeout:      30 * time.Second,
		ReadyPollInterval: 250 * time.Millisecond,
		EmitWindow:        time.Second,
		SkipLogInterval:   2 * time.Second,
	}
}

// Cadence returns the ticker interval, or 0 for continuous mode.
func (c Config) Cadence() time.Duration {
	return time.Duration(c.CadenceMs) * time.Millisecond
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if c.SubjectID == "" {
		errs = append(errs, errors.New("subject_id is required"))
	}
	if c.MaxFaces < 1 {
		errs = append(errs, fmt.Errorf("max_faces must be >= 1, got %d", c.MaxFaces))
	}
	if c.TargetMaxSide < 0 {
		errs = append(errs, fmt.Errorf("target_max_side must be >= 0, got %d", c.TargetMaxSide))
	}
	if c.CadenceMs < 0 {
		errs = append(errs, fmt.Errorf("cadence_ms must be >= 0, got %d", c.CadenceMs))
	}
	if c.ContinuousGap < 0 {
		errs = append(errs, errors.New("continuous_gap must be >= 0"))
	}
	if c.CaptureTimeout <= 0 {
		errs = append(errs, errors.New("capture_timeout must be > 0"))
	}
	if c.EstimateTimeout <= 0 {
		errs = append(errs, errors.New("estimate_timeout must be > 0"))
	}
	if c.ReadyPollInterval <= 0 {
		errs = append(errs, errors.New("ready_poll_interval must be > 0"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("session %q: %w", c.ID, errors.Join(errs...))
}
