package session

import (
	"github.com/teslashibe/go-emote/pkg/expression"
)

// Stats are per-session counters.
type Stats struct {
	Attempts   uint64 `json:"attempts"`
	Done       uint64 `json:"done"`
	Skipped    uint64 `json:"skipped"`
	Errors     uint64 `json:"errors"`
	Stale      uint64 `json:"stale"`
	NoFace     uint64 `json:"no_face"`
	Superseded uint64 `json:"superseded"`
	Emitted    uint64 `json:"emitted"`
	Suppressed uint64 `json:"suppressed"`
	EmitErrors uint64 `json:"emit_errors"`
}

// Status is a point-in-time view of a session.
type Status struct {
	ID        string `json:"id"`
	SubjectID string `json:"subject_id"`
	Mode      string `json:"mode"`
	State     State  `json:"state"`

	// Label is empty while no face is in view.
	Label        string                  `json:"label,omitempty"`
	Clarity      int                     `json:"clarity"`
	ClarityLevel expression.ClarityLevel `json:"clarity_level,omitempty"`
	FromCache    bool                    `json:"from_cache"`
	LastStable   string                  `json:"last_stable,omitempty"`

	Calibrating         bool                 `json:"calibrating"`
	CalibrationProgress float64              `json:"calibration_progress"`
	Baseline            *expression.Baseline `json:"baseline,omitempty"`

	InFlight   bool  `json:"in_flight"`
	InFlightMs int64 `json:"in_flight_ms,omitempty"`

	Stats Stats `json:"stats"`
}

// Mode names the scheduling mode.
func (c Config) Mode() string {
	if c.CadenceMs > 0 {
		return "interval"
	}
	return "continuous"
}

// Status returns a snapshot.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	cal := s.detector.Calibration()
	st := Status{
		ID:                  s.cfg.ID,
		SubjectID:           s.cfg.SubjectID,
		Mode:                s.cfg.Mode(),
		State:               s.state,
		Calibrating:         cal.IsCalibrating,
		CalibrationProgress: cal.Progress(),
		Baseline:            cal.Baseline,
		InFlight:            s.inFlight,
		Stats:               s.stats,
	}
	if s.inFlight {
		st.InFlightMs = s.clock.Since(s.startedAt).Milliseconds()
	}
	if s.current != nil {
		st.Label = string(s.current.Result.Label)
		st.Clarity = s.current.Clarity.Score
		st.ClarityLevel = s.current.Clarity.Level
		st.FromCache = s.current.FromCache
	}
	if r, ok := s.detector.LastStable(); ok {
		st.LastStable = string(r.Label)
	}
	return st
}

// Stats returns the counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
