package expression

import (
	"github.com/teslashibe/go-emote/pkg/face"
)

// Analysis is what Detector.Process returns for one frame.
type Analysis struct {
	Result  Result       `json:"result"`
	Clarity ClarityScore `json:"clarity"`

	// FromCache is set when the frame was too unclear and Result is the
	// last stable result instead of the fresh one.
	FromCache bool `json:"from_cache"`

	// CalibrationLocked is set on the frame that completed calibration.
	CalibrationLocked bool `json:"calibration_locked"`
}

// Detector holds the per-session classification state. It is not safe for
// concurrent use; callers serialize access.
type Detector struct {
	smoothing   SmoothingContext
	calibration *CalibrationContext
	lastStable  *Result
}

// NewDetector returns a detector with empty smoothing state and calibration
// in progress.
func NewDetector() *Detector {
	return &Detector{calibration: NewCalibrationContext()}
}

// Process classifies one unit-normalized mesh. width and height are the
// dimensions of the image the mesh was normalized against and are only used
// for the pixel-space brow ratio.
//
// Smoothing and calibration state advance on every valid frame, including
// ones whose result is replaced by the cached stable result.
func (d *Detector) Process(m face.Mesh, width, height float64) (Analysis, error) {
	raw, err := Extract(m)
	if err != nil {
		return Analysis{}, err
	}

	clarity := Clarity(m)
	smoothed := d.smoothing.Smooth(raw)
	locked := d.calibration.Accumulate(smoothed, clarity.Score)

	result := Classify(Input{
		Features:            smoothed,
		BrowDistanceRatioPx: BrowDistanceRatioPx(m, width, height),
		BrowDistancePx:      browDistancePx(m, width, height),
	})

	a := Analysis{Result: result, Clarity: clarity, CalibrationLocked: locked}
	switch {
	case clarity.Score < StableClarity && d.lastStable != nil:
		a.Result = *d.lastStable
		a.FromCache = true
	case clarity.Score >= StableClarity:
		cached := result
		d.lastStable = &cached
	}
	return a, nil
}

// LastStable returns the most recent result whose clarity reached
// StableClarity.
func (d *Detector) LastStable() (Result, bool) {
	if d.lastStable == nil {
		return Result{}, false
	}
	return *d.lastStable, true
}

// Calibration returns a copy of the calibration state.
func (d *Detector) Calibration() CalibrationContext {
	c := *d.calibration
	if c.Baseline != nil {
		b := *c.Baseline
		c.Baseline = &b
	}
	return c
}

// Reset drops smoothing, calibration and the cached stable result.
func (d *Detector) Reset() {
	d.smoothing.Reset()
	d.calibration = NewCalibrationContext()
	d.lastStable = nil
}
