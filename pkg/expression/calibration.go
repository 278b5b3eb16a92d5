package expression

const (
	// CalibrationFrames is how many good frames lock the baseline.
	CalibrationFrames = 45

	// CalibrationMinClarity is the clarity a frame needs to count.
	CalibrationMinClarity = 65
)

// Baseline holds per-feature values collected during calibration. It is used
// both for the running sums and for the locked means.
type Baseline struct {
	AvgEAR            float64 `json:"avg_ear"`
	MouthWidth        float64 `json:"mouth_width"`
	MAR               float64 `json:"mar"`
	InnerBrowDistance float64 `json:"inner_brow_distance"`
	BrowRatio         float64 `json:"brow_ratio"`
	MouthCurve        float64 `json:"mouth_curve"`
}

// CalibrationContext accumulates a neutral-face baseline over the first good
// frames of a session. The classifier does not read the baseline yet.
type CalibrationContext struct {
	IsCalibrating   bool
	FramesCollected int
	Sums            Baseline
	Baseline        *Baseline
}

// NewCalibrationContext returns a context in the collecting state.
func NewCalibrationContext() *CalibrationContext {
	return &CalibrationContext{IsCalibrating: true}
}

// Accumulate adds a smoothed frame when the context is still collecting and
// the frame's clarity is at least CalibrationMinClarity. It returns true on
// the call that locks the baseline.
func (c *CalibrationContext) Accumulate(smoothed Features, clarity int) bool {
	if !c.IsCalibrating || clarity < CalibrationMinClarity {
		return false
	}

	c.FramesCollected++
	c.Sums.AvgEAR += smoothed.AvgEAR
	c.Sums.MouthWidth += smoothed.MouthWidth
	c.Sums.MAR += smoothed.MAR
	c.Sums.InnerBrowDistance += smoothed.InnerBrowDistance
	c.Sums.BrowRatio += smoothed.BrowRatio
	c.Sums.MouthCurve += smoothed.MouthCurve

	if c.FramesCollected < CalibrationFrames {
		return false
	}

	n := float64(c.FramesCollected)
	c.Baseline = &Baseline{
		AvgEAR:            c.Sums.AvgEAR / n,
		MouthWidth:        c.Sums.MouthWidth / n,
		MAR:               c.Sums.MAR / n,
		InnerBrowDistance: c.Sums.InnerBrowDistance / n,
		BrowRatio:         c.Sums.BrowRatio / n,
		MouthCurve:        c.Sums.MouthCurve / n,
	}
	c.IsCalibrating = false
	return true
}

// Progress returns collected frames as a fraction of CalibrationFrames.
func (c *CalibrationContext) Progress() float64 {
	if !c.IsCalibrating {
		return 1
	}
	return float64(c.FramesCollected) / CalibrationFrames
}
