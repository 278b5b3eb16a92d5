package expression

// SmoothingAlpha is the EMA weight given to each new observation. One value
// is shared by every tracked feature.
const SmoothingAlpha = 0.35

type ema struct {
	value  float64
	seeded bool
}

func (e *ema) update(x float64) float64 {
	if !e.seeded {
		e.value = x
		e.seeded = true
		return x
	}
	e.value = e.value*(1-SmoothingAlpha) + x*SmoothingAlpha
	return e.value
}

// SmoothingContext carries one exponential moving average per tracked
// feature across frames of a single session. The zero value is ready to use.
type SmoothingContext struct {
	avgEAR            ema
	mouthWidth        ema
	mar               ema
	mouthHeight       ema
	mouthCurve        ema
	innerBrowDistance ema
	browRatio         ema
	lipDistance       ema
}

// Smooth folds raw into the running averages and returns a copy of raw with
// the eight tracked fields replaced by their smoothed values and
// MouthOpenArea recomputed from the smoothed MAR and mouth width. All other
// fields pass through unchanged.
func (c *SmoothingContext) Smooth(raw Features) Features {
	s := raw
	s.AvgEAR = c.avgEAR.update(raw.AvgEAR)
	s.MouthWidth = c.mouthWidth.update(raw.MouthWidth)
	s.MAR = c.mar.update(raw.MAR)
	s.MouthHeight = c.mouthHeight.update(raw.MouthHeight)
	s.MouthCurve = c.mouthCurve.update(raw.MouthCurve)
	s.InnerBrowDistance = c.innerBrowDistance.update(raw.InnerBrowDistance)
	s.BrowRatio = c.browRatio.update(raw.BrowRatio)
	s.LipDistance = c.lipDistance.update(raw.LipDistance)
	s.MouthOpenArea = s.MAR * s.MouthWidth
	return s
}

// Seeded reports whether at least one frame has been smoothed.
func (c *SmoothingContext) Seeded() bool {
	return c.avgEAR.seeded
}

// Reset clears every average so the next frame seeds again.
func (c *SmoothingContext) Reset() {
	*c = SmoothingContext{}
}
