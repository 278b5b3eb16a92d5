package expression

import (
	"math"

	"github.com/teslashibe/go-emote/pkg/face"
)

// ClarityLevel buckets a clarity score.
type ClarityLevel string

const (
	ClarityPoor      ClarityLevel = "Poor"
	ClarityFair      ClarityLevel = "Fair"
	ClarityGood      ClarityLevel = "Good"
	ClarityExcellent ClarityLevel = "Excellent"
)

// StableClarity is the score a frame needs before its result is trusted and
// cached as the session's last stable result.
const StableClarity = 60

// ClarityScore estimates how trustworthy a frame's landmarks are.
type ClarityScore struct {
	Score int          `json:"score"`
	Level ClarityLevel `json:"level"`

	// Sub-scores, each 0-100.
	Size    float64 `json:"size"`
	Angle   float64 `json:"angle"`
	HCenter float64 `json:"h_center"`
	VCenter float64 `json:"v_center"`
}

// Clarity scores a unit-normalized mesh from face size, pose symmetry and
// centering. It does not look at smoothed state.
func Clarity(m face.Mesh) ClarityScore {
	lo, ro := m[face.LeftEyeOuter], m[face.RightEyeOuter]
	fw := face.Distance(lo, ro)

	var size float64
	switch {
	case fw >= 0.18 && fw <= 0.38:
		size = 100 - math.Abs(fw-0.28)*300
	case fw < 0.18:
		size = math.Max(0, fw/0.18*60)
	default:
		size = math.Max(0, 60-(fw-0.38)*300)
	}

	nose := m[face.NoseTip]
	leftDepth := math.Abs(nose.Z - m[face.LeftCheek].Z)
	rightDepth := math.Abs(nose.Z - m[face.RightCheek].Z)
	angle := math.Max(0, 100-math.Abs(leftDepth-rightDepth)*1000)

	centerX := (lo.X + ro.X) / 2
	hCenter := math.Max(0, 100-math.Abs(centerX-0.5)*300)

	vCenter := 100.0
	if nose.Y < 0.3 || nose.Y > 0.6 {
		vCenter = math.Max(0, 100-math.Abs(nose.Y-0.45)*300)
	}

	score := int(math.Round(size*0.4 + angle*0.3 + hCenter*0.2 + vCenter*0.1))
	return ClarityScore{
		Score:   score,
		Level:   LevelFor(score),
		Size:    size,
		Angle:   angle,
		HCenter: hCenter,
		VCenter: vCenter,
	}
}

// LevelFor buckets a clarity score.
func LevelFor(score int) ClarityLevel {
	switch {
	case score >= 80:
		return ClarityExcellent
	case score >= 65:
		return ClarityGood
	case score >= 50:
		return ClarityFair
	default:
		return ClarityPoor
	}
}
