// Package expression turns face mesh landmarks into a discrete expression
// label.
//
// The pipeline for one frame is:
//
//	mesh -> Extract -> SmoothingContext.Smooth -> CalibrationContext.Accumulate
//	     -> Classify -> Result
//
// with Clarity scored independently from the raw mesh. Detector bundles the
// per-session state (smoothing, calibration, last stable result) and runs the
// whole chain.
package expression

import (
	"math"

	"github.com/teslashibe/go-emote/pkg/face"
)

// Features holds the geometric measurements of one frame. Every distance is
// divided by FaceWidth so the values do not depend on how far the subject is
// from the camera.
type Features struct {
	FaceWidth float64

	LeftEAR  float64
	RightEAR float64
	AvgEAR   float64

	MouthWidth  float64
	MouthHeight float64
	MAR         float64

	// MouthCurve is mouth-center Y minus the average corner Y. Positive
	// means the corners sit above the center in image space.
	MouthCurve float64

	InnerBrowDistance float64
	LeftBrowToEye     float64
	RightBrowToEye    float64
	AvgBrowToEye      float64

	LeftEyeWidth  float64
	RightEyeWidth float64
	AvgEyeWidth   float64
	BrowRatio     float64

	LipDistance float64

	// MouthOpenArea is MAR * MouthWidth. After smoothing it is recomputed
	// from the smoothed values.
	MouthOpenArea float64
}

// Extract computes raw features from a mesh. It has no side effects.
func Extract(m face.Mesh) (Features, error) {
	if err := m.Validate(); err != nil {
		return Features{}, err
	}

	d := face.Distance
	fw := m.FaceWidth()

	var f Features
	f.FaceWidth = fw

	f.LeftEAR = d(m[face.LeftEyeTop], m[face.LeftEyeBottom]) / fw
	f.RightEAR = d(m[face.RightEyeTop], m[face.RightEyeBottom]) / fw
	f.AvgEAR = (f.LeftEAR + f.RightEAR) / 2

	f.MouthHeight = d(m[face.MouthTop], m[face.MouthBottom]) / fw
	f.MouthWidth = d(m[face.MouthLeft], m[face.MouthRight]) / fw
	f.MAR = f.MouthHeight / f.MouthWidth

	cornerY := (m[face.MouthLeft].Y + m[face.MouthRight].Y) / 2
	f.MouthCurve = m[face.MouthTop].Y - cornerY

	f.InnerBrowDistance = d(m[face.LeftBrowInner], m[face.RightBrowInner]) / fw
	f.LeftBrowToEye = d(m[face.LeftBrowInner], m[face.LeftEyeTop]) / fw
	f.RightBrowToEye = d(m[face.RightBrowInner], m[face.RightEyeTop]) / fw
	f.AvgBrowToEye = (f.LeftBrowToEye + f.RightBrowToEye) / 2

	f.LeftEyeWidth = d(m[face.LeftEyeOuter], m[face.LeftEyeInner]) / fw
	f.RightEyeWidth = d(m[face.RightEyeInner], m[face.RightEyeOuter]) / fw
	f.AvgEyeWidth = (f.LeftEyeWidth + f.RightEyeWidth) / 2
	f.BrowRatio = f.AvgBrowToEye / f.AvgEyeWidth

	f.LipDistance = d(m[face.UpperLipOuter], m[face.LowerLipOuter]) / fw
	f.MouthOpenArea = f.MAR * f.MouthWidth

	return f, nil
}

// BrowDistanceRatioPx measures the inner-brow gap against the eye span in
// pixel space, with x scaled by width and y by height. Depth is ignored.
func BrowDistanceRatioPx(m face.Mesh, width, height float64) float64 {
	lo, ro := m[face.LeftEyeOuter], m[face.RightEyeOuter]
	faceWidthPx := math.Hypot((lo.X-ro.X)*width, (lo.Y-ro.Y)*height)
	if faceWidthPx == 0 {
		return 0
	}
	lb, rb := m[face.LeftBrowInner], m[face.RightBrowInner]
	browPx := math.Hypot((lb.X-rb.X)*width, (lb.Y-rb.Y)*height)
	return browPx / faceWidthPx
}

// browDistancePx is the raw pixel gap between the inner brow points.
func browDistancePx(m face.Mesh, width, height float64) float64 {
	lb, rb := m[face.LeftBrowInner], m[face.RightBrowInner]
	return math.Hypot((lb.X-rb.X)*width, (lb.Y-rb.Y)*height)
}
