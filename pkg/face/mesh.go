// Package face defines the landmark types shared by estimators and the
// expression pipeline.
//
// Landmarks follow the 468-point MediaPipe FaceMesh topology. Index identity
// is fixed: the same anatomical point always occupies the same slot.
package face

import (
	"errors"
	"fmt"
	"math"
)

// MeshSize is the number of points in a dense face mesh.
const MeshSize = 468

// FaceMesh indices read by the expression pipeline.
const (
	UpperLipOuter   = 0
	NoseTip         = 1
	MouthTop        = 13
	MouthBottom     = 14
	LowerLipOuter   = 17
	LeftEyeOuter    = 33
	RightBrowCenter = 52
	RightBrowInner  = 55
	MouthLeft       = 61
	LeftEyeInner    = 133
	LeftEyeBottom   = 145
	LeftEyeTop      = 159
	LeftCheek       = 234
	RightEyeOuter   = 263
	LeftBrowCenter  = 282
	LeftBrowInner   = 285
	MouthRight      = 291
	RightEyeInner   = 362
	RightEyeBottom  = 374
	RightEyeTop     = 386
	RightCheek      = 454
)

// ErrInvalidMesh is returned when a landmark set cannot be used for measurement.
var ErrInvalidMesh = errors.New("face: invalid landmark mesh")

// Landmark is a single mesh point. Coordinates are either pixel or unit
// normalized depending on where the mesh came from.
type Landmark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Mesh is an ordered set of landmarks indexed by FaceMesh slot.
type Mesh []Landmark

// Box is an axis-aligned face bounding box.
type Box struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// LandmarkSet is one face returned by an estimator.
type LandmarkSet struct {
	Points Mesh
	Box    *Box
	Score  float64
}

// Distance returns the Euclidean distance between two landmarks in 3D.
func Distance(a, b Landmark) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Validate checks the mesh is dense enough and has a usable face width.
func (m Mesh) Validate() error {
	if len(m) < MeshSize {
		return fmt.Errorf("%w: %d points, need %d", ErrInvalidMesh, len(m), MeshSize)
	}
	fw := m.FaceWidth()
	if fw == 0 || math.IsNaN(fw) || math.IsInf(fw, 0) {
		return fmt.Errorf("%w: zero face width", ErrInvalidMesh)
	}
	return nil
}

// FaceWidth is the distance between the outer eye corners.
// Returns 0 for meshes too short to contain both corners.
func (m Mesh) FaceWidth() float64 {
	if len(m) <= RightEyeOuter {
		return 0
	}
	return Distance(m[LeftEyeOuter], m[RightEyeOuter])
}

// Normalize divides x by width and y by height. Z is left as-is.
func (m Mesh) Normalize(width, height float64) Mesh {
	out := make(Mesh, len(m))
	for i, p := range m {
		out[i] = Landmark{X: p.X / width, Y: p.Y / height, Z: p.Z}
	}
	return out
}

// Map applies fn to every point and returns the new mesh.
func (m Mesh) Map(fn func(Landmark) Landmark) Mesh {
	out := make(Mesh, len(m))
	for i, p := range m {
		out[i] = fn(p)
	}
	return out
}

// SelectBest picks the face with the widest eye span from the first maxFaces
// sets. The closest face dominates when several people are in frame.
// Returns nil if sets is empty.
func SelectBest(sets []LandmarkSet, maxFaces int) *LandmarkSet {
	if maxFaces > 0 && len(sets) > maxFaces {
		sets = sets[:maxFaces]
	}
	if len(sets) == 0 {
		return nil
	}
	if len(sets) == 1 {
		return &sets[0]
	}

	best := &sets[0]
	bestWidth := best.Points.FaceWidth()
	for i := 1; i < len(sets); i++ {
		if w := sets[i].Points.FaceWidth(); w > bestWidth {
			bestWidth = w
			best = &sets[i]
		}
	}
	return best
}
