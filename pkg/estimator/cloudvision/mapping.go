package cloudvision

import (
	"fmt"

	vision "google.golang.org/api/vision/v1"

	"github.com/teslashibe/go-emote/pkg/face"
)

// eye and brow hold one side of the face before it is assigned to image-left
// or image-right mesh slots.
type eye struct {
	cornerA, cornerB face.Landmark
	top, bottom      face.Landmark
}

type brow struct {
	endA, endB face.Landmark
	center     face.Landmark
}

func (e eye) centerX() float64 { return (e.cornerA.X + e.cornerB.X) / 2 }

// split orders two points as (nearer to ref, farther from ref).
func split(a, b, ref face.Landmark) (near, far face.Landmark) {
	if face.Distance(a, ref) <= face.Distance(b, ref) {
		return a, b
	}
	return b, a
}

func midpoint(a, b face.Landmark) face.Landmark {
	return face.Landmark{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2, Z: (a.Z + b.Z) / 2}
}

var required = []string{
	"LEFT_EYE_LEFT_CORNER", "LEFT_EYE_RIGHT_CORNER", "LEFT_EYE_TOP_BOUNDARY", "LEFT_EYE_BOTTOM_BOUNDARY",
	"RIGHT_EYE_LEFT_CORNER", "RIGHT_EYE_RIGHT_CORNER", "RIGHT_EYE_TOP_BOUNDARY", "RIGHT_EYE_BOTTOM_BOUNDARY",
	"LEFT_OF_LEFT_EYEBROW", "RIGHT_OF_LEFT_EYEBROW", "LEFT_EYEBROW_UPPER_MIDPOINT",
	"LEFT_OF_RIGHT_EYEBROW", "RIGHT_OF_RIGHT_EYEBROW", "RIGHT_EYEBROW_UPPER_MIDPOINT",
	"MIDPOINT_BETWEEN_EYES", "NOSE_TIP",
	"UPPER_LIP", "LOWER_LIP", "MOUTH_LEFT", "MOUTH_RIGHT", "MOUTH_CENTER",
	"LEFT_CHEEK_CENTER", "RIGHT_CHEEK_CENTER",
}

// toMesh places Cloud Vision landmarks into a dense mesh in pixel space.
// depthScale divides Z.
func toMesh(fa *vision.FaceAnnotation, depthScale float64) (face.Mesh, error) {
	pts := make(map[string]face.Landmark, len(fa.Landmarks))
	for _, lm := range fa.Landmarks {
		if lm == nil || lm.Position == nil {
			continue
		}
		z := lm.Position.Z
		if depthScale > 0 {
			z /= depthScale
		}
		pts[lm.Type] = face.Landmark{X: lm.Position.X, Y: lm.Position.Y, Z: z}
	}
	for _, name := range required {
		if _, ok := pts[name]; !ok {
			return nil, fmt.Errorf("cloudvision: missing landmark %s", name)
		}
	}

	mid := pts["MIDPOINT_BETWEEN_EYES"]

	eyeA := eye{pts["LEFT_EYE_LEFT_CORNER"], pts["LEFT_EYE_RIGHT_CORNER"], pts["LEFT_EYE_TOP_BOUNDARY"], pts["LEFT_EYE_BOTTOM_BOUNDARY"]}
	eyeB := eye{pts["RIGHT_EYE_LEFT_CORNER"], pts["RIGHT_EYE_RIGHT_CORNER"], pts["RIGHT_EYE_TOP_BOUNDARY"], pts["RIGHT_EYE_BOTTOM_BOUNDARY"]}
	browA := brow{pts["LEFT_OF_LEFT_EYEBROW"], pts["RIGHT_OF_LEFT_EYEBROW"], pts["LEFT_EYEBROW_UPPER_MIDPOINT"]}
	browB := brow{pts["LEFT_OF_RIGHT_EYEBROW"], pts["RIGHT_OF_RIGHT_EYEBROW"], pts["RIGHT_EYEBROW_UPPER_MIDPOINT"]}
	if eyeA.centerX() > eyeB.centerX() {
		eyeA, eyeB = eyeB, eyeA
		browA, browB = browB, browA
	}

	m := make(face.Mesh, face.MeshSize)
	for i := range m {
		m[i] = mid
	}

	// Image-left eye and brow.
	inner, outer := split(eyeA.cornerA, eyeA.cornerB, mid)
	m[face.LeftEyeOuter], m[face.LeftEyeInner] = outer, inner
	m[face.LeftEyeTop], m[face.LeftEyeBottom] = eyeA.top, eyeA.bottom
	browInner, _ := split(browA.endA, browA.endB, mid)
	m[face.RightBrowInner], m[face.RightBrowCenter] = browInner, browA.center

	// Image-right eye and brow.
	inner, outer = split(eyeB.cornerA, eyeB.cornerB, mid)
	m[face.RightEyeOuter], m[face.RightEyeInner] = outer, inner
	m[face.RightEyeTop], m[face.RightEyeBottom] = eyeB.top, eyeB.bottom
	browInner, _ = split(browB.endA, browB.endB, mid)
	m[face.LeftBrowInner], m[face.LeftBrowCenter] = browInner, browB.center

	mouthL, mouthR := pts["MOUTH_LEFT"], pts["MOUTH_RIGHT"]
	if mouthL.X > mouthR.X {
		mouthL, mouthR = mouthR, mouthL
	}
	m[face.MouthLeft], m[face.MouthRight] = mouthL, mouthR

	center := pts["MOUTH_CENTER"]
	m[face.UpperLipOuter] = pts["UPPER_LIP"]
	m[face.LowerLipOuter] = pts["LOWER_LIP"]
	m[face.MouthTop] = midpoint(pts["UPPER_LIP"], center)
	m[face.MouthBottom] = midpoint(pts["LOWER_LIP"], center)

	m[face.NoseTip] = pts["NOSE_TIP"]

	cheekL, cheekR := pts["LEFT_CHEEK_CENTER"], pts["RIGHT_CHEEK_CENTER"]
	if cheekL.X > cheekR.X {
		cheekL, cheekR = cheekR, cheekL
	}
	m[face.LeftCheek], m[face.RightCheek] = cheekL, cheekR

	return m, nil
}

func boxOf(p *vision.BoundingPoly) *face.Box {
	if p == nil {
		return nil
	}
	var b *face.Box
	for _, v := range p.Vertices {
		if v == nil {
			continue
		}
		x, y := float64(v.X), float64(v.Y)
		if b == nil {
			b = &face.Box{MinX: x, MinY: y, MaxX: x, MaxY: y}
			continue
		}
		b.MinX, b.MaxX = min(b.MinX, x), max(b.MaxX, x)
		b.MinY, b.MaxY = min(b.MinY, y), max(b.MaxY, y)
	}
	return b
}
