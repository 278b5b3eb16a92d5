package expression

import (
	"github.com/teslashibe/go-emote/pkg/face"
)

// neutralMesh builds a centered, frontal, unit-normalized face that
// classifies as Neutral with clarity 100. Face width (33-263) is 0.28.
func neutralMesh() face.Mesh {
	m := make(face.Mesh, face.MeshSize)
	for i := range m {
		m[i] = face.Landmark{X: 0.5, Y: 0.5}
	}
	set := func(i int, x, y float64) { m[i] = face.Landmark{X: x, Y: y} }

	set(face.LeftEyeOuter, 0.36, 0.40)
	set(face.RightEyeOuter, 0.64, 0.40)
	set(face.LeftEyeInner, 0.46, 0.40)
	set(face.RightEyeInner, 0.54, 0.40)

	set(face.LeftEyeTop, 0.43, 0.385)
	set(face.LeftEyeBottom, 0.43, 0.415)
	set(face.RightEyeTop, 0.57, 0.385)
	set(face.RightEyeBottom, 0.57, 0.415)

	set(face.LeftBrowInner, 0.458, 0.34)
	set(face.RightBrowInner, 0.542, 0.34)
	set(face.LeftBrowCenter, 0.40, 0.33)
	set(face.RightBrowCenter, 0.60, 0.33)

	set(face.MouthLeft, 0.43, 0.60)
	set(face.MouthRight, 0.57, 0.60)
	set(face.MouthTop, 0.50, 0.60)
	set(face.MouthBottom, 0.50, 0.60)
	set(face.UpperLipOuter, 0.50, 0.58)
	set(face.LowerLipOuter, 0.50, 0.62)

	m[face.NoseTip] = face.Landmark{X: 0.5, Y: 0.5, Z: -0.05}
	set(face.LeftCheek, 0.30, 0.50)
	set(face.RightCheek, 0.70, 0.50)
	return m
}

type meshEdit func(m face.Mesh)

func buildMesh(edits ...meshEdit) face.Mesh {
	m := neutralMesh()
	for _, e := range edits {
		e(m)
	}
	return m
}

func at(i int, x, y float64) meshEdit {
	return func(m face.Mesh) {
		m[i].X, m[i].Y = x, y
	}
}

func wideMouth(m face.Mesh) {
	at(face.MouthLeft, 0.41, 0.60)(m)
	at(face.MouthRight, 0.59, 0.60)(m)
}

func openMouth(gap float64) meshEdit {
	return func(m face.Mesh) {
		at(face.MouthTop, 0.50, 0.60-gap/2)(m)
		at(face.MouthBottom, 0.50, 0.60+gap/2)(m)
	}
}

func eyeGap(top, bottom int, gap float64) meshEdit {
	return func(m face.Mesh) {
		m[top].Y = 0.40 - gap/2
		m[bottom].Y = 0.40 + gap/2
	}
}

func browGap(gap float64) meshEdit {
	return func(m face.Mesh) {
		m[face.LeftBrowInner].X = 0.5 - gap/2
		m[face.RightBrowInner].X = 0.5 + gap/2
	}
}

// blurry translates the face off-center and skews the cheek depth so that
// clarity falls below StableClarity while every feature stays the same.
func blurry(m face.Mesh) {
	for i := range m {
		m[i].X += 0.1
	}
	m[face.LeftCheek].Z = 0.1
	m[face.NoseTip].Y = 0.9
}

var (
	smilingMesh  = func() face.Mesh { return buildMesh(wideMouth) }
	laughingMesh = func() face.Mesh { return buildMesh(wideMouth, openMouth(0.06)) }
)
