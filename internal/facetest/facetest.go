// Package facetest builds synthetic face meshes and images for tests.
package facetest

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"

	"github.com/teslashibe/go-emote/pkg/face"
)

// Neutral is a centered, frontal, unit-normalized face that classifies as
// Neutral with clarity 100 on a square image.
func Neutral() face.Mesh {
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
	set(face.LeftCheek, 0.30, 0.50)
	set(face.RightCheek, 0.70, 0.50)
	m[face.NoseTip] = face.Landmark{X: 0.5, Y: 0.5, Z: -0.05}
	return m
}

// Smiling widens the mouth with lips closed.
func Smiling() face.Mesh {
	m := Neutral()
	m[face.MouthLeft].X = 0.41
	m[face.MouthRight].X = 0.59
	return m
}

// Laughing widens and opens the mouth.
func Laughing() face.Mesh {
	m := Smiling()
	m[face.MouthTop].Y = 0.57
	m[face.MouthBottom].Y = 0.63
	return m
}

// Surprised spreads the inner brows apart.
func Surprised() face.Mesh {
	m := Neutral()
	m[face.LeftBrowInner].X = 0.45
	m[face.RightBrowInner].X = 0.55
	return m
}

// ToPixels scales a unit-normalized mesh to a width x height image.
func ToPixels(m face.Mesh, width, height float64) face.Mesh {
	return m.Map(func(p face.Landmark) face.Landmark {
		return face.Landmark{X: p.X * width, Y: p.Y * height, Z: p.Z}
	})
}

// JPEG returns a solid grey JPEG of the given size.
func JPEG(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 128, G: 128, B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
