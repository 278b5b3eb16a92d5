// Package preprocess turns captured image bytes into the working-resolution
// pixel buffer handed to landmark estimators.
package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register decoder
	"image/jpeg"
	_ "image/png" // register decoder
	"math"

	xdraw "golang.org/x/image/draw"
)

// ErrDecode matches every DecodeError via errors.Is.
var ErrDecode = errors.New("preprocess: malformed image")

// DecodeError reports image bytes that could not be turned into pixels.
type DecodeError struct {
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("preprocess: decode image: %v", e.Err)
}

// Unwrap returns the underlying decoder error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrDecode) match.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// Frame is an opaque RGB image at working resolution plus the information
// needed to map coordinates back to the original capture.
type Frame struct {
	// Image holds the working pixels. Alpha is always 0xff.
	Image *image.RGBA

	// Scale is the downscale factor applied (1 when no resize happened).
	Scale float64

	OriginalWidth  int
	OriginalHeight int
}

// Width is the working width in pixels.
func (f *Frame) Width() int { return f.Image.Bounds().Dx() }

// Height is the working height in pixels.
func (f *Frame) Height() int { return f.Image.Bounds().Dy() }

// Decode decodes JPEG, PNG or GIF bytes and downscales so that the longest
// side is at most targetMaxSide. targetMaxSide <= 0 disables resizing.
func Decode(data []byte, targetMaxSide int) (*Frame, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Err: errors.New("empty buffer")}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &DecodeError{Err: fmt.Errorf("empty image %dx%d", b.Dx(), b.Dy())}
	}

	return FromImage(img, targetMaxSide), nil
}

// FromImage builds a Frame from an already decoded image.
func FromImage(img image.Image, targetMaxSide int) *Frame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	scale := 1.0
	if targetMaxSide > 0 {
		scale = math.Min(1, float64(targetMaxSide)/float64(max(w, h)))
	}

	dstW, dstH := w, h
	if scale < 1 {
		dstW = max(1, int(math.Round(float64(w)*scale)))
		dstH = max(1, int(math.Round(float64(h)*scale)))
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	if scale < 1 {
		xdraw.BiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	} else {
		xdraw.Copy(dst, image.Point{}, img, b, xdraw.Src, nil)
	}
	dropAlpha(dst)

	return &Frame{
		Image:          dst,
		Scale:          scale,
		OriginalWidth:  w,
		OriginalHeight: h,
	}
}

// dropAlpha forces every pixel opaque. RGBA is premultiplied, so this is the
// same as compositing over black.
func dropAlpha(img *image.RGBA) {
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
}

// ToOriginal maps a working-space pixel coordinate into the original capture.
// The bundled estimators normalize against the working frame and do not need
// it; it is for callers that draw or crop on the original image.
func (f *Frame) ToOriginal(x, y float64) (float64, float64) {
	if f.Scale >= 1 {
		return x, y
	}
	return x * float64(f.OriginalWidth) / float64(f.Width()),
		y * float64(f.OriginalHeight) / float64(f.Height())
}

// Tensor returns the frame as a height x width x 3 float32 buffer in RGB
// order with values in [0,255]. It is the input for an in-process landmark
// model; the bundled estimators send EncodeJPEG output instead.
func (f *Frame) Tensor() []float32 {
	w, h := f.Width(), f.Height()
	out := make([]float32, 0, w*h*3)
	for y := 0; y < h; y++ {
		row := f.Image.Pix[y*f.Image.Stride : y*f.Image.Stride+w*4]
		for x := 0; x < w; x++ {
			out = append(out, float32(row[x*4]), float32(row[x*4+1]), float32(row[x*4+2]))
		}
	}
	return out
}

// EncodeJPEG re-encodes the working frame for estimators that only accept
// compressed input.
func (f *Frame) EncodeJPEG(quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.Image, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
