// Package estimator defines the contract for face landmark models and
// provides a fallback chain and a test mock.
//
// An Estimator turns a preprocessed frame into zero or more 468-point
// landmark sets in the frame's working pixel space. Finding no face is not
// an error: Estimate returns an empty slice. Implementations:
//
//   - remote: HTTP JSON landmark service
//   - cloudvision: Google Cloud Vision face detection mapped onto mesh slots
//   - Chain: tries estimators in order
//   - Mock: test double
package estimator

import (
	"context"

	"github.com/teslashibe/go-emote/pkg/face"
	"github.com/teslashibe/go-emote/pkg/preprocess"
)

// Estimator produces face landmarks for a frame.
type Estimator interface {
	// Ready reports whether the model is loaded and able to serve.
	Ready() bool

	// Estimate returns the faces found in f, in working pixel space.
	Estimate(ctx context.Context, f *preprocess.Frame) ([]face.LandmarkSet, error)

	// Close releases model resources.
	Close() error
}

// Options tune a single estimation.
type Options struct {
	// MaxFaces caps the number of faces returned. Zero means one.
	MaxFaces int

	// RefineLandmarks asks for the refined iris/lip topology when the
	// model supports it.
	RefineLandmarks bool
}

// Configurable is implemented by estimators that accept per-session
// options.
type Configurable interface {
	WithOptions(Options) Estimator
}

// Configure applies opts to e when it supports them and returns e
// unchanged otherwise.
func Configure(e Estimator, opts Options) Estimator {
	if c, ok := e.(Configurable); ok {
		return c.WithOptions(opts)
	}
	return e
}
