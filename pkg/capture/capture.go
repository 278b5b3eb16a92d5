// Package capture defines image sources for the expression pipeline.
//
// A Source hands out one encoded still per Capture call. Implementations:
//
//   - Latest: a single-slot buffer fed by push producers (device ingest,
//     WebRTC decoder)
//   - webcam: local camera through OpenCV
//   - webrtc: remote camera over WebRTC with ffmpeg decoding
//   - Mock: test double
package capture

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoFrame is returned when a source has nothing to hand out.
	ErrNoFrame = errors.New("capture: no frame available")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("capture: source closed")
)

// Image is one encoded still (JPEG or PNG).
type Image struct {
	Data []byte

	// Width and Height are zero when the producer did not report them.
	Width  int
	Height int

	CapturedAt time.Time
}

// Source produces stills on demand.
type Source interface {
	// Capture returns the next still. It blocks until one is available
	// or ctx is done.
	Capture(ctx context.Context) (Image, error)

	// Close releases the device.
	Close() error
}
