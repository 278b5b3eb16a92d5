package session

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInFlight is returned by TryCapture while another attempt runs.
	ErrInFlight = errors.New("session: attempt already in flight")

	// ErrStale is returned when an attempt was superseded or overtaken.
	ErrStale = errors.New("session: attempt is stale")

	// ErrNoFace is the outcome when no face was found. It clears the current
	// label but keeps the last stable result.
	ErrNoFace = errors.New("session: no face detected")

	// ErrModelNotReady is returned by Run when the estimator never became
	// ready. It is terminal.
	ErrModelNotReady = errors.New("session: landmark model not ready")

	// ErrNoSource is returned by TryCapture on push-only sessions.
	ErrNoSource = errors.New("session: no image source")

	// ErrDuplicateSession is returned when a manager already has the ID.
	ErrDuplicateSession = errors.New("session: duplicate session id")

	// ErrUnknownSession is returned for IDs the manager does not hold.
	ErrUnknownSession = errors.New("session: unknown session")
)

// TimeoutError is returned when a stage exceeds its watchdog.
type TimeoutError struct {
	Stage string
	After time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("session: %s timed out after %s", e.Stage, e.After)
}

// Is matches context.DeadlineExceeded.
func (e *TimeoutError) Is(target error) bool {
	return target == context.DeadlineExceeded
}

// FrameSizeError is returned by ProcessLandmarks when the frame size the
// mesh was normalized against is missing or not positive. Pixel-space
// features cannot be computed without it.
type FrameSizeError struct {
	Width  float64
	Height float64
}

// Error implements the error interface.
func (e *FrameSizeError) Error() string {
	return fmt.Sprintf("session: invalid frame size %gx%g", e.Width, e.Height)
}
