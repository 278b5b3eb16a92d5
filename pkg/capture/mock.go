package capture

import (
	"context"
	"sync/atomic"
)

// Mock implements Source for testing.
type Mock struct {
	// CaptureFunc is called when Capture is invoked.
	CaptureFunc func(ctx context.Context) (Image, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	captures atomic.Int64
}

// NewMock returns a mock that always hands out data.
func NewMock(data []byte) *Mock {
	return &Mock{
		CaptureFunc: func(ctx context.Context) (Image, error) {
			return Image{Data: data}, nil
		},
	}
}

// Capture calls CaptureFunc.
func (m *Mock) Capture(ctx context.Context) (Image, error) {
	m.captures.Add(1)
	if m.CaptureFunc != nil {
		return m.CaptureFunc(ctx)
	}
	return Image{}, ErrNoFrame
}

// Close calls CloseFunc.
func (m *Mock) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Captures returns how many times Capture was called.
func (m *Mock) Captures() int64 {
	return m.captures.Load()
}

var _ Source = (*Mock)(nil)
