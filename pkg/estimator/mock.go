package estimator

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-emote/pkg/face"
	"github.com/teslashibe/go-emote/pkg/preprocess"
)

// Mock implements Estimator for testing.
type Mock struct {
	// ReadyFunc is called when Ready is invoked. Nil means ready.
	ReadyFunc func() bool

	// EstimateFunc is called when Estimate is invoked.
	EstimateFunc func(ctx context.Context, f *preprocess.Frame) ([]face.LandmarkSet, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu    sync.Mutex
	calls []MockCall
	opts  *Options
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Time   time.Time
}

// NewMock returns a ready mock that finds no faces.
func NewMock() *Mock {
	return &Mock{
		EstimateFunc: func(ctx context.Context, f *preprocess.Frame) ([]face.LandmarkSet, error) {
			return []face.LandmarkSet{}, nil
		},
	}
}

// WithMesh returns a mock that always reports a single face with mesh m.
func WithMesh(m face.Mesh) *Mock {
	mock := NewMock()
	mock.EstimateFunc = func(ctx context.Context, f *preprocess.Frame) ([]face.LandmarkSet, error) {
		return []face.LandmarkSet{{Points: m, Score: 1}}, nil
	}
	return mock
}

// WithError returns a mock whose Estimate always fails with err.
func WithError(err error) *Mock {
	mock := NewMock()
	mock.EstimateFunc = func(ctx context.Context, f *preprocess.Frame) ([]face.LandmarkSet, error) {
		return nil, err
	}
	return mock
}

// Ready calls ReadyFunc.
func (m *Mock) Ready() bool {
	m.record("Ready")
	if m.ReadyFunc != nil {
		return m.ReadyFunc()
	}
	return true
}

// Estimate calls EstimateFunc and records the call.
func (m *Mock) Estimate(ctx context.Context, f *preprocess.Frame) ([]face.LandmarkSet, error) {
	m.record("Estimate")
	if m.EstimateFunc != nil {
		return m.EstimateFunc(ctx, f)
	}
	return nil, Wrap("mock", ErrNotReady)
}

// Close calls CloseFunc and records the call.
func (m *Mock) Close() error {
	m.record("Close")
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// WithOptions records opts and returns the same mock.
func (m *Mock) WithOptions(opts Options) Estimator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts = &opts
	return m
}

// Options returns the last options applied, or nil.
func (m *Mock) Options() *Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts
}

func (m *Mock) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Time: time.Now()})
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

var (
	_ Estimator    = (*Mock)(nil)
	_ Configurable = (*Mock)(nil)
)
