package capture

import (
	"context"
	"sync"
	"time"
)

// Latest is a single-slot frame buffer. Producers Put frames as they
// arrive; Capture returns the newest one. Older frames are overwritten.
type Latest struct {
	maxAge time.Duration
	now    func() time.Time

	mu     sync.Mutex
	img    Image
	has    bool
	closed bool
	notify chan struct{}
}

// NewLatest creates an empty buffer. Frames older than maxAge are not
// handed out; zero disables the age check.
func NewLatest(maxAge time.Duration) *Latest {
	return &Latest{
		maxAge: maxAge,
		now:    time.Now,
		notify: make(chan struct{}),
	}
}

// Put stores a frame, replacing the previous one. It is a no-op after
// Close.
func (l *Latest) Put(img Image) {
	if img.CapturedAt.IsZero() {
		img.CapturedAt = l.now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.img = img
	l.has = true
	close(l.notify)
	l.notify = make(chan struct{})
}

// Capture returns a copy of the newest fresh frame, waiting for one if the
// buffer is empty or stale.
func (l *Latest) Capture(ctx context.Context) (Image, error) {
	for {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return Image{}, ErrClosed
		}
		if l.has && (l.maxAge <= 0 || l.now().Sub(l.img.CapturedAt) <= l.maxAge) {
			img := l.img
			img.Data = append([]byte(nil), l.img.Data...)
			l.mu.Unlock()
			return img, nil
		}
		wait := l.notify
		l.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return Image{}, ctx.Err()
		}
	}
}

// Peek returns the newest frame without waiting or checking its age.
func (l *Latest) Peek() (Image, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.img, l.has
}

// Close wakes any waiting Capture calls with ErrClosed.
func (l *Latest) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.notify)
	}
	return nil
}

var _ Source = (*Latest)(nil)
