// Package throttle suppresses repeated expression events for a subject.
package throttle

import (
	"sync"
	"time"

	"github.com/teslashibe/go-emote/internal/clock"
	"github.com/teslashibe/go-emote/pkg/emitter"
)

// DefaultWindow is how long an unchanged label is held back.
const DefaultWindow = time.Second

// Throttle decides whether a label is worth emitting. A label is suppressed
// when it equals the last emitted label and less than the window has passed
// since that emission. A different label always emits.
type Throttle struct {
	subjectID string
	window    time.Duration
	clock     clock.Clock

	mu         sync.Mutex
	lastLabel  string
	lastAt     time.Time
	emitted    uint64
	suppressed uint64
}

// Option configures a Throttle.
type Option func(*Throttle)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(t *Throttle) { t.clock = c }
}

// WithWindow overrides DefaultWindow.
func WithWindow(d time.Duration) Option {
	return func(t *Throttle) {
		if d > 0 {
			t.window = d
		}
	}
}

// New returns a throttle for subjectID.
func New(subjectID string, opts ...Option) *Throttle {
	t := &Throttle{
		subjectID: subjectID,
		window:    DefaultWindow,
		clock:     clock.Real{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// MaybeEmit returns the payload to send and true, or false when the label is
// suppressed. Targets are left for the caller to set.
func (t *Throttle) MaybeEmit(label string, clarity int) (emitter.Payload, bool) {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if label == t.lastLabel && !t.lastAt.IsZero() && now.Sub(t.lastAt) < t.window {
		t.suppressed++
		return emitter.Payload{}, false
	}
	t.lastLabel = label
	t.lastAt = now
	t.emitted++
	return emitter.NewPayload(t.subjectID, label, clarity, now), true
}

// Last returns the last emitted label and when it was emitted.
func (t *Throttle) Last() (string, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastLabel, t.lastAt
}

// Counts returns how many labels were emitted and suppressed.
func (t *Throttle) Counts() (emitted, suppressed uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.emitted, t.suppressed
}

// Reset forgets the last emission.
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastLabel = ""
	t.lastAt = time.Time{}
}
