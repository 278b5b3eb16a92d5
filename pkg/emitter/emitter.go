// Package emitter delivers expression change events to messaging channels.
package emitter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventEmotionChange is the event name for label changes.
const EventEmotionChange = "emotion_change"

// DefaultConfidence is sent with every payload until the classifier reports
// a real confidence.
const DefaultConfidence = 0.8

// Payload is the body of an emotion_change event. Exactly one of FriendIDs
// and Broadcast is set.
type Payload struct {
	EventID   string `json:"eventId"`
	SubjectID string `json:"profileId"`

	// Emotion is "<emoji> <Label>".
	Emotion string `json:"emotion"`
	Label   string `json:"emotionText"`
	Emoji   string `json:"emoji"`

	Confidence float64 `json:"confidence"`
	Quality    int     `json:"quality"`

	FriendIDs []string `json:"friendIds,omitempty"`
	Broadcast bool     `json:"broadcast,omitempty"`

	Timestamp time.Time `json:"ts"`
}

// NewPayload builds a payload for label with no targets set.
func NewPayload(subjectID, label string, quality int, at time.Time) Payload {
	emoji := Emoji(label)
	return Payload{
		EventID:    uuid.NewString(),
		SubjectID:  subjectID,
		Emotion:    strings.TrimSpace(emoji + " " + label),
		Label:      label,
		Emoji:      emoji,
		Confidence: DefaultConfidence,
		Quality:    quality,
		Timestamp:  at,
	}
}

// WithTargets addresses p to friendIDs, or to everyone when the list is
// empty.
func (p Payload) WithTargets(friendIDs []string) Payload {
	if len(friendIDs) > 0 {
		p.FriendIDs = append([]string(nil), friendIDs...)
		p.Broadcast = false
		return p
	}
	p.FriendIDs = nil
	p.Broadcast = true
	return p
}

// Channel is a messaging transport.
type Channel interface {
	Emit(ctx context.Context, event string, p Payload) error
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func(ctx context.Context, event string, p Payload) error

// Emit calls f.
func (f ChannelFunc) Emit(ctx context.Context, event string, p Payload) error {
	return f(ctx, event, p)
}

// Multi fans an event out to several channels. Every channel is tried and
// failures are joined.
type Multi []Channel

// Emit sends to every channel.
func (m Multi) Emit(ctx context.Context, event string, p Payload) error {
	var errs []error
	for _, c := range m {
		if err := c.Emit(ctx, event, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Event is one recorded emission.
type Event struct {
	Name    string
	Payload Payload
}

// Recorder is a Channel that keeps everything it receives. Useful in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit records the event.
func (r *Recorder) Emit(ctx context.Context, event string, p Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, Event{Name: event, Payload: p})
	return nil
}

// FailWith makes subsequent Emit calls return err.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Events returns a copy of recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Labels returns the label of each recorded event in order.
func (r *Recorder) Labels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Payload.Label
	}
	return out
}

var (
	_ Channel = Multi(nil)
	_ Channel = (*Recorder)(nil)
	_ Channel = ChannelFunc(nil)
)
