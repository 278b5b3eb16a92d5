package throttle

import (
	"testing"
	"time"

	"github.com/teslashibe/go-emote/internal/clock"
)

func TestMaybeEmit(t *testing.T) {
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		second string
		after  time.Duration
		want   bool
	}{
		{"same label inside window", "Smiling", 900 * time.Millisecond, false},
		{"same label after window", "Smiling", 1100 * time.Millisecond, true},
		{"same label exactly at window", "Smiling", time.Second, true},
		{"different label immediately", "Laughing", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := clock.NewMock(start)
			th := New("user-1", WithClock(c))

			p, ok := th.MaybeEmit("Smiling", 80)
			if !ok {
				t.Fatal("first label must emit")
			}
			if p.SubjectID != "user-1" || p.Quality != 80 || !p.Timestamp.Equal(start) {
				t.Errorf("unexpected first payload %+v", p)
			}

			c.Advance(tt.after)
			if _, ok := th.MaybeEmit(tt.second, 70); ok != tt.want {
				t.Errorf("MaybeEmit(%q) after %v = %v, want %v", tt.second, tt.after, ok, tt.want)
			}
		})
	}
}

func TestMaybeEmit_SuppressionDoesNotExtendWindow(t *testing.T) {
	c := clock.NewMock(time.Unix(0, 0))
	th := New("u", WithClock(c))

	th.MaybeEmit("Neutral", 90)
	c.Advance(600 * time.Millisecond)
	if _, ok := th.MaybeEmit("Neutral", 90); ok {
		t.Fatal("expected suppression at 600ms")
	}
	c.Advance(500 * time.Millisecond)
	if _, ok := th.MaybeEmit("Neutral", 90); !ok {
		t.Fatal("expected emission 1100ms after the first")
	}

	emitted, suppressed := th.Counts()
	if emitted != 2 || suppressed != 1 {
		t.Errorf("counts = %d/%d, want 2/1", emitted, suppressed)
	}
}

func TestWindowAndReset(t *testing.T) {
	c := clock.NewMock(time.Unix(0, 0))
	th := New("u", WithClock(c), WithWindow(5*time.Second))

	th.MaybeEmit("Sleepy", 60)
	c.Advance(3 * time.Second)
	if _, ok := th.MaybeEmit("Sleepy", 60); ok {
		t.Error("custom window should still suppress at 3s")
	}

	th.Reset()
	if _, ok := th.MaybeEmit("Sleepy", 60); !ok {
		t.Error("reset should allow immediate emission")
	}
	if label, _ := th.Last(); label != "Sleepy" {
		t.Errorf("Last = %q", label)
	}
}
