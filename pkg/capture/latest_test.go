package capture

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLatest_WaitsForFirstFrame(t *testing.T) {
	l := NewLatest(0)

	got := make(chan Image, 1)
	go func() {
		img, err := l.Capture(context.Background())
		if err != nil {
			t.Errorf("Capture failed: %v", err)
		}
		got <- img
	}()

	time.Sleep(10 * time.Millisecond)
	l.Put(Image{Data: []byte("frame-1"), Width: 4, Height: 3})

	select {
	case img := <-got:
		if string(img.Data) != "frame-1" || img.Width != 4 {
			t.Errorf("got %+v", img)
		}
		if img.CapturedAt.IsZero() {
			t.Error("Put should stamp CapturedAt")
		}
	case <-time.After(time.Second):
		t.Fatal("Capture did not wake up")
	}
}

func TestLatest_ReturnsNewestCopy(t *testing.T) {
	l := NewLatest(0)
	l.Put(Image{Data: []byte("old")})
	l.Put(Image{Data: []byte("new")})

	img, err := l.Capture(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if string(img.Data) != "new" {
		t.Errorf("got %q, want new", img.Data)
	}
	img.Data[0] = 'X'
	again, _ := l.Capture(context.Background())
	if string(again.Data) != "new" {
		t.Error("Capture must return a copy")
	}
}

func TestLatest_StaleFrame(t *testing.T) {
	now := time.Unix(1000, 0)
	l := NewLatest(time.Second)
	l.now = func() time.Time { return now }

	l.Put(Image{Data: []byte("a"), CapturedAt: now.Add(-2 * time.Second)})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Capture(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("stale frame should not be returned, got %v", err)
	}
}

func TestLatest_Close(t *testing.T) {
	l := NewLatest(0)
	done := make(chan error, 1)
	go func() {
		_, err := l.Capture(context.Background())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	l.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not wake Capture")
	}

	l.Put(Image{Data: []byte("late")})
	if _, ok := l.Peek(); ok {
		t.Error("Put after Close should be ignored")
	}
}
