package expression

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/teslashibe/go-emote/pkg/face"
)

func TestDetector_Laughing(t *testing.T) {
	d := NewDetector()

	a, err := d.Process(laughingMesh(), 640, 480)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if a.Result.Label != Laughing {
		t.Fatalf("Label = %s, want Laughing", a.Result.Label)
	}
	if diff := cmp.Diff(Emotions{Happy: 1, Surprise: 0.2}, a.Result.Emotions); diff != "" {
		t.Errorf("emotions mismatch (-want +got):\n%s", diff)
	}
	if a.Result.DominantEmotion != "Happy" || a.Result.DominantScore != 1 {
		t.Errorf("dominant = %s/%v, want Happy/1", a.Result.DominantEmotion, a.Result.DominantScore)
	}
	if !a.Result.Debug.TeethVisible {
		t.Error("expected teeth visible")
	}
	if a.FromCache {
		t.Error("fresh clear frame should not come from cache")
	}
	if a.Clarity.Score != 100 {
		t.Errorf("clarity = %d, want 100", a.Clarity.Score)
	}
}

func TestDetector_UnclearFrameReturnsLastStable(t *testing.T) {
	d := NewDetector()

	first, err := d.Process(smilingMesh(), 640, 480)
	if err != nil {
		t.Fatal(err)
	}
	if first.Result.Label != Smiling {
		t.Fatalf("Label = %s, want Smiling", first.Result.Label)
	}

	// Neutral geometry, but too unclear to trust.
	second, err := d.Process(buildMesh(blurry), 640, 480)
	if err != nil {
		t.Fatal(err)
	}
	if second.Clarity.Score >= StableClarity {
		t.Fatalf("test mesh clarity = %d, want < %d", second.Clarity.Score, StableClarity)
	}
	if !second.FromCache || second.Result.Label != Smiling {
		t.Errorf("got %s (cache=%v), want cached Smiling", second.Result.Label, second.FromCache)
	}

	// Smoothing still advanced on the unclear frame.
	if !d.smoothing.Seeded() {
		t.Error("smoothing should be seeded")
	}

	stable, ok := d.LastStable()
	if !ok || stable.Label != Smiling {
		t.Errorf("LastStable = %s/%v, want Smiling", stable.Label, ok)
	}
}

func TestDetector_UnclearWithoutCacheReturnsFresh(t *testing.T) {
	d := NewDetector()

	a, err := d.Process(buildMesh(blurry), 640, 480)
	if err != nil {
		t.Fatal(err)
	}
	if a.FromCache {
		t.Error("nothing cached yet")
	}
	if a.Result.Label != Neutral {
		t.Errorf("Label = %s, want Neutral", a.Result.Label)
	}
	if _, ok := d.LastStable(); ok {
		t.Error("unclear frame must not become the stable result")
	}
}

func TestDetector_ClearFrameReplacesCache(t *testing.T) {
	d := NewDetector()
	for _, m := range []face.Mesh{smilingMesh(), neutralMesh(), neutralMesh(), neutralMesh(), neutralMesh(), neutralMesh()} {
		if _, err := d.Process(m, 640, 480); err != nil {
			t.Fatal(err)
		}
	}
	stable, _ := d.LastStable()
	if stable.Label != Neutral {
		t.Errorf("LastStable = %s, want Neutral once smoothing catches up", stable.Label)
	}
}

func TestDetector_CalibrationLocks(t *testing.T) {
	d := NewDetector()
	var locked int
	for i := 0; i < CalibrationFrames; i++ {
		a, err := d.Process(neutralMesh(), 640, 480)
		if err != nil {
			t.Fatal(err)
		}
		if a.CalibrationLocked {
			locked = i + 1
		}
	}
	if locked != CalibrationFrames {
		t.Fatalf("locked on frame %d, want %d", locked, CalibrationFrames)
	}

	c := d.Calibration()
	if c.IsCalibrating || c.Baseline == nil {
		t.Fatal("expected locked baseline")
	}
	if !approx(c.Baseline.MouthWidth, 0.5) {
		t.Errorf("baseline MouthWidth = %v, want 0.5", c.Baseline.MouthWidth)
	}

	d.Reset()
	if !d.Calibration().IsCalibrating {
		t.Error("Reset should restart calibration")
	}
}

func TestDetector_InvalidMeshLeavesStateUntouched(t *testing.T) {
	d := NewDetector()
	_, err := d.Process(make(face.Mesh, 10), 640, 480)
	if !errors.Is(err, face.ErrInvalidMesh) {
		t.Fatalf("expected ErrInvalidMesh, got %v", err)
	}
	if d.smoothing.Seeded() {
		t.Error("invalid mesh should not seed smoothing")
	}
	if d.Calibration().FramesCollected != 0 {
		t.Error("invalid mesh should not count toward calibration")
	}
}
