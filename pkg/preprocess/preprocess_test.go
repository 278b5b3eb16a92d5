package preprocess

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"testing"
)

func createSolidJPEG(w, h int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

func TestDecode_Malformed(t *testing.T) {
	for _, data := range [][]byte{nil, {}, []byte("not a jpeg")} {
		_, err := Decode(data, 224)
		if err == nil {
			t.Fatalf("expected error for %q", data)
		}
		if !errors.Is(err, ErrDecode) {
			t.Errorf("expected ErrDecode, got %v", err)
		}
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Errorf("expected *DecodeError, got %T", err)
		}
	}
}

func TestDecode_Downscale(t *testing.T) {
	tests := []struct {
		name          string
		w, h, maxSide int
		wantW, wantH  int
		wantScale     float64
	}{
		{"landscape", 640, 480, 88, 88, 66, 88.0 / 640},
		{"portrait", 480, 640, 224, 168, 224, 224.0 / 640},
		{"already small", 64, 48, 224, 64, 48, 1},
		{"resize disabled", 640, 480, 0, 640, 480, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Decode(createSolidJPEG(tt.w, tt.h, color.RGBA{200, 100, 50, 255}), tt.maxSide)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if f.Width() != tt.wantW || f.Height() != tt.wantH {
				t.Errorf("size = %dx%d, want %dx%d", f.Width(), f.Height(), tt.wantW, tt.wantH)
			}
			if math.Abs(f.Scale-tt.wantScale) > 1e-12 {
				t.Errorf("scale = %v, want %v", f.Scale, tt.wantScale)
			}
			if f.OriginalWidth != tt.w || f.OriginalHeight != tt.h {
				t.Errorf("original = %dx%d, want %dx%d", f.OriginalWidth, f.OriginalHeight, tt.w, tt.h)
			}
		})
	}
}

func TestDecode_StripsAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}

	f, err := Decode(buf.Bytes(), 0)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	for i := 3; i < len(f.Image.Pix); i += 4 {
		if f.Image.Pix[i] != 0xff {
			t.Fatalf("pixel %d alpha = %d, want 255", i/4, f.Image.Pix[i])
		}
	}
}

func TestFrame_ToOriginal(t *testing.T) {
	f, err := Decode(createSolidJPEG(640, 480, color.White), 160)
	if err != nil {
		t.Fatal(err)
	}
	x, y := f.ToOriginal(80, 60)
	if math.Abs(x-320) > 1e-9 || math.Abs(y-240) > 1e-9 {
		t.Errorf("ToOriginal(80,60) = (%v,%v), want (320,240)", x, y)
	}

	small, _ := Decode(createSolidJPEG(32, 32, color.White), 160)
	x, y = small.ToOriginal(5, 7)
	if x != 5 || y != 7 {
		t.Errorf("unscaled frame should map identically, got (%v,%v)", x, y)
	}
}

func TestFrame_Tensor(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{10, 20, 30, 255})
	img.Set(1, 0, color.RGBA{40, 50, 60, 255})
	f := FromImage(img, 0)

	got := f.Tensor()
	want := []float32{10, 20, 30, 40, 50, 60}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tensor[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
