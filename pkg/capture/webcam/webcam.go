// Package webcam captures stills from a local camera through OpenCV.
package webcam

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-emote/pkg/capture"
)

// Config configures the camera.
type Config struct {
	// Device is a camera index ("0") or a stream URL.
	Device string

	Width  int
	Height int

	JPEGQuality int
	Logger      *slog.Logger
}

// DefaultConfig returns settings for the first local camera.
func DefaultConfig() Config {
	return Config{
		Device:      "0",
		Width:       640,
		Height:      480,
		JPEGQuality: 85,
		Logger:      slog.Default(),
	}
}

// Camera is a capture.Source backed by gocv.VideoCapture.
type Camera struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	vc     *gocv.VideoCapture
	frame  gocv.Mat
	closed bool
}

// Open opens the device.
func Open(cfg Config) (*Camera, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.JPEGQuality == 0 {
		cfg.JPEGQuality = 85
	}

	vc, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("webcam: open %s: %w", cfg.Device, err)
	}
	if cfg.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}

	logger := cfg.Logger.With("component", "capture.webcam", "device", cfg.Device)
	logger.Info("camera opened",
		"width", vc.Get(gocv.VideoCaptureFrameWidth),
		"height", vc.Get(gocv.VideoCaptureFrameHeight),
	)

	return &Camera{
		cfg:    cfg,
		logger: logger,
		vc:     vc,
		frame:  gocv.NewMat(),
	}, nil
}

// Capture reads one frame and encodes it as JPEG. The read itself cannot
// be interrupted; ctx is checked before it starts.
func (c *Camera) Capture(ctx context.Context) (capture.Image, error) {
	if err := ctx.Err(); err != nil {
		return capture.Image{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return capture.Image{}, capture.ErrClosed
	}

	if ok := c.vc.Read(&c.frame); !ok || c.frame.Empty() {
		return capture.Image{}, capture.ErrNoFrame
	}
	at := time.Now()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, c.frame, []int{gocv.IMWriteJpegQuality, c.cfg.JPEGQuality})
	if err != nil {
		return capture.Image{}, fmt.Errorf("webcam: encode: %w", err)
	}
	defer buf.Close()

	return capture.Image{
		Data:       append([]byte(nil), buf.GetBytes()...),
		Width:      c.frame.Cols(),
		Height:     c.frame.Rows(),
		CapturedAt: at,
	}, nil
}

// Close releases the device.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.frame.Close()
	return c.vc.Close()
}

var _ capture.Source = (*Camera)(nil)
