package webrtc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// minChunk is the smallest H264 chunk worth handing to ffmpeg.
const minChunk = 100

// Decoder turns a chunk of Annex-B H264 into one JPEG.
type Decoder interface {
	Decode(ctx context.Context, h264 []byte) ([]byte, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(ctx context.Context, h264 []byte) ([]byte, error)

// Decode calls f.
func (f DecoderFunc) Decode(ctx context.Context, h264 []byte) ([]byte, error) {
	return f(ctx, h264)
}

// FFmpeg decodes by piping each chunk through a short-lived ffmpeg process.
type FFmpeg struct {
	Path    string
	Timeout time.Duration

	// Quality is the mjpeg q:v value, 1 (best) to 31.
	Quality int
}

// NewFFmpeg returns a decoder using ffmpeg from PATH.
func NewFFmpeg() *FFmpeg {
	return &FFmpeg{Path: "ffmpeg", Timeout: 200 * time.Millisecond, Quality: 3}
}

// Decode returns the first frame of h264 as JPEG. Chunks without a complete
// frame yield (nil, nil).
func (d *FFmpeg) Decode(ctx context.Context, h264 []byte) ([]byte, error) {
	if len(h264) < minChunk {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.Path,
		"-loglevel", "error",
		"-f", "h264",
		"-i", "pipe:0",
		"-vframes", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", fmt.Sprint(d.Quality),
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(h264)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("webrtc: ffmpeg: %w", err)
		}
		if ctx.Err() != nil {
			return nil, nil
		}
		if stdout.Len() == 0 {
			// Not enough data for a frame yet.
			return nil, nil
		}
	}
	return stdout.Bytes(), nil
}
