// Package cloudvision implements an Estimator on top of Google Cloud
// Vision face detection.
//
// Cloud Vision returns a sparse set of named facial landmarks rather than a
// dense mesh. Each named point is placed in the mesh slot the expression
// pipeline reads for the same anatomical feature; every other slot repeats
// the point between the eyes so the mesh keeps its fixed size. Depth is
// divided by the frame width to match normalized mesh scale.
package cloudvision

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"

	"github.com/teslashibe/go-emote/pkg/estimator"
	"github.com/teslashibe/go-emote/pkg/face"
	"github.com/teslashibe/go-emote/pkg/preprocess"
)

const backend = "cloudvision"

// Scope is the OAuth scope needed for image annotation.
const Scope = vision.CloudVisionScope

// Config configures the estimator.
type Config struct {
	// CredentialsJSON is a service account key. Application default
	// credentials are used when empty.
	CredentialsJSON []byte

	JPEGQuality int
	Options     estimator.Options

	// ClientOptions are passed through to the Vision client. Tests use
	// them to point at a local server.
	ClientOptions []option.ClientOption

	Logger *slog.Logger
}

// DefaultConfig returns defaults.
func DefaultConfig() Config {
	return Config{
		JPEGQuality: 85,
		Options:     estimator.Options{MaxFaces: 1},
		Logger:      slog.Default(),
	}
}

// Estimator sends frames to Cloud Vision.
type Estimator struct {
	cfg    Config
	svc    *vision.Service
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// New builds the Vision client.
func New(ctx context.Context, cfg Config) (*Estimator, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.JPEGQuality == 0 {
		cfg.JPEGQuality = 85
	}

	opts := append([]option.ClientOption{}, cfg.ClientOptions...)
	if len(cfg.CredentialsJSON) > 0 {
		creds, err := google.CredentialsFromJSON(ctx, cfg.CredentialsJSON, Scope)
		if err != nil {
			return nil, fmt.Errorf("cloudvision: parse credentials: %w", err)
		}
		opts = append(opts, option.WithCredentials(creds))
	}

	svc, err := vision.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("cloudvision: create service: %w", err)
	}
	return &Estimator{
		cfg:    cfg,
		svc:    svc,
		logger: cfg.Logger.With("component", "estimator.cloudvision"),
	}, nil
}

// Ready reports whether the client is usable.
func (e *Estimator) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.svc != nil && !e.closed
}

// Estimate annotates f and maps every detected face onto a mesh.
func (e *Estimator) Estimate(ctx context.Context, f *preprocess.Frame) ([]face.LandmarkSet, error) {
	if !e.Ready() {
		return nil, estimator.ErrNotReady
	}

	jpg, err := f.EncodeJPEG(e.cfg.JPEGQuality)
	if err != nil {
		return nil, estimator.Wrap(backend, fmt.Errorf("encode frame: %w", err))
	}

	maxFaces := e.cfg.Options.MaxFaces
	if maxFaces <= 0 {
		maxFaces = 1
	}
	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image:    &vision.Image{Content: base64.StdEncoding.EncodeToString(jpg)},
			Features: []*vision.Feature{{Type: "FACE_DETECTION", MaxResults: int64(maxFaces)}},
		}},
	}

	resp, err := e.svc.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		return nil, estimator.Wrap(backend, err)
	}
	if len(resp.Responses) == 0 {
		return []face.LandmarkSet{}, nil
	}
	r := resp.Responses[0]
	if r.Error != nil && r.Error.Code != 0 {
		return nil, &estimator.EstimationError{
			Backend: backend,
			Err:     fmt.Errorf("annotate: code %d: %s", r.Error.Code, r.Error.Message),
		}
	}

	sets := make([]face.LandmarkSet, 0, len(r.FaceAnnotations))
	for _, fa := range r.FaceAnnotations {
		mesh, err := toMesh(fa, float64(f.Width()))
		if err != nil {
			e.logger.Debug("skipping face", "error", err)
			continue
		}
		sets = append(sets, face.LandmarkSet{
			Points: mesh,
			Box:    boxOf(fa.FdBoundingPoly),
			Score:  fa.DetectionConfidence,
		})
	}
	return sets, nil
}

// WithOptions returns a copy of e using opts.
func (e *Estimator) WithOptions(opts estimator.Options) estimator.Estimator {
	cfg := e.cfg
	cfg.Options = opts
	return &Estimator{cfg: cfg, svc: e.svc, logger: e.logger}
}

// Close marks the estimator unusable.
func (e *Estimator) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

var (
	_ estimator.Estimator    = (*Estimator)(nil)
	_ estimator.Configurable = (*Estimator)(nil)
)
