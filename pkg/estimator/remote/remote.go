// Package remote implements an Estimator backed by an HTTP landmark
// service.
//
// The service receives the working frame as a base64 JPEG data URL:
//
//	POST {base}/landmarks
//	{"image": "data:image/jpeg;base64,...", "session_id": "...",
//	 "max_faces": 1, "refine_landmarks": false}
//
// and answers with one entry per face:
//
//	{"faces": [{"landmarks": [[x, y, z], ...], "score": 0.98}],
//	 "normalized": false}
//
// Readiness is probed with GET {base}/health.
package remote

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/teslashibe/go-emote/internal/httpc"
	"github.com/teslashibe/go-emote/pkg/estimator"
	"github.com/teslashibe/go-emote/pkg/face"
	"github.com/teslashibe/go-emote/pkg/preprocess"
)

const backend = "remote"

// Config configures the remote estimator.
type Config struct {
	BaseURL   string
	SessionID string

	Timeout       time.Duration
	HealthTimeout time.Duration

	// HealthTTL is how long a readiness answer is cached.
	HealthTTL time.Duration

	JPEGQuality int

	// OAuth2 client credentials. Requests are unauthenticated when
	// TokenURL is empty.
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string

	Options estimator.Options
	Logger  *slog.Logger
}

// Option is a functional option for Config.
type Option func(*Config)

// WithSessionID tags requests with a session id.
func WithSessionID(id string) Option {
	return func(c *Config) { c.SessionID = id }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithClientCredentials enables OAuth2 client-credentials auth.
func WithClientCredentials(tokenURL, clientID, clientSecret string, scopes ...string) Option {
	return func(c *Config) {
		c.TokenURL = tokenURL
		c.ClientID = clientID
		c.ClientSecret = clientSecret
		c.Scopes = scopes
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns defaults for a service on localhost.
func DefaultConfig() Config {
	return Config{
		BaseURL:       "http://localhost:5000",
		Timeout:       8 * time.Second,
		HealthTimeout: 2 * time.Second,
		HealthTTL:     5 * time.Second,
		JPEGQuality:   85,
		Options:       estimator.Options{MaxFaces: 1},
		Logger:        slog.Default(),
	}
}

// Estimator calls a remote landmark service.
type Estimator struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger

	mu        sync.Mutex
	ready     bool
	checkedAt time.Time
	closed    bool
}

// New creates a remote estimator. BaseURL is required.
func New(baseURL string, opts ...Option) (*Estimator, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote: base URL required")
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	client := httpc.NewClient(cfg.Timeout)
	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
		client = cc.Client(ctx)
		client.Timeout = cfg.Timeout
	}

	return &Estimator{
		cfg:    cfg,
		http:   client,
		logger: cfg.Logger.With("component", "estimator.remote"),
	}, nil
}

// Ready probes the health endpoint, caching the answer for HealthTTL.
func (e *Estimator) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false
	}
	if !e.checkedAt.IsZero() && time.Since(e.checkedAt) < e.cfg.HealthTTL {
		return e.ready
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.HealthTimeout)
	defer cancel()
	err := httpc.GetJSON(ctx, e.http, e.cfg.BaseURL+"/health", nil)
	e.ready = err == nil
	e.checkedAt = time.Now()
	if err != nil {
		e.logger.Debug("health check failed", "error", err)
	}
	return e.ready
}

type landmarksRequest struct {
	Image           string `json:"image"`
	SessionID       string `json:"session_id,omitempty"`
	MaxFaces        int    `json:"max_faces"`
	RefineLandmarks bool   `json:"refine_landmarks"`
}

type landmarksResponse struct {
	Faces []struct {
		Landmarks [][]float64 `json:"landmarks"`
		Score     float64     `json:"score"`
		Box       *face.Box   `json:"box,omitempty"`
	} `json:"faces"`
	Normalized bool   `json:"normalized"`
	Error      string `json:"error,omitempty"`
}

// Estimate sends f to the service.
func (e *Estimator) Estimate(ctx context.Context, f *preprocess.Frame) ([]face.LandmarkSet, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, estimator.ErrClosed
	}

	jpg, err := f.EncodeJPEG(e.cfg.JPEGQuality)
	if err != nil {
		return nil, estimator.Wrap(backend, fmt.Errorf("encode frame: %w", err))
	}

	maxFaces := e.cfg.Options.MaxFaces
	if maxFaces <= 0 {
		maxFaces = 1
	}
	req := landmarksRequest{
		Image:           "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpg),
		SessionID:       e.cfg.SessionID,
		MaxFaces:        maxFaces,
		RefineLandmarks: e.cfg.Options.RefineLandmarks,
	}

	var resp landmarksResponse
	if err := httpc.PostJSON(ctx, e.http, e.cfg.BaseURL+"/landmarks", req, &resp); err != nil {
		var se *httpc.StatusError
		if errors.As(err, &se) {
			return nil, &estimator.EstimationError{Backend: backend, StatusCode: se.StatusCode, Err: err}
		}
		return nil, estimator.Wrap(backend, err)
	}
	if resp.Error != "" {
		return nil, estimator.Wrap(backend, fmt.Errorf("service: %s", resp.Error))
	}

	w, h := float64(f.Width()), float64(f.Height())
	sets := make([]face.LandmarkSet, 0, len(resp.Faces))
	for i, rf := range resp.Faces {
		mesh := make(face.Mesh, len(rf.Landmarks))
		for j, p := range rf.Landmarks {
			if len(p) < 2 {
				return nil, estimator.Wrap(backend, fmt.Errorf("face %d point %d: want [x,y,z], got %d values", i, j, len(p)))
			}
			lm := face.Landmark{X: p[0], Y: p[1]}
			if len(p) > 2 {
				lm.Z = p[2]
			}
			if resp.Normalized {
				lm.X *= w
				lm.Y *= h
			}
			mesh[j] = lm
		}
		sets = append(sets, face.LandmarkSet{Points: mesh, Box: rf.Box, Score: rf.Score})
	}
	return sets, nil
}

// WithOptions returns a copy of e that requests with opts.
func (e *Estimator) WithOptions(opts estimator.Options) estimator.Estimator {
	cfg := e.cfg
	cfg.Options = opts
	return &Estimator{cfg: cfg, http: e.http, logger: e.logger}
}

// Close releases idle connections.
func (e *Estimator) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.http.CloseIdleConnections()
	return nil
}

var (
	_ estimator.Estimator    = (*Estimator)(nil)
	_ estimator.Configurable = (*Estimator)(nil)
)
