// Package session runs the capture, estimate, classify and emit loop for one
// subject.
//
// At most one attempt is in flight per session. Every accepted attempt takes
// the next sequence number; it checks that number against the session's
// current one after acquisition and again, under the session lock, before it
// touches smoothing, calibration, the stable-result cache or the throttle. An
// attempt that lost the race resolves as stale and changes nothing.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-emote/internal/clock"
	"github.com/teslashibe/go-emote/pkg/capture"
	"github.com/teslashibe/go-emote/pkg/emitter"
	"github.com/teslashibe/go-emote/pkg/estimator"
	"github.com/teslashibe/go-emote/pkg/expression"
	"github.com/teslashibe/go-emote/pkg/face"
	"github.com/teslashibe/go-emote/pkg/observe"
	"github.com/teslashibe/go-emote/pkg/preprocess"
	"github.com/teslashibe/go-emote/pkg/throttle"
)

// State is where the in-flight attempt is.
type State string

const (
	StateIdle       State = "idle"
	StateCapturing  State = "capturing"
	StateEstimating State = "estimating"
	StateProcessing State = "processing"
)

// Outcome is how an attempt ended.
type Outcome string

const (
	OutcomeSkipped Outcome = "skipped"
	OutcomeError   Outcome = "error"
	OutcomeStale   Outcome = "stale"
	OutcomeNoFace  Outcome = "no_face"
	OutcomeDone    Outcome = "done"
)

// Session is one subject's pipeline. Multiple sessions share nothing mutable.
type Session struct {
	cfg      Config
	source   capture.Source
	est      estimator.Estimator
	channel  emitter.Channel
	throttle *throttle.Throttle

	logger   *slog.Logger
	metrics  *observe.Metrics
	clock    clock.Clock
	onStatus func(Status)

	// emitMu is held from the staleness check through the emit, so emits
	// leave in the order their attempts committed. Taken before mu.
	emitMu sync.Mutex

	mu          sync.Mutex
	seq         uint64
	inFlight    bool
	inFlightSeq uint64
	startedAt   time.Time
	state       State
	detector    *expression.Detector
	current     *expression.Analysis
	stats       Stats
	skipped     int
	lastSkipLog time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithMetrics records attempt and emission metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithClock replaces the wall clock for timing and throttling.
func WithClock(c clock.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithStatusFunc is called after every attempt that changed what the
// session reports.
func WithStatusFunc(fn func(Status)) Option {
	return func(s *Session) { s.onStatus = fn }
}

// New builds a session. source may be nil for a session fed only through
// ProcessLandmarks. channel may be nil to classify without emitting.
func New(cfg Config, source capture.Source, est estimator.Estimator, channel emitter.Channel, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if est == nil && source != nil {
		return nil, fmt.Errorf("session %q: estimator is required with an image source", cfg.ID)
	}

	s := &Session{
		cfg:      cfg,
		source:   source,
		channel:  channel,
		logger:   slog.Default(),
		clock:    clock.Real{},
		state:    StateIdle,
		detector: expression.NewDetector(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if est != nil {
		s.est = estimator.Configure(est, estimator.Options{
			MaxFaces:        cfg.MaxFaces,
			RefineLandmarks: cfg.RefineLandmarks,
		})
	}
	s.logger = s.logger.With("component", "session", "session", cfg.ID)
	s.throttle = throttle.New(cfg.SubjectID, throttle.WithClock(s.clock), throttle.WithWindow(cfg.EmitWindow))
	return s, nil
}

// ID returns the session ID.
func (s *Session) ID() string { return s.cfg.ID }

// Config returns the session's configuration.
func (s *Session) Config() Config { return s.cfg }

// begin acquires the single-flight guard.
func (s *Session) begin() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight {
		s.stats.Skipped++
		s.logSkipLocked()
		return 0, false
	}
	s.seq++
	s.inFlight = true
	s.inFlightSeq = s.seq
	s.startedAt = s.clock.Now()
	s.stats.Attempts++
	return s.seq, true
}

// end releases the guard if seq still holds it.
func (s *Session) end(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight && s.inFlightSeq == seq {
		s.inFlight = false
		s.state = StateIdle
	}
}

func (s *Session) logSkipLocked() {
	s.skipped++
	now := s.clock.Now()
	if !s.lastSkipLog.IsZero() && now.Sub(s.lastSkipLog) < s.cfg.SkipLogInterval {
		return
	}
	s.logger.Debug("skip: attempt in flight",
		"in_flight_ms", now.Sub(s.startedAt).Milliseconds(),
		"skipped", s.skipped,
	)
	s.lastSkipLog = now
	s.skipped = 0
}

// setState moves the in-flight attempt's state. Returns false if the
// attempt is stale.
func (s *Session) setState(seq uint64, st State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		return false
	}
	s.state = st
	return true
}

// Supersede abandons the in-flight attempt without interrupting it. The
// guard is released so the next attempt can start at once; the abandoned
// attempt resolves as stale. Returns false when nothing was in flight.
func (s *Session) Supersede() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inFlight {
		return false
	}
	s.seq++
	s.inFlight = false
	s.state = StateIdle
	s.stats.Superseded++
	s.logger.Info("superseded in-flight attempt", "seq", s.inFlightSeq)
	return true
}

// TryCapture runs one attempt if none is in flight. The returned error
// explains every outcome other than OutcomeDone.
func (s *Session) TryCapture(ctx context.Context) (Outcome, error) {
	if s.source == nil {
		return OutcomeError, ErrNoSource
	}
	seq, ok := s.begin()
	if !ok {
		s.metrics.RecordAttempt(ctx, s.cfg.ID, string(OutcomeSkipped), 0)
		return OutcomeSkipped, ErrInFlight
	}
	start := s.clock.Now()
	defer s.end(seq)

	outcome, err := s.attempt(ctx, seq)
	s.finish(ctx, seq, outcome, err, s.clock.Since(start))
	return outcome, err
}

func (s *Session) attempt(ctx context.Context, seq uint64) (Outcome, error) {
	if !s.setState(seq, StateCapturing) {
		return OutcomeStale, ErrStale
	}
	t0 := s.clock.Now()
	img, err := withDeadline(ctx, "capture", s.cfg.CaptureTimeout, s.source.Capture)
	s.metrics.RecordStage(ctx, s.cfg.ID, "capture", s.clock.Since(t0))
	if err != nil {
		return OutcomeError, fmt.Errorf("capture: %w", err)
	}
	if !s.setState(seq, StateEstimating) {
		return OutcomeStale, ErrStale
	}

	frame, err := preprocess.Decode(img.Data, s.cfg.TargetMaxSide)
	if err != nil {
		return s.commitNoFace(seq, err)
	}

	t0 = s.clock.Now()
	sets, err := withDeadline(ctx, "estimate", s.cfg.EstimateTimeout, func(ctx context.Context) ([]face.LandmarkSet, error) {
		return s.est.Estimate(ctx, frame)
	})
	s.metrics.RecordStage(ctx, s.cfg.ID, "estimate", s.clock.Since(t0))
	if err != nil {
		return OutcomeError, fmt.Errorf("estimate: %w", err)
	}

	best := face.SelectBest(sets, s.cfg.MaxFaces)
	if best == nil {
		return s.commitNoFace(seq, ErrNoFace)
	}
	w, h := float64(frame.Width()), float64(frame.Height())
	return s.commit(ctx, seq, best.Points.Normalize(w, h), w, h)
}

// ProcessLandmarks feeds a unit-normalized mesh straight into the
// classifier, skipping capture and estimation. It takes the same guard and
// sequence number as TryCapture. A non-positive width or height is rejected
// with *FrameSizeError before the guard is taken.
func (s *Session) ProcessLandmarks(ctx context.Context, m face.Mesh, width, height float64) (Outcome, error) {
	if !(width > 0 && height > 0) {
		return OutcomeError, &FrameSizeError{Width: width, Height: height}
	}
	seq, ok := s.begin()
	if !ok {
		s.metrics.RecordAttempt(ctx, s.cfg.ID, string(OutcomeSkipped), 0)
		return OutcomeSkipped, ErrInFlight
	}
	start := s.clock.Now()
	defer s.end(seq)

	var (
		outcome Outcome
		err     error
	)
	if len(m) == 0 {
		outcome, err = s.commitNoFace(seq, ErrNoFace)
	} else {
		outcome, err = s.commit(ctx, seq, m, width, height)
	}
	s.finish(ctx, seq, outcome, err, s.clock.Since(start))
	return outcome, err
}

// commitNoFace clears the current label and keeps the stable result.
func (s *Session) commitNoFace(seq uint64, cause error) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		return OutcomeStale, ErrStale
	}
	s.current = nil
	return OutcomeNoFace, cause
}

// commit classifies m and emits if the throttle allows. The staleness check,
// every context mutation and the emit decision happen under one lock hold.
func (s *Session) commit(ctx context.Context, seq uint64, m face.Mesh, width, height float64) (Outcome, error) {
	t0 := s.clock.Now()

	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if seq != s.seq {
		s.mu.Unlock()
		return OutcomeStale, ErrStale
	}
	s.state = StateProcessing
	a, err := s.detector.Process(m, width, height)
	if err != nil {
		s.mu.Unlock()
		return OutcomeError, err
	}
	s.current = &a
	label := string(a.Result.Label)
	payload, emit := s.throttle.MaybeEmit(label, a.Clarity.Score)
	s.mu.Unlock()

	s.metrics.RecordStage(ctx, s.cfg.ID, "process", s.clock.Since(t0))
	s.metrics.RecordClarity(ctx, s.cfg.ID, a.Clarity.Score)
	if a.CalibrationLocked {
		s.metrics.RecordCalibrationLocked(ctx, s.cfg.ID)
		s.logger.Info("calibration locked")
	}

	if !emit {
		s.count(func(st *Stats) { st.Suppressed++ })
		s.metrics.RecordSuppressed(ctx, s.cfg.ID)
		return OutcomeDone, nil
	}
	if s.channel == nil {
		return OutcomeDone, nil
	}

	payload = payload.WithTargets(s.cfg.FriendIDs)
	err = s.channel.Emit(ctx, emitter.EventEmotionChange, payload)
	s.metrics.RecordEmission(ctx, s.cfg.ID, label, err)
	if err != nil {
		s.count(func(st *Stats) { st.EmitErrors++ })
		s.logger.Warn("emit failed", "label", label, "error", err)
		return OutcomeDone, nil
	}
	s.count(func(st *Stats) { st.Emitted++ })
	s.logger.Debug("emitted", "label", label, "clarity", a.Clarity.Score, "from_cache", a.FromCache)
	return OutcomeDone, nil
}

func (s *Session) count(fn func(*Stats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}

// finish records and logs the outcome.
func (s *Session) finish(ctx context.Context, seq uint64, outcome Outcome, err error, d time.Duration) {
	s.count(func(st *Stats) {
		switch outcome {
		case OutcomeDone:
			st.Done++
		case OutcomeStale:
			st.Stale++
		case OutcomeNoFace:
			st.NoFace++
		case OutcomeError:
			st.Errors++
		}
	})
	s.metrics.RecordAttempt(ctx, s.cfg.ID, string(outcome), d)

	log := s.logger.With("seq", seq, "outcome", outcome, "duration_ms", d.Milliseconds())
	var (
		decodeErr *preprocess.DecodeError
		estErr    *estimator.EstimationError
		timeout   *TimeoutError
	)
	switch {
	case outcome == OutcomeDone:
		log.Debug("attempt done")
	case outcome == OutcomeStale:
		log.Debug("attempt stale, dropped")
	case errors.As(err, &decodeErr):
		log.Warn("undecodable image", "error", err)
	case outcome == OutcomeNoFace:
		log.Debug("no face")
	case errors.As(err, &timeout):
		log.Warn("stage timed out", "stage", timeout.Stage, "after", timeout.After)
	case errors.Is(err, estimator.ErrNotReady):
		log.Info("estimator not ready")
	case errors.As(err, &estErr):
		log.Warn("estimation failed", "backend", estErr.Backend, "status", estErr.StatusCode, "error", estErr.Err)
	case errors.Is(err, context.Canceled):
		log.Debug("attempt cancelled")
	default:
		log.Warn("attempt failed", "error", err)
	}

	if s.onStatus != nil && (outcome == OutcomeDone || outcome == OutcomeNoFace) {
		s.onStatus(s.Status())
	}
}

// Current returns the latest analysis, or false when no face is in view.
func (s *Session) Current() (expression.Analysis, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return expression.Analysis{}, false
	}
	return *s.current, true
}

// Reset drops smoothing, calibration, the stable result and the throttle
// state. An in-flight attempt is superseded first.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		s.seq++
		s.inFlight = false
		s.state = StateIdle
		s.stats.Superseded++
	}
	s.detector.Reset()
	s.current = nil
	s.throttle.Reset()
}
