package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-emote/internal/config"
	"github.com/teslashibe/go-emote/pkg/capture"
	"github.com/teslashibe/go-emote/pkg/capture/webcam"
	"github.com/teslashibe/go-emote/pkg/capture/webrtc"
	"github.com/teslashibe/go-emote/pkg/emitter"
	"github.com/teslashibe/go-emote/pkg/emitter/relay"
	"github.com/teslashibe/go-emote/pkg/estimator"
	"github.com/teslashibe/go-emote/pkg/estimator/cloudvision"
	"github.com/teslashibe/go-emote/pkg/estimator/remote"
	"github.com/teslashibe/go-emote/pkg/hub"
	"github.com/teslashibe/go-emote/pkg/ingest"
	"github.com/teslashibe/go-emote/pkg/observe"
	"github.com/teslashibe/go-emote/pkg/protocol"
	"github.com/teslashibe/go-emote/pkg/session"
	"github.com/teslashibe/go-emote/pkg/web"
)

// daemon holds everything main starts and stops.
type daemon struct {
	logger   *slog.Logger
	provider *observe.Provider
	events   *hub.Hub
	ingest   *ingest.Hub
	est      estimator.Estimator
	sessions *session.Manager
	server   *web.Server

	// byDevice routes pushed landmarks to a session.
	byDevice map[string]*session.Session
	closers  []io.Closer
}

func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*daemon, error) {
	d := &daemon{
		logger:   logger,
		sessions: session.NewManager(logger),
		byDevice: make(map[string]*session.Session),
	}
	ok := false
	defer func() {
		if !ok {
			d.close(context.Background())
		}
	}()

	var metricsHandler http.Handler
	if cfg.Metrics.On() {
		p, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:    cfg.Metrics.ServiceName,
			ServiceVersion: version,
		})
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		d.provider = p
		metricsHandler = p.Handler()
	}
	metrics := observe.DefaultMetrics()

	var channels emitter.Multi
	if cfg.Emitters.HubOn() {
		d.events = hub.New("emotions", logger)
		channels = append(channels, d.events)
	}
	if cfg.Emitters.Relay.URL != "" {
		header := make(http.Header)
		for k, v := range cfg.Emitters.Relay.Headers {
			header.Set(k, v)
		}
		r := relay.New(cfg.Emitters.Relay.URL, relay.WithHeader(header), relay.WithLogger(logger))
		d.closers = append(d.closers, r)
		channels = append(channels, r)
	}

	if len(cfg.Estimators) > 0 {
		est, err := buildEstimator(ctx, cfg.Estimators, logger)
		if err != nil {
			return nil, err
		}
		d.est = est
	}

	d.ingest = ingest.New(
		ingest.WithLogger(logger),
		ingest.WithFrameMaxAge(cfg.Ingest.FrameMaxAge),
		ingest.WithLandmarksHandler(d.handleLandmarks),
	)

	for _, sc := range cfg.Sessions {
		src, err := d.buildSource(ctx, sc, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("session %q: %w", sc.ID, err)
		}
		est := d.est
		if src == nil {
			est = nil
		}
		opts := []session.Option{
			session.WithLogger(logger),
			session.WithMetrics(metrics),
		}
		if d.events != nil {
			opts = append(opts, session.WithStatusFunc(d.publishStatus))
		}
		s, err := session.New(sc.Session(), src, est, channels, opts...)
		if err != nil {
			return nil, err
		}
		if err := d.sessions.Add(s); err != nil {
			return nil, fmt.Errorf("session %q: %w", sc.ID, err)
		}
		if sc.Source.Type == config.SourceIngest || sc.Source.Type == config.SourcePush {
			d.byDevice[sc.IngestDevice()] = s
		}
	}

	d.server = web.NewServer(web.Config{
		Addr:      cfg.Server.Listen,
		Sessions:  d.sessions,
		Events:    d.events,
		Ingest:    d.ingest,
		Metrics:   metricsHandler,
		Logger:    logger,
		StaticDir: cfg.Server.StaticDir,
		AccessLog: cfg.Server.AccessLog,
	})

	ok = true
	return d, nil
}

func buildEstimator(ctx context.Context, cfgs []config.EstimatorConfig, logger *slog.Logger) (estimator.Estimator, error) {
	var ests []estimator.Estimator
	for i, ec := range cfgs {
		var (
			est estimator.Estimator
			err error
		)
		switch ec.Type {
		case config.EstimatorRemote:
			opts := []remote.Option{remote.WithTimeout(ec.Timeout), remote.WithLogger(logger)}
			if ec.TokenURL != "" {
				opts = append(opts, remote.WithClientCredentials(ec.TokenURL, ec.ClientID, ec.ClientSecret, ec.Scopes...))
			}
			est, err = remote.New(ec.URL, opts...)
		case config.EstimatorCloudVision:
			vc := cloudvision.DefaultConfig()
			vc.Logger = logger
			if ec.CredentialsFile != "" {
				vc.CredentialsJSON, err = os.ReadFile(ec.CredentialsFile)
				if err != nil {
					break
				}
			}
			est, err = cloudvision.New(ctx, vc)
		default:
			err = fmt.Errorf("unknown type %q", ec.Type)
		}
		if err != nil {
			for _, e := range ests {
				e.Close()
			}
			return nil, fmt.Errorf("estimators[%d]: %w", i, err)
		}
		ests = append(ests, est)
	}
	if len(ests) == 1 {
		return ests[0], nil
	}
	return estimator.NewChainWithLogger(logger, ests...)
}

func (d *daemon) buildSource(ctx context.Context, sc config.SessionConfig, cfg *config.Config, logger *slog.Logger) (capture.Source, error) {
	switch sc.Source.Type {
	case config.SourceWebcam:
		wc := webcam.DefaultConfig()
		if sc.Source.Device != "" {
			wc.Device = sc.Source.Device
		}
		if sc.Source.Width > 0 {
			wc.Width = sc.Source.Width
		}
		if sc.Source.Height > 0 {
			wc.Height = sc.Source.Height
		}
		wc.Logger = logger
		cam, err := webcam.Open(wc)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, cam)
		return cam, nil

	case config.SourceWebRTC:
		c := webrtc.New(webrtc.Config{
			SignallingURL: sc.Source.SignallingURL,
			ProducerName:  sc.Source.Producer,
			FrameMaxAge:   cfg.Ingest.FrameMaxAge,
			Logger:        logger,
		})
		d.closers = append(d.closers, c)
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
		return c, nil

	case config.SourceIngest:
		return d.ingest.Source(sc.IngestDevice()), nil
	}
	return nil, nil
}

// handleLandmarks feeds pushed landmarks to the device's session. Busy and
// faceless results are normal outcomes, not errors for the device.
func (d *daemon) handleLandmarks(ctx context.Context, deviceID string, l *protocol.LandmarksData) error {
	s, ok := d.byDevice[deviceID]
	if !ok {
		return fmt.Errorf("no session for device %q", deviceID)
	}
	_, err := s.ProcessLandmarks(ctx, l.Mesh(), l.Width, l.Height)
	if errors.Is(err, session.ErrInFlight) || errors.Is(err, session.ErrNoFace) {
		return nil
	}
	return err
}

func (d *daemon) publishStatus(st session.Status) {
	err := d.events.PublishStatus(protocol.StatusData{
		SessionID: st.ID,
		State:     string(st.State),
		Label:     st.Label,
		Clarity:   st.Clarity,
	})
	if err != nil {
		d.logger.Debug("status not published", "session", st.ID, "error", err)
	}
}

// run blocks until ctx is done or the server fails. Session failures are
// logged and leave the server up.
func (d *daemon) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if d.events != nil {
		g.Go(func() error {
			d.events.Run(ctx)
			return nil
		})
	}
	g.Go(func() error {
		return d.server.ListenAndServe(ctx)
	})
	g.Go(func() error {
		if err := d.sessions.Run(ctx); err != nil {
			d.logger.Error("sessions stopped", "error", err)
		}
		return nil
	})

	return g.Wait()
}

func (d *daemon) close(ctx context.Context) error {
	var errs []error
	if d.ingest != nil {
		d.ingest.Close()
	}
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	if d.est != nil {
		if err := d.est.Close(); err != nil {
			errs = append(errs, err)
		}
		d.est = nil
	}
	if d.provider != nil {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := d.provider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		d.provider = nil
	}
	return errors.Join(errs...)
}
