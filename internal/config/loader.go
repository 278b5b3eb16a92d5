package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	applog "github.com/teslashibe/go-emote/internal/log"
)

// Environment overrides, applied after the file.
const (
	EnvListen       = "EMOTE_LISTEN"
	EnvLogLevel     = "EMOTE_LOG_LEVEL"
	EnvEstimatorURL = "EMOTE_ESTIMATOR_URL"
	EnvRelayURL     = "EMOTE_RELAY_URL"
)

// Load reads the YAML configuration file at path, applies environment
// overrides and validates the result. An empty path loads Default.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		cfg.ApplyEnv(os.Getenv)
		return cfg, Validate(cfg)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment
// overrides and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.applyDefaults()
	cfg.ApplyEnv(os.Getenv)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment. EMOTE_ESTIMATOR_URL
// replaces the first remote estimator's URL, or prepends a remote
// estimator when none is configured.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvListen); v != "" {
		c.Server.Listen = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Server.LogLevel = v
	}
	if v := getenv(EnvEstimatorURL); v != "" {
		i := slices.IndexFunc(c.Estimators, func(e EstimatorConfig) bool { return e.Type == EstimatorRemote })
		if i >= 0 {
			c.Estimators[i].URL = v
		} else {
			c.Estimators = append([]EstimatorConfig{{Type: EstimatorRemote, URL: v}}, c.Estimators...)
			c.applyDefaults()
		}
	}
	if v := getenv(EnvRelayURL); v != "" {
		c.Emitters.Relay.URL = v
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if _, err := applog.ParseLevel(cfg.Server.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	switch cfg.Server.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}

	for i, e := range cfg.Estimators {
		prefix := fmt.Sprintf("estimators[%d]", i)
		switch e.Type {
		case EstimatorRemote:
			if e.URL == "" {
				errs = append(errs, fmt.Errorf("%s.url is required for remote estimators", prefix))
			}
			if e.TokenURL != "" && e.ClientID == "" {
				errs = append(errs, fmt.Errorf("%s.client_id is required with token_url", prefix))
			}
		case EstimatorCloudVision:
		default:
			errs = append(errs, fmt.Errorf("%s.type %q is invalid; valid values: remote, cloudvision", prefix, e.Type))
		}
	}

	if u := cfg.Emitters.Relay.URL; u != "" {
		if parsed, err := url.Parse(u); err != nil || (parsed.Scheme != "ws" && parsed.Scheme != "wss") {
			errs = append(errs, fmt.Errorf("emitters.relay.url %q must be a ws:// or wss:// URL", u))
		}
	}

	if len(cfg.Sessions) == 0 {
		errs = append(errs, errors.New("at least one session is required"))
	}
	seen := make(map[string]int, len(cfg.Sessions))
	for i, s := range cfg.Sessions {
		prefix := fmt.Sprintf("sessions[%d]", i)
		if s.ID != "" {
			if prev, ok := seen[s.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of sessions[%d]", prefix, s.ID, prev))
			}
			seen[s.ID] = i
		}
		switch s.Source.Type {
		case SourceWebcam, SourceIngest, SourcePush:
		case SourceWebRTC:
			if s.Source.SignallingURL == "" {
				errs = append(errs, fmt.Errorf("%s.source.signalling_url is required for webrtc sources", prefix))
			}
		default:
			errs = append(errs, fmt.Errorf("%s.source.type %q is invalid; valid values: webcam, webrtc, ingest, push", prefix, s.Source.Type))
		}
		if err := s.Session().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
		}
	}

	if cfg.NeedsEstimator() && len(cfg.Estimators) == 0 {
		errs = append(errs, errors.New("estimators: at least one estimator is required when a session captures images"))
	}

	return errors.Join(errs...)
}
