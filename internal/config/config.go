// Package config loads the emoted daemon configuration.
//
// Configuration comes from a YAML file, then EMOTE_* environment overrides.
// Unknown YAML keys are rejected.
package config

import (
	"time"

	"github.com/teslashibe/go-emote/pkg/session"
)

// Estimator backends.
const (
	EstimatorRemote      = "remote"
	EstimatorCloudVision = "cloudvision"
)

// Source kinds.
const (
	SourceWebcam = "webcam"
	SourceWebRTC = "webrtc"
	SourceIngest = "ingest"
	SourcePush   = "push"
)

// Config is the root of the daemon configuration.
type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Metrics    MetricsConfig     `yaml:"metrics"`
	Estimators []EstimatorConfig `yaml:"estimators"`
	Emitters   EmittersConfig    `yaml:"emitters"`
	Ingest     IngestConfig      `yaml:"ingest"`
	Sessions   []SessionConfig   `yaml:"sessions"`
}

// ServerConfig configures the HTTP server and logging.
type ServerConfig struct {
	Listen    string `yaml:"listen"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // text, json or empty for GO_ENV
	AccessLog bool   `yaml:"access_log"`
	StaticDir string `yaml:"static_dir"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled     *bool  `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// On reports whether metrics are enabled. They are unless set to false.
func (m MetricsConfig) On() bool {
	return m.Enabled == nil || *m.Enabled
}

// EstimatorConfig configures one backend of the estimator chain. Backends
// are tried in order.
type EstimatorConfig struct {
	Type    string        `yaml:"type"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`

	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`

	// CredentialsFile is a Cloud Vision service account key. Application
	// default credentials are used when empty.
	CredentialsFile string `yaml:"credentials_file"`
}

// EmittersConfig selects where emotion events go.
type EmittersConfig struct {
	// Hub broadcasts to browsers on /ws/emotions. On unless set to false.
	Hub   *bool       `yaml:"hub"`
	Relay RelayConfig `yaml:"relay"`
}

// HubOn reports whether the browser hub is enabled.
func (e EmittersConfig) HubOn() bool {
	return e.Hub == nil || *e.Hub
}

// RelayConfig configures the remote socket relay. Disabled when URL is empty.
type RelayConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

// IngestConfig configures the device push endpoint.
type IngestConfig struct {
	FrameMaxAge time.Duration `yaml:"frame_max_age"`
}

// SourceConfig picks where a session gets its images.
type SourceConfig struct {
	Type string `yaml:"type"`

	// webcam
	Device string `yaml:"device"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`

	// webrtc
	SignallingURL string `yaml:"signalling_url"`
	Producer      string `yaml:"producer"`

	// ingest; defaults to the session id
	DeviceID string `yaml:"device_id"`
}

// SessionConfig configures one capture session. Zero values keep the
// session defaults.
type SessionConfig struct {
	ID        string       `yaml:"id"`
	SubjectID string       `yaml:"subject_id"`
	Source    SourceConfig `yaml:"source"`

	// CadenceMs of 0 selects continuous mode; unset keeps the default.
	CadenceMs *int `yaml:"cadence_ms"`

	MaxFaces        int           `yaml:"max_faces"`
	RefineLandmarks *bool         `yaml:"refine_landmarks"`
	TargetMaxSide   *int          `yaml:"target_max_side"`
	ContinuousGap   time.Duration `yaml:"continuous_gap"`
	ErrorBackoff    time.Duration `yaml:"error_backoff"`
	CaptureTimeout  time.Duration `yaml:"capture_timeout"`
	EstimateTimeout time.Duration `yaml:"estimate_timeout"`
	ReadyTimeout    time.Duration `yaml:"ready_timeout"`
	EmitWindow      time.Duration `yaml:"emit_window"`
	FriendIDs       []string      `yaml:"friend_ids"`
}

// Session returns the session configuration with defaults filled in.
func (s SessionConfig) Session() session.Config {
	c := session.DefaultConfig()
	c.ID = s.ID
	c.SubjectID = s.SubjectID
	if c.SubjectID == "" {
		c.SubjectID = s.ID
	}
	if s.CadenceMs != nil {
		c.CadenceMs = *s.CadenceMs
	}
	if s.MaxFaces != 0 {
		c.MaxFaces = s.MaxFaces
	}
	if s.RefineLandmarks != nil {
		c.RefineLandmarks = *s.RefineLandmarks
	}
	if s.TargetMaxSide != nil {
		c.TargetMaxSide = *s.TargetMaxSide
	}
	setDuration(&c.ContinuousGap, s.ContinuousGap)
	setDuration(&c.ErrorBackoff, s.ErrorBackoff)
	setDuration(&c.CaptureTimeout, s.CaptureTimeout)
	setDuration(&c.EstimateTimeout, s.EstimateTimeout)
	setDuration(&c.ReadyTimeout, s.ReadyTimeout)
	setDuration(&c.EmitWindow, s.EmitWindow)
	c.FriendIDs = s.FriendIDs
	return c
}

// IngestDevice returns the device id an ingest session reads from.
func (s SessionConfig) IngestDevice() string {
	if s.Source.DeviceID != "" {
		return s.Source.DeviceID
	}
	return s.ID
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

// Default returns a configuration with one push-only session and no
// estimators.
func Default() *Config {
	cfg := &Config{
		Sessions: []SessionConfig{{ID: "default", Source: SourceConfig{Type: SourcePush}}},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Metrics.ServiceName == "" {
		c.Metrics.ServiceName = "emoted"
	}
	if c.Ingest.FrameMaxAge == 0 {
		c.Ingest.FrameMaxAge = 2 * time.Second
	}
	for i := range c.Estimators {
		if c.Estimators[i].Timeout == 0 {
			c.Estimators[i].Timeout = 8 * time.Second
		}
	}
	for i := range c.Sessions {
		if c.Sessions[i].Source.Type == "" {
			c.Sessions[i].Source.Type = SourcePush
		}
	}
}

// NeedsEstimator reports whether any session captures images.
func (c *Config) NeedsEstimator() bool {
	for _, s := range c.Sessions {
		if s.Source.Type != SourcePush {
			return true
		}
	}
	return false
}
