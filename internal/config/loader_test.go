package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/teslashibe/go-emote/pkg/session"
)

const fullYAML = `
server:
  listen: ":9090"
  log_level: debug
  log_format: json
metrics:
  enabled: false
estimators:
  - type: remote
    url: http://landmarks:5000
    timeout: 3s
  - type: cloudvision
emitters:
  hub: false
  relay:
    url: wss://relay.example/socket
    headers:
      Authorization: Bearer abc
ingest:
  frame_max_age: 1500ms
sessions:
  - id: desk
    subject_id: user-7
    source:
      type: webcam
      device: "1"
    cadence_ms: 0
    max_faces: 3
    friend_ids: [a, b]
  - id: phone
    source:
      type: ingest
      device_id: pixel
`

func TestLoadFromReader_Full(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.Listen != ":9090" || cfg.Server.LogFormat != "json" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Metrics.On() || cfg.Emitters.HubOn() {
		t.Error("metrics and hub should be disabled")
	}
	if cfg.Metrics.ServiceName != "emoted" {
		t.Errorf("service name = %q", cfg.Metrics.ServiceName)
	}
	if got := cfg.Estimators[0].Timeout; got != 3*time.Second {
		t.Errorf("remote timeout = %s", got)
	}
	if got := cfg.Estimators[1].Timeout; got != 8*time.Second {
		t.Errorf("default timeout = %s", got)
	}
	if cfg.Ingest.FrameMaxAge != 1500*time.Millisecond {
		t.Errorf("frame max age = %s", cfg.Ingest.FrameMaxAge)
	}

	desk := cfg.Sessions[0].Session()
	want := session.DefaultConfig()
	want.ID = "desk"
	want.SubjectID = "user-7"
	want.CadenceMs = 0
	want.MaxFaces = 3
	want.FriendIDs = []string{"a", "b"}
	if diff := cmp.Diff(want, desk); diff != "" {
		t.Errorf("desk session mismatch (-want +got):\n%s", diff)
	}
	if desk.Mode() != "continuous" {
		t.Errorf("mode = %s", desk.Mode())
	}

	phone := cfg.Sessions[1]
	if phone.Session().SubjectID != "phone" || phone.IngestDevice() != "pixel" {
		t.Errorf("phone = %+v", phone)
	}
	if phone.Session().CadenceMs != session.DefaultConfig().CadenceMs {
		t.Error("unset cadence should keep the default")
	}
}

func TestLoadFromReader_Empty(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader(""))
	if err == nil || !strings.Contains(err.Error(), "at least one session") {
		t.Errorf("err = %v", err)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("server:\n  port: 80\nsessions:\n  - id: a\n"))
	if err == nil || !strings.Contains(err.Error(), "port") {
		t.Errorf("err = %v, want unknown field error", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "bad log level",
			yaml: "server:\n  log_level: loud\nsessions:\n  - id: a\n",
			want: []string{"server.log_level"},
		},
		{
			name: "capture without estimator",
			yaml: "sessions:\n  - id: a\n    source:\n      type: webcam\n",
			want: []string{"at least one estimator"},
		},
		{
			name: "remote without url",
			yaml: "estimators:\n  - type: remote\nsessions:\n  - id: a\n",
			want: []string{"estimators[0].url"},
		},
		{
			name: "unknown estimator and source",
			yaml: "estimators:\n  - type: magic\nsessions:\n  - id: a\n    source:\n      type: scanner\n",
			want: []string{"estimators[0].type", "sessions[0].source.type"},
		},
		{
			name: "duplicate ids and missing id",
			yaml: "sessions:\n  - id: a\n  - id: a\n  - subject_id: x\n",
			want: []string{"duplicate", "id is required"},
		},
		{
			name: "webrtc needs signalling",
			yaml: "estimators:\n  - type: cloudvision\nsessions:\n  - id: a\n    source:\n      type: webrtc\n",
			want: []string{"signalling_url"},
		},
		{
			name: "relay scheme",
			yaml: "emitters:\n  relay:\n    url: http://x\nsessions:\n  - id: a\n",
			want: []string{"emitters.relay.url"},
		},
		{
			name: "negative cadence",
			yaml: "sessions:\n  - id: a\n    cadence_ms: -5\n",
			want: []string{"cadence_ms"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error should mention %q, got: %v", w, err)
				}
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvListen:       ":7000",
		EnvLogLevel:     "warn",
		EnvEstimatorURL: "http://gpu:5000",
		EnvRelayURL:     "ws://relay:9000",
	}
	cfg := Default()
	cfg.Estimators = []EstimatorConfig{{Type: EstimatorCloudVision}}
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.Server.Listen != ":7000" || cfg.Server.LogLevel != "warn" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if len(cfg.Estimators) != 2 || cfg.Estimators[0].Type != EstimatorRemote || cfg.Estimators[0].URL != "http://gpu:5000" {
		t.Errorf("estimators = %+v", cfg.Estimators)
	}
	if cfg.Estimators[0].Timeout == 0 {
		t.Error("prepended estimator should get a default timeout")
	}
	if cfg.Emitters.Relay.URL != "ws://relay:9000" {
		t.Errorf("relay = %q", cfg.Emitters.Relay.URL)
	}

	cfg.ApplyEnv(func(k string) string { return env[k] })
	if len(cfg.Estimators) != 2 {
		t.Error("existing remote estimator should be replaced, not duplicated")
	}
}

func TestLoad_File(t *testing.T) {
	t.Setenv(EnvListen, ":6000")
	path := filepath.Join(t.TempDir(), "emoted.yaml")
	if err := os.WriteFile(path, []byte("sessions:\n  - id: only\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Listen != ":6000" || cfg.Sessions[0].Source.Type != SourcePush {
		t.Errorf("cfg = %+v", cfg)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}

func TestLoad_Default(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Sessions) != 1 || cfg.NeedsEstimator() {
		t.Errorf("default = %+v", cfg)
	}
}
