package remote

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/teslashibe/go-emote/pkg/estimator"
	"github.com/teslashibe/go-emote/pkg/preprocess"
)

func testFrame() *preprocess.Frame {
	return preprocess.FromImage(image.NewRGBA(image.Rect(0, 0, 200, 100)), 0)
}

func TestEstimate_Normalized(t *testing.T) {
	var got landmarksRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/landmarks" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"normalized": true, "faces": [{"score": 0.9, "landmarks": [[0.5, 0.5, -0.1], [0.25, 1]]}]}`))
	}))
	defer srv.Close()

	e, err := New(srv.URL+"/", WithSessionID("s1"))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	sets, err := e.Estimate(context.Background(), testFrame())
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}
	if len(sets) != 1 || len(sets[0].Points) != 2 {
		t.Fatalf("unexpected result: %+v", sets)
	}
	p := sets[0].Points
	if p[0].X != 100 || p[0].Y != 50 || p[0].Z != -0.1 {
		t.Errorf("point 0 = %+v, want (100, 50, -0.1)", p[0])
	}
	if p[1].X != 50 || p[1].Y != 100 || p[1].Z != 0 {
		t.Errorf("point 1 = %+v, want (50, 100, 0)", p[1])
	}

	if !strings.HasPrefix(got.Image, "data:image/jpeg;base64,") {
		t.Errorf("image not sent as data URL: %.40q", got.Image)
	}
	if got.SessionID != "s1" || got.MaxFaces != 1 {
		t.Errorf("request = %+v", got)
	}
}

func TestEstimate_NoFaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"faces": []}`))
	}))
	defer srv.Close()

	e, _ := New(srv.URL)
	sets, err := e.Estimate(context.Background(), testFrame())
	if err != nil {
		t.Fatalf("no faces should not be an error: %v", err)
	}
	if len(sets) != 0 {
		t.Errorf("expected 0 faces, got %d", len(sets))
	}
}

func TestEstimate_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{"server error", http.StatusBadGateway, "upstream down", http.StatusBadGateway},
		{"service error field", http.StatusOK, `{"error": "model crashed"}`, 0},
		{"short point", http.StatusOK, `{"faces": [{"landmarks": [[1]]}]}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			e, _ := New(srv.URL)
			_, err := e.Estimate(context.Background(), testFrame())
			var estErr *estimator.EstimationError
			if !errors.As(err, &estErr) {
				t.Fatalf("expected *EstimationError, got %v", err)
			}
			if estErr.Backend != backend || estErr.StatusCode != tt.wantStatus {
				t.Errorf("got %+v", estErr)
			}
		})
	}
}

func TestReady_CachesHealth(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			hits.Add(1)
		}
	}))
	defer srv.Close()

	e, _ := New(srv.URL)
	if !e.Ready() || !e.Ready() {
		t.Fatal("expected ready")
	}
	if hits.Load() != 1 {
		t.Errorf("health hit %d times, want 1", hits.Load())
	}

	e.Close()
	if e.Ready() {
		t.Error("closed estimator should not be ready")
	}
	if _, err := e.Estimate(context.Background(), testFrame()); !errors.Is(err, estimator.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestClientCredentials(t *testing.T) {
	var auth atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "tok123", "token_type": "bearer", "expires_in": 3600}`))
	})
	mux.HandleFunc("/landmarks", func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		w.Write([]byte(`{"faces": []}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e, err := New(srv.URL, WithClientCredentials(srv.URL+"/token", "id", "secret"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Estimate(context.Background(), testFrame()); err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}
	if got, _ := auth.Load().(string); got != "Bearer tok123" {
		t.Errorf("Authorization = %q, want Bearer tok123", got)
	}
}

func TestWithOptions(t *testing.T) {
	var got landmarksRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"faces": []}`))
	}))
	defer srv.Close()

	base, _ := New(srv.URL)
	e := estimator.Configure(base, estimator.Options{MaxFaces: 3, RefineLandmarks: true})
	if _, err := e.Estimate(context.Background(), testFrame()); err != nil {
		t.Fatal(err)
	}
	if got.MaxFaces != 3 || !got.RefineLandmarks {
		t.Errorf("request = %+v", got)
	}
}
