package main

import (
	"context"
	"errors"
	"testing"

	"github.com/teslashibe/go-emote/internal/facetest"
	"github.com/teslashibe/go-emote/pkg/estimator"
	"github.com/teslashibe/go-emote/pkg/expression"
	"github.com/teslashibe/go-emote/pkg/preprocess"
)

func TestProbe(t *testing.T) {
	est := estimator.WithMesh(facetest.ToPixels(facetest.Laughing(), 100, 100))
	r, err := probe(context.Background(), facetest.JPEG(100, 100), est, options{MaxFaces: 2})
	if err != nil {
		t.Fatal(err)
	}
	if r.Width != 100 || r.Faces != 1 {
		t.Errorf("report = %+v", r)
	}
	if r.Analysis.Result.Label != expression.Laughing {
		t.Errorf("label = %s", r.Analysis.Result.Label)
	}
	if r.Emotion != "😂 Laughing" {
		t.Errorf("emotion = %q", r.Emotion)
	}
	if opts := est.Options(); opts == nil || opts.MaxFaces != 2 {
		t.Errorf("estimator options = %+v", opts)
	}
}

func TestProbe_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := probe(ctx, []byte("not an image"), estimator.NewMock(), options{})
	var de *preprocess.DecodeError
	if !errors.As(err, &de) {
		t.Errorf("bad image err = %v", err)
	}

	if _, err := probe(ctx, facetest.JPEG(50, 50), estimator.NewMock(), options{}); !errors.Is(err, errNoFace) {
		t.Errorf("no face err = %v", err)
	}
}
