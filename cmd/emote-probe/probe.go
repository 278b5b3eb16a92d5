package main

import (
	"context"
	"errors"

	"github.com/teslashibe/go-emote/pkg/emitter"
	"github.com/teslashibe/go-emote/pkg/estimator"
	"github.com/teslashibe/go-emote/pkg/expression"
	"github.com/teslashibe/go-emote/pkg/face"
	"github.com/teslashibe/go-emote/pkg/preprocess"
)

var errNoFace = errors.New("no face detected")

type options struct {
	MaxFaces      int
	TargetMaxSide int
}

// Report is the JSON printed for one image.
type Report struct {
	File     string               `json:"file,omitempty"`
	Width    int                  `json:"width"`
	Height   int                  `json:"height"`
	Faces    int                  `json:"faces"`
	Emotion  string               `json:"emotion"`
	Analysis *expression.Analysis `json:"analysis"`
}

// probe runs the pipeline once on a fresh detector. A single frame never
// completes calibration, so the result uses the fixed thresholds.
func probe(ctx context.Context, data []byte, est estimator.Estimator, opts options) (*Report, error) {
	frame, err := preprocess.Decode(data, opts.TargetMaxSide)
	if err != nil {
		return nil, err
	}

	est = estimator.Configure(est, estimator.Options{MaxFaces: opts.MaxFaces, RefineLandmarks: true})
	sets, err := est.Estimate(ctx, frame)
	if err != nil {
		return nil, err
	}
	best := face.SelectBest(sets, opts.MaxFaces)
	if best == nil {
		return nil, errNoFace
	}

	w, h := float64(frame.Width()), float64(frame.Height())
	a, err := expression.NewDetector().Process(best.Points.Normalize(w, h), w, h)
	if err != nil {
		return nil, err
	}

	label := string(a.Result.Label)
	return &Report{
		Width:    frame.Width(),
		Height:   frame.Height(),
		Faces:    len(sets),
		Emotion:  emitter.Emoji(label) + " " + label,
		Analysis: &a,
	}, nil
}
