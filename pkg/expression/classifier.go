package expression

import "math"

// Label is a discrete expression.
type Label string

const (
	Smiling      Label = "Smiling"
	Laughing     Label = "Laughing"
	Speaking     Label = "Speaking"
	Winking      Label = "Winking"
	Yawning      Label = "Yawning"
	Surprised    Label = "Surprised"
	Angry        Label = "Angry"
	Sleepy       Label = "Sleepy"
	EyebrowRaise Label = "Eyebrow Raise"
	Kissing      Label = "Kissing"
	Neutral      Label = "Neutral"
)

// Labels lists every label in rule order, Neutral last.
var Labels = []Label{
	Smiling, Laughing, Speaking, Winking, Yawning, Surprised,
	Angry, Sleepy, EyebrowRaise, Kissing, Neutral,
}

// eyeOpenEAR is the per-eye EAR above which an eye counts as open.
const eyeOpenEAR = 0.05

// Emotions are coarse scores derived from the label. They are not
// normalized.
type Emotions struct {
	Happy    float64 `json:"happy"`
	Sad      float64 `json:"sad"`
	Surprise float64 `json:"surprise"`
	Angry    float64 `json:"angry"`
}

// Metrics is the per-frame debug output of the classifier.
type Metrics struct {
	FaceWidth         float64 `json:"face_width"`
	MouthWidth        float64 `json:"mouth_width"`
	MouthHeight       float64 `json:"mouth_height"`
	MAR               float64 `json:"mar"`
	AvgEAR            float64 `json:"avg_ear"`
	LeftEAR           float64 `json:"left_ear"`
	RightEAR          float64 `json:"right_ear"`
	InnerBrowDistance float64 `json:"inner_brow_distance"`
	BrowRatio         float64 `json:"brow_ratio"`
	AvgBrowToEye      float64 `json:"avg_brow_to_eye"`
	LeftBrowToEye     float64 `json:"left_brow_to_eye"`
	RightBrowToEye    float64 `json:"right_brow_to_eye"`
	LeftEyeWidth      float64 `json:"left_eye_width"`
	RightEyeWidth     float64 `json:"right_eye_width"`
	AvgEyeWidth       float64 `json:"avg_eye_width"`
	MouthCurve        float64 `json:"mouth_curve"`
	LipDistance       float64 `json:"lip_distance"`
	MouthOpenArea     float64 `json:"mouth_open_area"`
	BrowDistancePx    float64 `json:"brow_distance_px"`
	BrowDistanceRatio float64 `json:"brow_distance_ratio"`
	TeethVisible      bool    `json:"teeth_visible"`
	LeftEyeOpen       bool    `json:"left_eye_open"`
	RightEyeOpen      bool    `json:"right_eye_open"`
}

// Result is the classifier output for one frame.
type Result struct {
	Label           Label    `json:"label"`
	Emotions        Emotions `json:"emotions"`
	DominantEmotion string   `json:"dominant_emotion"`
	DominantScore   float64  `json:"dominant_score"`
	Debug           Metrics  `json:"debug"`
}

// Input is everything the rule table reads. Features must be the smoothed
// vector except for LeftEAR, RightEAR, LeftBrowToEye and RightBrowToEye,
// which the rules read raw. Smooth passes those through untouched.
type Input struct {
	Features

	// BrowDistanceRatioPx is computed in pixel space. See
	// BrowDistanceRatioPx.
	BrowDistanceRatioPx float64

	// BrowDistancePx is the raw inner-brow gap in pixels. Debug only.
	BrowDistancePx float64
}

// TeethVisible reports whether the mouth is open enough to show teeth.
func TeethVisible(f Features) bool {
	return (f.MAR > 0.22 && f.MouthHeight > 0.03) || f.MouthOpenArea > 0.035
}

type rule struct {
	label Label
	match func(in Input, teeth bool) bool
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{Smiling, func(in Input, teeth bool) bool {
		return in.MouthWidth > 0.57 && !teeth
	}},
	{Laughing, func(in Input, teeth bool) bool {
		return in.MouthWidth > 0.60 && teeth && in.MouthOpenArea > 0.18
	}},
	{Speaking, func(in Input, teeth bool) bool {
		return teeth && in.MouthCurve > -0.25 && in.MouthOpenArea < 0.20
	}},
	{Winking, func(in Input, _ bool) bool {
		return in.LeftEAR < eyeOpenEAR && in.RightEAR > eyeOpenEAR && in.MouthOpenArea < 0.30
	}},
	{Winking, func(in Input, _ bool) bool {
		return in.LeftEAR > eyeOpenEAR && in.RightEAR < eyeOpenEAR && in.MouthOpenArea < 0.30
	}},
	{Yawning, func(in Input, _ bool) bool {
		return in.MouthOpenArea > 0.40 && in.AvgEAR < 0.11
	}},
	{Surprised, func(in Input, _ bool) bool {
		return in.BrowDistanceRatioPx > 0.310 && in.InnerBrowDistance > 0.305
	}},
	{Angry, func(in Input, _ bool) bool {
		return in.BrowDistanceRatioPx < 0.305 && in.InnerBrowDistance < 0.290 && in.MouthOpenArea < 0.30
	}},
	{Sleepy, func(in Input, _ bool) bool {
		return in.AvgEAR < 0.095 && in.MouthCurve > -0.150 && in.MouthOpenArea < 0.25 &&
			in.LeftEAR > eyeOpenEAR && in.RightEAR > eyeOpenEAR
	}},
	{EyebrowRaise, func(in Input, _ bool) bool {
		return in.LeftBrowToEye > 0.595 || in.RightBrowToEye > 0.595
	}},
	{Kissing, func(in Input, _ bool) bool {
		return in.MouthHeight < 0.045 && in.MouthWidth < 0.43 && in.MouthCurve > 0
	}},
}

// Classify applies the rule table to in and fills in emotion scores and
// debug metrics.
func Classify(in Input) Result {
	teeth := TeethVisible(in.Features)

	rounded := roundForRules(in)
	label := Neutral
	for _, r := range rules {
		if r.match(rounded, teeth) {
			label = r.label
			break
		}
	}

	emotions := EmotionsFor(label)
	name, score := Dominant(emotions)

	return Result{
		Label:           label,
		Emotions:        emotions,
		DominantEmotion: name,
		DominantScore:   score,
		Debug:           metricsFor(in, teeth),
	}
}

// roundForRules rounds the mouth, eye and brow features the rules compare to
// four decimals, so a value within 5e-5 of a threshold resolves the same way
// as the displayed metric. Per-eye EAR, the pixel brow ratio and the teeth
// check stay unrounded.
func roundForRules(in Input) Input {
	round4 := func(v float64) float64 { return math.Round(v*1e4) / 1e4 }
	in.MouthWidth = round4(in.MouthWidth)
	in.MouthHeight = round4(in.MouthHeight)
	in.MouthOpenArea = round4(in.MouthOpenArea)
	in.MouthCurve = round4(in.MouthCurve)
	in.AvgEAR = round4(in.AvgEAR)
	in.InnerBrowDistance = round4(in.InnerBrowDistance)
	in.LeftBrowToEye = round4(in.LeftBrowToEye)
	in.RightBrowToEye = round4(in.RightBrowToEye)
	return in
}

// EmotionsFor maps a label to its fixed emotion scores. Labels without an
// entry score 0.25 on every axis.
func EmotionsFor(l Label) Emotions {
	switch l {
	case Smiling:
		return Emotions{Happy: 1}
	case Laughing:
		return Emotions{Happy: 1, Surprise: 0.2}
	case Winking:
		return Emotions{Happy: 0.4}
	case Yawning, EyebrowRaise:
		return Emotions{Surprise: 0.8}
	case Sleepy:
		return Emotions{Sad: 0.5}
	case Speaking:
		return Emotions{Happy: 0.2, Surprise: 0.2}
	default:
		return Emotions{Happy: 0.25, Sad: 0.25, Surprise: 0.25, Angry: 0.25}
	}
}

// Dominant returns the highest-scoring emotion. Ties go to the earlier of
// Happy, Sad, Surprise, Angry.
func Dominant(e Emotions) (string, float64) {
	ordered := []struct {
		name  string
		score float64
	}{
		{"Happy", e.Happy},
		{"Sad", e.Sad},
		{"Surprise", e.Surprise},
		{"Angry", e.Angry},
	}
	best := ordered[0]
	for _, o := range ordered[1:] {
		if o.score > best.score {
			best = o
		}
	}
	return best.name, best.score
}

func metricsFor(in Input, teeth bool) Metrics {
	return Metrics{
		FaceWidth:         in.FaceWidth,
		MouthWidth:        in.MouthWidth,
		MouthHeight:       in.MouthHeight,
		MAR:               in.MAR,
		AvgEAR:            in.AvgEAR,
		LeftEAR:           in.LeftEAR,
		RightEAR:          in.RightEAR,
		InnerBrowDistance: in.InnerBrowDistance,
		BrowRatio:         in.BrowRatio,
		AvgBrowToEye:      in.AvgBrowToEye,
		LeftBrowToEye:     in.LeftBrowToEye,
		RightBrowToEye:    in.RightBrowToEye,
		LeftEyeWidth:      in.LeftEyeWidth,
		RightEyeWidth:     in.RightEyeWidth,
		AvgEyeWidth:       in.AvgEyeWidth,
		MouthCurve:        in.MouthCurve,
		LipDistance:       in.LipDistance,
		MouthOpenArea:     in.MouthOpenArea,
		BrowDistancePx:    in.BrowDistancePx,
		BrowDistanceRatio: in.BrowDistanceRatioPx,
		TeethVisible:      teeth,
		LeftEyeOpen:       in.LeftEAR > eyeOpenEAR,
		RightEyeOpen:      in.RightEAR > eyeOpenEAR,
	}
}
