package protocol

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/teslashibe/go-emote/pkg/face"
)

// ErrMissingType is returned for envelopes without a type.
var ErrMissingType = errors.New("protocol: message has no type")

// FrameData carries a JPEG still
type FrameData struct {
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Format  string `json:"format"` // "jpeg"
	Data    string `json:"data"`   // base64
	FrameID uint64 `json:"frame_id,omitempty"`
}

// LandmarksData carries a unit-normalized face mesh. Width and Height are
// the dimensions of the image it was normalized against.
type LandmarksData struct {
	Points  [][3]float64 `json:"points"`
	Width   float64      `json:"width"`
	Height  float64      `json:"height"`
	FrameID uint64       `json:"frame_id,omitempty"`
}

// StatusData reports a session's state change
type StatusData struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	Label     string `json:"label,omitempty"`
	Clarity   int    `json:"clarity,omitempty"`
}

// ErrorData reports a rejected message back to its sender
type ErrorData struct {
	Message string `json:"message"`
}

// PingData is sent by either side
type PingData struct {
	ID string `json:"id,omitempty"`
}

// PongData answers a ping
type PongData struct {
	ID        string `json:"id,omitempty"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}

// NewFrameMessage creates a frame message from JPEG bytes
func NewFrameMessage(width, height int, jpeg []byte, frameID uint64) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		Width:   width,
		Height:  height,
		Format:  "jpeg",
		Data:    base64.StdEncoding.EncodeToString(jpeg),
		FrameID: frameID,
	})
}

// NewLandmarksMessage creates a landmarks message from a mesh
func NewLandmarksMessage(m face.Mesh, width, height float64, frameID uint64) (*Message, error) {
	pts := make([][3]float64, len(m))
	for i, p := range m {
		pts[i] = [3]float64{p.X, p.Y, p.Z}
	}
	return NewMessage(TypeLandmarks, LandmarksData{Points: pts, Width: width, Height: height, FrameID: frameID})
}

// NewErrorMessage creates an error message
func NewErrorMessage(err error) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Message: err.Error()})
}

// NewPongMessage creates a pong response
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// GetFrameData extracts frame data
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Decode returns the raw image bytes
func (f *FrameData) Decode() ([]byte, error) {
	if f.Format != "" && f.Format != "jpeg" {
		return nil, fmt.Errorf("protocol: unsupported frame format %q", f.Format)
	}
	return base64.StdEncoding.DecodeString(f.Data)
}

// GetLandmarksData extracts landmarks data
func (m *Message) GetLandmarksData() (*LandmarksData, error) {
	var data LandmarksData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Mesh converts the points to a face mesh. Shape is not validated here.
func (l *LandmarksData) Mesh() face.Mesh {
	m := make(face.Mesh, len(l.Points))
	for i, p := range l.Points {
		m[i] = face.Landmark{X: p[0], Y: p[1], Z: p[2]}
	}
	return m
}

// GetPingData extracts ping data
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
