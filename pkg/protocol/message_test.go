package protocol

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/teslashibe/go-emote/pkg/face"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    any
		wantErr bool
	}{
		{"frame message", TypeFrame, FrameData{Width: 640, Height: 480, Format: "jpeg"}, false},
		{"status message", TypeStatus, StatusData{SessionID: "s1", State: "idle"}, false},
		{"nil data", TypePing, nil, false},
		{"unmarshalable data", TypeStatus, func() {}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestParseMessage(t *testing.T) {
	if _, err := ParseMessage([]byte(`{"data":{}}`)); !errors.Is(err, ErrMissingType) {
		t.Errorf("expected ErrMissingType, got %v", err)
	}
	if _, err := ParseMessage([]byte(`not json`)); err == nil {
		t.Error("expected parse error")
	}
	msg, err := ParseMessage([]byte(`{"type":"ping","ts":5}`))
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type != TypePing || msg.Timestamp != 5 {
		t.Errorf("got %+v", msg)
	}
}

func TestFrameMessage(t *testing.T) {
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}

	msg, err := NewFrameMessage(640, 480, jpeg, 7)
	if err != nil {
		t.Fatalf("NewFrameMessage() error = %v", err)
	}
	b, _ := msg.Bytes()
	parsed, err := ParseMessage(b)
	if err != nil {
		t.Fatal(err)
	}

	frame, err := parsed.GetFrameData()
	if err != nil {
		t.Fatalf("GetFrameData() error = %v", err)
	}
	if frame.Width != 640 || frame.FrameID != 7 {
		t.Errorf("got %+v", frame)
	}
	decoded, err := frame.Decode()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(jpeg, decoded); diff != "" {
		t.Errorf("decoded bytes (-want +got):\n%s", diff)
	}

	frame.Format = "h264"
	if _, err := frame.Decode(); err == nil {
		t.Error("expected error for non-jpeg format")
	}
}

func TestLandmarksMessage(t *testing.T) {
	mesh := make(face.Mesh, face.MeshSize)
	mesh[face.LeftEyeOuter] = face.Landmark{X: 0.36, Y: 0.4, Z: -0.01}
	mesh[face.RightEyeOuter] = face.Landmark{X: 0.64, Y: 0.4}

	msg, err := NewLandmarksMessage(mesh, 640, 480, 3)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type != TypeLandmarks {
		t.Errorf("Type = %v", msg.Type)
	}
	data, err := msg.GetLandmarksData()
	if err != nil {
		t.Fatal(err)
	}
	if data.Width != 640 || data.Height != 480 {
		t.Errorf("dims = %vx%v", data.Width, data.Height)
	}
	if diff := cmp.Diff(mesh, data.Mesh()); diff != "" {
		t.Errorf("mesh (-want +got):\n%s", diff)
	}
}

func TestLandmarksData_BadPayload(t *testing.T) {
	msg := &Message{Type: TypeLandmarks, Data: []byte(`{"points":"nope"}`)}
	if _, err := msg.GetLandmarksData(); err == nil {
		t.Error("expected error for malformed points")
	}
}

func TestPongMessage(t *testing.T) {
	msg, err := NewPongMessage("p1", 1000, 1042)
	if err != nil {
		t.Fatal(err)
	}
	var pong PongData
	if err := msg.ParseData(&pong); err != nil {
		t.Fatal(err)
	}
	if pong.LatencyMs != 42 || pong.ID != "p1" {
		t.Errorf("got %+v", pong)
	}
}

func TestErrorMessage(t *testing.T) {
	msg, err := NewErrorMessage(errors.New("bad frame"))
	if err != nil {
		t.Fatal(err)
	}
	var data ErrorData
	msg.ParseData(&data)
	if data.Message != "bad frame" {
		t.Errorf("got %q", data.Message)
	}
}

func TestParseData_Empty(t *testing.T) {
	msg := &Message{Type: TypePing}
	var p PingData
	if err := msg.ParseData(&p); err != nil {
		t.Errorf("empty data should not error, got %v", err)
	}
}
