package webrtc

import (
	"encoding/json"
	"fmt"
)

// Signalling messages follow the GStreamer webrtcsink protocol.

type welcomeMsg struct {
	Type   string `json:"type"`
	PeerID string `json:"peerId"`
}

type producer struct {
	ID   string            `json:"id"`
	Meta map[string]string `json:"meta"`
}

type listMsg struct {
	Type      string     `json:"type"`
	Producers []producer `json:"producers"`
}

type sdpBody struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type iceBody struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

type peerMsg struct {
	Type      string   `json:"type"`
	SessionID string   `json:"sessionId,omitempty"`
	PeerID    string   `json:"peerId,omitempty"`
	SDP       *sdpBody `json:"sdp,omitempty"`
	ICE       *iceBody `json:"ice,omitempty"`
}

func parseWelcome(raw []byte) (string, error) {
	var w welcomeMsg
	if err := json.Unmarshal(raw, &w); err != nil {
		return "", fmt.Errorf("decode welcome: %w", err)
	}
	if w.Type != "welcome" {
		return "", fmt.Errorf("expected welcome, got %q", w.Type)
	}
	return w.PeerID, nil
}

// pickProducer returns the id of the producer whose meta name matches, or
// the only producer when name is empty.
func pickProducer(raw []byte, name string) (string, error) {
	var l listMsg
	if err := json.Unmarshal(raw, &l); err != nil {
		return "", fmt.Errorf("decode list: %w", err)
	}
	if name == "" && len(l.Producers) == 1 {
		return l.Producers[0].ID, nil
	}
	for _, p := range l.Producers {
		if p.Meta["name"] == name {
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("producer %q not found in %d producers", name, len(l.Producers))
}
