// Package webrtc receives a remote camera over WebRTC and exposes decoded
// stills as a capture.Source.
//
// Signalling uses the GStreamer webrtcsink websocket protocol: welcome, list,
// startSession, then peer messages carrying SDP and ICE. The first video
// track is depacketized to Annex-B H264 and decoded to JPEG at a fixed
// interval.
package webrtc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtp/codecs"
	pion "github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-emote/pkg/capture"
)

// Config configures the client.
type Config struct {
	// SignallingURL is the websocket URL, e.g. ws://10.0.0.5:8443.
	SignallingURL string

	// ProducerName selects a producer by its meta name. Empty accepts a
	// single anonymous producer.
	ProducerName string

	ConnectTimeout time.Duration
	DecodeInterval time.Duration

	// FrameMaxAge is how old a decoded frame may be when captured.
	FrameMaxAge time.Duration

	Decoder Decoder
	Logger  *slog.Logger
}

// DefaultConfig returns defaults.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 15 * time.Second,
		DecodeInterval: 100 * time.Millisecond,
		FrameMaxAge:    2 * time.Second,
		Logger:         slog.Default(),
	}
}

// Client is a WebRTC-backed capture.Source.
type Client struct {
	cfg    Config
	logger *slog.Logger
	frames *capture.Latest

	ws      *websocket.Conn
	wsMu    sync.Mutex
	pc      *pion.PeerConnection
	trackUp chan struct{}

	mu         sync.Mutex
	peerID     string
	producerID string
	sessionID  string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a client. Call Connect before capturing.
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.DecodeInterval == 0 {
		cfg.DecodeInterval = def.DecodeInterval
	}
	if cfg.Decoder == nil {
		cfg.Decoder = NewFFmpeg()
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "capture.webrtc"),
		frames:  capture.NewLatest(cfg.FrameMaxAge),
		trackUp: make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Connect performs signalling and waits for the video track.
func (c *Client) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, c.cfg.SignallingURL, nil)
	if err != nil {
		return fmt.Errorf("webrtc: signalling connect: %w", err)
	}
	c.ws = ws

	if err := c.handshake(ctx); err != nil {
		return fmt.Errorf("webrtc: %w", err)
	}
	if err := c.createPeerConnection(); err != nil {
		return fmt.Errorf("webrtc: peer connection: %w", err)
	}
	if err := c.send(peerMsg{Type: "startSession", PeerID: c.producerID}); err != nil {
		return fmt.Errorf("webrtc: start session: %w", err)
	}

	c.wg.Add(1)
	go c.readSignalling()

	select {
	case <-c.trackUp:
		c.logger.Info("video connected", "producer", c.producerID)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("webrtc: waiting for video track: %w", ctx.Err())
	}
}

func (c *Client) handshake(ctx context.Context) error {
	deadline, _ := ctx.Deadline()
	c.ws.SetReadDeadline(deadline)
	defer c.ws.SetReadDeadline(time.Time{})

	_, raw, err := c.ws.ReadMessage()
	if err != nil {
		return fmt.Errorf("read welcome: %w", err)
	}
	peerID, err := parseWelcome(raw)
	if err != nil {
		return err
	}

	if err := c.send(peerMsg{Type: "list"}); err != nil {
		return fmt.Errorf("send list: %w", err)
	}
	_, raw, err = c.ws.ReadMessage()
	if err != nil {
		return fmt.Errorf("read list: %w", err)
	}
	producerID, err := pickProducer(raw, c.cfg.ProducerName)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.peerID, c.producerID = peerID, producerID
	c.mu.Unlock()
	c.logger.Debug("signalling handshake done", "peer", peerID, "producer", producerID)
	return nil
}

func (c *Client) createPeerConnection() error {
	pc, err := pion.NewPeerConnection(pion.Configuration{})
	if err != nil {
		return err
	}
	c.pc = pc

	if _, err := pc.AddTransceiverFromKind(pion.RTPCodecTypeVideo, pion.RTPTransceiverInit{
		Direction: pion.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}

	pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		c.logger.Info("track received", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
		if track.Kind() != pion.RTPCodecTypeVideo {
			return
		}
		select {
		case c.trackUp <- struct{}{}:
		default:
		}
		c.wg.Add(1)
		go c.readTrack(track)
	})

	pc.OnICECandidate(func(cand *pion.ICECandidate) {
		if cand == nil {
			return
		}
		c.mu.Lock()
		sid := c.sessionID
		c.mu.Unlock()
		if sid == "" {
			return
		}
		init := cand.ToJSON()
		if err := c.send(peerMsg{
			Type:      "peer",
			SessionID: sid,
			ICE:       &iceBody{Candidate: init.Candidate, SDPMid: init.SDPMid, SDPMLineIndex: init.SDPMLineIndex},
		}); err != nil {
			c.logger.Warn("send ice candidate failed", "error", err)
		}
	})

	pc.OnConnectionStateChange(func(s pion.PeerConnectionState) {
		c.logger.Debug("connection state", "state", s.String())
	})
	return nil
}

func (c *Client) send(m peerMsg) error {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	return c.ws.WriteJSON(m)
}

func (c *Client) readSignalling() {
	defer c.wg.Done()
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Warn("signalling read failed", "error", err)
			}
			return
		}

		var m peerMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			c.logger.Debug("ignoring malformed signalling message", "error", err)
			continue
		}

		switch m.Type {
		case "sessionStarted":
			c.mu.Lock()
			c.sessionID = m.SessionID
			c.mu.Unlock()
		case "peer":
			if err := c.handlePeer(m); err != nil {
				c.logger.Warn("peer message failed", "error", err)
			}
		case "endSession":
			return
		}
	}
}

func (c *Client) handlePeer(m peerMsg) error {
	if m.SDP != nil && m.SDP.Type == "offer" {
		if err := c.pc.SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: m.SDP.SDP}); err != nil {
			return fmt.Errorf("set remote description: %w", err)
		}
		answer, err := c.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := c.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local description: %w", err)
		}
		c.mu.Lock()
		sid := c.sessionID
		c.mu.Unlock()
		if err := c.send(peerMsg{
			Type:      "peer",
			SessionID: sid,
			SDP:       &sdpBody{Type: answer.Type.String(), SDP: answer.SDP},
		}); err != nil {
			return fmt.Errorf("send answer: %w", err)
		}
	}

	if m.ICE != nil {
		if err := c.pc.AddICECandidate(pion.ICECandidateInit{
			Candidate:     m.ICE.Candidate,
			SDPMid:        m.ICE.SDPMid,
			SDPMLineIndex: m.ICE.SDPMLineIndex,
		}); err != nil {
			return fmt.Errorf("add ice candidate: %w", err)
		}
	}
	return nil
}

// readTrack depacketizes RTP into Annex-B H264 and decodes a frame every
// DecodeInterval.
func (c *Client) readTrack(track *pion.TrackRemote) {
	defer c.wg.Done()

	var (
		depack     codecs.H264Packet
		buf        bytes.Buffer
		lastDecode = time.Now()
	)
	for c.ctx.Err() == nil {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Warn("track read failed", "error", err)
			}
			return
		}
		nal, err := depack.Unmarshal(pkt.Payload)
		if err != nil {
			continue
		}
		buf.Write(nal)

		if time.Since(lastDecode) < c.cfg.DecodeInterval {
			continue
		}
		c.decode(buf.Bytes())
		buf.Reset()
		lastDecode = time.Now()
	}
}

func (c *Client) decode(h264 []byte) {
	jpg, err := c.cfg.Decoder.Decode(c.ctx, h264)
	if err != nil {
		c.logger.Warn("decode failed", "error", err)
		return
	}
	if len(jpg) == 0 {
		return
	}
	c.frames.Put(capture.Image{Data: jpg})
}

// Capture returns the most recent decoded frame.
func (c *Client) Capture(ctx context.Context) (capture.Image, error) {
	return c.frames.Capture(ctx)
}

// Close tears down the peer connection and signalling.
func (c *Client) Close() error {
	c.cancel()
	var errs []error
	if c.pc != nil {
		errs = append(errs, c.pc.Close())
	}
	if c.ws != nil {
		errs = append(errs, c.ws.Close())
	}
	c.frames.Close()
	c.wg.Wait()
	return errors.Join(errs...)
}

var _ capture.Source = (*Client)(nil)
