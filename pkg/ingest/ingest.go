// Package ingest accepts device websocket connections that push JPEG stills
// or precomputed landmarks for a session.
//
// Frames land in a per-device single-slot buffer exposed as a
// capture.Source, so a session polls a pushing device the same way it polls
// a local camera. Landmarks bypass capture and go to a handler.
package ingest

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-emote/pkg/capture"
	"github.com/teslashibe/go-emote/pkg/protocol"
)

// LandmarksHandler receives pushed landmarks for a device.
type LandmarksHandler func(ctx context.Context, deviceID string, l *protocol.LandmarksData) error

// Device is a connected pusher.
type Device struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time

	mu sync.Mutex
}

// Send writes a message to the device.
func (d *Device) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Conn.WriteMessage(websocket.TextMessage, data)
}

// Hub tracks devices and their frame buffers.
type Hub struct {
	logger      *slog.Logger
	frameMaxAge time.Duration
	onLandmarks LandmarksHandler

	mu      sync.RWMutex
	devices map[string]*Device
	frames  map[string]*capture.Latest

	messagesReceived  atomic.Uint64
	framesReceived    atomic.Uint64
	landmarksReceived atomic.Uint64
	rejected          atomic.Uint64
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// WithFrameMaxAge sets how old a pushed frame may be when a session
// captures it.
func WithFrameMaxAge(d time.Duration) Option {
	return func(h *Hub) { h.frameMaxAge = d }
}

// WithLandmarksHandler sets the handler for landmarks messages.
func WithLandmarksHandler(fn LandmarksHandler) Option {
	return func(h *Hub) { h.onLandmarks = fn }
}

// New creates an ingest hub.
func New(opts ...Option) *Hub {
	h := &Hub{
		logger:      slog.Default(),
		frameMaxAge: 2 * time.Second,
		devices:     make(map[string]*Device),
		frames:      make(map[string]*capture.Latest),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "ingest")
	return h
}

// Source returns the frame source for deviceID. The buffer exists before
// the device connects and survives reconnects.
func (h *Hub) Source(deviceID string) capture.Source {
	return h.buffer(deviceID)
}

func (h *Hub) buffer(deviceID string) *capture.Latest {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.frames[deviceID]
	if !ok {
		l = capture.NewLatest(h.frameMaxAge)
		h.frames[deviceID] = l
	}
	return l
}

// RegisterRoutes mounts the device endpoint at /ws/ingest/:id.
func (h *Hub) RegisterRoutes(app fiber.Router) {
	app.Use("/ws/ingest", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/ingest/:id", websocket.New(h.handleDevice))
}

// RegisterAPIRoutes mounts device listing under api.
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	api.Get("/devices", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"devices": h.DeviceInfos(),
			"stats":   h.Stats(),
		})
	})
}

func (h *Hub) handleDevice(c *websocket.Conn) {
	id := c.Params("id")
	now := time.Now()
	dev := &Device{ID: id, Conn: c, Connected: now, LastSeen: now}

	h.mu.Lock()
	if old, ok := h.devices[id]; ok {
		old.Conn.Close()
	}
	h.devices[id] = dev
	count := len(h.devices)
	h.mu.Unlock()
	h.logger.Info("device connected", "device", id, "devices", count)

	defer func() {
		h.mu.Lock()
		if h.devices[id] == dev {
			delete(h.devices, id)
		}
		count := len(h.devices)
		h.mu.Unlock()
		h.logger.Info("device disconnected", "device", id, "devices", count)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			h.logger.Debug("device read ended", "device", id, "error", err)
			return
		}
		dev.mu.Lock()
		dev.LastSeen = time.Now()
		dev.mu.Unlock()

		h.messagesReceived.Add(1)
		if reply := h.handleMessage(id, data); reply != nil {
			if err := dev.Send(reply); err != nil {
				h.logger.Warn("reply failed", "device", id, "error", err)
				return
			}
		}
	}
}

// handleMessage dispatches one message and returns the reply, if any.
func (h *Hub) handleMessage(deviceID string, data []byte) *protocol.Message {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		return h.reject(deviceID, err)
	}

	switch msg.Type {
	case protocol.TypeFrame:
		frame, err := msg.GetFrameData()
		if err != nil {
			return h.reject(deviceID, err)
		}
		jpg, err := frame.Decode()
		if err != nil {
			return h.reject(deviceID, err)
		}
		h.framesReceived.Add(1)
		h.buffer(deviceID).Put(capture.Image{Data: jpg, Width: frame.Width, Height: frame.Height})

	case protocol.TypeLandmarks:
		l, err := msg.GetLandmarksData()
		if err != nil {
			return h.reject(deviceID, err)
		}
		h.landmarksReceived.Add(1)
		if h.onLandmarks == nil {
			return nil
		}
		if err := h.onLandmarks(context.Background(), deviceID, l); err != nil {
			return h.reject(deviceID, err)
		}

	case protocol.TypePing:
		var id string
		if ping, err := msg.GetPingData(); err == nil {
			id = ping.ID
		}
		reply, _ := protocol.NewPongMessage(id, msg.Timestamp, time.Now().UnixMilli())
		return reply

	default:
		h.logger.Debug("ignoring message", "device", deviceID, "type", msg.Type)
	}
	return nil
}

func (h *Hub) reject(deviceID string, err error) *protocol.Message {
	h.rejected.Add(1)
	h.logger.Warn("rejected message", "device", deviceID, "error", err)
	reply, _ := protocol.NewErrorMessage(err)
	return reply
}

// DeviceInfo describes a connected device.
type DeviceInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// DeviceInfos lists connected devices.
func (h *Hub) DeviceInfos() []DeviceInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]DeviceInfo, 0, len(h.devices))
	for _, d := range h.devices {
		d.mu.Lock()
		out = append(out, DeviceInfo{ID: d.ID, Connected: d.Connected, LastSeen: d.LastSeen})
		d.mu.Unlock()
	}
	return out
}

// DeviceCount returns the number of connected devices.
func (h *Hub) DeviceCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.devices)
}

// Stats are ingest counters.
type Stats struct {
	Devices           int    `json:"devices"`
	MessagesReceived  uint64 `json:"messages_received"`
	FramesReceived    uint64 `json:"frames_received"`
	LandmarksReceived uint64 `json:"landmarks_received"`
	Rejected          uint64 `json:"rejected"`
}

// Stats returns current counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Devices:           h.DeviceCount(),
		MessagesReceived:  h.messagesReceived.Load(),
		FramesReceived:    h.framesReceived.Load(),
		LandmarksReceived: h.landmarksReceived.Load(),
		Rejected:          h.rejected.Load(),
	}
}

// Close closes every frame buffer, waking sessions blocked in Capture.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, l := range h.frames {
		l.Close()
	}
	return nil
}
