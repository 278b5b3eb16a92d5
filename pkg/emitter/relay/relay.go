// Package relay forwards emitter events to a realtime messaging server over a
// websocket. Each event is written as {"event": name, "data": payload}.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-emote/pkg/emitter"
)

// Config configures the relay.
type Config struct {
	URL          string
	Header       http.Header
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// DefaultConfig returns defaults.
func DefaultConfig() Config {
	return Config{
		DialTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		Logger:       slog.Default(),
	}
}

type envelope struct {
	Event string          `json:"event"`
	Data  emitter.Payload `json:"data"`
}

// Relay is an emitter.Channel backed by a websocket. The connection is dialed
// on first use and redialed on the next emit after a failure.
type Relay struct {
	cfg    Config
	logger *slog.Logger
	dialer *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// New creates a relay for url.
func New(url string, opts ...Option) *Relay {
	cfg := DefaultConfig()
	cfg.URL = url
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Relay{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "emitter.relay"),
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout},
	}
}

// Option configures a Relay.
type Option func(*Config)

// WithHeader sets headers sent on dial, e.g. Authorization.
func WithHeader(h http.Header) Option {
	return func(c *Config) { c.Header = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Emit writes the event, dialing first if needed.
func (r *Relay) Emit(ctx context.Context, event string, p emitter.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.conn == nil {
		dctx, cancel := context.WithTimeout(ctx, r.cfg.DialTimeout)
		conn, _, err := r.dialer.DialContext(dctx, r.cfg.URL, r.cfg.Header)
		cancel()
		if err != nil {
			return fmt.Errorf("relay: dial %s: %w", r.cfg.URL, err)
		}
		r.conn = conn
		r.logger.Info("connected", "url", r.cfg.URL)
		go r.readLoop(conn)
	}

	deadline := time.Now().Add(r.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	r.conn.SetWriteDeadline(deadline)
	if err := r.conn.WriteJSON(envelope{Event: event, Data: p}); err != nil {
		r.conn.Close()
		r.conn = nil
		return fmt.Errorf("relay: write %s: %w", event, err)
	}
	return nil
}

// readLoop drains conn so pings are answered and a close from the server is
// seen. Data frames are discarded. On error the connection is dropped and the
// next Emit redials.
func (r *Relay) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.NextReader(); err != nil {
			r.mu.Lock()
			if r.conn == conn {
				r.conn = nil
				conn.Close()
				r.logger.Warn("disconnected", "url", r.cfg.URL, "error", err)
			}
			r.mu.Unlock()
			return
		}
	}
}

// Close closes the connection. Further emits fail with ErrClosed.
func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.conn == nil {
		return nil
	}
	r.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	err := r.conn.Close()
	r.conn = nil
	return err
}

var _ emitter.Channel = (*Relay)(nil)
