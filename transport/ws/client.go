// Package ws receives the media packet stream over a WebSocket connection.
//
// The client owns connection lifecycle only: it dials, hands every data
// frame to a handler and redials with exponential backoff when the
// connection drops. It never interprets frame contents.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pithecene-io/mediasync/iox"
	"github.com/pithecene-io/mediasync/log"
	"github.com/pithecene-io/mediasync/wire"
)

// Defaults for Config.
const (
	DefaultBackoff          = 500 * time.Millisecond
	DefaultMaxBackoff       = 10 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
)

// Frame is one data message read from the connection.
type Frame struct {
	Data []byte
	// Binary is true for binary frames (msgpack), false for text (JSON).
	Binary       bool
	ConnectionID string
	ReceivedAt   time.Time
}

// Handler consumes frames. It is called from the read loop and must not
// block for long.
type Handler func(Frame)

// Config configures a Client.
type Config struct {
	// URL is the ws:// or wss:// endpoint.
	URL string
	// Header is sent with the handshake.
	Header http.Header
	// MaxAttempts bounds consecutive failed connection attempts before Run
	// gives up. Zero means a single attempt and no reconnect.
	MaxAttempts int
	// Backoff is the delay before the first redial; it doubles up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
	// HandshakeTimeout bounds the opening handshake.
	HandshakeTimeout time.Duration
	// ReadTimeout closes an idle connection. Zero disables it.
	ReadTimeout time.Duration
	// OnConnect is called with the id of each established connection.
	OnConnect func(connectionID string)
	Logger    *log.Logger
}

// TransportError reports that the connection could not be (re)established.
type TransportError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("websocket %s: giving up after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError returns true if err is a *TransportError.
func IsTransportError(err error) bool {
	var tErr *TransportError
	return errors.As(err, &tErr)
}

// Stats are connection counters.
type Stats struct {
	Connects      int64
	Reconnects    int64
	Frames        int64
	Bytes         int64
	LastConnected time.Time
	ConnectionID  string
}

// Client is a reconnecting WebSocket reader.
type Client struct {
	config Config
	dialer *websocket.Dialer
	logger *log.Logger

	mu        sync.Mutex
	stats     Stats
	lastError error
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("websocket client requires a URL")
	}
	if cfg.MaxAttempts < 0 {
		return nil, fmt.Errorf("max attempts must be >= 0, got %d", cfg.MaxAttempts)
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.MaxBackoff < cfg.Backoff {
		cfg.MaxBackoff = max(DefaultMaxBackoff, cfg.Backoff)
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}

	return &Client{
		config: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   64 * 1024,
		},
		logger: cfg.Logger,
	}, nil
}

// Stats returns a copy of the connection counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Run reads frames until the stream ends.
//
// Returns:
//   - nil: the server closed the stream normally
//   - ctx.Err(): the context was canceled
//   - *TransportError: the connection could not be (re)established
func (c *Client) Run(ctx context.Context, handler Handler) error {
	failures := 0
	connected := false

	for {
		if failures > 0 {
			if failures > c.config.MaxAttempts {
				return &TransportError{URL: c.config.URL, Attempts: failures, Err: c.lastErr(ctx)}
			}
			if err := c.wait(ctx, failures); err != nil {
				return err
			}
		}

		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			c.setLastErr(err)
			c.logger.Warn("websocket dial failed", map[string]any{
				"url":     c.config.URL,
				"attempt": failures,
				"error":   err.Error(),
			})
			continue
		}

		connID := uuid.NewString()
		c.recordConnect(connID, connected)
		connected = true
		failures = 0
		c.logger.Info("websocket connected", map[string]any{
			"url":           c.config.URL,
			"connection_id": connID,
		})
		if c.config.OnConnect != nil {
			c.config.OnConnect(connID)
		}

		err = c.readLoop(ctx, conn, connID, handler)
		switch {
		case err == nil:
			c.logger.Info("websocket stream ended", map[string]any{"connection_id": connID})
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		}

		failures++
		c.setLastErr(err)
		c.logger.Warn("websocket connection lost", map[string]any{
			"connection_id": connID,
			"error":         err.Error(),
		})
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.config.URL, c.config.Header)
	if resp != nil {
		iox.DrainClose(resp.Body)
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}
	conn.SetReadLimit(wire.MaxMessageSize)
	return conn, nil
}

// readLoop returns nil on a normal close frame and the read error otherwise.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, connID string, handler Handler) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			_ = conn.Close()
		case <-done:
			_ = conn.Close()
		}
	}()

	for {
		if c.config.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		}
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		c.mu.Lock()
		c.stats.Frames++
		c.stats.Bytes += int64(len(data))
		c.mu.Unlock()

		handler(Frame{
			Data:         data,
			Binary:       msgType == websocket.BinaryMessage,
			ConnectionID: connID,
			ReceivedAt:   time.Now(),
		})
	}
}

// wait sleeps for the backoff before redial attempt n (1-based).
func (c *Client) wait(ctx context.Context, n int) error {
	d := c.config.Backoff << uint(min(n-1, 16))
	if d > c.config.MaxBackoff || d <= 0 {
		d = c.config.MaxBackoff
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) recordConnect(connID string, reconnect bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Connects++
	if reconnect {
		c.stats.Reconnects++
	}
	c.stats.ConnectionID = connID
	c.stats.LastConnected = time.Now()
}

func (c *Client) setLastErr(err error) {
	c.mu.Lock()
	c.lastError = err
	c.mu.Unlock()
}

func (c *Client) lastErr(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastError == nil {
		return ctx.Err()
	}
	return c.lastError
}
