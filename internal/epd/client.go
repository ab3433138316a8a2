// Package epd implements the single process-wide connection to the
// end-point-detection engine: a persistent binary WebSocket that frames
// outbound [session_id‖pcm] and demuxes inbound JSON status events to a
// registered callback, with auto-reconnect and heartbeat.
package epd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/wawa9149/speech-gateway/internal/models"
)

// Handler is invoked once per inbound EPD status frame, in receive order.
type Handler func(models.EpdEvent)

// Config holds the EPD client's dial and keepalive settings.
type Config struct {
	URL               string
	ReconnectInterval time.Duration
	HeartbeatInterval time.Duration
}

// Client is the shared duplex connection to the EPD engine. A process runs
// exactly one Client; SessionManager calls Send per chunk and registers one
// Handler for all sessions' status events.
type Client struct {
	cfg Config

	connectOnce singleflight.Group
	reconnectRL *rate.Limiter

	mu       sync.RWMutex
	conn     *websocket.Conn
	writeMu  sync.Mutex
	handler  Handler
	shutdown bool

	dialer *websocket.Dialer
}

// New creates a client for the given configuration. It does not dial until
// Connect is called.
func New(cfg Config) *Client {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 3 * time.Second
	}
	return &Client{
		cfg: cfg,
		// Allow at most one reconnect attempt per ReconnectInterval, with a
		// burst of 1 — reconnection is paced, not hammered.
		reconnectRL: rate.NewLimiter(rate.Every(cfg.ReconnectInterval), 1),
		dialer:      websocket.DefaultDialer,
	}
}

// OnStatus registers the callback that receives every decoded inbound
// status event, in receive order. Must be called before Connect.
func (c *Client) OnStatus(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Connect dials the EPD engine if not already connected. Concurrent callers
// collapse into a single dial via singleflight.
func (c *Client) Connect(ctx context.Context) error {
	_, err, _ := c.connectOnce.Do("connect", func() (interface{}, error) {
		if c.isOpen() {
			return nil, nil
		}
		return nil, c.dial(ctx)
	})
	return err
}

func (c *Client) dial(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, http.Header{})
	if err != nil {
		return fmt.Errorf("epd: dial %s: %w", c.cfg.URL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.heartbeatLoop(conn)
	go c.readLoop(conn)
	return nil
}

// isOpen reports whether a connection is currently installed. It does not
// guarantee the peer hasn't dropped it — only readLoop learns that.
func (c *Client) isOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Connected reports whether the client currently holds a live connection to
// the EPD engine. The admin server's readiness probe uses this: a gateway
// with no EPD connection can accept traffic but can't segment it.
func (c *Client) Connected() bool {
	return c.isOpen()
}

// Send transmits one binary frame: 16 raw session-id bytes followed by the
// PCM chunk verbatim. Fails silently if not open — the caller treats the
// chunk as dropped and relies on the EPD event stream for timing.
func (c *Client) Send(sessionID string, chunk []byte) error {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return fmt.Errorf("epd: invalid session id %q: %w", sessionID, err)
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return nil
	}

	frame := make([]byte, 16+len(chunk))
	raw, _ := id.MarshalBinary()
	copy(frame, raw)
	copy(frame[16:], chunk)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return nil // dropped; no retry semantics for audio frames
	}
	return nil
}

func (c *Client) heartbeatLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for range ticker.C {
		c.mu.RLock()
		current := c.conn
		c.mu.RUnlock()
		if current != conn {
			return
		}
		c.writeMu.Lock()
		err := conn.WriteMessage(websocket.PingMessage, nil)
		c.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.onDisconnect(conn)
			return
		}

		var ev models.EpdEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			continue // malformed frame, discard
		}

		c.mu.RLock()
		h := c.handler
		c.mu.RUnlock()
		if h != nil {
			h(ev)
		}
	}
}

func (c *Client) onDisconnect(conn *websocket.Conn) {
	c.mu.Lock()
	wasShutdown := c.shutdown
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()

	if wasShutdown {
		return
	}

	c.mu.Lock()
	c.connectOnce = singleflight.Group{}
	c.mu.Unlock()
	go c.scheduleReconnect()
}

func (c *Client) scheduleReconnect() {
	ctx := context.Background()
	for {
		if err := c.reconnectRL.Wait(ctx); err != nil {
			return
		}
		c.mu.RLock()
		shutdown := c.shutdown
		c.mu.RUnlock()
		if shutdown {
			return
		}
		if err := c.Connect(ctx); err == nil {
			return
		}
	}
}

// Close shuts the client down. Subsequent disconnects do not trigger
// reconnection.
func (c *Client) Close() error {
	c.mu.Lock()
	c.shutdown = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// ErrNotConnected is returned by callers that require an active connection
// before proceeding (e.g. startup fan-out).
var ErrNotConnected = errors.New("epd: not connected")
