package connection

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a single socket. ReadMessage blocks until a text frame arrives or
// the socket fails; after Close it returns an error.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens sockets.
type Dialer interface {
	Dial(ctx context.Context, address string, protocols []string) (Conn, error)
}

// DialerConfig holds transport settings for WebsocketDialer.
type DialerConfig struct {
	HandshakeTimeout time.Duration // Default: 10s
	WriteTimeout     time.Duration // Default: 5s
	ReadLimit        int64         // Default: 1 MiB
	Header           http.Header
}

// DefaultDialerConfig returns default transport settings.
func DefaultDialerConfig() DialerConfig {
	return DialerConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadLimit:        1 << 20,
	}
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	cfg DialerConfig
}

// NewWebsocketDialer creates a Dialer. Zero config fields take defaults.
func NewWebsocketDialer(cfg DialerConfig) *WebsocketDialer {
	d := DefaultDialerConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = d.HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = d.WriteTimeout
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = d.ReadLimit
	}
	return &WebsocketDialer{cfg: cfg}
}

// Dial opens a WebSocket to address, offering protocols as subprotocols.
func (d *WebsocketDialer) Dial(ctx context.Context, address string, protocols []string) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.cfg.HandshakeTimeout,
		Subprotocols:     protocols,
		Proxy:            http.ProxyFromEnvironment,
	}

	conn, resp, err := dialer.DialContext(ctx, address, d.cfg.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", address, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	conn.SetReadLimit(d.cfg.ReadLimit)

	return &wsConn{conn: conn, writeTimeout: d.cfg.WriteTimeout}, nil
}

// ValidateAddress checks that address is an absolute ws or wss URL.
func ValidateAddress(address string) error {
	u, err := url.Parse(address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: scheme %q", ErrInvalidAddress, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidAddress)
	}
	return nil
}

// wsConn adapts *websocket.Conn to Conn.
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	// Write serialization
	writeMu sync.Mutex

	closeOnce sync.Once
}

// ReadMessage returns the next text frame. Binary frames are skipped.
func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.TextMessage {
			return data, nil
		}
	}
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a normal close frame and closes the socket. Safe to call more than once.
func (c *wsConn) Close() error {
	err := ErrClosed
	c.closeOnce.Do(func() {
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = c.conn.Close()
	})
	return err
}

// isCleanClose reports whether err is the peer's normal close handshake.
func isCleanClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
