package connection

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rickgao/topicfeed/internal/router"
)

// Errors
var (
	ErrInvalidAddress = errors.New("invalid stream address")
	ErrNotOpen        = errors.New("stream not open")
	ErrClosed         = errors.New("connection closed")
)

// State is the lifecycle state of a Manager.
//
// Transitions:
//
//	idle       -> connecting            (Connect)
//	connecting -> open | error          (dial result)
//	open       -> error | closed        (transport error, socket close)
//	error      -> closed | connecting   (close event, reconnect timer)
//	closed     -> connecting            (reconnect timer, Connect)
//	any        -> closing -> closed     (Close)
type State uint8

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// States lists every State in declaration order.
var States = []State{StateIdle, StateConnecting, StateOpen, StateClosing, StateClosed, StateError}

// Config holds Manager settings. Zero fields take the defaults from DefaultConfig.
type Config struct {
	Address   string
	Protocols []string

	HeartbeatInterval  time.Duration // Default: 30s
	PongTimeout        time.Duration // Default: 5s
	ReconnectBaseDelay time.Duration // Default: 1s
	MaxReconnectDelay  time.Duration // Default: 30s
}

// DefaultConfig returns the default timing settings.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:  30 * time.Second,
		PongTimeout:        5 * time.Second,
		ReconnectBaseDelay: time.Second,
		MaxReconnectDelay:  30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = d.PongTimeout
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = d.ReconnectBaseDelay
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = d.MaxReconnectDelay
	}
	return c
}

// Stats is a point-in-time view of a Manager.
type Stats struct {
	State         State
	Address       string
	Reconnects    int64 // reconnects scheduled since construction
	Attempt       int   // current reconnect counter
	Opens         int64
	PongTimeouts  int64
	Subscriptions int
	CachedTopics  int
	LastOpenAt    time.Time
	Routing       router.Stats
}

// Observer receives Manager events. Methods are called with the Manager's lock
// held and must not call back into the Manager.
type Observer interface {
	StateChanged(from, to State)
	ReconnectScheduled(attempt int, delay time.Duration)
	FrameRouted(kind router.Kind)
	PongTimeout()
}

type nopObserver struct{}

func (nopObserver) StateChanged(State, State) {}
func (nopObserver) ReconnectScheduled(int, time.Duration) {}
func (nopObserver) FrameRouted(router.Kind) {}
func (nopObserver) PongTimeout() {}

// Stream is the surface a Manager exposes to consumers that share it.
type Stream interface {
	State() State
	Select(topic string) (json.RawMessage, bool)
	Subscribe(topic string)
	Unsubscribe(topic string)
	Send(message any) bool
	Close()
}

var _ Stream = (*Manager)(nil)
