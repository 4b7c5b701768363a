package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/rickgao/topicfeed/internal/protocol"
	"github.com/rickgao/topicfeed/internal/router"
)

// Manager keeps one logical stream connection alive. It is safe for
// concurrent use.
type Manager struct {
	cfg      Config
	dialer   Dialer
	clock    clock.Clock
	logger   *slog.Logger
	observer Observer
	sinks    []*router.GrowableBuffer[router.Update]
	router   *router.Router

	mu          sync.Mutex
	state       State
	gen         uint64 // bumped on every connection attempt
	sock        *socket
	cancelDial  context.CancelFunc
	manualClose bool
	attempt     int // reconnect counter, reset on open
	subs        *subscriptionSet

	heartbeatTimer timerSlot
	pongTimer      timerSlot
	reconnectTimer timerSlot

	// Stats
	reconnects   int64
	opens        int64
	pongTimeouts int64
	lastOpenAt   time.Time
}

// socket is one open connection. Events from a socket that is no longer
// m.sock are ignored.
type socket struct {
	id      string
	conn    Conn
	logger  *slog.Logger
	closing bool // close requested locally
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialer replaces the gorilla/websocket dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithClock replaces the wall clock used for timers.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithObserver registers an Observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// WithUpdateSinks forwards every topic update to each buffer.
func WithUpdateSinks(sinks ...*router.GrowableBuffer[router.Update]) Option {
	return func(m *Manager) { m.sinks = append(m.sinks, sinks...) }
}

// NewManager creates a Manager in StateIdle. Call Connect to start it.
func NewManager(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:  cfg.withDefaults(),
		subs: newSubscriptionSet(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		m.dialer = NewWebsocketDialer(DefaultDialerConfig())
	}
	if m.clock == nil {
		m.clock = clock.New()
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.observer == nil {
		m.observer = nopObserver{}
	}
	m.router = router.NewRouter(router.NewCache(), m.logger, m.sinks...)
	return m
}

// Connect starts or restarts the connection. Pending timers are cleared, any
// current socket is discarded and the manual-close flag is reset. Failures are
// retried in the background and never returned.
func (m *Manager) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.manualClose = false
	m.connect()
}

// Close stops the connection and suppresses reconnects until the next Connect.
// Calling Close again is a no-op.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.manualClose {
		return
	}
	m.manualClose = true
	m.clearTimers()
	m.setState(StateClosing)
	m.logger.Info("closing stream", "address", m.cfg.Address)

	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}

	if s := m.sock; s != nil {
		// The socket's close event moves the state to closed.
		s.closing = true
		s.conn.Close()
		return
	}

	m.gen++
	m.setState(StateClosed)
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Send writes message if the stream is open. []byte and json.RawMessage are
// written as is; anything else is encoded as JSON. Returns false if the stream
// is not open or the write fails. Nothing is queued.
func (m *Manager) Send(message any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.write(message); err != nil {
		m.logger.Debug("send dropped", "state", m.state, "error", err)
		return false
	}
	return true
}

// Subscribe adds topic to the replay set and subscribes now if open.
func (m *Manager) Subscribe(topic string) {
	m.SubscribeWith(topic, nil)
}

// SubscribeWith is Subscribe with a payload sent alongside the topic on every
// subscribe, including replays.
func (m *Manager) SubscribeWith(topic string, params any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.subs.add(topic, params)
	if m.state != StateOpen {
		return
	}
	if err := m.write(protocol.Subscribe(topic, params)); err != nil {
		m.logger.Warn("subscribe not sent", "topic", topic, "error", err)
	}
}

// Unsubscribe removes topic from the replay set and unsubscribes now if open.
// The cached value for topic is kept.
func (m *Manager) Unsubscribe(topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.subs.remove(topic)
	if m.state != StateOpen {
		return
	}
	if err := m.write(protocol.Unsubscribe(topic)); err != nil {
		m.logger.Warn("unsubscribe not sent", "topic", topic, "error", err)
	}
}

// Subscriptions returns the replay set in sorted order.
func (m *Manager) Subscriptions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs.sorted()
}

// Select returns the last payload received for topic. The bool is false if
// topic has never been seen. A topic last seen without a payload returns nil, true.
func (m *Manager) Select(topic string) (json.RawMessage, bool) {
	e, ok := m.router.Cache().Get(topic)
	return e.Payload, ok
}

// SelectEntry is Select with the entry's metadata.
func (m *Manager) SelectEntry(topic string) (router.Entry, bool) {
	return m.router.Cache().Get(topic)
}

// Topics returns every topic with a cached value, sorted.
func (m *Manager) Topics() []string {
	return m.router.Cache().Topics()
}

// Stats returns a snapshot of the manager's counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		State:         m.state,
		Address:       m.cfg.Address,
		Reconnects:    m.reconnects,
		Attempt:       m.attempt,
		Opens:         m.opens,
		PongTimeouts:  m.pongTimeouts,
		Subscriptions: m.subs.len(),
		CachedTopics:  m.router.Cache().Len(),
		LastOpenAt:    m.lastOpenAt,
		Routing:       m.router.Stats(),
	}
}

// connect begins a new attempt. Must be called with m.mu held.
func (m *Manager) connect() {
	m.clearTimers()
	m.discardSocket()
	m.gen++
	gen := m.gen
	m.setState(StateConnecting)

	if err := ValidateAddress(m.cfg.Address); err != nil {
		m.logger.Error("cannot open stream", "address", m.cfg.Address, "error", err)
		m.setState(StateError)
		m.scheduleReconnect()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelDial = cancel
	go m.dial(ctx, cancel, gen)
}

func (m *Manager) dial(ctx context.Context, cancel context.CancelFunc, gen uint64) {
	defer cancel()

	conn, err := m.dialer.Dial(ctx, m.cfg.Address, m.cfg.Protocols)

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		// Superseded by Connect or Close while dialing.
		if conn != nil {
			conn.Close()
		}
		return
	}
	m.cancelDial = nil

	if err != nil {
		m.logger.Warn("dial failed", "address", m.cfg.Address, "attempt", m.attempt, "error", err)
		m.setState(StateError)
		m.handleClose()
		return
	}
	m.open(conn)
}

// open installs conn as the current socket. Must be called with m.mu held.
func (m *Manager) open(conn Conn) {
	id := uuid.NewString()
	s := &socket{
		id:     id,
		conn:   conn,
		logger: m.logger.With("conn_id", id),
	}
	m.sock = s
	m.attempt = 0
	m.opens++
	m.lastOpenAt = m.clock.Now()
	m.setState(StateOpen)

	s.logger.Info("stream connected", "address", m.cfg.Address, "subscriptions", m.subs.len())

	m.startHeartbeat()
	m.replayAll()

	go m.readLoop(s)
}

func (m *Manager) replayAll() {
	for _, topic := range m.subs.sorted() {
		if err := m.write(protocol.Subscribe(topic, m.subs.params(topic))); err != nil {
			m.logger.Warn("replay subscribe failed", "topic", topic, "error", err)
			return
		}
	}
}

func (m *Manager) readLoop(s *socket) {
	for {
		data, err := s.conn.ReadMessage()
		if err != nil {
			m.socketFailed(s, err)
			return
		}
		m.socketMessage(s, data)
	}
}

func (m *Manager) socketMessage(s *socket, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sock != s {
		return
	}
	kind := m.router.Route(data, m.clock.Now())
	if kind == router.KindPong {
		m.resolvePong()
	}
	m.observer.FrameRouted(kind)
}

func (m *Manager) socketFailed(s *socket, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sock != s {
		return
	}
	s.conn.Close()
	m.sock = nil

	if s.closing || isCleanClose(err) {
		s.logger.Info("stream closed", "reason", err)
	} else {
		s.logger.Warn("stream error", "error", err)
		m.setState(StateError)
	}
	m.handleClose()
}

// handleClose settles a finished socket or failed dial.
func (m *Manager) handleClose() {
	m.setState(StateClosed)
	m.stopHeartbeat()
	m.scheduleReconnect()
}

func (m *Manager) scheduleReconnect() {
	if m.manualClose {
		return
	}
	m.attempt++
	m.reconnects++
	delay := ReconnectDelay(m.attempt, m.cfg.ReconnectBaseDelay, m.cfg.MaxReconnectDelay)
	m.arm(&m.reconnectTimer, delay, m.connect)

	m.observer.ReconnectScheduled(m.attempt, delay)
	m.logger.Info("reconnect scheduled", "address", m.cfg.Address, "attempt", m.attempt, "delay", delay)
}

// discardSocket drops the current socket and any in-flight dial without
// routing their close events.
func (m *Manager) discardSocket() {
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	if s := m.sock; s != nil {
		s.closing = true
		s.conn.Close()
		m.sock = nil
	}
}

// write sends one frame on the open socket. Must be called with m.mu held.
func (m *Manager) write(message any) error {
	if m.state != StateOpen || m.sock == nil {
		return ErrNotOpen
	}
	data, err := encode(message)
	if err != nil {
		return err
	}
	if err := m.sock.conn.WriteMessage(data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func encode(message any) ([]byte, error) {
	switch v := message.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		return protocol.Encode(v)
	}
}

func (m *Manager) setState(next State) {
	if m.state == next {
		return
	}
	prev := m.state
	m.state = next
	m.observer.StateChanged(prev, next)
}
