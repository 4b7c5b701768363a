package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/topicfeed/internal/router"
)

const testAddress = "ws://stream.test/feed"

var errConnClosed = errors.New("use of closed connection")

// fakeConn is an in-memory Conn.
type fakeConn struct {
	mu       sync.Mutex
	written  []string
	attempts int
	writeErr error
	readErr  error

	inbound chan []byte
	done    chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 64),
		done:    make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case <-c.done:
		return nil, c.closeErr()
	default:
	}
	select {
	case data := <-c.inbound:
		return data, nil
	case <-c.done:
		return nil, c.closeErr()
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, string(data))
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// push delivers a frame from the server.
func (c *fakeConn) push(frame string) {
	c.inbound <- []byte(frame)
}

// fail ends the socket from the server side with err.
func (c *fakeConn) fail(err error) {
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
	c.Close()
}

func (c *fakeConn) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return c.readErr
	}
	return errConnClosed
}

func (c *fakeConn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *fakeConn) frames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.written...)
}

func (c *fakeConn) writeAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *fakeConn) setWriteErr(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

func (c *fakeConn) count(frame string) int {
	n := 0
	for _, f := range c.frames() {
		if f == frame {
			n++
		}
	}
	return n
}

// fakeDialer hands out fakeConns.
type fakeDialer struct {
	mu        sync.Mutex
	conns     []*fakeConn
	dials     int
	err       error
	gate      chan struct{} // when set, Dial waits for it to close and ignores ctx
	addresses []string
	protocols [][]string
}

func (d *fakeDialer) Dial(ctx context.Context, address string, protocols []string) (Conn, error) {
	d.mu.Lock()
	d.dials++
	d.addresses = append(d.addresses, address)
	d.protocols = append(d.protocols, protocols)
	gate, err := d.gate, d.err
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}

	c := newFakeConn()
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) setErr(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

// recordingObserver keeps every event it sees.
type recordingObserver struct {
	mu           sync.Mutex
	transitions  []string
	delays       []time.Duration
	kinds        []router.Kind
	pongTimeouts int
}

func (o *recordingObserver) StateChanged(from, to State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, fmt.Sprintf("%s->%s", from, to))
}

func (o *recordingObserver) ReconnectScheduled(attempt int, delay time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delays = append(o.delays, delay)
}

func (o *recordingObserver) FrameRouted(kind router.Kind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.kinds = append(o.kinds, kind)
}

func (o *recordingObserver) PongTimeout() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pongTimeouts++
}

func (o *recordingObserver) scheduled() []time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]time.Duration(nil), o.delays...)
}

func (o *recordingObserver) history() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.transitions...)
}

type harness struct {
	m      *Manager
	dialer *fakeDialer
	clock  *clock.Mock
	obs    *recordingObserver
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	if cfg.Address == "" {
		cfg.Address = testAddress
	}
	h := &harness{
		dialer: &fakeDialer{},
		clock:  clock.NewMock(),
		obs:    &recordingObserver{},
	}
	opts = append([]Option{
		WithDialer(h.dialer),
		WithClock(h.clock),
		WithObserver(h.obs),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	h.m = NewManager(cfg, opts...)
	t.Cleanup(h.m.Close)
	return h
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, time.Millisecond, msg)
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	eventually(t, func() bool { return h.m.State() == want }, "state never became "+want.String())
}

// waitConn returns the n-th dialed socket once the manager is open on it.
func (h *harness) waitConn(t *testing.T, n int) *fakeConn {
	t.Helper()
	eventually(t, func() bool {
		return h.dialer.conn(n) != nil && h.m.State() == StateOpen
	}, fmt.Sprintf("socket %d never opened", n))
	return h.dialer.conn(n)
}

func (h *harness) waitScheduled(t *testing.T, n int) {
	t.Helper()
	eventually(t, func() bool { return len(h.obs.scheduled()) >= n }, fmt.Sprintf("reconnect %d never scheduled", n))
}

func (h *harness) pongPending() bool {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	return h.m.pongTimer.pending()
}

func (h *harness) timersPending() (heartbeat, pong, reconnect bool) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	return h.m.heartbeatTimer.pending(), h.m.pongTimer.pending(), h.m.reconnectTimer.pending()
}
