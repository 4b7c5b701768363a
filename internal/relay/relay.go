package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/garyburd/redigo/redis"

	"github.com/rickgao/topicfeed/internal/router"
)

const maxPipeline = 128

// Pool hands out Redis connections. *redis.Pool satisfies it.
type Pool interface {
	Get() redis.Conn
}

// NewPool creates a redigo pool that dials address with timeout applied to
// connect, read and write.
func NewPool(address string, maxIdle int, timeout time.Duration) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     maxIdle,
		IdleTimeout: 4 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", address,
				redis.DialConnectTimeout(timeout),
				redis.DialReadTimeout(timeout),
				redis.DialWriteTimeout(timeout),
			)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// Stats contains relay counters.
type Stats struct {
	Published   int64
	Failed      int64
	Subscribers int64 // receivers reported by the last successful PUBLISH batch
}

// Relay publishes updates from a buffer until the buffer is closed.
type Relay struct {
	pool   Pool
	prefix string
	input  *router.GrowableBuffer[router.Update]
	logger *slog.Logger

	published   atomic.Int64
	failed      atomic.Int64
	subscribers atomic.Int64

	wg sync.WaitGroup
}

// New creates a Relay.
func New(pool Pool, prefix string, input *router.GrowableBuffer[router.Update], logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		pool:   pool,
		prefix: prefix,
		input:  input,
		logger: logger,
	}
}

// Channel returns the Redis channel for topic.
func (r *Relay) Channel(topic string) string {
	return r.prefix + topic
}

// Start launches the publish loop.
func (r *Relay) Start() {
	r.wg.Add(1)
	go r.run()
	r.logger.Info("relay started", "prefix", r.prefix)
}

// Stop closes the input and waits for buffered updates to be published.
func (r *Relay) Stop(ctx context.Context) error {
	r.input.Close()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("relay stopped", "published", r.published.Load(), "failed", r.failed.Load())
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop relay: %w", ctx.Err())
	}
}

// Stats returns current counters.
func (r *Relay) Stats() Stats {
	return Stats{
		Published:   r.published.Load(),
		Failed:      r.failed.Load(),
		Subscribers: r.subscribers.Load(),
	}
}

func (r *Relay) run() {
	defer r.wg.Done()
	for {
		first, ok := r.input.Receive()
		if !ok {
			return
		}
		batch := append([]router.Update{first}, r.input.DrainTo(maxPipeline-1)...)
		delivered, err := r.publish(batch)
		r.published.Add(int64(delivered))
		if err != nil {
			r.failed.Add(int64(len(batch) - delivered))
			r.logger.Warn("relay publish failed", "error", err, "count", len(batch)-delivered)
		}
	}
}

// publish pipelines one PUBLISH per update and returns how many were
// acknowledged by the server.
func (r *Relay) publish(batch []router.Update) (int, error) {
	conn := r.pool.Get()
	defer conn.Close()

	if err := conn.Err(); err != nil {
		return 0, fmt.Errorf("get redis connection: %w", err)
	}

	for _, u := range batch {
		var body []byte
		if u.HasPayload {
			body = u.Payload
		}
		if err := conn.Send("PUBLISH", r.Channel(u.Topic), body); err != nil {
			return 0, fmt.Errorf("queue publish %s: %w", u.Topic, err)
		}
	}
	if err := conn.Flush(); err != nil {
		return 0, fmt.Errorf("flush publish pipeline: %w", err)
	}

	var receivers int64
	for i := range batch {
		n, err := redis.Int64(conn.Receive())
		if err != nil {
			return i, fmt.Errorf("publish %s: %w", batch[i].Topic, err)
		}
		receivers += n
	}
	r.subscribers.Store(receivers)
	return len(batch), nil
}
