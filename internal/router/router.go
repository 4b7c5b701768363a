package router

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rickgao/topicfeed/internal/protocol"
)

// Kind classifies a routed frame.
type Kind uint8

const (
	KindData Kind = iota
	KindPong
	KindIgnored
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindPong:
		return "pong"
	case KindIgnored:
		return "ignored"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Update is a topic value forwarded to downstream buffers.
type Update struct {
	Topic      string
	Payload    json.RawMessage
	HasPayload bool
	ReceivedAt time.Time
}

// Stats contains routing counters.
type Stats struct {
	Received  int64
	Data      int64
	Pongs     int64
	Ignored   int64
	Malformed int64
	Dropped   int64 // updates refused by a closed sink
}

// Router decodes frames and applies them to a Cache.
type Router struct {
	cache  *Cache
	sinks  []*GrowableBuffer[Update]
	logger *slog.Logger

	received  atomic.Int64
	data      atomic.Int64
	pongs     atomic.Int64
	ignored   atomic.Int64
	malformed atomic.Int64
	dropped   atomic.Int64
}

// NewRouter creates a Router writing into cache. Every data update is also
// sent to each sink.
func NewRouter(cache *Cache, logger *slog.Logger, sinks ...*GrowableBuffer[Update]) *Router {
	if cache == nil {
		cache = NewCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cache:  cache,
		sinks:  sinks,
		logger: logger,
	}
}

// Cache returns the topic cache the router writes to.
func (r *Router) Cache() *Cache {
	return r.cache
}

// Route applies one inbound frame. Pong frames are reported but not cached.
func (r *Router) Route(data []byte, receivedAt time.Time) Kind {
	r.received.Add(1)

	frame, err := protocol.Decode(data)
	if err != nil {
		r.malformed.Add(1)
		r.logger.Debug("dropping malformed frame", "error", err, "size", len(data))
		return KindMalformed
	}

	if frame.IsPong() {
		r.pongs.Add(1)
		return KindPong
	}

	if frame.Topic == "" {
		r.ignored.Add(1)
		return KindIgnored
	}

	r.cache.Put(frame.Topic, Entry{
		Payload:    frame.Payload,
		HasPayload: frame.HasPayload,
		UpdatedAt:  receivedAt,
	})
	r.data.Add(1)

	if len(r.sinks) > 0 {
		u := Update{
			Topic:      frame.Topic,
			Payload:    frame.Payload,
			HasPayload: frame.HasPayload,
			ReceivedAt: receivedAt,
		}
		for _, sink := range r.sinks {
			if !sink.Send(u) {
				r.dropped.Add(1)
			}
		}
	}

	return KindData
}

// Stats returns a snapshot of routing counters.
func (r *Router) Stats() Stats {
	return Stats{
		Received:  r.received.Load(),
		Data:      r.data.Load(),
		Pongs:     r.pongs.Load(),
		Ignored:   r.ignored.Load(),
		Malformed: r.malformed.Load(),
		Dropped:   r.dropped.Load(),
	}
}
