package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

// ErrEmptyPayload is returned by Decode for an entry whose frame carried no payload.
var ErrEmptyPayload = errors.New("topic update has no payload")

// Entry is the latest value seen for a topic.
type Entry struct {
	Payload json.RawMessage

	// HasPayload is false when the last frame named the topic without a payload.
	// Such an entry still counts as observed.
	HasPayload bool

	UpdatedAt time.Time
}

// Cache maps topics to their most recent payload. Entries are replaced, never
// merged, and survive unsubscribe.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]Entry)}
}

// Put overwrites the entry for topic.
func (c *Cache) Put(topic string, e Entry) {
	c.mu.Lock()
	c.entries[topic] = e
	c.mu.Unlock()
}

// Get returns a copy of the entry for topic and whether the topic was ever observed.
func (c *Cache) Get(topic string) (Entry, bool) {
	c.mu.RLock()
	e, ok := c.entries[topic]
	c.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	if e.Payload != nil {
		e.Payload = append(json.RawMessage(nil), e.Payload...)
	}
	return e, true
}

// Topics returns every observed topic in sorted order.
func (c *Cache) Topics() []string {
	c.mu.RLock()
	topics := make([]string, 0, len(c.entries))
	for t := range c.entries {
		topics = append(topics, t)
	}
	c.mu.RUnlock()
	sort.Strings(topics)
	return topics
}

// Len returns the number of observed topics.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Decode unmarshals an entry's payload into T.
func Decode[T any](e Entry) (T, error) {
	var v T
	if !e.HasPayload {
		return v, ErrEmptyPayload
	}
	if err := sonic.Unmarshal(e.Payload, &v); err != nil {
		return v, fmt.Errorf("decode payload: %w", err)
	}
	return v, nil
}
