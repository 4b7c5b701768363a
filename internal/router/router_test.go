package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_Route(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		frame string
		want  Kind
	}{
		{"data", `{"topic":"prices","payload":{"bid":1}}`, KindData},
		{"data without payload", `{"topic":"prices"}`, KindData},
		{"pong", `{"type":"pong"}`, KindPong},
		{"pong with topic is still pong", `{"type":"pong","topic":"prices","payload":1}`, KindPong},
		{"no topic", `{"payload":1}`, KindIgnored},
		{"other type", `{"type":"welcome"}`, KindIgnored},
		{"empty topic", `{"topic":"","payload":1}`, KindIgnored},
		{"malformed", `{"topic":"prices"`, KindMalformed},
		{"not an object", `"hello"`, KindMalformed},
		{"empty frame", ``, KindMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(nil, nil)
			assert.Equal(t, tt.want, r.Route([]byte(tt.frame), now))
		})
	}
}

func TestRouter_PongDoesNotTouchCache(t *testing.T) {
	r := NewRouter(nil, nil)
	r.Route([]byte(`{"type":"pong","topic":"prices","payload":1}`), time.Now())

	_, ok := r.Cache().Get("prices")
	assert.False(t, ok)
	assert.Equal(t, int64(1), r.Stats().Pongs)
}

func TestRouter_LastValueWins(t *testing.T) {
	r := NewRouter(nil, nil)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	frames := []string{
		`{"topic":"a","payload":1}`,
		`{"topic":"b","payload":"x"}`,
		`{"topic":"a","payload":{"v":2}}`,
		`garbage`,
		`{"topic":"b","payload":[1,2]}`,
		`{"payload":"orphan"}`,
	}
	for i, f := range frames {
		r.Route([]byte(f), t0.Add(time.Duration(i)*time.Second))
	}

	a, ok := r.Cache().Get("a")
	require.True(t, ok)
	assert.JSONEq(t, `{"v":2}`, string(a.Payload))
	assert.Equal(t, t0.Add(2*time.Second), a.UpdatedAt)

	b, ok := r.Cache().Get("b")
	require.True(t, ok)
	assert.JSONEq(t, `[1,2]`, string(b.Payload))

	_, ok = r.Cache().Get("c")
	assert.False(t, ok)

	stats := r.Stats()
	assert.Equal(t, int64(6), stats.Received)
	assert.Equal(t, int64(4), stats.Data)
	assert.Equal(t, int64(1), stats.Malformed)
	assert.Equal(t, int64(1), stats.Ignored)
}

func TestRouter_EmptyUpdateIsObserved(t *testing.T) {
	r := NewRouter(nil, nil)
	r.Route([]byte(`{"topic":"a","payload":1}`), time.Now())
	r.Route([]byte(`{"topic":"a"}`), time.Now())

	e, ok := r.Cache().Get("a")
	require.True(t, ok)
	assert.False(t, e.HasPayload)
	assert.Nil(t, e.Payload)
}

func TestRouter_ForwardsToSinks(t *testing.T) {
	first := NewGrowableBuffer[Update](4, 0)
	second := NewGrowableBuffer[Update](4, 0)
	r := NewRouter(NewCache(), nil, first, second)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.Route([]byte(`{"topic":"a","payload":1}`), at)
	r.Route([]byte(`{"type":"pong"}`), at)
	r.Route([]byte(`{"payload":1}`), at)

	for _, sink := range []*GrowableBuffer[Update]{first, second} {
		require.Equal(t, 1, sink.Len())
		u, _ := sink.TryReceive()
		assert.Equal(t, "a", u.Topic)
		assert.True(t, u.HasPayload)
		assert.Equal(t, at, u.ReceivedAt)
	}

	second.Close()
	r.Route([]byte(`{"topic":"a","payload":2}`), at)
	assert.Equal(t, int64(1), r.Stats().Dropped)
	assert.Equal(t, 1, first.Len())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "data", KindData.String())
	assert.Equal(t, "pong", KindPong.String())
	assert.Equal(t, "ignored", KindIgnored.String())
	assert.Equal(t, "malformed", KindMalformed.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
