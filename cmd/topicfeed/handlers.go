package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/topicfeed/internal/connection"
	"github.com/rickgao/topicfeed/internal/router"
	"github.com/rickgao/topicfeed/internal/version"
)

// streamView is the read side of the managed connection served over HTTP.
type streamView interface {
	Stats() connection.Stats
	Topics() []string
	SelectEntry(topic string) (router.Entry, bool)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type handlerDeps struct {
	stream      streamView
	db          pinger // nil when the recorder is disabled
	gatherer    prometheus.Gatherer
	metricsPath string
	logger      *slog.Logger
}

func newHandler(d handlerDeps) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", d.health)
	mux.HandleFunc("/debug/stream", d.debugStream)
	mux.HandleFunc("/debug/topics", d.debugTopics)
	if d.gatherer != nil {
		mux.Handle(d.metricsPath, promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

func (d handlerDeps) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stats := d.stream.Stats()
	health := struct {
		Status     string         `json:"status"`
		Version    version.Info   `json:"version"`
		Components map[string]any `json:"components"`
	}{
		Status:     "healthy",
		Version:    version.Get(),
		Components: map[string]any{"stream": stats.State.String()},
	}

	// A stream that is reconnecting still serves cached values.
	if stats.State != connection.StateOpen {
		health.Status = "degraded"
	}

	if d.db != nil {
		if err := d.db.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["postgres"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["postgres"] = "connected"
		}
	}

	status := http.StatusOK
	if health.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	d.writeJSON(w, status, health)
}

func (d handlerDeps) debugStream(w http.ResponseWriter, r *http.Request) {
	s := d.stream.Stats()
	resp := map[string]any{
		"state":         s.State.String(),
		"address":       s.Address,
		"reconnects":    s.Reconnects,
		"attempt":       s.Attempt,
		"opens":         s.Opens,
		"pong_timeouts": s.PongTimeouts,
		"subscriptions": s.Subscriptions,
		"cached_topics": s.CachedTopics,
		"routing": map[string]int64{
			"received":  s.Routing.Received,
			"data":      s.Routing.Data,
			"pongs":     s.Routing.Pongs,
			"ignored":   s.Routing.Ignored,
			"malformed": s.Routing.Malformed,
			"dropped":   s.Routing.Dropped,
		},
	}
	if !s.LastOpenAt.IsZero() {
		resp["last_open_at"] = s.LastOpenAt.UTC()
	}
	d.writeJSON(w, http.StatusOK, resp)
}

type topicView struct {
	Topic      string          `json:"topic"`
	HasPayload bool            `json:"has_payload"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// debugTopics lists cached topics, or returns one entry with ?topic=.
func (d handlerDeps) debugTopics(w http.ResponseWriter, r *http.Request) {
	if topic := r.URL.Query().Get("topic"); topic != "" {
		e, ok := d.stream.SelectEntry(topic)
		if !ok {
			d.writeJSON(w, http.StatusNotFound, map[string]string{"error": "topic not cached"})
			return
		}
		d.writeJSON(w, http.StatusOK, topicView{
			Topic:      topic,
			HasPayload: e.HasPayload,
			UpdatedAt:  e.UpdatedAt.UTC(),
			Payload:    e.Payload,
		})
		return
	}

	topics := d.stream.Topics()
	views := make([]topicView, 0, len(topics))
	for _, t := range topics {
		e, ok := d.stream.SelectEntry(t)
		if !ok {
			continue
		}
		views = append(views, topicView{Topic: t, HasPayload: e.HasPayload, UpdatedAt: e.UpdatedAt.UTC()})
	}
	d.writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(views),
		"topics": views,
	})
}

func (d handlerDeps) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := sonic.ConfigDefault.NewEncoder(w).Encode(v); err != nil {
		d.logger.Warn("encode response", "error", err)
	}
}
