package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/topicfeed/internal/connection"
	"github.com/rickgao/topicfeed/internal/router"
)

const namespace = "topicfeed"

// Collector exports stream lifecycle metrics. It implements connection.Observer.
type Collector struct {
	state          *prometheus.GaugeVec
	transitions    *prometheus.CounterVec
	reconnects     prometheus.Counter
	reconnectDelay prometheus.Gauge
	frames         *prometheus.CounterVec
	pongTimeouts   prometheus.Counter
}

var _ connection.Observer = (*Collector)(nil)

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_state",
			Help:      "1 for the current stream state, 0 otherwise.",
		}, []string{"state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_transitions_total",
			Help:      "Stream state transitions.",
		}, []string{"from", "to"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_reconnects_total",
			Help:      "Reconnects scheduled after a close or failure.",
		}),
		reconnectDelay: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_reconnect_delay_seconds",
			Help:      "Delay of the most recently scheduled reconnect.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_frames_total",
			Help:      "Inbound frames by routing outcome.",
		}, []string{"kind"}),
		pongTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_pong_timeouts_total",
			Help:      "Pings that went unanswered past the deadline.",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.state, c.transitions, c.reconnects, c.reconnectDelay, c.frames, c.pongTimeouts,
	} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("register stream metrics: %w", err)
		}
	}

	c.setState(connection.StateIdle)
	return c, nil
}

func (c *Collector) StateChanged(from, to connection.State) {
	c.transitions.WithLabelValues(from.String(), to.String()).Inc()
	c.setState(to)
}

func (c *Collector) ReconnectScheduled(attempt int, delay time.Duration) {
	c.reconnects.Inc()
	c.reconnectDelay.Set(delay.Seconds())
}

func (c *Collector) FrameRouted(kind router.Kind) {
	c.frames.WithLabelValues(kind.String()).Inc()
}

func (c *Collector) PongTimeout() {
	c.pongTimeouts.Inc()
}

func (c *Collector) setState(current connection.State) {
	for _, s := range connection.States {
		v := 0.0
		if s == current {
			v = 1
		}
		c.state.WithLabelValues(s.String()).Set(v)
	}
}

// RegisterBuffer exports the depth and overwrite count of a buffer feeding a sink.
func RegisterBuffer(reg prometheus.Registerer, sink string, stats func() router.BufferStats) error {
	labels := prometheus.Labels{"sink": sink}
	depth := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "sink_buffer_depth",
		Help:        "Updates waiting in a sink buffer.",
		ConstLabels: labels,
	}, func() float64 { return float64(stats().Count) })
	overwritten := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "sink_buffer_overwritten_total",
		Help:        "Updates dropped because a sink buffer was full.",
		ConstLabels: labels,
	}, func() float64 { return float64(stats().Overwritten) })

	if err := reg.Register(depth); err != nil {
		return fmt.Errorf("register %s buffer depth: %w", sink, err)
	}
	if err := reg.Register(overwritten); err != nil {
		return fmt.Errorf("register %s buffer overwrites: %w", sink, err)
	}
	return nil
}

// RegisterSink exports delivery counters of a sink.
func RegisterSink(reg prometheus.Registerer, sink string, delivered, failed func() int64) error {
	labels := prometheus.Labels{"sink": sink}
	cols := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "sink_delivered_total",
			Help:        "Updates delivered by a sink.",
			ConstLabels: labels,
		}, func() float64 { return float64(delivered()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "sink_failed_total",
			Help:        "Updates a sink failed to deliver.",
			ConstLabels: labels,
		}, func() float64 { return float64(failed()) }),
	}
	var errs []error
	for _, col := range cols {
		if err := reg.Register(col); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("register %s sink metrics: %w", sink, err)
	}
	return nil
}
