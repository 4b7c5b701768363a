package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHeartbeatInterval  = 30 * time.Second
	DefaultPongTimeout        = 5 * time.Second
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultMaxReconnectDelay  = 30 * time.Second
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultReadLimit          = 1 << 20
	DefaultBatchSize          = 500
	DefaultFlushInterval      = 1 * time.Second
	DefaultBufferSize         = 1024
	DefaultRelayAddress       = "localhost:6379"
	DefaultChannelPrefix      = "topicfeed:"
	DefaultRelayMaxIdle       = 4
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 4
	DefaultMinConns           = 1
	DefaultHTTPPort           = 9090
	DefaultMetricsPath        = "/metrics"
	DefaultLogLevel           = "info"
)

func (c *Config) applyDefaults() {
	// Stream defaults
	s := &c.Stream
	if s.HeartbeatInterval == 0 {
		s.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if s.PongTimeout == 0 {
		s.PongTimeout = DefaultPongTimeout
	}
	if s.ReconnectBaseDelay == 0 {
		s.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if s.MaxReconnectDelay == 0 {
		s.MaxReconnectDelay = DefaultMaxReconnectDelay
	}
	if s.HandshakeTimeout == 0 {
		s.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.ReadLimit == 0 {
		s.ReadLimit = DefaultReadLimit
	}

	// Recorder defaults
	if c.Recorder.BatchSize == 0 {
		c.Recorder.BatchSize = DefaultBatchSize
	}
	if c.Recorder.FlushInterval == 0 {
		c.Recorder.FlushInterval = DefaultFlushInterval
	}
	if c.Recorder.BufferSize == 0 {
		c.Recorder.BufferSize = DefaultBufferSize
	}

	// Relay defaults
	if c.Relay.Address == "" {
		c.Relay.Address = DefaultRelayAddress
	}
	if c.Relay.ChannelPrefix == "" {
		c.Relay.ChannelPrefix = DefaultChannelPrefix
	}
	if c.Relay.MaxIdle == 0 {
		c.Relay.MaxIdle = DefaultRelayMaxIdle
	}
	if c.Relay.BufferSize == 0 {
		c.Relay.BufferSize = DefaultBufferSize
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// HTTP defaults
	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}
	if c.HTTP.MetricsPath == "" {
		c.HTTP.MetricsPath = DefaultMetricsPath
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}
