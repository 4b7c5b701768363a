package config

import "time"

// Config is the root configuration for a topicfeed instance.
type Config struct {
	Stream   StreamConfig   `yaml:"stream"`
	Recorder RecorderConfig `yaml:"recorder"`
	Relay    RelayConfig    `yaml:"relay"`
	Database DBConfig       `yaml:"database"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
}

// StreamConfig holds the managed connection settings.
type StreamConfig struct {
	Address   string   `yaml:"address"`
	Protocols []string `yaml:"protocols"`
	Topics    []string `yaml:"topics"` // subscribed at startup

	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	PongTimeout        time.Duration `yaml:"pong_timeout"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	MaxReconnectDelay  time.Duration `yaml:"max_reconnect_delay"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	ReadLimit          int64         `yaml:"read_limit"`
}

// RecorderConfig controls persistence of topic updates to Postgres.
type RecorderConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// RelayConfig controls republishing of topic updates to Redis.
type RelayConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Address       string `yaml:"address"`
	ChannelPrefix string `yaml:"channel_prefix"`
	MaxIdle       int    `yaml:"max_idle"`
	BufferSize    int    `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// HTTPConfig holds the health and metrics server settings.
type HTTPConfig struct {
	Port        int    `yaml:"port"`
	MetricsPath string `yaml:"metrics_path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}
