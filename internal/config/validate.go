package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := c.Stream.validate(); err != nil {
		return err
	}

	if c.Recorder.Enabled {
		if c.Recorder.BatchSize < 1 {
			return errors.New("recorder.batch_size must be >= 1")
		}
		if c.Recorder.BufferSize < 1 {
			return errors.New("recorder.buffer_size must be >= 1")
		}
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}

	if c.Relay.Enabled {
		if c.Relay.Address == "" {
			return errors.New("relay.address is required")
		}
		if c.Relay.BufferSize < 1 {
			return errors.New("relay.buffer_size must be >= 1")
		}
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be 1-65535, got %d", c.HTTP.Port)
	}
	if !strings.HasPrefix(c.HTTP.MetricsPath, "/") {
		return errors.New("http.metrics_path must start with /")
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

func (s StreamConfig) validate() error {
	if s.Address == "" {
		return errors.New("stream.address is required")
	}
	u, err := url.Parse(s.Address)
	if err != nil {
		return fmt.Errorf("stream.address: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.New("stream.address must use ws or wss")
	}
	for _, topic := range s.Topics {
		if topic == "" {
			return errors.New("stream.topics cannot contain an empty topic")
		}
	}
	if s.PongTimeout >= s.HeartbeatInterval {
		return fmt.Errorf("stream.pong_timeout (%s) must be shorter than heartbeat_interval (%s)", s.PongTimeout, s.HeartbeatInterval)
	}
	if s.ReconnectBaseDelay > s.MaxReconnectDelay {
		return fmt.Errorf("stream.reconnect_base_delay (%s) cannot exceed max_reconnect_delay (%s)", s.ReconnectBaseDelay, s.MaxReconnectDelay)
	}
	return nil
}

func (db DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

// ParseLevel maps a log.level value to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level %q is not one of debug, info, warn, error", level)
	}
}
