package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
stream:
  address: wss://stream.example.com/v1
  protocols: [topics.v1]
  topics:
    - prices
    - trades
  heartbeat_interval: 15s
  pong_timeout: 2s
database:
  host: localhost
  name: topicfeed
  user: feeder
  password: secret
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Stream.Address != "wss://stream.example.com/v1" {
		t.Errorf("Stream.Address = %q, want %q", cfg.Stream.Address, "wss://stream.example.com/v1")
	}
	if len(cfg.Stream.Topics) != 2 || cfg.Stream.Topics[1] != "trades" {
		t.Errorf("Stream.Topics = %v, want [prices trades]", cfg.Stream.Topics)
	}
	if cfg.Stream.HeartbeatInterval != 15*time.Second {
		t.Errorf("Stream.HeartbeatInterval = %v, want 15s", cfg.Stream.HeartbeatInterval)
	}
	if cfg.Stream.PongTimeout != 2*time.Second {
		t.Errorf("Stream.PongTimeout = %v, want 2s", cfg.Stream.PongTimeout)
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("Database.Host = %q, want %q", cfg.Database.Host, "localhost")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_STREAM_HOST", "feed.internal:8443")
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
stream:
  address: wss://${TEST_STREAM_HOST}/ws
database:
  password: ${TEST_DB_PASSWORD}
`
	cfg, err := Load(writeTempFile(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Stream.Address != "wss://feed.internal:8443/ws" {
		t.Errorf("Stream.Address = %q, want substituted host", cfg.Stream.Address)
	}
	if cfg.Database.Password != "secret123" {
		t.Errorf("Database.Password = %q, want %q", cfg.Database.Password, "secret123")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	yaml := `
stream:
  address: wss://stream.example.com
  heartbeat_intervall: 10s
`
	_, err := Load(writeTempFile(t, yaml))
	if err == nil {
		t.Fatal("Load should reject a misspelled key")
	}
	if !strings.Contains(err.Error(), "parse config yaml") {
		t.Errorf("error = %q, want parse config yaml prefix", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read config file") {
		t.Errorf("Load() error = %v, want read config file error", err)
	}
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) failed: %v", err)
	}
	if cfg.Stream.Address != "" {
		t.Errorf("Stream.Address = %q, want empty", cfg.Stream.Address)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
stream:
  address: ws://localhost:8080/stream
`
	cfg, err := LoadWithDefaults(writeTempFile(t, yaml))
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Stream.HeartbeatInterval != DefaultHeartbeatInterval {
		t.Errorf("HeartbeatInterval = %v, want default %v", cfg.Stream.HeartbeatInterval, DefaultHeartbeatInterval)
	}
	if cfg.Stream.PongTimeout != DefaultPongTimeout {
		t.Errorf("PongTimeout = %v, want default %v", cfg.Stream.PongTimeout, DefaultPongTimeout)
	}
	if cfg.Stream.MaxReconnectDelay != DefaultMaxReconnectDelay {
		t.Errorf("MaxReconnectDelay = %v, want default %v", cfg.Stream.MaxReconnectDelay, DefaultMaxReconnectDelay)
	}
	if cfg.Recorder.BatchSize != DefaultBatchSize {
		t.Errorf("Recorder.BatchSize = %d, want default %d", cfg.Recorder.BatchSize, DefaultBatchSize)
	}
	if cfg.Relay.ChannelPrefix != DefaultChannelPrefix {
		t.Errorf("Relay.ChannelPrefix = %q, want default %q", cfg.Relay.ChannelPrefix, DefaultChannelPrefix)
	}
	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("Database.Port = %d, want default %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.HTTP.Port != DefaultHTTPPort {
		t.Errorf("HTTP.Port = %d, want default %d", cfg.HTTP.Port, DefaultHTTPPort)
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, want default %q", cfg.Log.Level, DefaultLogLevel)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaulted config should validate: %v", err)
	}
}

func TestLoadAndValidate(t *testing.T) {
	_, err := LoadAndValidate(writeTempFile(t, "stream:\n  address: http://example.com\n"))
	if err == nil {
		t.Fatal("LoadAndValidate should fail for an http address")
	}
	if !strings.HasPrefix(err.Error(), "validate config: ") {
		t.Errorf("error = %q, want validate config prefix", err)
	}
}

func validConfig() Config {
	cfg := Config{Stream: StreamConfig{Address: "wss://stream.example.com"}}
	cfg.applyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	db := DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 4, MinConns: 1}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing address",
			mutate:  func(c *Config) { c.Stream.Address = "" },
			wantErr: "stream.address is required",
		},
		{
			name:    "non websocket scheme",
			mutate:  func(c *Config) { c.Stream.Address = "https://stream.example.com" },
			wantErr: "stream.address must use ws or wss",
		},
		{
			name:    "empty topic",
			mutate:  func(c *Config) { c.Stream.Topics = []string{"prices", ""} },
			wantErr: "stream.topics cannot contain an empty topic",
		},
		{
			name: "pong timeout not shorter than interval",
			mutate: func(c *Config) {
				c.Stream.HeartbeatInterval = 5 * time.Second
				c.Stream.PongTimeout = 5 * time.Second
			},
			wantErr: "stream.pong_timeout (5s) must be shorter than heartbeat_interval (5s)",
		},
		{
			name:    "base delay above ceiling",
			mutate:  func(c *Config) { c.Stream.ReconnectBaseDelay = time.Minute },
			wantErr: "stream.reconnect_base_delay (1m0s) cannot exceed max_reconnect_delay (30s)",
		},
		{
			name:    "recorder without database",
			mutate:  func(c *Config) { c.Recorder.Enabled = true },
			wantErr: "database.host is required",
		},
		{
			name: "recorder min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Recorder.Enabled = true
				c.Database = db
				c.Database.MinConns = 10
			},
			wantErr: "database.min_conns (10) cannot exceed max_conns (4)",
		},
		{
			name:    "relay without address",
			mutate: func(c *Config) {
				c.Relay.Enabled = true
				c.Relay.Address = ""
			},
			wantErr: "relay.address is required",
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.HTTP.Port = 70000 },
			wantErr: "http.port must be 1-65535, got 70000",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: `log.level "verbose" is not one of debug, info, warn, error`,
		},
		{
			name: "valid with recorder and relay",
			mutate: func(c *Config) {
				c.Recorder.Enabled = true
				c.Relay.Enabled = true
				c.Database = db
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil {
			t.Errorf("ParseLevel(%q) error: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
