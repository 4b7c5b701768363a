// streamtest connects to a topic stream and prints every update to the console.
//
// Usage:
//
//	go run ./cmd/streamtest -address wss://stream.example.com/v1 -topics prices,trades
//	go run ./cmd/streamtest -config configs/topicfeed.yaml -verbose
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rickgao/topicfeed/internal/config"
	"github.com/rickgao/topicfeed/internal/connection"
	"github.com/rickgao/topicfeed/internal/router"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	address := flag.String("address", "", "stream address, overrides config")
	topics := flag.String("topics", "", "comma-separated topics, overrides config")
	verbose := flag.Bool("verbose", false, "print full payloads")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	stream := config.StreamConfig{}
	if *configPath != "" {
		cfg, err := config.LoadWithDefaults(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		stream = cfg.Stream
	}
	if *address != "" {
		stream.Address = *address
	}
	if *topics != "" {
		stream.Topics = strings.Split(*topics, ",")
	}
	if err := connection.ValidateAddress(stream.Address); err != nil {
		logger.Error("invalid address", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	updates := router.NewGrowableBuffer[router.Update](256, 65536)
	obs := &stateLogger{logger: logger}
	mgr := connection.NewManager(connection.Config{
		Address:            stream.Address,
		Protocols:          stream.Protocols,
		HeartbeatInterval:  stream.HeartbeatInterval,
		PongTimeout:        stream.PongTimeout,
		ReconnectBaseDelay: stream.ReconnectBaseDelay,
		MaxReconnectDelay:  stream.MaxReconnectDelay,
	},
		connection.WithLogger(logger),
		connection.WithObserver(obs),
		connection.WithUpdateSinks(updates),
	)

	for _, t := range stream.Topics {
		if t = strings.TrimSpace(t); t != "" {
			mgr.Subscribe(t)
		}
	}
	mgr.Connect()

	go printUpdates(updates, *verbose)

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s := mgr.Stats()
				logger.Info("stats",
					"state", s.State,
					"opens", s.Opens,
					"reconnects", s.Reconnects,
					"pong_timeouts", s.PongTimeouts,
					"received", s.Routing.Received,
					"data", s.Routing.Data,
					"malformed", s.Routing.Malformed,
					"cached_topics", s.CachedTopics,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop", "address", stream.Address, "topics", mgr.Subscriptions())

	<-ctx.Done()

	logger.Info("shutting down...")
	mgr.Close()
	updates.Close()
	logger.Info("shutdown complete")
}

func printUpdates(buf *router.GrowableBuffer[router.Update], verbose bool) {
	for {
		u, ok := buf.Receive()
		if !ok {
			return
		}
		switch {
		case !u.HasPayload:
			fmt.Printf("[%s] %s (no payload)\n", u.ReceivedAt.Format(time.TimeOnly), u.Topic)
		case verbose:
			fmt.Printf("[%s] %s %s\n", u.ReceivedAt.Format(time.TimeOnly), u.Topic, u.Payload)
		default:
			fmt.Printf("[%s] %s %d bytes\n", u.ReceivedAt.Format(time.TimeOnly), u.Topic, len(u.Payload))
		}
	}
}

// stateLogger prints lifecycle events.
type stateLogger struct {
	logger *slog.Logger
}

func (s *stateLogger) StateChanged(from, to connection.State) {
	s.logger.Info("state", "from", from, "to", to)
}

func (s *stateLogger) ReconnectScheduled(attempt int, delay time.Duration) {
	s.logger.Warn("reconnect scheduled", "attempt", attempt, "delay", delay)
}

func (s *stateLogger) FrameRouted(router.Kind) {}

func (s *stateLogger) PongTimeout() {
	s.logger.Warn("pong timeout")
}
