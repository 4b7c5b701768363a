package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/topicfeed/internal/config"
	"github.com/rickgao/topicfeed/internal/connection"
	"github.com/rickgao/topicfeed/internal/database"
	"github.com/rickgao/topicfeed/internal/metrics"
	"github.com/rickgao/topicfeed/internal/recorder"
	"github.com/rickgao/topicfeed/internal/relay"
	"github.com/rickgao/topicfeed/internal/router"
	"github.com/rickgao/topicfeed/internal/version"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "configs/topicfeed.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if err := run(*configPath); err != nil {
		slog.Error("topicfeed failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return err
	}

	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("starting topicfeed",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
		"address", cfg.Stream.Address,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	collector, err := metrics.NewCollector(reg)
	if err != nil {
		return err
	}

	var (
		sinks    []*router.GrowableBuffer[router.Update]
		stoppers []func(context.Context) error
		db       pinger
	)

	if cfg.Recorder.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		if err := database.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		db = pool

		buf := router.NewGrowableBuffer[router.Update](cfg.Recorder.BufferSize, cfg.Recorder.BufferSize*16)
		rec := recorder.New(recorder.Config{
			BatchSize:     cfg.Recorder.BatchSize,
			FlushInterval: cfg.Recorder.FlushInterval,
		}, buf, pool, logger.With("component", "recorder"))
		rec.Start(ctx)

		if err := registerSink(reg, "recorder", buf,
			func() int64 { return rec.Stats().Inserts },
			func() int64 { return rec.Stats().Failed },
		); err != nil {
			return err
		}
		sinks = append(sinks, buf)
		stoppers = append(stoppers, rec.Stop)
	}

	if cfg.Relay.Enabled {
		pool := relay.NewPool(cfg.Relay.Address, cfg.Relay.MaxIdle, 5*time.Second)
		defer pool.Close()

		buf := router.NewGrowableBuffer[router.Update](cfg.Relay.BufferSize, cfg.Relay.BufferSize*16)
		rel := relay.New(pool, cfg.Relay.ChannelPrefix, buf, logger.With("component", "relay"))
		rel.Start()

		if err := registerSink(reg, "relay", buf,
			func() int64 { return rel.Stats().Published },
			func() int64 { return rel.Stats().Failed },
		); err != nil {
			return err
		}
		sinks = append(sinks, buf)
		stoppers = append(stoppers, rel.Stop)
	}

	dialer := connection.NewWebsocketDialer(connection.DialerConfig{
		HandshakeTimeout: cfg.Stream.HandshakeTimeout,
		WriteTimeout:     cfg.Stream.WriteTimeout,
		ReadLimit:        cfg.Stream.ReadLimit,
	})
	stream := connection.NewManager(connection.Config{
		Address:            cfg.Stream.Address,
		Protocols:          cfg.Stream.Protocols,
		HeartbeatInterval:  cfg.Stream.HeartbeatInterval,
		PongTimeout:        cfg.Stream.PongTimeout,
		ReconnectBaseDelay: cfg.Stream.ReconnectBaseDelay,
		MaxReconnectDelay:  cfg.Stream.MaxReconnectDelay,
	},
		connection.WithDialer(dialer),
		connection.WithLogger(logger.With("component", "stream")),
		connection.WithObserver(collector),
		connection.WithUpdateSinks(sinks...),
	)

	for _, topic := range cfg.Stream.Topics {
		stream.Subscribe(topic)
	}
	stream.Connect()

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: newHandler(handlerDeps{
			stream:      stream,
			db:          db,
			gatherer:    reg,
			metricsPath: cfg.HTTP.MetricsPath,
			logger:      logger,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", "port", cfg.HTTP.Port, "metrics", cfg.HTTP.MetricsPath)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Stop the stream first so the sinks see no more updates.
		stream.Close()

		errs := []error{server.Shutdown(shutdownCtx)}
		for _, stop := range stoppers {
			errs = append(errs, stop(shutdownCtx))
		}
		return errors.Join(errs...)
	})

	err = g.Wait()
	logger.Info("topicfeed stopped", "stats", stream.Stats().Routing)
	return err
}

func registerSink(reg prometheus.Registerer, name string, buf *router.GrowableBuffer[router.Update], delivered, failed func() int64) error {
	if err := metrics.RegisterBuffer(reg, name, buf.Stats); err != nil {
		return err
	}
	return metrics.RegisterSink(reg, name, delivered, failed)
}
