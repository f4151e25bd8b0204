package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"patrolwatch/internal/alerts"
	"patrolwatch/internal/api"
	"patrolwatch/internal/clock"
	"patrolwatch/internal/config"
	"patrolwatch/internal/engine"
	"patrolwatch/internal/hub"
	"patrolwatch/internal/logging"
	"patrolwatch/internal/metrics"
	"patrolwatch/internal/publish"
	"patrolwatch/internal/roster"
	"patrolwatch/internal/simrand"
)

const configWatchInterval = 3 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the simulator, HTTP API and WebSocket feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, path)
		},
	}
}

func loadConfig(path string) (*config.Manager, error) {
	mgr, err := config.NewManager(config.ResolvePath(path))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return mgr, nil
}

func serve(ctx context.Context, path string) error {
	mgr, err := loadConfig(path)
	if err != nil {
		return err
	}
	cfg := mgr.Get()
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting patrolwatch", "version", version, "config", mgr.Path())

	clk := clock.Real{}
	eng := engine.NewEngine(cfg, logger,
		metrics.NewStore(clk.Now()),
		alerts.NewStore(cfg.Alerts.FeedLimit),
		clk,
		simrand.New(cfg.Simulation.Seed),
	)

	if cfg.Roster.Enabled {
		closeRoster, err := applyRoster(ctx, cfg.Roster, eng, logger)
		if err != nil {
			return err
		}
		defer closeRoster()
	}

	pub, err := newPublisher(cfg.Publish, logger)
	if err != nil {
		return err
	}
	if pub != nil {
		defer func() {
			if err := pub.Close(); err != nil {
				logger.Warn("close publisher", "err", err)
			}
		}()
	}

	latencySeed := cfg.Simulation.Seed
	if latencySeed != 0 {
		latencySeed++
	}
	wsHub := hub.NewHub(eng, simrand.New(latencySeed), logger, cfg.API.AllowedOrigins)
	httpServer := api.NewHTTPServer(cfg.API, api.New(eng, mgr, wsHub, logger, version).Handler())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { return wsHub.Run(gctx) })
	if pub != nil {
		fwd := publish.NewForwarder(eng, pub, logger)
		g.Go(func() error { return fwd.Run(gctx) })
	}
	if httpServer != nil {
		logger.Info("api enabled", "addr", httpServer.Addr)
		g.Go(func() error { return api.RunServer(gctx, httpServer, logger) })
	} else {
		logger.Info("api disabled")
	}
	if mgr.Path() != "" {
		g.Go(func() error {
			mgr.Watch(configWatchInterval,
				func(next *config.Config) {
					eng.UpdateConfig(next)
					logger.Info("config reloaded", "tick_interval", next.Simulation.TickInterval.String())
				},
				func(err error) {
					logger.Warn("config reload failed", "err", err)
				},
				gctx.Done(),
			)
			return nil
		})
	}

	err = g.Wait()
	logger.Info("patrolwatch stopped")
	return err
}

func applyRoster(ctx context.Context, cfg config.RosterConfig, eng *engine.Engine, logger *slog.Logger) (func(), error) {
	store, err := roster.NewStore(cfg)
	if err != nil {
		return nil, err
	}
	closeStore := func() {
		if err := store.Close(); err != nil {
			logger.Warn("close roster", "err", err)
		}
	}
	if err := store.Init(ctx); err != nil {
		closeStore()
		return nil, fmt.Errorf("init roster: %w", err)
	}
	entries, err := store.Load(ctx)
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("load roster: %w", err)
	}
	if len(entries) == 0 {
		logger.Warn("roster is empty, using generated fleet", "driver", cfg.Driver)
		return closeStore, nil
	}
	eng.SetRoster(entries)
	logger.Info("roster loaded", "driver", cfg.Driver, "units", len(entries))
	return closeStore, nil
}

// newPublisher returns nil when no sink is enabled.
func newPublisher(cfg config.PublishConfig, logger *slog.Logger) (publish.Publisher, error) {
	var sinks publish.Multi
	if cfg.Kafka.Enabled {
		sinks = append(sinks, publish.NewKafkaPublisher(cfg.Kafka))
		logger.Info("kafka publisher enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}
	if cfg.NATS.Enabled {
		p, err := publish.ConnectNATS(cfg.NATS)
		if err != nil {
			_ = sinks.Close()
			return nil, err
		}
		sinks = append(sinks, p)
		logger.Info("nats publisher enabled", "url", cfg.NATS.URL, "subject_prefix", cfg.NATS.SubjectPrefix)
	}
	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	default:
		return sinks, nil
	}
}
