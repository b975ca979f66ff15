package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mExOms/sor/internal/algo"
	"github.com/mExOms/sor/internal/config"
	"github.com/mExOms/sor/internal/feed"
	"github.com/mExOms/sor/internal/marketdata"
	"github.com/mExOms/sor/internal/router"
	"github.com/mExOms/sor/internal/routing"
	"github.com/mExOms/sor/internal/statstore"
	"github.com/mExOms/sor/internal/venue"
	binanceadapter "github.com/mExOms/sor/services/binance"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	setupLogging(cfg.Log)
	logger := logrus.WithField("component", "sor-server")
	logger.Info("Starting SOR server...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Shutdown signal received")
		cancel()
	}()

	stats := venue.NewStatsStore(cfg.Stats.DecayFactor, cfg.Stats.VolumeEpsilon)

	var snapshots *statstore.RedisStore
	if cfg.Redis.CacheDSN != "" {
		snapshots, err = statstore.NewRedisStore(ctx, cfg.Redis.CacheDSN, cfg.Stats.SnapshotKey)
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer snapshots.Close()

		snapshot, err := snapshots.Load(ctx)
		if err != nil {
			logger.Warnf("Failed to load stats snapshot: %v", err)
		} else if len(snapshot) > 0 {
			stats.Restore(snapshot)
		}
	}

	registry := venue.NewRegistry()
	books := marketdata.NewSnapshotService(5 * time.Second)

	for venueID, venueCfg := range cfg.Venues {
		adapter, err := buildAdapter(venueCfg)
		if err != nil {
			logger.Fatalf("Failed to build venue %s: %v", venueID, err)
		}
		registry.Register(venueID, adapter, venueCfg.TakerFeeBps)
		fetcher, _ := adapter.(marketdata.BookFetcher)
		books.RegisterVenue(venueID, fetcher, venueCfg.Symbols)
		logger.WithField("venue", venueID).Info("Venue registered")
	}

	if cfg.Nats.URL != "" {
		listener, err := marketdata.NewListener(cfg.Nats.URL, books)
		if err != nil {
			logger.Fatalf("Failed to connect book listener: %v", err)
		}
		if err := listener.Start(); err != nil {
			logger.Fatalf("Failed to start book listener: %v", err)
		}
		defer listener.Stop()
	}

	scorer := venue.NewScorer(registry, stats, books, cfg.Scorer)
	if snapshots != nil {
		scorer.OnMaintenance(func() {
			saveCtx, saveCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer saveCancel()
			if err := snapshots.Save(saveCtx, stats.Snapshot()); err != nil {
				logger.Warnf("Failed to save stats snapshot: %v", err)
			}
		})
	}
	scorer.Start()
	defer scorer.Stop()

	resolver := routing.NewResolver(registry, scorer, books)

	algorithms := algo.NewRegistry(cfg.Algo)

	updateFeed, err := buildFeed(cfg.Nats)
	if err != nil {
		logger.Fatalf("Failed to connect order update feed: %v", err)
	}

	sor, err := router.NewSmartOrderRouter(cfg.Router, registry, resolver, algorithms, stats, updateFeed)
	if err != nil {
		logger.Fatalf("Failed to create router: %v", err)
	}
	sor.Start()

	logger.Info("SOR server started")

	<-ctx.Done()

	logger.Info("Shutting down...")
	sor.Stop()
	books.Close()
	logger.Info("Server stopped successfully")
}

func setupLogging(cfg config.LogConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func buildAdapter(cfg config.VenueConfig) (venue.Adapter, error) {
	switch cfg.Adapter {
	case "binance":
		return binanceadapter.NewAdapter(cfg.APIKey, cfg.SecretKey, cfg.TestNet), nil
	default:
		return nil, fmt.Errorf("unknown adapter %q", cfg.Adapter)
	}
}

func buildFeed(cfg config.NatsConfig) (router.UpdateSource, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	return feed.NewNatsFeed(cfg.URL, cfg.ClientID)
}
