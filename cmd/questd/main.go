package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/config"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/content"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/engine"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/event"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/gateway"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/ledger"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/logger"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/quest"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/store"
)

func main() {
	configFile := flag.String("config", "data/questd.yaml", "Path to engine config YAML file")
	loggingConfig := flag.String("logging", "data/logging.yaml", "Path to logging config YAML file")
	contentDir := flag.String("content", "", "Content directory (overrides content.dir)")
	addr := flag.String("addr", "", "Gateway listen address (overrides gateway.addr)")
	flag.Parse()

	// Initialize logger first (before any logging)
	logConfig, _ := logger.LoadConfig(*loggingConfig)
	if err := logger.Initialize(logConfig); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config %s: %v", *configFile, err)
	}
	if *contentDir != "" {
		cfg.Content.Dir = *contentDir
	}
	if *addr != "" {
		cfg.Gateway.Addr = *addr
	}

	logger.Info("Starting quest engine",
		"persistence", cfg.Persistence.Driver,
		"content", cfg.Content.Dir,
		"strict", cfg.Dispatch.Strict)

	if err := run(cfg); err != nil {
		logger.Error("Quest engine stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Quest engine stopped")
}

func run(cfg *config.EngineConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg.Persistence)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Failed to close store", "error", err)
		}
	}()

	saver := store.NewSaver(st, cfg.Saver, logger.Component("saver"))
	saver.OnFailure(func(rec quest.Record, err error) {
		logger.Error("Quest record lost after retries",
			"player", rec.PlayerID,
			"quest", rec.QuestType,
			"revision", rec.Revision,
			"error", err)
	})
	defer saver.Close()

	set, report, err := content.LoadDir(cfg.Content.Dir)
	if err != nil {
		if report != nil {
			for _, e := range report.Errors {
				logger.Error("Content error", "error", e)
			}
		}
		return fmt.Errorf("load content: %w", err)
	}
	if report != nil {
		for _, w := range report.Warnings {
			logger.Warning("Content warning", "warning", w)
		}
	}
	logger.Info("Content loaded",
		"quests", set.Quests.Count(),
		"rules", set.Rules.Len(),
		"npcs", set.NPCs.Len(),
		"digest", set.Digest)

	bus := event.NewBus()
	defer bus.Close()

	players := ledger.New()
	gw := gateway.New(cfg.Gateway, bus, nil, logger.Component("gateway"))
	gw.SetRegistrar(players)

	eng, err := engine.New(engine.Options{
		Content:   set,
		Loader:    st,
		Persister: saver,
		Inventory: players,
		Dialogue:  gw,
		Movement:  players,
		Players:   players,
		Config:    cfg.Dispatch,
		Logger:    logger.Component("engine"),
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 3)
	go func() { errCh <- eng.Run(ctx, bus) }()
	go func() { errCh <- gw.Start(ctx) }()

	reloader := content.NewReloader(cfg.Content.Dir, cfg.Content.ReloadInterval(), eng, set.Digest, logger.Component("content"))
	go reloader.Run(ctx)

	if cfg.Bridge.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Persistence.Redis.Addr,
			Password: cfg.Persistence.Redis.Password,
			DB:       cfg.Persistence.Redis.DB,
		})
		defer client.Close()
		bridge := event.NewRedisBridge(client, cfg.Bridge.Channel, bus, logger.Component("bridge"))
		go func() { errCh <- bridge.Run(ctx) }()
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err = <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Component failed, shutting down", "error", err)
		} else {
			err = nil
		}
		stop()
	}

	// Let in-flight dispatches finish, then flush queued saves.
	done := make(chan error, 1)
	go func() { done <- eng.Close() }()
	select {
	case closeErr := <-done:
		if closeErr != nil {
			logger.Error("Engine close failed", "error", closeErr)
		}
	case <-time.After(30 * time.Second):
		logger.Error("Engine close timed out")
	}

	saved, stale, failed := saver.Stats()
	logger.Info("Saver drained", "saved", saved, "stale", stale, "failed", failed)
	return err
}

func openStore(ctx context.Context, cfg config.PersistenceConfig) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		logger.Warning("Using in-memory quest store, progress is lost on restart")
		return store.NewMemoryStore(), nil
	case "sqlite":
		logger.Info("Opening sqlite quest store", "path", cfg.SQLitePath)
		return store.OpenSQLite(cfg.SQLitePath)
	case "postgres":
		logger.Info("Opening postgres quest store", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		return store.OpenPostgres(cfg.Postgres)
	case "redis":
		logger.Info("Opening redis quest store", "addr", cfg.Redis.Addr)
		return store.NewRedisStore(ctx, cfg.Redis, logger.Component("store"))
	default:
		return nil, fmt.Errorf("unknown persistence driver %q", cfg.Driver)
	}
}
