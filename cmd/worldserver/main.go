package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/velmor/realmgo/internal/config"
	"github.com/velmor/realmgo/internal/data"
	"github.com/velmor/realmgo/internal/db"
	"github.com/velmor/realmgo/internal/game/instancesave"
	"github.com/velmor/realmgo/internal/world"
)

const WorldConfigPath = "config/worldserver.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := WorldConfigPath
	if p := os.Getenv("REALMGO_WORLD_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadWorldServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading world config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))

	slog.Info("realmgo world server starting", "log_level", cfg.LogLevel)

	// Connect to database
	database, err := db.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	slog.Info("database connected")

	// Run migrations
	if err := db.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// Load static map/instance data
	if err := data.LoadMapData(); err != nil {
		return fmt.Errorf("loading map data: %w", err)
	}

	epoch, err := cfg.Instance.ParsedResetEpoch()
	if err != nil {
		return err
	}

	repo := db.NewInstanceRepository(database.Pool())
	maps := world.NewMapRegistry(nil)
	saveMgr := instancesave.NewManager(
		&instanceStoreAdapter{repo: repo},
		maps,
		instancesave.SchedulerConfig{
			ResetEpoch:   epoch,
			WarnOffsets:  cfg.Instance.WarnOffsets,
			DungeonGrace: cfg.Instance.DungeonGrace,
		},
	)

	if cfg.Instance.PackOnStartup {
		if _, err := saveMgr.PackInstances(ctx); err != nil {
			return fmt.Errorf("packing instances: %w", err)
		}
	}
	if err := saveMgr.Init(ctx, time.Now()); err != nil {
		return fmt.Errorf("initializing instance saves: %w", err)
	}
	slog.Info("instance save manager initialized",
		"saves", saveMgr.GetNumInstanceSaves())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return saveMgr.Run(gctx, cfg.Instance.TickInterval)
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.Instance.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				maps.ProcessResets()
			}
		}
	})

	return g.Wait()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
