package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	corecfg "github.com/voyage-lab/project-voyage/internal/core/config"
	"github.com/voyage-lab/project-voyage/internal/core/standardise"
	"github.com/voyage-lab/project-voyage/internal/core/storage"
	"github.com/voyage-lab/project-voyage/internal/core/storage/memory"
	"github.com/voyage-lab/project-voyage/internal/core/storage/postgres"
	"github.com/voyage-lab/project-voyage/internal/fold"
	"github.com/voyage-lab/project-voyage/internal/ingestion"
	"github.com/voyage-lab/project-voyage/internal/master"
	"github.com/voyage-lab/project-voyage/internal/migrations"
	"github.com/voyage-lab/project-voyage/internal/projection"
	"github.com/voyage-lab/project-voyage/internal/server"
)

func main() {
	configPath := flag.String("config", "voyage.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config", "config", cfg)

	// 2. Initialize Storage
	var (
		stateStore   storage.StateStore
		mastersStore master.MastersStore
		db           *sql.DB
	)
	switch cfg.Database.Type {
	case "postgres":
		adapter, err := postgres.NewAdapter(
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
		)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer adapter.Close()

		if err := migrations.RunMigrations(adapter.DB(), cfg.Database.AutoMigrate); err != nil {
			slog.Error("Failed to run database migrations", "error", err)
			os.Exit(1)
		}

		stateStore = adapter
		mastersStore = postgres.NewMastersAdapter(adapter.DB())
		db = adapter.DB()
	case "memory":
		slog.Warn("Using in-memory state store; folded state is not durable")
		stateStore = memory.NewStore()
	default:
		slog.Error("Unsupported database type", "type", cfg.Database.Type)
		os.Exit(1)
	}

	// 3. Load the standardisation spec
	spec, err := standardise.LoadSpec(cfg.Pipeline.SpecDir, cfg.Pipeline.Customer)
	if err != nil {
		slog.Error("Failed to load standardisation spec", "error", err)
		os.Exit(1)
	}
	pipeline := standardise.NewPipeline(spec)

	// 4. Initialize the fold engine and ingestion workflow
	processor := fold.NewProcessor(stateStore)
	idem := ingestion.NewIdempotencyStore(cfg.Fold.EffectiveIdempotencyTTL())
	ingestionSvc := ingestion.NewService(pipeline, processor, idem, cfg.Fold.WorkerCount, cfg.Server.MaxBodySizeMB)

	// 5. Initialize masters rebuild + drift validation
	builder := master.NewBuilder(cfg.Masters.WorkerCount)
	masterSvc := master.NewService(stateStore, mastersStore, builder, cfg.Masters.Golden, cfg.Masters.Tolerances)

	var scheduler *master.Scheduler
	if cfg.Masters.Enabled {
		interval, err := cfg.Masters.Interval()
		if err != nil {
			slog.Error("Invalid masters rebuild interval", "error", err)
			os.Exit(1)
		}
		scheduler = master.NewScheduler(interval, masterSvc)
		slog.Info("Master rebuild scheduler initialized",
			"interval", interval,
			"worker_count", cfg.Masters.WorkerCount,
		)
	}

	// 6. Initialize Projection (query + retention API)
	projectionSvc := projection.NewService(stateStore)

	// 7. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), db, cfg.Server.Mode)
	ingestionSvc.RegisterRoutes(srv.Engine)
	projectionSvc.RegisterRoutes(srv.Engine)
	masterSvc.RegisterRoutes(srv.Engine)

	// 8. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if scheduler != nil {
		go func() {
			if err := scheduler.Start(ctx); err != nil {
				slog.Error("Scheduler stopped with error", "error", err)
			}
		}()
	} else {
		slog.Info("Master rebuild scheduler disabled by config")
	}

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
