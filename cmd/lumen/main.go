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

	corecfg "github.com/lumen-lab/project-lumen/internal/core/config"
	"github.com/lumen-lab/project-lumen/internal/core/storage/postgres"
	dashstorage "github.com/lumen-lab/project-lumen/internal/dashboard/storage"
	"github.com/lumen-lab/project-lumen/internal/engine"
	"github.com/lumen-lab/project-lumen/internal/migrations"
	"github.com/lumen-lab/project-lumen/internal/render"
	"github.com/lumen-lab/project-lumen/internal/resolve"
	"github.com/lumen-lab/project-lumen/internal/server"
	"github.com/lumen-lab/project-lumen/internal/session"
)

func main() {
	configPath := flag.String("config", "lumen.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration (includes the dataset catalog)
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config", "datasets", cfg.Catalog.IDs())

	// 2. Initialize the data layer
	var (
		db       *sql.DB
		resolver resolve.Resolver
		tags     resolve.TagLookup
	)
	if cfg.Database.Enabled {
		dbAdapter, err := postgres.NewAdapter(
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
		)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer dbAdapter.Close()

		if err := migrations.RunMigrations(dbAdapter.DB(), cfg.Database.AutoMigrate); err != nil {
			slog.Error("Failed to run database migrations", "error", err)
			os.Exit(1)
		}

		db = dbAdapter.DB()
		resolver = postgres.NewResolverAdapter(db)
		tags = postgres.NewTagsAdapter(db)
	} else {
		slog.Info("Database disabled, using in-memory data layer")
		memResolver := resolve.NewMemoryResolver()
		memTags := resolve.NewMemoryTagStore(nil)
		for _, id := range cfg.Catalog.IDs() {
			if ds, err := cfg.Catalog.Get(id); err == nil {
				memTags.SetTag(id, ds.Name)
			}
		}
		resolver = memResolver
		tags = memTags
	}

	// 3. Initialize the dashboard repository
	var dashboards dashstorage.Repository
	switch cfg.Dashboards.SourceType {
	case "filesystem":
		dashboards = dashstorage.NewFileSystemRepository(cfg.Dashboards.Path)
	case "postgres":
		dashboards = postgres.NewDashboardsAdapter(db)
	case "memory":
		dashboards = dashstorage.NewMemoryRepository()
	default:
		slog.Error("Unsupported dashboards source type", "type", cfg.Dashboards.SourceType)
		os.Exit(1)
	}

	// 4. Initialize the render hub and the session manager
	hub := render.NewHub()
	sessions := engine.NewManager(dashboards, cfg.Catalog, resolver, tags, hub, engine.Options{
		GuardWindow:   cfg.Engine.GuardWindowDuration(),
		ResolveTTL:    cfg.Engine.ResolveTTLDuration(),
		TagTTL:        cfg.Engine.TagTTLDuration(),
		RemoteWorkers: cfg.Engine.RemoteWorkers,
	})

	slog.Info("Session manager initialized",
		"guard_window", cfg.Engine.GuardWindow,
		"resolve_ttl", cfg.Engine.ResolveTTL,
		"tag_ttl", cfg.Engine.TagTTL,
		"remote_workers", cfg.Engine.RemoteWorkers,
	)

	// 5. Initialize the HTTP server and routes
	sessionSvc := session.NewService(sessions, hub, cfg.Server.MaxBodySizeMB)
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), db, sessions, cfg.Server.Mode)
	sessionSvc.RegisterRoutes(srv.Engine)

	// 6. Start
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
