package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/crawlshastra-backend/internal/data/db"
	"github.com/yungbote/crawlshastra-backend/internal/http"
	"github.com/yungbote/crawlshastra-backend/internal/observability"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/envutil"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Server   *http.Server
	Cfg      Config
	Repos    Repos
	Services Services
	Clients  Clients
	Metrics  *observability.Metrics

	shutdownOtel func(context.Context) error
}

// New builds the app from the environment.
func New(ctx context.Context) (*App, error) {
	LoadDotEnv()
	log, err := logger.New(envutil.GetEnv("LOG_MODE", "development", nil))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, log, cfg)
}

func NewWithConfig(ctx context.Context, log *logger.Logger, cfg Config) (*App, error) {
	shutdownOtel := observability.InitOTel(ctx, log, cfg.Otel)

	theDB, err := openDB(log, cfg)
	if err != nil {
		_ = shutdownOtel(ctx)
		return nil, err
	}
	if err := db.AutoMigrateAll(theDB); err != nil {
		_ = shutdownOtel(ctx)
		return nil, fmt.Errorf("automigrate: %w", err)
	}

	clients, err := wireClients(log, cfg)
	if err != nil {
		_ = shutdownOtel(ctx)
		return nil, err
	}

	var metrics *observability.Metrics
	if cfg.MetricsEnabled {
		metrics = observability.NewMetrics()
		metrics.RegisterDB(log, theDB, cfg.DBDriver)
	}

	reposet := wireRepos(theDB, log)
	serviceset := wireServices(theDB, log, cfg, reposet, clients)
	handlerset := wireHandlers(log, theDB, serviceset)
	middleware := wireMiddleware(log, cfg, serviceset)
	server := wireServer(log, cfg, handlerset, middleware, metrics)

	return &App{
		Log:          log,
		DB:           theDB,
		Server:       server,
		Cfg:          cfg,
		Repos:        reposet,
		Services:     serviceset,
		Clients:      clients,
		Metrics:      metrics,
		shutdownOtel: shutdownOtel,
	}, nil
}

func openDB(log *logger.Logger, cfg Config) (*gorm.DB, error) {
	switch cfg.DBDriver {
	case "sqlite":
		s, err := db.NewSQLiteService(log, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
		return s.DB(), nil
	default:
		pg, err := db.NewPostgresService(log, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		return pg.DB(), nil
	}
}

// Run serves until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	addr := ":" + a.Cfg.Port
	a.Log.Info("Server listening", "addr", addr)
	return a.Server.Run(ctx, addr)
}

func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	a.Clients.Close()
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if a.shutdownOtel != nil {
		if err := a.shutdownOtel(ctx); err != nil && a.Log != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
