package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/agent"
	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/api"
	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/config"
	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/graph"
	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/orchestrator"
	pgstore "github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/store"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/marketing.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Server.LogLevel)
	defer logger.Sync()
	logger.Info("Starting marketing agent memory service...", zap.String("config", cfgPath))

	// Agents and their memory
	registry := agent.NewRegistry(cfg.MemoryOptions(), logger)
	for _, ac := range cfg.Agents {
		kind, err := agent.ParseKind(ac.Kind)
		if err != nil {
			logger.Fatal("invalid agent config", zap.String("id", ac.ID), zap.Error(err))
		}
		if _, err := registry.Register(ac.ID, kind); err != nil {
			logger.Fatal("register agent", zap.String("id", ac.ID), zap.Error(err))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := orchestrator.NewScheduler(registry, cfg.SchedulerOptions(), logger)
	replicator := orchestrator.NewReplicator(registry, cfg.Orchestrator.ShareMinConfidence, logger)
	hub := api.NewHub(registry, logger)
	scheduler.AddSink(hub)

	// PostgreSQL audit log
	var reports *pgstore.Store
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := pgstore.New(ctx, cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without report audit log", zap.Error(pgErr))
		} else {
			if mErr := ps.Migrate(ctx, cfg.Server.MigrationsDir); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			reports = ps
			scheduler.AddSink(ps)
		}
	} else {
		logger.Warn("PostgreSQL not configured, running without report audit log")
	}

	// Neo4j graph mirror
	var mirror *graph.Mirror
	if cfg.Database.Neo4j.URI != "" {
		m, gErr := graph.NewMirror(cfg.Database.Neo4j.URI, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, logger)
		if gErr == nil {
			gErr = m.Ping(ctx)
		}
		if gErr != nil {
			logger.Warn("Neo4j unavailable, running without graph mirror", zap.Error(gErr))
		} else {
			mirror = m
			scheduler.AddSink(m.Sink(registry))
			logger.Info("Neo4j graph mirror connected")
		}
	} else {
		logger.Warn("Neo4j not configured, running without graph mirror")
	}

	// Redis event bus
	var bus *orchestrator.MessageBus
	if cfg.Database.Redis.URL != "" {
		b, busErr := orchestrator.NewMessageBus(cfg.Database.Redis.URL, logger)
		if busErr != nil {
			logger.Warn("Redis unavailable, running without event bus", zap.Error(busErr))
		} else {
			bus = b
			scheduler.AddSink(b)
			replicator.SetPublisher(b)
			for _, a := range registry.List() {
				go replicator.Consume(b.Subscribe(ctx, a.ID))
			}
			logger.Info("Redis event bus connected")
		}
	} else {
		logger.Warn("Redis not configured, running without event bus")
	}

	if err := scheduler.Start(ctx); err != nil {
		logger.Fatal("start scheduler", zap.Error(err))
	}

	// Build HTTP handler
	handler := api.NewHandler(registry, scheduler, replicator, hub, logger)
	if reports != nil {
		handler.SetReports(reports)
	}
	if mirror != nil {
		handler.SetGraph(mirror)
	}

	port := fmt.Sprintf("%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Marketing agent memory service listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	scheduler.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	hub.Close()
	srv.Shutdown(shutdownCtx)
	if bus != nil {
		bus.Close()
	}
	if mirror != nil {
		mirror.Close(shutdownCtx)
	}
	if reports != nil {
		reports.Close()
	}
}

// newLogger uses the development encoder at debug level and production JSON
// otherwise.
func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	var zc zap.Config
	if lvl == zapcore.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := zc.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}
