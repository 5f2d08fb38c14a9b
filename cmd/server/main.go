package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/sy22478/HealthMate-sub003/internal/adapter/httpserver"
	"github.com/sy22478/HealthMate-sub003/internal/adapter/postgres"
	redisadapter "github.com/sy22478/HealthMate-sub003/internal/adapter/redis"
	"github.com/sy22478/HealthMate-sub003/internal/adapter/token"
	"github.com/sy22478/HealthMate-sub003/internal/config"
	"github.com/sy22478/HealthMate-sub003/internal/logging"
	"github.com/sy22478/HealthMate-sub003/internal/realtime"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := setupConfig()
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	clock := clockwork.NewRealClock()

	pool := setupDB(cfg)
	defer pool.Close()

	redisClient := setupRedis(cfg)
	defer redisClient.Close()

	registry := realtime.NewRegistry(realtime.Limits{
		MaxConnections:        cfg.MaxConnections,
		MaxConnectionsPerUser: cfg.MaxConnectionsPerUser,
	}, cfg.WriteTimeout, clock)

	verifier := token.NewVerifier(cfg.JWTSecret)
	hub := realtime.NewHub(registry, verifier, cfg.AuthTimeout, clock)

	prefs := postgres.NewPreferenceStore(pool)
	audit := redisadapter.NewAuditSink(redisClient, cfg.AuditStream, cfg.AuditStreamMaxLen)

	broadcaster := realtime.NewBroadcaster(registry, cfg.SendMaxRetries, clock)
	dispatcher := realtime.NewDispatcher(registry, prefs, audit, cfg.SendMaxRetries, clock)

	sweeper := realtime.NewSweeper(registry, realtime.SweeperConfig{
		HeartbeatInterval:   cfg.HeartbeatInterval,
		CleanupInterval:     cfg.CleanupInterval,
		RecoveryInterval:    cfg.RecoveryInterval,
		ConnectionTimeout:   cfg.ConnectionTimeout,
		ProbeTimeout:        cfg.ProbeTimeout,
		MaxRecoveryAttempts: cfg.MaxRecoveryAttempts,
	}, clock)

	sweepCtx, cancelSweeps := context.WithCancel(context.Background())
	var sweepWG sync.WaitGroup
	sweepWG.Add(1)
	go func() {
		defer sweepWG.Done()
		sweeper.Run(sweepCtx)
	}()

	healthChecks := []httpserver.HealthCheck{
		{Name: "postgres", Check: pool.Ping},
		{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
	}

	srv := httpserver.NewServer(cfg, registry, hub, dispatcher, broadcaster, healthChecks, clock)

	done := runGracefulShutdown(srv, registry, cancelSweeps, &sweepWG)

	if err := srv.Start(); err != nil {
		slog.Info("Server stopped", "error", err)
	}
	<-done
}

func runGracefulShutdown(srv *httpserver.Server, registry *realtime.Registry, cancelSweeps context.CancelFunc, sweepWG *sync.WaitGroup) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		cancelSweeps()
		sweepWG.Wait()
		registry.Shutdown()

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	return pool
}

func setupRedis(cfg *config.Config) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := redisadapter.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to redis", "error", err)
		os.Exit(1)
	}
	return client
}
