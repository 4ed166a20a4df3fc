package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	appBattle "github.com/skate-sesh/skate-sesh/internal/application/battle"
	appMatch "github.com/skate-sesh/skate-sesh/internal/application/match"
	appSweep "github.com/skate-sesh/skate-sesh/internal/application/sweep"
	"github.com/skate-sesh/skate-sesh/internal/api/http"
	"github.com/skate-sesh/skate-sesh/internal/config"
	"github.com/skate-sesh/skate-sesh/internal/infrastructure/postgres"
	"github.com/skate-sesh/skate-sesh/internal/infrastructure/push"
	"github.com/skate-sesh/skate-sesh/internal/infrastructure/realtime"
)

func main() {
	_ = godotenv.Load()

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir, logger); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = rdb.Close() }()

	// repositories
	matchRepo := postgres.NewMatchRepository(pool)
	battleRepo := postgres.NewBattleRepository(pool)

	// infrastructure
	hub := realtime.NewHub()
	pusher := push.NewNotifier(rdb, cfg.PushCooldown, logger)

	// services
	matchSvc := appMatch.NewService(matchRepo, hub, pusher, appMatch.Config{
		TurnTimeout:        cfg.TurnTimeout,
		ReconnectWindow:    cfg.ReconnectWindow,
		MaxProcessedEvents: cfg.MaxProcessedEvents,
	}, logger)
	battleSvc := appBattle.NewService(battleRepo, hub, hub, pusher, appBattle.Config{
		VoteWindow:         cfg.VoteWindow,
		MaxProcessedEvents: cfg.MaxProcessedEvents,
	}, logger)
	sweepSvc := appSweep.NewService(matchRepo, battleRepo, battleSvc, hub, pusher, appSweep.Config{
		TurnTimeout:     cfg.TurnTimeout,
		ReconnectWindow: cfg.ReconnectWindow,
		BatchLimit:      cfg.SweepBatchLimit,
	}, logger)

	// timeout sweep
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("scheduler error: %v", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(cfg.SweepInterval),
		gocron.NewTask(func() {
			n, err := sweepSvc.ProcessTimeouts(context.Background())
			if err != nil {
				logger.Warn().Err(err).Msg("sweep pass failed")
				return
			}
			if n > 0 {
				logger.Info().Int("processed", n).Msg("sweep pass applied timeouts")
			}
		}),
	)
	if err != nil {
		log.Fatalf("sweep job error: %v", err)
	}
	scheduler.Start()

	// API server
	wsHandler := realtime.NewWSHandler(hub, matchSvc, logger)
	apiServer := httpapi.NewServer(matchSvc, battleSvc, wsHandler)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	_ = scheduler.Shutdown()
	hub.Stop()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}
