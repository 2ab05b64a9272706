package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shoplog/scoring-engine/internal/api/scoreboard"
	"github.com/shoplog/scoring-engine/internal/cache"
	"github.com/shoplog/scoring-engine/internal/config"
	"github.com/shoplog/scoring-engine/internal/repository"
	"github.com/shoplog/scoring-engine/internal/service/badges"
	"github.com/shoplog/scoring-engine/internal/service/leaderboard"
	"github.com/shoplog/scoring-engine/internal/service/rank"
	"github.com/shoplog/scoring-engine/internal/service/scheduler"
	"github.com/shoplog/scoring-engine/internal/service/scoring"
	"github.com/shoplog/scoring-engine/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)

	loc, err := cfg.Scoring.Location()
	if err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.Scoring.Timezone).Msg("Invalid scoring timezone")
	}

	db, err := repository.NewDB(&cfg.Database.Postgres, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	var lbCache cache.Cache
	if cfg.Database.Redis.Enabled {
		redisCache, err := cache.NewRedis(&cfg.Database.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisCache.Close()
		lbCache = redisCache
	}

	// Repositories
	activityRepo := repository.NewActivityRepository(db)
	aggRepo := repository.NewAggregateRepository(db)
	dailyRepo := repository.NewDailyCounterRepository(db)
	badgeRepo := repository.NewBadgeRepository(db)

	// Services
	tracker := scoring.NewDailyActivityTracker(activityRepo, dailyRepo, loc)
	badgeService := badges.NewService(badgeRepo, activityRepo, aggRepo, cfg.Badges, log.Component("badges"))
	scoringService := scoring.NewService(
		db, activityRepo, aggRepo, tracker, badgeService,
		&cfg.Scoring, loc, log.Component("scoring"),
	)
	leaderboardService := leaderboard.NewService(
		aggRepo, activityRepo, badgeRepo, lbCache, cfg.Leaderboard, log.Component("leaderboard"),
	)
	recomputeJob := rank.NewJob(
		db, aggRepo, dailyRepo, scoringService.Tiers(),
		cfg.Scheduler.BatchSize, cfg.Scoring.RetentionDays, loc, log.Component("rank"),
	)

	if err := badgeService.SyncCatalog(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to sync badge catalog")
	}

	// Scheduler
	sched := scheduler.NewService(&cfg.Scheduler, recomputeJob, log.Component("scheduler"))
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}
	defer sched.Stop()

	// HTTP API
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	handler := scoreboard.NewHandler(
		scoringService, leaderboardService, badgeService, sched, db, log.Component("api"),
	)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Prometheus exporter on its own port
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: mux,
		}
		go func() {
			log.Info().Int("port", cfg.Metrics.Port).Str("path", cfg.Metrics.Path).Msg("Metrics exporter listening")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Metrics exporter failed")
			}
		}()
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("environment", cfg.Server.Environment).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Metrics exporter shutdown failed")
		}
	}
}
