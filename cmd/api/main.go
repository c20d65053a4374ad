package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/freeeve/chessanalyzer/internal/analysis"
	"github.com/freeeve/chessanalyzer/internal/config"
	"github.com/freeeve/chessanalyzer/internal/httpapi"
	"github.com/freeeve/chessanalyzer/internal/ingest"
	"github.com/freeeve/chessanalyzer/internal/jobs"
	"github.com/freeeve/chessanalyzer/internal/logx"
	"github.com/freeeve/chessanalyzer/internal/queue"
	"github.com/freeeve/chessanalyzer/internal/store"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "optional config file (yaml, toml, json or env)")
		addr    = flag.String("addr", "", "listen address (overrides HTTP_ADDR)")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		bootLogger := logx.NewLogger("info")
		bootLogger.Fatal().Err(err).Msg("load config")
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	logger := logx.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	games, closeStore, err := store.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	defer closeStore()

	// A nil *RedisQueue must stay a nil interface.
	var q queue.Queue
	rq, err := queue.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect queue")
	}
	if rq != nil {
		q = rq
		defer rq.Close()
		logger.Info().Str("key", cfg.QueueKey).Msg("using redis queue")
	}

	evaluator, closeEval, err := jobs.OpenEvaluator(ctx, cfg, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("engine unavailable, analysis will count material")
	}
	defer closeEval()

	pipeline := analysis.NewPipeline(analysis.Config{
		Evaluator:   evaluator,
		TargetDepth: cfg.BatchDepth,
		MoveTimeout: cfg.MoveTimeout(),
		Logger:      logger,
	})
	runner := jobs.NewRunner(jobs.Config{
		Queue:    q,
		Store:    games,
		Pipeline: pipeline,
		Logger:   logger,
	})
	intake := ingest.NewIntake(games, q, runner, logger)

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(logger, httpapi.Deps{
			Games:    games,
			Queue:    q,
			Runner:   runner,
			Uploader: intake,
			Engine: httpapi.EngineStatus{
				Enabled: evaluator != nil,
				Name:    pipeline.EngineName(),
				Driver:  cfg.BatchDriver,
				Depth:   cfg.BatchDepth,
				Queue:   q != nil,
			},
		}),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // inline analysis of long games
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("api server")
		}
	}()

	watcher, err := ingest.NewWatcher(ingest.Config{
		WatchDir: cfg.IngestDir,
		Logger:   logger,
	}, intake)
	if err != nil {
		logger.Fatal().Err(err).Msg("create upload watcher")
	}
	if watcher != nil {
		go func() {
			if err := watcher.Run(ctx); err != nil && err != context.Canceled {
				logger.Error().Err(err).Msg("upload watcher stopped")
			}
		}()
	}

	<-ctx.Done()
	logger.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown error")
	}
	logger.Info().Msg("shutdown complete")
}
