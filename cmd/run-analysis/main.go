// Command run-analysis takes one job off the analysis queue and processes it.
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/freeeve/chessanalyzer/internal/analysis"
	"github.com/freeeve/chessanalyzer/internal/config"
	"github.com/freeeve/chessanalyzer/internal/jobs"
	"github.com/freeeve/chessanalyzer/internal/logx"
	"github.com/freeeve/chessanalyzer/internal/queue"
	"github.com/freeeve/chessanalyzer/internal/store"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "optional config file")
		gameID  = flag.String("game", "", "analyze this game id directly, bypassing the queue")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		bootLogger := logx.NewLogger("info")
		bootLogger.Fatal().Err(err).Msg("load config")
	}
	logger := logx.NewLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	games, closeStore, err := store.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	defer closeStore()

	var q queue.Queue
	if *gameID == "" {
		rq, err := queue.Open(ctx, cfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect queue")
		}
		if rq == nil {
			logger.Info().Msg("no queue configured (REDIS_URL unset), nothing to do")
			return
		}
		defer rq.Close()
		q = rq
	}

	evaluator, closeEval, err := jobs.OpenEvaluator(ctx, cfg, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("engine unavailable, analysis will count material")
	}
	defer closeEval()

	runner := jobs.NewRunner(jobs.Config{
		Queue: q,
		Store: games,
		Pipeline: analysis.NewPipeline(analysis.Config{
			Evaluator:   evaluator,
			TargetDepth: cfg.BatchDepth,
			MoveTimeout: cfg.MoveTimeout(),
			Logger:      logger,
		}),
		Logger: logger,
	})

	if *gameID != "" {
		if err := runner.Process(ctx, *gameID); err != nil {
			logger.Fatal().Err(err).Str("game_id", *gameID).Msg("analysis failed")
		}
		return
	}

	out, err := runner.RunOnce(ctx)
	if err != nil {
		logger.Fatal().Err(err).Str("game_id", out.GameID).Msg("analysis failed")
	}
	if !out.Processed {
		logger.Info().Msg("no pending jobs")
		return
	}
	logger.Info().Str("game_id", out.GameID).Msg("analysis completed")
}
