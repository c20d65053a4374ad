package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/freeeve/chessanalyzer/internal/analysis"
	"github.com/freeeve/chessanalyzer/internal/config"
	"github.com/freeeve/chessanalyzer/internal/ingest"
	"github.com/freeeve/chessanalyzer/internal/jobs"
	"github.com/freeeve/chessanalyzer/internal/logx"
	"github.com/freeeve/chessanalyzer/internal/queue"
	"github.com/freeeve/chessanalyzer/internal/store"
)

func main() {
	var (
		cfgPath   = flag.String("config", "", "optional config file")
		inputPath = flag.String("pgn", "", "Path to a single-game PGN file (supports .zst)")
	)
	flag.Parse()

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: ingest --pgn <file.pgn[.zst]> [--config file]")
		flag.PrintDefaults()
		os.Exit(1)
	}

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
	rq, err := queue.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect queue")
	}
	if rq != nil {
		q = rq
		defer rq.Close()
	}

	// Without a queue the game is analyzed right away.
	var inline ingest.Processor
	if q == nil {
		evaluator, closeEval, err := jobs.OpenEvaluator(ctx, cfg, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("engine unavailable, analysis will count material")
		}
		defer closeEval()
		inline = jobs.NewRunner(jobs.Config{
			Store: games,
			Pipeline: analysis.NewPipeline(analysis.Config{
				Evaluator:   evaluator,
				TargetDepth: cfg.BatchDepth,
				MoveTimeout: cfg.MoveTimeout(),
				Logger:      logger,
			}),
			Logger: logger,
		})
	}

	intake := ingest.NewIntake(games, q, inline, logger)
	gameID, err := intake.IngestFile(ctx, *inputPath)
	if err != nil {
		logger.Fatal().Err(err).Str("pgn", *inputPath).Msg("ingest failed")
	}
	logger.Info().Str("game_id", gameID).Bool("queued", q != nil).Msg("game stored")
	fmt.Println(gameID)
}
