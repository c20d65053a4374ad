// Command board is a terminal chess board with a variation tree and live engine
// evaluation.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/freeeve/chessanalyzer/internal/config"
	"github.com/freeeve/chessanalyzer/internal/eco"
	"github.com/freeeve/chessanalyzer/internal/engine"
	"github.com/freeeve/chessanalyzer/internal/jobs"
	"github.com/freeeve/chessanalyzer/internal/live"
	"github.com/freeeve/chessanalyzer/internal/logx"
	"github.com/freeeve/chessanalyzer/internal/rules"
	"github.com/freeeve/chessanalyzer/internal/tree"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "optional config file")
		pgnPath = flag.String("pgn", "", "PGN game to load at start")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		bootLogger := logx.NewLogger("info")
		bootLogger.Fatal().Err(err).Msg("load config")
	}
	// keep engine chatter off the board unless asked for
	level := cfg.LogLevel
	if level == "info" {
		level = "warn"
	}
	logger := logx.NewLogger(level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var analyzer live.Analyzer
	if cfg.StockfishEnabled {
		sess, err := engine.Launch(ctx, cfg.StockfishPath, jobs.SessionOptions(cfg), logger)
		if err != nil {
			logger.Warn().Err(err).Msg("engine unavailable, evaluation disabled")
		} else {
			defer sess.Close()
			analyzer = sess
		}
	}

	ctrl := live.New(live.Config{
		MinDepth: cfg.LiveMinDepth,
		MaxDepth: cfg.LiveMaxDepth,
		Step:     cfg.LiveDepthStep,
		Debounce: cfg.Debounce(),
		Logger:   logger,
	}, analyzer)
	go func() {
		if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("live evaluation stopped")
		}
	}()

	var ecoDB *eco.Database
	if cfg.ECODir != "" {
		ecoDB = eco.NewDatabase()
		if err := ecoDB.LoadDir(cfg.ECODir); err != nil {
			logger.Warn().Err(err).Str("dir", cfg.ECODir).Msg("failed to load ECO database")
			ecoDB = nil
		}
	}

	t := tree.New(rules.New())
	s := newSession(t, ctrl, ecoDB, os.Stdout)
	if *pgnPath != "" {
		if err := s.exec("import " + *pgnPath); err != nil {
			fmt.Fprintln(os.Stderr, "import:", err)
		}
	}
	s.printPosition()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			err := s.exec(line)
			if errors.Is(err, errQuit) {
				return
			}
			if err != nil {
				fmt.Println("error:", err)
			}
		}
	}
}
