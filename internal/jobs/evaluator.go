package jobs

import (
	"context"

	"github.com/freeeve/uci"
	"github.com/rs/zerolog"

	"github.com/freeeve/chessanalyzer/internal/analysis"
	"github.com/freeeve/chessanalyzer/internal/config"
	"github.com/freeeve/chessanalyzer/internal/engine"
)

// OpenEvaluator selects the batch evaluator from cfg. With the engine disabled it
// returns nil, and the pipeline counts material. The returned close func is never nil.
func OpenEvaluator(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (analysis.Evaluator, func() error, error) {
	noop := func() error { return nil }
	if !cfg.StockfishEnabled {
		return nil, noop, nil
	}

	switch cfg.BatchDriver {
	case config.DriverUCI:
		ev, err := analysis.NewUCIEvaluator(cfg.StockfishPath, cfg.EngineName, cfg.BatchDepth, uci.Options{
			Hash:    cfg.HashMB,
			Threads: cfg.Threads,
			MultiPV: 1,
		}, logger)
		if err != nil {
			return nil, noop, err
		}
		return ev, ev.Close, nil

	default:
		sess, err := engine.Launch(ctx, cfg.StockfishPath, SessionOptions(cfg), logger)
		if err != nil {
			return nil, noop, err
		}
		return analysis.NewSessionEvaluator(sess, cfg.BatchDepth, cfg.EngineName, logger), sess.Close, nil
	}
}

// SessionOptions maps the engine settings onto session options.
func SessionOptions(cfg *config.Config) engine.Options {
	return engine.Options{
		SkillLevel: cfg.SkillLevel,
		MultiPV:    cfg.MultiPV,
		HashMB:     cfg.HashMB,
		Threads:    cfg.Threads,
	}
}
