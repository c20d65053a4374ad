package analysis

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/freeeve/uci"
	"github.com/rs/zerolog"

	"github.com/freeeve/chessanalyzer/internal/engine"
)

// UCIEvaluator evaluates positions with a blocking fixed-depth search. The engine
// cannot be interrupted mid-search, so a timeout kills it and the next call starts
// a fresh process.
type UCIEvaluator struct {
	path   string
	name   string
	depth  int
	opts   uci.Options
	logger zerolog.Logger

	mu     sync.Mutex
	engine *uci.Engine
}

func NewUCIEvaluator(path, name string, depth int, opts uci.Options, logger zerolog.Logger) (*UCIEvaluator, error) {
	e := &UCIEvaluator{
		path:   path,
		name:   name,
		depth:  depth,
		opts:   opts,
		logger: logger.With().Str("component", "uci-evaluator").Logger(),
	}
	if _, err := e.ensure(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *UCIEvaluator) ensure() (*uci.Engine, error) {
	if e.engine != nil {
		return e.engine, nil
	}
	eng, err := uci.NewEngine(e.path)
	if err != nil {
		return nil, fmt.Errorf("%w: create engine: %v", engine.ErrUnavailable, err)
	}
	if err := eng.SetOptions(e.opts); err != nil {
		eng.Close()
		return nil, fmt.Errorf("%w: set options: %v", engine.ErrUnavailable, err)
	}
	e.engine = eng
	return eng, nil
}

func (e *UCIEvaluator) Name() string { return e.name }

type uciResult struct {
	results *uci.Results
	err     error
}

func (e *UCIEvaluator) Evaluate(ctx context.Context, fen string) (Reading, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	eng, err := e.ensure()
	if err != nil {
		return Reading{}, err
	}

	done := make(chan uciResult, 1)
	go func() {
		if err := eng.SetFEN(fen); err != nil {
			done <- uciResult{err: fmt.Errorf("set FEN: %w", err)}
			return
		}
		results, err := eng.GoDepth(e.depth, uci.HighestDepthOnly)
		done <- uciResult{results: results, err: err}
	}()

	var r uciResult
	select {
	case r = <-done:
	case <-ctx.Done():
		e.logger.Warn().Str("fen", fen).Msg("evaluation timed out, restarting engine")
		eng.Close()
		e.engine = nil
		return Reading{}, ErrTimeout
	}

	if r.err != nil {
		eng.Close()
		e.engine = nil
		return Reading{}, fmt.Errorf("stockfish eval: %w", r.err)
	}
	if len(r.results.Results) == 0 {
		return Reading{}, ErrNoReading
	}

	best := r.results.Results[0]
	for _, res := range r.results.Results {
		if res.Depth > best.Depth {
			best = res
		}
	}

	// Scores are from the side to move; flip to White when Black is to move.
	blackToMove := strings.Contains(fen, " b ")
	score := best.Score
	if blackToMove {
		score = -score
	}

	reading := Reading{BestMove: r.results.BestMove, Depth: best.Depth}
	if best.Mate {
		switch {
		case score > 0:
			reading.CP = MateScore
		case score < 0:
			reading.CP = -MateScore
		case blackToMove:
			reading.CP = MateScore
		default:
			reading.CP = -MateScore
		}
	} else {
		reading.CP = score
	}

	e.logger.Debug().
		Str("fen", fen).
		Bool("blackToMove", blackToMove).
		Int("rawScore", best.Score).
		Int("normalizedScore", reading.CP).
		Msg("score")
	return reading, nil
}

// Close stops the engine process.
func (e *UCIEvaluator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.engine != nil {
		e.engine.Close()
		e.engine = nil
	}
	return nil
}
