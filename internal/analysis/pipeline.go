// Package analysis classifies every move of a stored game by the evaluation swing
// it caused and summarises the result.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/chessanalyzer/internal/engine"
	"github.com/freeeve/chessanalyzer/internal/rules"
)

// ErrReplay is returned when a stored move list cannot be replayed.
var ErrReplay = errors.New("move list replay failed")

// Move is one stored move of a game, in play order.
type Move struct {
	ID  string `json:"id" bson:"_id"`
	Ply int    `json:"ply" bson:"ply"`
	SAN string `json:"san" bson:"san"`
}

// MoveEvaluation is the verdict on a single move. Evaluation is from the point of
// view of the side that moved; AbsoluteCP is White-relative.
type MoveEvaluation struct {
	MoveID         string         `json:"moveId" bson:"moveId"`
	Ply            int            `json:"ply" bson:"ply"`
	SAN            string         `json:"san" bson:"san"`
	Evaluation     int            `json:"evaluationCp" bson:"evaluationCp"`
	AbsoluteCP     int            `json:"absoluteCp" bson:"absoluteCp"`
	BestMove       string         `json:"bestMove,omitempty" bson:"bestMove,omitempty"`
	Depth          int            `json:"depth" bson:"depth"`
	Classification Classification `json:"classification" bson:"classification"`
	Source         string         `json:"source" bson:"source"`
}

// Summary aggregates a game's evaluations.
type Summary struct {
	AverageLoss     float64 `json:"averageCentipawnLoss" bson:"averageCentipawnLoss"`
	Accuracy        float64 `json:"accuracy" bson:"accuracy"`
	Depth           int     `json:"depth" bson:"depth"`
	EstimatedCostMS int64   `json:"totalTimeMs" bson:"totalTimeMs"`
	Blunders        int     `json:"blunders" bson:"blunders"`
	Mistakes        int     `json:"mistakes" bson:"mistakes"`
	Inaccuracies    int     `json:"inaccuracies" bson:"inaccuracies"`
	MoveCount       int     `json:"moveCount" bson:"moveCount"`
}

// Result is the output of one ClassifyGame run.
type Result struct {
	Evaluations []MoveEvaluation
	Summary     Summary
}

// Record is a persisted analysis. A new record replaces any previous one for the game.
type Record struct {
	GameID      string           `json:"gameId" bson:"_id"`
	Engine      string           `json:"engine" bson:"engine"`
	CompletedAt time.Time        `json:"completedAt" bson:"completedAt"`
	Summary     Summary          `json:"summary" bson:"summary"`
	Moves       []MoveEvaluation `json:"moves" bson:"moves"`
}

type Config struct {
	// Evaluator is the engine-backed evaluator; nil means material only.
	Evaluator Evaluator
	// TargetDepth is reported when no move produced a depth.
	TargetDepth int
	// MoveTimeout bounds each evaluation and prices the estimated cost.
	MoveTimeout time.Duration
	Logger      zerolog.Logger
}

// Pipeline evaluates moves strictly in order; each delta depends on the previous reading.
type Pipeline struct {
	cfg      Config
	fallback Evaluator
	logger   zerolog.Logger
}

func NewPipeline(cfg Config) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		fallback: MaterialEvaluator{},
		logger:   cfg.Logger.With().Str("component", "analysis").Logger(),
	}
}

// EngineName names the evaluator in use.
func (p *Pipeline) EngineName() string {
	if p.cfg.Evaluator == nil {
		return p.fallback.Name()
	}
	return p.cfg.Evaluator.Name()
}

// ClassifyGame replays moves from the standard start and classifies each one.
// Engine failures fall back to material counting; only a replay failure or ctx
// cancellation aborts the run.
func (p *Pipeline) ClassifyGame(ctx context.Context, moves []Move) (*Result, error) {
	adapter := rules.New()
	fen := rules.StartFEN
	primary := p.cfg.Evaluator

	evals := make([]MoveEvaluation, 0, len(moves))
	previous := 0
	maxDepth := 0

	for _, m := range moves {
		mv, err := adapter.ApplySAN(fen, m.SAN)
		if err != nil {
			return nil, fmt.Errorf("%w: ply %d (%s): %v", ErrReplay, m.Ply, m.SAN, err)
		}
		fen = mv.FEN

		reading, source, lost, err := p.evaluate(ctx, primary, fen, m.Ply)
		if err != nil {
			return nil, err
		}
		if lost {
			primary = nil
		}

		delta := reading.CP - previous
		if delta < 0 {
			delta = -delta
		}
		previous = reading.CP
		maxDepth = max(maxDepth, reading.Depth)

		me := MoveEvaluation{
			MoveID:         m.ID,
			Ply:            m.Ply,
			SAN:            m.SAN,
			Evaluation:     reading.CP * mv.Color.Sign(),
			AbsoluteCP:     reading.CP,
			BestMove:       reading.BestMove,
			Depth:          reading.Depth,
			Classification: Classify(delta),
			Source:         source,
		}
		evals = append(evals, me)

		p.logger.Debug().
			Int("ply", m.Ply).
			Str("san", m.SAN).
			Int("cp", reading.CP).
			Int("delta", delta).
			Str("classification", string(me.Classification)).
			Msg("move evaluated")
	}

	return &Result{
		Evaluations: evals,
		Summary:     Summarize(evals, maxDepth, p.cfg.TargetDepth, p.cfg.MoveTimeout),
	}, nil
}

// evaluate asks the primary evaluator and falls back to material on any failure.
// lost reports that the engine is gone for the rest of the game.
func (p *Pipeline) evaluate(ctx context.Context, primary Evaluator, fen string, ply int) (Reading, string, bool, error) {
	if primary != nil {
		moveCtx := ctx
		if p.cfg.MoveTimeout > 0 {
			var cancel context.CancelFunc
			moveCtx, cancel = context.WithTimeout(ctx, p.cfg.MoveTimeout)
			defer cancel()
		}

		reading, err := primary.Evaluate(moveCtx, fen)
		if err == nil {
			if reading.Partial {
				p.logger.Warn().Int("ply", ply).Int("depth", reading.Depth).Msg("using partial evaluation")
			}
			return reading, primary.Name(), false, nil
		}
		if ctx.Err() != nil {
			return Reading{}, "", false, ctx.Err()
		}

		lost := errors.Is(err, engine.ErrUnavailable)
		p.logger.Warn().Err(err).Int("ply", ply).Bool("engine_lost", lost).Msg("engine evaluation failed, using material count")
		reading, ferr := p.fallback.Evaluate(ctx, fen)
		if ferr != nil {
			return Reading{}, "", false, ferr
		}
		return reading, p.fallback.Name(), lost, nil
	}

	reading, err := p.fallback.Evaluate(ctx, fen)
	if err != nil {
		return Reading{}, "", false, err
	}
	return reading, p.fallback.Name(), false, nil
}

// Summarize derives the game summary. Average loss is the mean absolute evaluation,
// not the mean swing used for classification.
func Summarize(evals []MoveEvaluation, maxDepth, targetDepth int, moveTimeout time.Duration) Summary {
	s := Summary{
		Depth:     maxDepth,
		MoveCount: len(evals),
	}
	if s.Depth == 0 {
		s.Depth = targetDepth
	}
	if len(evals) == 0 {
		return s
	}

	total := 0
	for _, e := range evals {
		if e.AbsoluteCP < 0 {
			total -= e.AbsoluteCP
		} else {
			total += e.AbsoluteCP
		}
		switch e.Classification {
		case Blunder:
			s.Blunders++
		case Mistake:
			s.Mistakes++
		case Inaccuracy:
			s.Inaccuracies++
		}
	}

	n := float64(len(evals))
	s.AverageLoss = float64(total) / n
	s.Accuracy = round2(math.Max(0, 100-s.AverageLoss/(10+n)))
	s.EstimatedCostMS = int64(len(evals)) * moveTimeout.Milliseconds()
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
