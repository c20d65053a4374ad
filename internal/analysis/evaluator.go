package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/chessanalyzer/internal/engine"
	"github.com/freeeve/chessanalyzer/internal/rules"
)

var (
	ErrNoReading = errors.New("no evaluation reading")
	ErrTimeout   = errors.New("evaluation timed out")
)

// MateScore is the centipawn value a forced mate is counted as.
const MateScore = 1000

// Reading is one position evaluation. CP is White-relative.
type Reading struct {
	CP       int
	BestMove string
	Depth    int
	// Partial is set when the search was stopped before reaching its target depth.
	Partial bool
}

// Evaluator scores positions. Implementations honour ctx for the per-move timeout.
type Evaluator interface {
	Evaluate(ctx context.Context, fen string) (Reading, error)
	Name() string
}

// MaterialEvaluator counts material. It never fails on a valid position.
type MaterialEvaluator struct{}

func (MaterialEvaluator) Name() string { return "material" }

func (MaterialEvaluator) Evaluate(_ context.Context, fen string) (Reading, error) {
	cp, err := rules.Material(fen)
	if err != nil {
		return Reading{}, err
	}
	return Reading{CP: cp}, nil
}

// mateCP converts a White-relative mate distance to centipawns. Mate 0 means the
// side to move is already mated.
func mateCP(mate int, sideToMove rules.Color) int {
	switch {
	case mate > 0:
		return MateScore
	case mate < 0:
		return -MateScore
	}
	return -MateScore * sideToMove.Sign()
}

// Analyzer is the engine session as used for batch evaluation.
type Analyzer interface {
	Analyze(fen string, depth int) (*engine.Stream, error)
	Cancel() error
}

// SessionEvaluator runs each position through a streaming engine session to a
// fixed depth. When ctx expires the search is stopped and the last reading is kept.
type SessionEvaluator struct {
	analyzer Analyzer
	depth    int
	name     string
	grace    time.Duration
	logger   zerolog.Logger
}

func NewSessionEvaluator(a Analyzer, depth int, name string, logger zerolog.Logger) *SessionEvaluator {
	return &SessionEvaluator{
		analyzer: a,
		depth:    depth,
		name:     name,
		grace:    500 * time.Millisecond,
		logger:   logger.With().Str("component", "session-evaluator").Logger(),
	}
}

func (e *SessionEvaluator) Name() string { return e.name }

func (e *SessionEvaluator) Evaluate(ctx context.Context, fen string) (Reading, error) {
	side, err := rules.SideToMove(fen)
	if err != nil {
		return Reading{}, err
	}
	stream, err := e.analyzer.Analyze(fen, e.depth)
	if err != nil {
		return Reading{}, err
	}

	var (
		reading Reading
		have    bool
		grace   <-chan time.Time
		expired = ctx.Done()
	)
	for {
		select {
		case u, ok := <-stream.Updates():
			if !ok {
				if have {
					reading.Partial = true
					return reading, nil
				}
				if err := stream.Err(); err != nil {
					return Reading{}, err
				}
				return Reading{}, ErrNoReading
			}
			if u.Score != nil {
				reading.CP, have = *u.Score, true
			}
			if u.Mate != nil {
				reading.CP, have = mateCP(*u.Mate, side), true
			}
			if u.Depth > reading.Depth {
				reading.Depth = u.Depth
			}
			if u.BestMove != "" {
				reading.BestMove = u.BestMove
			}
			if u.Done {
				if !have {
					return Reading{}, ErrNoReading
				}
				reading.Partial = grace != nil
				return reading, nil
			}

		case <-expired:
			expired = nil
			e.logger.Warn().Str("fen", fen).Int("depth", reading.Depth).Msg("evaluation timed out, stopping search")
			if err := e.analyzer.Cancel(); err != nil {
				return Reading{}, err
			}
			grace = time.After(e.grace)

		case <-grace:
			if have {
				reading.Partial = true
				return reading, nil
			}
			return Reading{}, ErrTimeout
		}
	}
}
