// Package jobs turns queued analysis jobs into stored analyses.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/chessanalyzer/internal/analysis"
	"github.com/freeeve/chessanalyzer/internal/queue"
	"github.com/freeeve/chessanalyzer/internal/store"
)

// Outcome reports what one RunOnce call did.
type Outcome struct {
	Processed bool   `json:"-"`
	GameID    string `json:"gameId,omitempty"`
}

type Config struct {
	Queue    queue.Queue // nil disables RunOnce
	Store    store.Store
	Pipeline *analysis.Pipeline
	Logger   zerolog.Logger
}

// Runner processes at most one job per RunOnce call.
type Runner struct {
	queue    queue.Queue
	store    store.Store
	pipeline *analysis.Pipeline
	log      zerolog.Logger
	now      func() time.Time
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		queue:    cfg.Queue,
		store:    cfg.Store,
		pipeline: cfg.Pipeline,
		log:      cfg.Logger.With().Str("component", "jobs").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce takes one job and processes it. An empty or missing queue is not an error.
// A job whose analysis was aborted is put back on the queue.
func (r *Runner) RunOnce(ctx context.Context) (Outcome, error) {
	if r.queue == nil {
		return Outcome{}, nil
	}
	job, err := r.queue.Take(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if job == nil {
		r.log.Debug().Msg("no pending jobs")
		return Outcome{}, nil
	}
	out := Outcome{Processed: true, GameID: job.GameID}
	err = r.Process(ctx, job.GameID)
	if err != nil && !errors.Is(err, analysis.ErrReplay) {
		if qerr := r.queue.Enqueue(context.WithoutCancel(ctx), *job); qerr != nil {
			r.log.Error().Err(qerr).Str("game_id", job.GameID).Msg("requeue failed")
		}
	}
	return out, err
}

// Process analyzes one stored game and persists the result. A game that no longer
// exists is skipped. A game whose moves cannot be replayed is marked FAILED; any
// other analysis error returns it to PENDING.
func (r *Runner) Process(ctx context.Context, gameID string) error {
	log := r.log.With().Str("game_id", gameID).Logger()
	start := time.Now()

	moves, err := r.store.LoadMoves(ctx, gameID)
	if errors.Is(err, store.ErrGameNotFound) {
		log.Warn().Msg("game not found, skipping job")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load moves: %w", err)
	}

	if err := r.store.UpdateGameStatus(ctx, gameID, store.StatusProcessing, nil); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	log.Info().Int("moves", len(moves)).Str("engine", r.pipeline.EngineName()).Msg("analysis started")

	result, err := r.pipeline.ClassifyGame(ctx, moves)
	if err != nil {
		if errors.Is(err, analysis.ErrReplay) {
			log.Error().Err(err).Msg("stored moves cannot be replayed")
			if serr := r.store.UpdateGameStatus(ctx, gameID, store.StatusFailed, nil); serr != nil {
				log.Error().Err(serr).Msg("mark failed")
			}
			return err
		}
		// The caller's ctx may already be done; the reset must still land.
		log.Warn().Err(err).Msg("analysis aborted, game back to pending")
		if serr := r.store.UpdateGameStatus(context.WithoutCancel(ctx), gameID, store.StatusPending, nil); serr != nil {
			log.Error().Err(serr).Msg("mark pending")
		}
		return err
	}

	rec := analysis.Record{
		GameID:      gameID,
		Engine:      r.pipeline.EngineName(),
		CompletedAt: r.now(),
		Summary:     result.Summary,
		Moves:       result.Evaluations,
	}
	if err := r.store.SaveAnalysis(ctx, rec); err != nil {
		log.Error().Err(err).Msg("save analysis failed")
		return fmt.Errorf("save analysis: %w", err)
	}
	if err := r.store.UpdateGameStatus(ctx, gameID, store.StatusCompleted, &result.Summary); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	log.Info().
		Float64("accuracy", result.Summary.Accuracy).
		Int("blunders", result.Summary.Blunders).
		Int("mistakes", result.Summary.Mistakes).
		Int("inaccuracies", result.Summary.Inaccuracies).
		Dur("elapsed", time.Since(start)).
		Msg("analysis completed")
	return nil
}
