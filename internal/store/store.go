// Package store persists uploaded games and their analyses.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/freeeve/chessanalyzer/internal/analysis"
	"github.com/freeeve/chessanalyzer/internal/rules"
)

var (
	ErrGameNotFound     = errors.New("game not found")
	ErrAnalysisNotFound = errors.New("analysis not found")
)

// Status tracks a game through the analysis lifecycle.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Game is a stored game and its latest analysis summary fields.
type Game struct {
	ID           string            `json:"id" bson:"_id"`
	Tags         map[string]string `json:"tags,omitempty" bson:"tags,omitempty"`
	Moves        []analysis.Move   `json:"moves" bson:"moves"`
	Status       Status            `json:"status" bson:"status"`
	Accuracy     float64           `json:"accuracy" bson:"accuracy"`
	Blunders     int               `json:"blunders" bson:"blunders"`
	Mistakes     int               `json:"mistakes" bson:"mistakes"`
	Inaccuracies int               `json:"inaccuracies" bson:"inaccuracies"`
	CreatedAt    time.Time         `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt" bson:"updatedAt"`
}

// NewGame builds a PENDING game from a parsed record. Move ids are "<gameId>-<ply>".
func NewGame(rec *rules.GameRecord, now time.Time) Game {
	id := uuid.NewString()
	moves := make([]analysis.Move, len(rec.Moves))
	for i, m := range rec.Moves {
		ply := i + 1
		moves[i] = analysis.Move{
			ID:  fmt.Sprintf("%s-%d", id, ply),
			Ply: ply,
			SAN: m.SAN,
		}
	}
	return Game{
		ID:        id,
		Tags:      rec.Tags,
		Moves:     moves,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Store is what the analysis job runner needs from storage.
type Store interface {
	// LoadMoves returns the game's moves ordered by ply.
	LoadMoves(ctx context.Context, gameID string) ([]analysis.Move, error)
	// SaveAnalysis replaces any previous analysis of the same game.
	SaveAnalysis(ctx context.Context, rec analysis.Record) error
	// UpdateGameStatus sets the status and, when summary is non-nil, the summary fields.
	UpdateGameStatus(ctx context.Context, gameID string, status Status, summary *analysis.Summary) error
}

// GameStore adds the game intake and read side used by the upload watcher and HTTP API.
type GameStore interface {
	Store
	SaveGame(ctx context.Context, g Game) error
	LoadGame(ctx context.Context, gameID string) (*Game, error)
	LoadAnalysis(ctx context.Context, gameID string) (*analysis.Record, error)
}

// applyStatus updates g in place.
func applyStatus(g *Game, status Status, summary *analysis.Summary, now time.Time) {
	g.Status = status
	g.UpdatedAt = now
	if summary != nil {
		g.Accuracy = summary.Accuracy
		g.Blunders = summary.Blunders
		g.Mistakes = summary.Mistakes
		g.Inaccuracies = summary.Inaccuracies
	}
}

func sortByPly(moves []analysis.Move) {
	sort.SliceStable(moves, func(i, j int) bool { return moves[i].Ply < moves[j].Ply })
}
