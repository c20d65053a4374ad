package store

import (
	"context"
	"sync"
	"time"

	"github.com/freeeve/chessanalyzer/internal/analysis"
)

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	games    map[string]Game
	analyses map[string]analysis.Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games:    make(map[string]Game),
		analyses: make(map[string]analysis.Record),
	}
}

func (s *MemoryStore) SaveGame(_ context.Context, g Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g.Moves = append([]analysis.Move(nil), g.Moves...)
	s.games[g.ID] = g
	return nil
}

func (s *MemoryStore) LoadGame(_ context.Context, gameID string) (*Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[gameID]
	if !ok {
		return nil, ErrGameNotFound
	}
	g.Moves = append([]analysis.Move(nil), g.Moves...)
	return &g, nil
}

func (s *MemoryStore) LoadMoves(ctx context.Context, gameID string) ([]analysis.Move, error) {
	g, err := s.LoadGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	sortByPly(g.Moves)
	return g.Moves, nil
}

func (s *MemoryStore) SaveAnalysis(_ context.Context, rec analysis.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Moves = append([]analysis.MoveEvaluation(nil), rec.Moves...)
	s.analyses[rec.GameID] = rec
	return nil
}

func (s *MemoryStore) LoadAnalysis(_ context.Context, gameID string) (*analysis.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.analyses[gameID]
	if !ok {
		return nil, ErrAnalysisNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) UpdateGameStatus(_ context.Context, gameID string, status Status, summary *analysis.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	if !ok {
		return ErrGameNotFound
	}
	applyStatus(&g, status, summary, time.Now().UTC())
	s.games[gameID] = g
	return nil
}
