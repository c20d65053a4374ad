package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"github.com/freeeve/chessanalyzer/internal/analysis"
)

// FileStore keeps one JSON file per game and one zstd-compressed JSON file per
// analysis under a directory:
//
//	<dir>/<id>.game.json
//	<dir>/<id>.analysis.json.zst
type FileStore struct {
	dir    string
	log    zerolog.Logger
	mu     sync.Mutex
	enc    *zstd.Encoder
	dec    *zstd.Decoder
	nowUTC func() time.Time
}

// OpenFileStore creates dir if needed.
func OpenFileStore(dir string, log zerolog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &FileStore{
		dir:    dir,
		log:    log.With().Str("component", "file-store").Logger(),
		enc:    enc,
		dec:    dec,
		nowUTC: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *FileStore) Close() error {
	s.dec.Close()
	return s.enc.Close()
}

func (s *FileStore) gamePath(id string) string {
	return filepath.Join(s.dir, id+".game.json")
}

func (s *FileStore) analysisPath(id string) string {
	return filepath.Join(s.dir, id+".analysis.json.zst")
}

// writeAtomic writes via a temp file and rename so readers never see a partial file.
func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func (s *FileStore) SaveGame(_ context.Context, g Game) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encode game %s: %w", g.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeAtomic(s.gamePath(g.ID), data); err != nil {
		return fmt.Errorf("write game %s: %w", g.ID, err)
	}
	return nil
}

func (s *FileStore) loadGame(id string) (*Game, error) {
	data, err := os.ReadFile(s.gamePath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read game %s: %w", id, err)
	}
	var g Game
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode game %s: %w", id, err)
	}
	return &g, nil
}

func (s *FileStore) LoadGame(_ context.Context, gameID string) (*Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadGame(gameID)
}

func (s *FileStore) LoadMoves(ctx context.Context, gameID string) ([]analysis.Move, error) {
	g, err := s.LoadGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	sortByPly(g.Moves)
	return g.Moves, nil
}

func (s *FileStore) SaveAnalysis(_ context.Context, rec analysis.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode analysis %s: %w", rec.GameID, err)
	}
	compressed := s.enc.EncodeAll(raw, nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeAtomic(s.analysisPath(rec.GameID), compressed); err != nil {
		return fmt.Errorf("write analysis %s: %w", rec.GameID, err)
	}
	s.log.Debug().
		Str("game_id", rec.GameID).
		Int("raw_bytes", len(raw)).
		Int("compressed_bytes", len(compressed)).
		Msg("analysis saved")
	return nil
}

func (s *FileStore) LoadAnalysis(_ context.Context, gameID string) (*analysis.Record, error) {
	s.mu.Lock()
	compressed, err := os.ReadFile(s.analysisPath(gameID))
	s.mu.Unlock()
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrAnalysisNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read analysis %s: %w", gameID, err)
	}

	raw, err := s.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress analysis %s: %w", gameID, err)
	}
	var rec analysis.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode analysis %s: %w", gameID, err)
	}
	return &rec, nil
}

func (s *FileStore) UpdateGameStatus(_ context.Context, gameID string, status Status, summary *analysis.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.loadGame(gameID)
	if err != nil {
		return err
	}
	applyStatus(g, status, summary, s.nowUTC())
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encode game %s: %w", gameID, err)
	}
	if err := writeAtomic(s.gamePath(gameID), data); err != nil {
		return fmt.Errorf("write game %s: %w", gameID, err)
	}
	return nil
}
