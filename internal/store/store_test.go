package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/chessanalyzer/internal/analysis"
	"github.com/freeeve/chessanalyzer/internal/rules"
)

func testGame(t *testing.T) Game {
	t.Helper()
	rec, err := rules.LoadGameRecord(`[Event "Test"]
[White "A"]
[Black "B"]

1. e4 e5 2. Nf3 Nc6 *`)
	if err != nil {
		t.Fatalf("LoadGameRecord: %v", err)
	}
	return NewGame(rec, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
}

func TestNewGame(t *testing.T) {
	g := testGame(t)
	if g.ID == "" {
		t.Fatal("empty id")
	}
	if g.Status != StatusPending {
		t.Errorf("status = %s, want PENDING", g.Status)
	}
	if len(g.Moves) != 4 {
		t.Fatalf("moves = %d, want 4", len(g.Moves))
	}
	for i, m := range g.Moves {
		if m.Ply != i+1 {
			t.Errorf("move %d ply = %d", i, m.Ply)
		}
		if want := g.ID + "-" + string(rune('1'+i)); m.ID != want {
			t.Errorf("move %d id = %q, want %q", i, m.ID, want)
		}
	}
	if g.Moves[2].SAN != "Nf3" {
		t.Errorf("ply 3 = %q, want Nf3", g.Moves[2].SAN)
	}
	if g.Tags["White"] != "A" {
		t.Errorf("White tag = %q", g.Tags["White"])
	}
}

// exerciseStore runs the behaviour every GameStore must share.
func exerciseStore(t *testing.T, s GameStore) {
	ctx := context.Background()
	g := testGame(t)

	if _, err := s.LoadMoves(ctx, g.ID); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("LoadMoves before save: err = %v, want ErrGameNotFound", err)
	}
	if err := s.UpdateGameStatus(ctx, g.ID, StatusProcessing, nil); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("UpdateGameStatus unknown: err = %v, want ErrGameNotFound", err)
	}
	if _, err := s.LoadAnalysis(ctx, g.ID); !errors.Is(err, ErrAnalysisNotFound) {
		t.Fatalf("LoadAnalysis before save: err = %v, want ErrAnalysisNotFound", err)
	}

	// store out of order; LoadMoves returns ply order
	shuffled := g
	shuffled.Moves = []analysis.Move{g.Moves[2], g.Moves[0], g.Moves[3], g.Moves[1]}
	if err := s.SaveGame(ctx, shuffled); err != nil {
		t.Fatalf("SaveGame: %v", err)
	}
	moves, err := s.LoadMoves(ctx, g.ID)
	if err != nil {
		t.Fatalf("LoadMoves: %v", err)
	}
	for i, m := range moves {
		if m.Ply != i+1 {
			t.Fatalf("moves not in ply order: %+v", moves)
		}
	}

	if err := s.UpdateGameStatus(ctx, g.ID, StatusProcessing, nil); err != nil {
		t.Fatalf("UpdateGameStatus: %v", err)
	}
	loaded, err := s.LoadGame(ctx, g.ID)
	if err != nil {
		t.Fatalf("LoadGame: %v", err)
	}
	if loaded.Status != StatusProcessing {
		t.Errorf("status = %s, want PROCESSING", loaded.Status)
	}

	first := analysis.Record{
		GameID:      g.ID,
		Engine:      "material",
		CompletedAt: time.Date(2024, 1, 2, 4, 0, 0, 0, time.UTC),
		Summary:     analysis.Summary{Accuracy: 50, Blunders: 3, Depth: 12, MoveCount: 4},
		Moves: []analysis.MoveEvaluation{
			{MoveID: g.Moves[0].ID, Ply: 1, SAN: "e4", Classification: analysis.Good, Source: "material"},
		},
	}
	if err := s.SaveAnalysis(ctx, first); err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}
	second := first
	second.Engine = "Stockfish"
	second.Summary = analysis.Summary{Accuracy: 97.6, Blunders: 0, Inaccuracies: 1, Depth: 12, MoveCount: 4}
	if err := s.SaveAnalysis(ctx, second); err != nil {
		t.Fatalf("SaveAnalysis replace: %v", err)
	}
	rec, err := s.LoadAnalysis(ctx, g.ID)
	if err != nil {
		t.Fatalf("LoadAnalysis: %v", err)
	}
	if rec.Engine != "Stockfish" || rec.Summary.Accuracy != 97.6 {
		t.Errorf("analysis not replaced: %+v", rec)
	}
	if len(rec.Moves) != 1 || rec.Moves[0].Classification != analysis.Good {
		t.Errorf("moves = %+v", rec.Moves)
	}
	if !rec.CompletedAt.Equal(second.CompletedAt) {
		t.Errorf("completedAt = %v", rec.CompletedAt)
	}

	if err := s.UpdateGameStatus(ctx, g.ID, StatusCompleted, &second.Summary); err != nil {
		t.Fatalf("UpdateGameStatus completed: %v", err)
	}
	loaded, err = s.LoadGame(ctx, g.ID)
	if err != nil {
		t.Fatalf("LoadGame: %v", err)
	}
	if loaded.Status != StatusCompleted || loaded.Accuracy != 97.6 || loaded.Inaccuracies != 1 {
		t.Errorf("game after completion = %+v", loaded)
	}
	if loaded.UpdatedAt.Before(loaded.CreatedAt) {
		t.Errorf("updatedAt %v before createdAt %v", loaded.UpdatedAt, loaded.CreatedAt)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenFileStore(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var games, analyses int
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".tmp"):
			t.Errorf("temp file left behind: %s", e.Name())
		case strings.HasSuffix(e.Name(), ".game.json"):
			games++
		case strings.HasSuffix(e.Name(), ".analysis.json.zst"):
			analyses++
		}
	}
	if games != 1 || analyses != 1 {
		t.Errorf("files: games=%d analyses=%d, want 1 and 1", games, analyses)
	}
}

func TestFileStore_Reopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	g := testGame(t)

	s, err := OpenFileStore(dir, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveGame(ctx, g); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveAnalysis(ctx, analysis.Record{GameID: g.ID, Engine: "material"}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s2, err := OpenFileStore(dir, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	moves, err := s2.LoadMoves(ctx, g.ID)
	if err != nil {
		t.Fatalf("LoadMoves after reopen: %v", err)
	}
	if len(moves) != 4 {
		t.Errorf("moves = %d, want 4", len(moves))
	}
	rec, err := s2.LoadAnalysis(ctx, g.ID)
	if err != nil {
		t.Fatalf("LoadAnalysis after reopen: %v", err)
	}
	if rec.Engine != "material" {
		t.Errorf("engine = %q", rec.Engine)
	}
}

func TestFileStore_CorruptAnalysis(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenFileStore(dir, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := os.WriteFile(filepath.Join(dir, "bad.analysis.json.zst"), []byte("not zstd"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = s.LoadAnalysis(context.Background(), "bad")
	if err == nil || errors.Is(err, ErrAnalysisNotFound) {
		t.Fatalf("err = %v, want decompress error", err)
	}
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("CHESSANALYZER_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("CHESSANALYZER_TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	db := "chessanalyzer_test_" + time.Now().Format("20060102150405")
	s, err := ConnectMongo(ctx, uri, db, zerolog.Nop())
	if err != nil {
		t.Fatalf("ConnectMongo: %v", err)
	}
	defer func() {
		s.db.Drop(ctx)
		s.Close(ctx)
	}()
	exerciseStore(t, s)
}
