package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/freeeve/pgn/v3"
)

// GameRecord is a parsed PGN game: header tags and the validated mainline.
type GameRecord struct {
	Tags  map[string]string
	Moves []Move
}

// SANs returns the mainline in SAN.
func (r *GameRecord) SANs() []string {
	out := make([]string, len(r.Moves))
	for i, m := range r.Moves {
		out[i] = m.SAN
	}
	return out
}

// FinalFEN returns the position after the last move.
func (r *GameRecord) FinalFEN() string {
	if len(r.Moves) == 0 {
		return StartFEN
	}
	return r.Moves[len(r.Moves)-1].FEN
}

// LoadGameRecord parses a single-game PGN and validates every mainline move from
// the standard starting position. Comments, NAGs and side variations are dropped.
// Input holding more than one game is rejected.
func LoadGameRecord(text string) (*GameRecord, error) {
	scanner := pgn.NewPGNScanner(strings.NewReader(text))
	game, err := scanner.Scan()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	// the scanner reuses its buffers on the next Scan
	first := &pgn.Game{
		Tags:  make(map[string]string, len(game.Tags)),
		Moves: append([]pgn.Mv(nil), game.Moves...),
	}
	for k, v := range game.Tags {
		first.Tags[k] = v
	}

	if scanner.Next() {
		next, err := scanner.Scan()
		if err != nil || len(next.Moves) > 0 || len(next.Tags) > 0 {
			return nil, fmt.Errorf("%w: more than one game", ErrParse)
		}
	}
	return RecordFromGame(first)
}

// ReadGameFile reads a single-game .pgn or .pgn.zst file. The file reader drops
// SAN tokens it cannot resolve, so only the moves it kept are validated.
func ReadGameFile(path string) (*GameRecord, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	parser := pgn.Games(path, 1)
	var games []*pgn.Game
	for g := range parser.Games {
		games = append(games, g)
		if len(games) > 1 {
			parser.Stop()
			return nil, fmt.Errorf("%w: %s holds more than one game", ErrParse, filepath.Base(path))
		}
	}
	if err := parser.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if len(games) == 0 {
		return nil, fmt.Errorf("%w: no game in %s", ErrParse, filepath.Base(path))
	}
	return RecordFromGame(games[0])
}

// RecordFromGame replays a scanned game through the move generator.
func RecordFromGame(g *pgn.Game) (*GameRecord, error) {
	rec := &GameRecord{Tags: make(map[string]string, len(g.Tags))}
	for k, v := range g.Tags {
		rec.Tags[k] = v
	}
	if rec.Tags["SetUp"] == "1" || rec.Tags["FEN"] != "" {
		return nil, fmt.Errorf("%w: custom starting positions are not supported", ErrParse)
	}

	gs, err := loadState(StartFEN)
	if err != nil {
		return nil, err
	}
	// playLegal advances gs
	for i, parsed := range g.Moves {
		mv, err := playLegal(gs, parsed)
		if err != nil {
			return nil, fmt.Errorf("%w: move %d: %v", ErrParse, i+1, err)
		}
		rec.Moves = append(rec.Moves, mv)
	}
	return rec, nil
}
