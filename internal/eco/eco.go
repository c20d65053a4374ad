// Package eco provides ECO (Encyclopedia of Chess Openings) lookup.
package eco

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/freeeve/chessanalyzer/internal/rules"
	"github.com/freeeve/chessanalyzer/internal/tree"
)

// Opening represents an ECO opening classification.
type Opening struct {
	ECO  string `json:"eco"`
	Name string `json:"name"`
}

// Database holds ECO opening data indexed by position.
type Database struct {
	byPosition map[string]Opening
	count      int
}

// NewDatabase creates an empty ECO database.
func NewDatabase() *Database {
	return &Database{
		byPosition: make(map[string]Opening),
	}
}

// positionKey drops the move counters so transpositions share a key.
func positionKey(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) > 4 {
		fields = fields[:4]
	}
	return strings.Join(fields, " ")
}

// LoadDir loads all .tsv files from a directory.
func (db *Database) LoadDir(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.tsv"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no .tsv files found in %s", dir)
	}

	for _, file := range files {
		if err := db.LoadFile(file); err != nil {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// LoadFile loads a single TSV file.
func (db *Database) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return db.Load(f)
}

// Load reads "eco<TAB>name<TAB>moves" lines. A leading header line is skipped, as
// are lines whose moves do not replay.
func (db *Database) Load(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		// Skip header
		if lineNum == 1 && strings.HasPrefix(line, "eco\t") {
			continue
		}

		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}

		fen, err := db.replay(parts[2])
		if err != nil {
			continue
		}
		db.byPosition[positionKey(fen)] = Opening{ECO: parts[0], Name: parts[1]}
		db.count++
	}

	return scanner.Err()
}

// replay plays a movetext like "1. e4 e5 2. Nf3 Nc6" from the start position.
func (db *Database) replay(moves string) (string, error) {
	rec, err := rules.LoadGameRecord(moves)
	if err != nil {
		return "", err
	}
	if len(rec.Moves) == 0 {
		return "", fmt.Errorf("no moves in %q", moves)
	}
	return rec.FinalFEN(), nil
}

// Lookup returns the ECO opening for a position, or nil if not found.
func (db *Database) Lookup(fen string) *Opening {
	if o, ok := db.byPosition[positionKey(fen)]; ok {
		return &o
	}
	return nil
}

// LookupNode returns the opening of the deepest named position on the path from
// the root to id, so lines that leave the book keep their last opening name.
func (db *Database) LookupNode(t *tree.Tree, id string) *Opening {
	path, err := t.PathToRoot(id)
	if err != nil {
		return nil
	}
	for i := len(path) - 1; i >= 0; i-- {
		n, ok := t.Node(path[i])
		if !ok {
			continue
		}
		if o := db.Lookup(n.FEN); o != nil {
			return o
		}
	}
	return nil
}

// Count returns the number of openings loaded.
func (db *Database) Count() int {
	return db.count
}
