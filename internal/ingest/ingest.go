// Package ingest turns uploaded PGN games into stored, queued games.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/freeeve/chessanalyzer/internal/queue"
	"github.com/freeeve/chessanalyzer/internal/rules"
	"github.com/freeeve/chessanalyzer/internal/store"
)

// Processor analyzes a stored game immediately. Used when no queue is configured.
type Processor interface {
	Process(ctx context.Context, gameID string) error
}

// Config configures the upload watcher.
type Config struct {
	WatchDir     string         // Directory to watch for PGN files
	ProcessedDir string         // Accepted files end up here
	RejectedDir  string         // Unparseable files end up here
	Settle       time.Duration  // Quiet period after the last fs event before a sweep
	PollInterval time.Duration  // Fallback sweep interval
	Logger       zerolog.Logger // Logger
}

// Intake stores uploaded games as PENDING, then enqueues them or analyzes them
// inline when there is no queue.
type Intake struct {
	store  store.GameStore
	queue  queue.Queue
	inline Processor
	log    zerolog.Logger
	now    func() time.Time
}

// NewIntake accepts a nil queue and a nil inline processor.
func NewIntake(st store.GameStore, q queue.Queue, inline Processor, logger zerolog.Logger) *Intake {
	return &Intake{
		store:  st,
		queue:  q,
		inline: inline,
		log:    logger.With().Str("component", "intake").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Watcher feeds PGN files dropped into a directory to an Intake.
type Watcher struct {
	*Intake
	cfg Config
	log zerolog.Logger
}

// NewWatcher returns nil when no watch directory is configured.
func NewWatcher(cfg Config, intake *Intake) (*Watcher, error) {
	if cfg.WatchDir == "" {
		return nil, nil // Disabled
	}
	if cfg.ProcessedDir == "" {
		cfg.ProcessedDir = filepath.Join(cfg.WatchDir, "processed")
	}
	if cfg.RejectedDir == "" {
		cfg.RejectedDir = filepath.Join(cfg.WatchDir, "rejected")
	}
	if cfg.Settle == 0 {
		cfg.Settle = 250 * time.Millisecond
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 30 * time.Second
	}

	for _, dir := range []string{cfg.WatchDir, cfg.ProcessedDir, cfg.RejectedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	return &Watcher{
		Intake: intake,
		cfg:    cfg,
		log:    cfg.Logger.With().Str("component", "ingest").Logger(),
	}, nil
}

// Run sweeps once, then sweeps again whenever the directory settles after a
// change, and on every poll tick.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.cfg.WatchDir); err != nil {
		return fmt.Errorf("watch %s: %w", w.cfg.WatchDir, err)
	}

	w.log.Info().
		Str("watch_dir", w.cfg.WatchDir).
		Str("processed_dir", w.cfg.ProcessedDir).
		Bool("queue", w.Intake.queue != nil).
		Msg("upload watcher started")

	w.sweep(ctx)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	settle := time.NewTimer(w.cfg.Settle)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !isPGNFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				settle.Reset(w.cfg.Settle)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("fs watcher error")
		case <-settle.C:
			w.sweep(ctx)
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep ingests every PGN file currently in the watch directory, in name order.
func (w *Watcher) sweep(ctx context.Context) {
	entries, err := os.ReadDir(w.cfg.WatchDir)
	if err != nil {
		w.log.Warn().Err(err).Msg("read watch dir failed")
		return
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if isPGNFile(e.Name()) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		if ctx.Err() != nil {
			return
		}
		path := filepath.Join(w.cfg.WatchDir, name)
		gameID, err := w.IngestFile(ctx, path)
		switch {
		case errors.Is(err, rules.ErrParse):
			w.log.Warn().Err(err).Str("file", name).Msg("rejected upload")
			w.move(path, w.cfg.RejectedDir)
		case err != nil:
			// left in place for the next sweep
			w.log.Error().Err(err).Str("file", name).Msg("ingest failed")
		default:
			w.log.Info().Str("file", name).Str("game_id", gameID).Msg("upload stored")
			w.move(path, w.cfg.ProcessedDir)
		}
	}
}

func (w *Watcher) move(path, dir string) {
	dest := filepath.Join(dir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		w.log.Warn().Err(err).Str("file", path).Str("dest", dest).Msg("move failed")
	}
}

// IngestFile stores the game in a .pgn or .pgn.zst file. Parse failures wrap
// rules.ErrParse.
func (in *Intake) IngestFile(ctx context.Context, path string) (string, error) {
	rec, err := rules.ReadGameFile(path)
	if err != nil {
		return "", err
	}
	return in.add(ctx, rec)
}

// Ingest stores one PGN game given as text and returns its id.
func (in *Intake) Ingest(ctx context.Context, text string) (string, error) {
	rec, err := rules.LoadGameRecord(text)
	if err != nil {
		return "", err
	}
	return in.add(ctx, rec)
}

func (in *Intake) add(ctx context.Context, rec *rules.GameRecord) (string, error) {
	if len(rec.Moves) == 0 {
		return "", fmt.Errorf("%w: no moves", rules.ErrParse)
	}

	g := store.NewGame(rec, in.now())
	if err := in.store.SaveGame(ctx, g); err != nil {
		return "", fmt.Errorf("save game: %w", err)
	}

	if in.queue != nil {
		if err := in.queue.Enqueue(ctx, queue.Job{GameID: g.ID}); err != nil {
			return g.ID, fmt.Errorf("enqueue %s: %w", g.ID, err)
		}
		in.log.Debug().Str("game_id", g.ID).Msg("game queued")
		return g.ID, nil
	}
	if in.inline != nil {
		if err := in.inline.Process(ctx, g.ID); err != nil {
			in.log.Error().Err(err).Str("game_id", g.ID).Msg("inline analysis failed")
		}
	}
	return g.ID, nil
}

func isPGNFile(name string) bool {
	ext := filepath.Ext(name)
	if ext == ".pgn" {
		return true
	}
	if ext == ".zst" {
		// Check for .pgn.zst
		base := name[:len(name)-4]
		return filepath.Ext(base) == ".pgn"
	}
	return false
}
