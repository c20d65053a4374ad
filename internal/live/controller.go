// Package live keeps an evaluation of the position the user is looking at,
// switching the engine between positions and deepening the search while the
// position stays put.
package live

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/chessanalyzer/internal/engine"
)

// Analyzer is the engine session as seen by the controller.
type Analyzer interface {
	Analyze(fen string, depth int) (*engine.Stream, error)
	Cancel() error
	Ready() bool
}

// State of the controller.
type State int32

const (
	StateIdle State = iota
	StateAnalyzing
	StateStoppingForSwitch
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAnalyzing:
		return "analyzing"
	case StateStoppingForSwitch:
		return "stopping"
	}
	return "unknown"
}

// Snapshot is the evaluation shown to the user. Score and Mate are White-relative
// and never both set. A new value is published for every change.
type Snapshot struct {
	FEN       string
	Score     *int
	Mate      *int
	Depth     int
	BestMove  string
	Nodes     int64
	UpdatedAt time.Time
	Ready     bool
	Analyzing bool
}

type Config struct {
	MinDepth int
	MaxDepth int
	Step     int
	Debounce time.Duration
	Logger   zerolog.Logger
}

// Controller serialises all engine access through Run. SetPosition, Snapshot,
// State and Changed are safe to call from any goroutine.
type Controller struct {
	cfg      Config
	analyzer Analyzer
	logger   zerolog.Logger

	requests chan string
	changed  chan struct{}
	snapshot atomic.Pointer[Snapshot]
	state    atomic.Int32

	// owned by Run
	fen     string
	depth   int
	pending string
	updates <-chan engine.Update
	stream  *engine.Stream
}

// New returns a controller. A nil analyzer means no engine is configured and the
// controller only tracks the position.
func New(cfg Config, analyzer Analyzer) *Controller {
	c := &Controller{
		cfg:      cfg,
		analyzer: analyzer,
		logger:   cfg.Logger.With().Str("component", "live").Logger(),
		requests: make(chan string, 1),
		changed:  make(chan struct{}, 1),
	}
	c.snapshot.Store(&Snapshot{Ready: c.engineReady()})
	return c
}

func (c *Controller) engineReady() bool {
	return c.analyzer != nil && c.analyzer.Ready()
}

// SetPosition requests analysis of fen. It never blocks; the latest request wins.
func (c *Controller) SetPosition(fen string) {
	for {
		select {
		case c.requests <- fen:
			return
		default:
		}
		select {
		case <-c.requests:
		default:
		}
	}
}

// Snapshot returns the current evaluation.
func (c *Controller) Snapshot() Snapshot {
	return *c.snapshot.Load()
}

// State returns the current controller state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Changed receives a value after the snapshot changes. Notifications coalesce.
func (c *Controller) Changed() <-chan struct{} {
	return c.changed
}

func (c *Controller) publish(s Snapshot) {
	s.UpdatedAt = time.Now()
	c.snapshot.Store(&s)
	select {
	case c.changed <- struct{}{}:
	default:
	}
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
}

// Run processes position requests and engine updates until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	var (
		target   string
		debounce *time.Timer
		fire     <-chan time.Time
	)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			if c.State() != StateIdle {
				c.analyzer.Cancel()
			}
			return ctx.Err()

		case fen := <-c.requests:
			target = fen
			if debounce == nil {
				debounce = time.NewTimer(c.cfg.Debounce)
			} else {
				debounce.Stop()
				debounce.Reset(c.cfg.Debounce)
			}
			fire = debounce.C

		case <-fire:
			fire = nil
			c.request(target)

		case u, ok := <-c.updates:
			if !ok {
				c.fault(c.stream.Err())
				continue
			}
			c.handle(u)
		}
	}
}

func (c *Controller) request(fen string) {
	switch c.State() {
	case StateIdle:
		c.start(fen, c.cfg.MinDepth, true)
	case StateAnalyzing:
		if fen == c.fen {
			return
		}
		c.pending = fen
		c.setState(StateStoppingForSwitch)
		c.logger.Debug().Str("from", c.fen).Str("to", fen).Msg("switching position")
		if err := c.analyzer.Cancel(); err != nil {
			c.logger.Warn().Err(err).Msg("stop failed")
		}
	case StateStoppingForSwitch:
		// the stop is already in flight
		c.pending = fen
	}
}

func (c *Controller) start(fen string, depth int, fresh bool) {
	if !c.engineReady() {
		c.setState(StateIdle)
		c.publish(Snapshot{FEN: fen})
		return
	}

	stream, err := c.analyzer.Analyze(fen, depth)
	if err != nil {
		c.setState(StateIdle)
		c.updates, c.stream = nil, nil
		ready := !errors.Is(err, engine.ErrUnavailable) && c.engineReady()
		c.logger.Warn().Err(err).Str("fen", fen).Msg("analysis not started")
		c.publish(Snapshot{FEN: fen, Ready: ready})
		return
	}

	c.fen, c.depth = fen, depth
	c.stream, c.updates = stream, stream.Updates()
	c.setState(StateAnalyzing)

	next := Snapshot{FEN: fen}
	if !fresh {
		next = c.Snapshot()
	}
	next.Ready = true
	next.Analyzing = true
	c.publish(next)
	c.logger.Debug().Str("fen", fen).Int("depth", depth).Msg("analyzing")
}

func (c *Controller) handle(u engine.Update) {
	if c.State() == StateStoppingForSwitch {
		if !u.Done {
			return
		}
		c.updates, c.stream = nil, nil
		next := c.pending
		c.pending = ""
		c.start(next, c.cfg.MinDepth, true)
		return
	}

	snap := apply(c.Snapshot(), u)
	if !u.Done {
		c.publish(snap)
		return
	}

	c.updates, c.stream = nil, nil
	if c.depth < c.cfg.MaxDepth {
		c.publish(snap)
		c.start(c.fen, min(c.cfg.MaxDepth, c.depth+c.cfg.Step), false)
		return
	}
	snap.Analyzing = false
	c.setState(StateIdle)
	c.publish(snap)
}

// apply folds an engine update into the snapshot. Absent fields keep their
// value, except that a score clears the mate and a mate clears the score.
func apply(s Snapshot, u engine.Update) Snapshot {
	if u.Score != nil {
		v := *u.Score
		s.Score, s.Mate = &v, nil
	}
	if u.Mate != nil {
		v := *u.Mate
		s.Mate, s.Score = &v, nil
	}
	if u.Depth > s.Depth {
		s.Depth = u.Depth
	}
	if u.Nodes > 0 {
		s.Nodes = u.Nodes
	}
	if u.BestMove != "" {
		s.BestMove = u.BestMove
	}
	return s
}

func (c *Controller) fault(err error) {
	c.logger.Warn().Err(err).Msg("engine lost, live evaluation disabled")
	c.updates, c.stream = nil, nil
	c.pending = ""
	c.setState(StateIdle)

	snap := c.Snapshot()
	snap.Ready = false
	snap.Analyzing = false
	c.publish(snap)
}
