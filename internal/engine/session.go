// Package engine drives a UCI-style analysis engine over a line transport and
// turns its search output into a stream of White-relative evaluation updates.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/freeeve/chessanalyzer/internal/rules"
)

var (
	ErrUnavailable = errors.New("engine unavailable")
	ErrBusy        = errors.New("analysis already in progress")
	ErrHandshake   = errors.New("engine handshake failed")
)

// Options are applied once during the handshake.
type Options struct {
	SkillLevel int
	MultiPV    int
	HashMB     int
	Threads    int
}

// Update is one step of an analysis. Score and Mate are White-relative and
// mutually exclusive. BestMove is the first move of the principal line, or the
// engine's final choice when Done is set.
type Update struct {
	Depth    int
	Score    *int
	Mate     *int
	Nodes    int64
	BestMove string
	Done     bool
}

// Stream delivers the updates of one analysis. The channel is closed after the
// Done update, or without one when the engine faults; Err reports the fault.
type Stream struct {
	FEN   string
	Depth int

	updates chan Update
	sign    int
	last    Update
	stopped bool
	err     error
}

func (s *Stream) Updates() <-chan Update {
	return s.updates
}

// Err is valid once Updates is closed.
func (s *Stream) Err() error {
	return s.err
}

const streamBuffer = 128

// push never blocks the reader loop. Intermediate updates are dropped when the
// consumer lags so the final update always fits.
func (s *Stream) push(u Update) bool {
	if len(s.updates) >= cap(s.updates)-1 {
		return false
	}
	s.updates <- u
	return true
}

// Session owns one engine and allows at most one analysis at a time.
type Session struct {
	transport Transport
	logger    zerolog.Logger
	name      string

	mu     sync.Mutex
	active *Stream
	fault  error

	done chan struct{}
}

// Open performs the handshake: identification, options, readiness.
func Open(ctx context.Context, t Transport, opts Options, logger zerolog.Logger) (*Session, error) {
	s := &Session{
		transport: t,
		logger:    logger.With().Str("component", "engine").Logger(),
		done:      make(chan struct{}),
	}

	if err := t.Send(string(CmdUCI)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if err := s.await(ctx, EventUCIOK); err != nil {
		return nil, err
	}

	for _, cmd := range optionCommands(opts) {
		if err := t.Send(string(cmd)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
		}
	}

	if err := t.Send(string(CmdIsReady)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if err := s.await(ctx, EventReadyOK); err != nil {
		return nil, err
	}

	s.logger.Info().Str("engine", s.name).Int("skill", opts.SkillLevel).Int("multipv", opts.MultiPV).Msg("engine ready")
	go s.loop()
	return s, nil
}

func optionCommands(opts Options) []Command {
	cmds := []Command{SetOption("Skill Level", opts.SkillLevel)}
	if opts.MultiPV > 1 {
		cmds = append(cmds, SetOption("MultiPV", opts.MultiPV))
	}
	if opts.HashMB > 0 {
		cmds = append(cmds, SetOption("Hash", opts.HashMB))
	}
	if opts.Threads > 0 {
		cmds = append(cmds, SetOption("Threads", opts.Threads))
	}
	return cmds
}

func (s *Session) await(ctx context.Context, kind EventKind) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrHandshake, ctx.Err())
		case line, ok := <-s.transport.Lines():
			if !ok {
				return fmt.Errorf("%w: engine exited", ErrHandshake)
			}
			ev, ok := ParseLine(line)
			if !ok {
				continue
			}
			if ev.Kind == EventID {
				s.name = ev.Name
			}
			if ev.Kind == kind {
				return nil
			}
		}
	}
}

// Name is the engine's self-reported name.
func (s *Session) Name() string {
	return s.name
}

// Ready reports whether the engine is still usable.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fault == nil
}

// Done is closed when the engine output ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Analyze starts a search of fen to depth. It fails with ErrBusy while another
// analysis is active; callers cancel and wait for the previous stream to close.
func (s *Session) Analyze(fen string, depth int) (*Stream, error) {
	side, err := rules.SideToMove(fen)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.fault != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, s.fault)
	}
	if s.active != nil {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	stream := &Stream{
		FEN:     fen,
		Depth:   depth,
		updates: make(chan Update, streamBuffer),
		sign:    side.Sign(),
	}
	s.active = stream
	s.mu.Unlock()

	for _, cmd := range []Command{CmdNewGame, Position(fen), GoDepth(depth)} {
		if err := s.transport.Send(string(cmd)); err != nil {
			s.markFault(err)
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	s.logger.Debug().Str("fen", fen).Int("depth", depth).Msg("analysis started")
	return stream, nil
}

// Cancel asks the engine to stop the active search. Only the first call per
// analysis sends a stop; the stream still ends with the engine's bestmove.
func (s *Session) Cancel() error {
	s.mu.Lock()
	stream := s.active
	if stream == nil || stream.stopped {
		s.mu.Unlock()
		return nil
	}
	stream.stopped = true
	s.mu.Unlock()

	if err := s.transport.Send(string(CmdStop)); err != nil {
		s.markFault(err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close quits the engine and waits for its output to end.
func (s *Session) Close() error {
	err := s.transport.Close()
	<-s.done
	return err
}

func (s *Session) loop() {
	defer close(s.done)
	for line := range s.transport.Lines() {
		ev, ok := ParseLine(line)
		if !ok {
			continue
		}
		switch ev.Kind {
		case EventInfo:
			s.handleInfo(ev.Info)
		case EventBestMove:
			s.handleBestMove(ev.BestMove)
		}
	}
	s.fail(errors.New("engine output closed"))
}

func (s *Session) current() *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Session) handleInfo(info Info) {
	stream := s.current()
	if stream == nil || info.MultiPV != 1 {
		return
	}

	u := Update{Depth: info.Depth, Nodes: info.Nodes}
	switch {
	case info.Score != nil:
		v := *info.Score * stream.sign
		u.Score = &v
	case info.Mate != nil:
		v := *info.Mate * stream.sign
		u.Mate = &v
	}
	if len(info.PV) > 0 {
		u.BestMove = info.PV[0]
	}

	stream.last = merge(stream.last, u)
	if !stream.push(u) {
		s.logger.Debug().Int("depth", u.Depth).Msg("update dropped, consumer lagging")
	}
}

// merge folds an update into the running state. Score and mate replace each other.
func merge(prev, u Update) Update {
	out := prev
	if u.Depth > out.Depth {
		out.Depth = u.Depth
	}
	if u.Score != nil {
		out.Score, out.Mate = u.Score, nil
	}
	if u.Mate != nil {
		out.Mate, out.Score = u.Mate, nil
	}
	if u.Nodes > 0 {
		out.Nodes = u.Nodes
	}
	if u.BestMove != "" {
		out.BestMove = u.BestMove
	}
	return out
}

func (s *Session) handleBestMove(move string) {
	s.mu.Lock()
	stream := s.active
	s.active = nil
	s.mu.Unlock()
	if stream == nil {
		return
	}

	final := stream.last
	final.Done = true
	if move != "" {
		final.BestMove = move
	}
	stream.updates <- final
	close(stream.updates)
	s.logger.Debug().Str("fen", stream.FEN).Int("depth", final.Depth).Str("bestmove", final.BestMove).Msg("analysis done")
}

// markFault records the first fault. Streams are only closed by the reader loop.
func (s *Session) markFault(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fault == nil {
		s.fault = err
		s.logger.Warn().Err(err).Msg("engine fault")
	}
}

func (s *Session) fail(err error) {
	s.markFault(err)
	s.mu.Lock()
	stream := s.active
	s.active = nil
	s.mu.Unlock()

	if stream != nil {
		stream.err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		close(stream.updates)
	}
}
