package live

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/chessanalyzer/internal/engine"
	"github.com/freeeve/chessanalyzer/internal/engine/enginetest"
	"github.com/freeeve/chessanalyzer/internal/rules"
)

const (
	afterE4  = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"
	afterD4  = "rnbqkbnr/pppppppp/8/8/3P4/8/PPP1PPPP/RNBQKBNR b KQkq - 0 1"
	afterNf3 = "rnbqkbnr/pppppppp/8/8/8/5N2/PPPPPPPP/RNBQKB1R b KQkq - 1 1"
)

func startController(t *testing.T, fake *enginetest.Engine, cfg Config) *Controller {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	session, err := engine.Open(ctx, fake, engine.Options{SkillLevel: 18, MultiPV: 1}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if cfg.Debounce == 0 {
		cfg.Debounce = time.Millisecond
	}
	cfg.Logger = zerolog.Nop()
	c := New(cfg, session)

	runCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(runCtx)
		close(done)
	}()
	t.Cleanup(func() {
		stop()
		<-done
		session.Close()
	})
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func goDepths(fake *enginetest.Engine) []string {
	var out []string
	for _, line := range fake.Sent() {
		if strings.HasPrefix(line, "go depth ") {
			out = append(out, strings.TrimPrefix(line, "go depth "))
		}
	}
	return out
}

func TestController_DeepensToCeiling(t *testing.T) {
	fake := enginetest.New()
	c := startController(t, fake, Config{MinDepth: 2, MaxDepth: 7, Step: 2})

	c.SetPosition(rules.StartFEN)
	waitFor(t, "deepening to finish", func() bool {
		s := c.Snapshot()
		return s.Depth == 7 && !s.Analyzing && c.State() == StateIdle
	})

	got := strings.Join(goDepths(fake), ",")
	if got != "2,4,6,7" {
		t.Errorf("go depths = %s, want 2,4,6,7", got)
	}
	s := c.Snapshot()
	if s.FEN != rules.StartFEN || !s.Ready || s.BestMove != "e2e4" {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestController_NewPositionResetsDepth(t *testing.T) {
	fake := enginetest.New()
	c := startController(t, fake, Config{MinDepth: 2, MaxDepth: 4, Step: 2})

	c.SetPosition(rules.StartFEN)
	waitFor(t, "first position", func() bool { return c.Snapshot().Depth == 4 && c.State() == StateIdle })

	c.SetPosition(afterE4)
	waitFor(t, "second position", func() bool {
		s := c.Snapshot()
		return s.FEN == afterE4 && s.Depth == 4 && c.State() == StateIdle
	})

	got := strings.Join(goDepths(fake), ",")
	if got != "2,4,2,4" {
		t.Errorf("go depths = %s, want 2,4,2,4", got)
	}
}

func TestController_SwitchSendsOneStop(t *testing.T) {
	fake := enginetest.New()
	fake.Hold = true
	fake.IgnoreStop = true
	c := startController(t, fake, Config{MinDepth: 3, MaxDepth: 3, Step: 1})

	c.SetPosition(afterE4)
	waitFor(t, "analysis of e4", func() bool { return c.State() == StateAnalyzing })

	c.SetPosition(afterD4)
	waitFor(t, "stop for switch", func() bool { return c.State() == StateStoppingForSwitch })

	c.SetPosition(afterNf3)
	// give the debounce time to fire while the stop is still unanswered
	time.Sleep(20 * time.Millisecond)
	if n := fake.Count("stop"); n != 1 {
		t.Fatalf("stop commands = %d, want 1", n)
	}
	if n := fake.Count("go "); n != 1 {
		t.Fatalf("go commands while stopping = %d, want 1", n)
	}
	if s := c.Snapshot(); s.FEN != afterE4 {
		t.Errorf("snapshot switched to %s before the stop completed", s.FEN)
	}

	fake.Finish()
	waitFor(t, "analysis of the latest request", func() bool {
		return c.State() == StateAnalyzing && c.Snapshot().FEN == afterNf3
	})

	sent := fake.Sent()
	var sequence []string
	for _, line := range sent {
		if line == "stop" || strings.HasPrefix(line, "go ") || strings.HasPrefix(line, "position ") {
			sequence = append(sequence, line)
		}
	}
	want := []string{
		"position fen " + afterE4, "go depth 3",
		"stop",
		"position fen " + afterNf3, "go depth 3",
	}
	if strings.Join(sequence, "|") != strings.Join(want, "|") {
		t.Errorf("command sequence = %v, want %v", sequence, want)
	}
}

func TestController_SamePositionIsNoop(t *testing.T) {
	fake := enginetest.New()
	fake.Hold = true
	c := startController(t, fake, Config{MinDepth: 2, MaxDepth: 2, Step: 1})

	c.SetPosition(rules.StartFEN)
	waitFor(t, "analysis", func() bool { return c.State() == StateAnalyzing })

	c.SetPosition(rules.StartFEN)
	time.Sleep(20 * time.Millisecond)
	if fake.Count("stop") != 0 || fake.Count("go ") != 1 {
		t.Errorf("sent = %v", fake.Sent())
	}
}

func TestController_ScoreMateExclusive(t *testing.T) {
	fake := enginetest.New()
	fake.Eval = func(fen string, depth int) string {
		if depth == 2 {
			return "mate 3"
		}
		return "cp 120"
	}
	fake.Hold = true
	c := startController(t, fake, Config{MinDepth: 2, MaxDepth: 2, Step: 1})

	c.SetPosition(rules.StartFEN)
	waitFor(t, "mate reading", func() bool { return c.Snapshot().Mate != nil })
	s := c.Snapshot()
	if *s.Mate != 3 || s.Score != nil {
		t.Errorf("after mate: score=%v mate=%v", s.Score, s.Mate)
	}

	fake.Emit("info depth 3 score cp -40 nodes 10 pv e2e4")
	waitFor(t, "score reading", func() bool { return c.Snapshot().Score != nil })
	s = c.Snapshot()
	if *s.Score != -40 || s.Mate != nil {
		t.Errorf("after score: score=%v mate=%v", s.Score, s.Mate)
	}
	if s.Depth != 3 {
		t.Errorf("Depth = %d, want 3", s.Depth)
	}
}

func TestController_BlackToMoveIsWhitePerspective(t *testing.T) {
	fake := enginetest.New()
	fake.Eval = func(fen string, depth int) string { return "cp 80" }
	c := startController(t, fake, Config{MinDepth: 1, MaxDepth: 1, Step: 1})

	c.SetPosition(afterE4)
	waitFor(t, "done", func() bool { return c.State() == StateIdle && c.Snapshot().Score != nil })
	if got := *c.Snapshot().Score; got != -80 {
		t.Errorf("Score = %d, want -80", got)
	}
}

func TestController_EngineCrash(t *testing.T) {
	fake := enginetest.New()
	fake.Hold = true
	c := startController(t, fake, Config{MinDepth: 2, MaxDepth: 2, Step: 1})

	c.SetPosition(rules.StartFEN)
	waitFor(t, "analysis", func() bool { return c.State() == StateAnalyzing })

	fake.Crash()
	waitFor(t, "not ready", func() bool {
		s := c.Snapshot()
		return !s.Ready && !s.Analyzing && c.State() == StateIdle
	})

	c.SetPosition(afterE4)
	waitFor(t, "position tracked without engine", func() bool { return c.Snapshot().FEN == afterE4 })
	if c.Snapshot().Ready {
		t.Error("Ready after crash")
	}
}

func TestController_NoEngine(t *testing.T) {
	c := New(Config{MinDepth: 1, MaxDepth: 1, Step: 1, Debounce: time.Millisecond, Logger: zerolog.Nop()}, nil)
	if c.Snapshot().Ready {
		t.Fatal("Ready without engine")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	c.SetPosition(afterD4)
	select {
	case <-c.Changed():
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification")
	}
	s := c.Snapshot()
	if s.FEN != afterD4 || s.Ready || s.Analyzing {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestApply(t *testing.T) {
	cp, mate := 50, 2
	s := apply(Snapshot{Depth: 9, BestMove: "e2e4"}, engine.Update{Depth: 4, Score: &cp})
	if s.Depth != 9 {
		t.Errorf("depth went backwards to %d", s.Depth)
	}
	if s.BestMove != "e2e4" {
		t.Errorf("BestMove lost: %q", s.BestMove)
	}
	s = apply(s, engine.Update{Mate: &mate, BestMove: "d1h5"})
	if s.Score != nil || *s.Mate != 2 || s.BestMove != "d1h5" {
		t.Errorf("snapshot = %+v", s)
	}
}
