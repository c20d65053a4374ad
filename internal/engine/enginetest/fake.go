// Package enginetest provides a scripted in-memory engine for tests.
package enginetest

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Engine answers protocol commands the way a UCI engine would, without searching.
// It implements engine.Transport.
type Engine struct {
	// Name is reported in the handshake.
	Name string
	// Eval returns the score token ("cp 35", "mate 2") for a position and depth,
	// relative to the side to move. Nil means "cp 0".
	Eval func(fen string, depth int) string
	// Hold keeps a search running after its last info line until stop arrives.
	Hold bool
	// Silent suppresses all output for go commands, simulating a hung search.
	Silent bool
	// IgnoreStop delays the bestmove answering a stop until Finish is called.
	IgnoreStop bool
	// BestMove is reported as the principal move and final choice.
	BestMove string

	mu        sync.Mutex
	sent      []string
	lines     chan string
	closed    bool
	fen       string
	searching bool
}

// New returns a fake engine reporting e2e4 at cp 0.
func New() *Engine {
	return &Engine{
		Name:     "Fake 1.0",
		BestMove: "e2e4",
		lines:    make(chan string, 4096),
	}
}

func (e *Engine) Send(line string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return io.ErrClosedPipe
	}
	e.sent = append(e.sent, line)

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "uci":
		e.emit("id name " + e.Name)
		e.emit("option name Skill Level type spin default 20 min 0 max 20")
		e.emit("uciok")
	case "isready":
		e.emit("readyok")
	case "position":
		if len(fields) > 2 && fields[1] == "fen" {
			e.fen = strings.Join(fields[2:], " ")
		}
	case "go":
		e.search(fields)
	case "stop":
		if e.searching && !e.IgnoreStop {
			e.searching = false
			e.emit("bestmove " + e.BestMove)
		}
	case "quit":
		e.shutdown()
	}
	return nil
}

func (e *Engine) search(fields []string) {
	if e.Silent {
		e.searching = true
		return
	}
	depth := 1
	if len(fields) >= 3 && fields[1] == "depth" {
		if n, err := strconv.Atoi(fields[2]); err == nil {
			depth = n
		}
	}
	for d := 1; d <= depth; d++ {
		score := "cp 0"
		if e.Eval != nil {
			score = e.Eval(e.fen, d)
		}
		e.emit(fmt.Sprintf("info depth %d seldepth %d multipv 1 score %s nodes %d nps 100000 pv %s", d, d+2, score, d*1000, e.BestMove))
	}
	if e.Hold {
		e.searching = true
		return
	}
	e.emit("bestmove " + e.BestMove)
}

// emit must be called with mu held.
func (e *Engine) emit(line string) {
	if !e.closed {
		e.lines <- line
	}
}

func (e *Engine) shutdown() {
	if !e.closed {
		e.closed = true
		close(e.lines)
	}
}

// Emit injects a raw output line.
func (e *Engine) Emit(line string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emit(line)
}

// Finish completes a held or silent search with a bestmove.
func (e *Engine) Finish() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.searching = false
	e.emit("bestmove " + e.BestMove)
}

func (e *Engine) Lines() <-chan string {
	return e.lines
}

// Close ends the engine output.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shutdown()
	return nil
}

// Crash simulates the engine process dying.
func (e *Engine) Crash() {
	e.Close()
}

// Sent returns every command received so far.
func (e *Engine) Sent() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.sent...)
}

// Count returns how many received commands start with prefix.
func (e *Engine) Count(prefix string) int {
	n := 0
	for _, line := range e.Sent() {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}
