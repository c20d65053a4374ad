package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/freeeve/chessanalyzer/internal/eco"
	"github.com/freeeve/chessanalyzer/internal/live"
	"github.com/freeeve/chessanalyzer/internal/rules"
	"github.com/freeeve/chessanalyzer/internal/tree"
)

const shortID = 8

var errQuit = errors.New("quit")

// session binds the variation tree to the live evaluation and prints to out.
type session struct {
	tree *tree.Tree
	live *live.Controller
	eco  *eco.Database // may be nil
	out  io.Writer
}

func newSession(t *tree.Tree, ctrl *live.Controller, db *eco.Database, out io.Writer) *session {
	s := &session{tree: t, live: ctrl, eco: db, out: out}
	s.sync()
	return s
}

// sync pushes the cursor position to the live controller.
func (s *session) sync() {
	s.live.SetPosition(s.tree.CurrentNode().FEN)
}

const help = `commands:
  move e2e4[q]     play a move from the cursor (UCI squares)
  san Nf3          play a move in SAN
  back | fwd       step along the mainline
  start | end      jump to the root or the end of the mainline
  goto <id>        move the cursor to a node (id prefix is enough)
  promote <id>     make a node the mainline choice under its parent
  import <file>    replace the tree with a PGN game
  suggest          play the engine's best move
  eval             show the current evaluation
  tree             show the mainline and the branches at the cursor
  reset            clear the tree
  quit`

// exec runs one command line. errQuit ends the session.
func (s *session) exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "help", "?":
		fmt.Fprintln(s.out, help)
		return nil
	case "quit", "exit":
		return errQuit
	case "eval":
		s.printEval()
		return nil
	case "tree":
		s.printTree()
		return nil
	}

	moved, err := s.navigate(cmd, args)
	if err != nil {
		return err
	}
	if moved {
		s.sync()
		s.printPosition()
	}
	return nil
}

func (s *session) navigate(cmd string, args []string) (bool, error) {
	switch cmd {
	case "move", "m":
		if len(args) != 1 {
			return false, errors.New("usage: move e2e4[q]")
		}
		origin, dest, promo, err := rules.ParseUCIMove(args[0])
		if err != nil {
			return false, err
		}
		if promo == rules.PromoNone && rules.NeedsPromotion(s.tree.CurrentNode().FEN, origin, dest) {
			return false, fmt.Errorf("promotion piece required, e.g. move %s%sq", origin, dest)
		}
		_, err = s.tree.ApplyMove(s.tree.Current(), origin, dest, promo)
		return err == nil, err

	case "san", "s":
		if len(args) != 1 {
			return false, errors.New("usage: san Nf3")
		}
		_, err := s.tree.ApplySAN(s.tree.Current(), args[0])
		return err == nil, err

	case "back", "b":
		return s.tree.Back(), nil
	case "fwd", "f":
		return s.tree.Forward(), nil
	case "start":
		s.tree.GoToStart()
		return true, nil
	case "end":
		s.tree.GoToEnd()
		return true, nil

	case "goto":
		if len(args) != 1 {
			return false, errors.New("usage: goto <id>")
		}
		id, err := s.resolve(args[0])
		if err != nil {
			return false, err
		}
		return true, s.tree.Navigate(id)

	case "promote":
		if len(args) != 1 {
			return false, errors.New("usage: promote <id>")
		}
		id, err := s.resolve(args[0])
		if err != nil {
			return false, err
		}
		parent, ok := s.tree.ParentOf(id)
		if !ok || !s.tree.SetPreferredChild(parent, id) {
			return false, fmt.Errorf("%s has no parent", shorten(id))
		}
		fmt.Fprintf(s.out, "mainline now continues with %s\n", shorten(id))
		return false, nil

	case "import":
		if len(args) != 1 {
			return false, errors.New("usage: import <file.pgn>")
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return false, err
		}
		ids, err := s.tree.ImportRecord(string(data))
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "imported %d moves\n", len(ids)-1)
		return true, nil

	case "suggest":
		snap := s.live.Snapshot()
		if snap.BestMove == "" || snap.FEN != s.tree.CurrentNode().FEN {
			return false, errors.New("no suggestion for this position yet")
		}
		origin, dest, promo, err := rules.ParseUCIMove(snap.BestMove)
		if err != nil {
			return false, err
		}
		_, err = s.tree.ApplyMove(s.tree.Current(), origin, dest, promo)
		return err == nil, err

	case "reset":
		s.tree.Reset()
		return true, nil
	}
	return false, fmt.Errorf("unknown command %q (try help)", cmd)
}

// resolve finds the node whose id starts with prefix.
func (s *session) resolve(prefix string) (string, error) {
	if prefix == tree.RootID {
		return tree.RootID, nil
	}
	var matches []string
	queue := []string{tree.RootID}
	for len(queue) > 0 {
		n, _ := s.tree.Node(queue[0])
		queue = queue[1:]
		if strings.HasPrefix(n.ID, prefix) {
			matches = append(matches, n.ID)
		}
		queue = append(queue, n.Children...)
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", tree.ErrUnknownNode, prefix)
	case 1:
		return matches[0], nil
	}
	return "", fmt.Errorf("id prefix %q is ambiguous", prefix)
}

func shorten(id string) string {
	if len(id) > shortID {
		return id[:shortID]
	}
	return id
}

func (s *session) printPosition() {
	n := s.tree.CurrentNode()
	label := "start"
	if !n.IsRoot() {
		dots := "."
		if n.Color == rules.Black {
			dots = "..."
		}
		label = fmt.Sprintf("%d%s %s", n.MoveNumber, dots, n.SAN)
	}
	fmt.Fprintf(s.out, "[%s] %s\n", shorten(n.ID), label)
	fmt.Fprintf(s.out, "fen: %s\n", n.FEN)
	if s.eco != nil {
		if o := s.eco.LookupNode(s.tree, n.ID); o != nil {
			fmt.Fprintf(s.out, "opening: %s %s\n", o.ECO, o.Name)
		}
	}
}

func (s *session) printEval() {
	snap := s.live.Snapshot()
	if !snap.Ready {
		fmt.Fprintln(s.out, "engine not available")
		return
	}
	if snap.FEN != s.tree.CurrentNode().FEN || (snap.Score == nil && snap.Mate == nil) {
		fmt.Fprintln(s.out, "analyzing...")
		return
	}
	fmt.Fprintf(s.out, "%s  depth %d  best %s  nodes %d\n", formatScore(snap), snap.Depth, snap.BestMove, snap.Nodes)
}

// formatScore renders a White-relative score: "+0.35", "-1.20", "#3", "#-2".
func formatScore(snap live.Snapshot) string {
	switch {
	case snap.Mate != nil:
		return fmt.Sprintf("#%d", *snap.Mate)
	case snap.Score != nil:
		return fmt.Sprintf("%+.2f", float64(*snap.Score)/100)
	}
	return "?"
}

func (s *session) printTree() {
	current := s.tree.Current()
	mark := func(n *tree.Node) string {
		if n == nil {
			return ""
		}
		if n.ID == current {
			return "*" + n.SAN
		}
		return n.SAN
	}
	for _, row := range s.tree.MoveRows() {
		white := mark(row.White)
		if row.White == nil {
			white = "..."
		}
		fmt.Fprintf(s.out, "%d. %s %s\n", row.Number, white, mark(row.Black))
	}

	n := s.tree.CurrentNode()
	if len(n.Children) < 2 {
		return
	}
	main, _ := s.tree.MainlineChild(n.ID)
	fmt.Fprintln(s.out, "branches:")
	for _, id := range n.Children {
		child, _ := s.tree.Node(id)
		flag := " "
		if id == main {
			flag = ">"
		}
		fmt.Fprintf(s.out, " %s %s %s\n", flag, shorten(id), child.SAN)
	}
}
