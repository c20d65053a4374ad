// Package tree holds a game and every explored branch as an arena of move nodes
// addressed by id, plus the user's cursor and the per-parent mainline choice.
package tree

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/freeeve/chessanalyzer/internal/rules"
)

// RootID identifies the starting position in every tree.
const RootID = "root"

var (
	ErrIllegalMove   = errors.New("move rejected")
	ErrUnknownNode   = errors.New("unknown node")
	ErrInvalidRecord = errors.New("invalid game record")
)

// Source records how a node entered the tree.
type Source string

const (
	SourceImported    Source = "imported"
	SourceInteractive Source = "interactive"
)

// Node is one move in the tree. The root has no move, no parent and ply 0.
type Node struct {
	ID         string
	SAN        string
	FEN        string
	Ply        int
	MoveNumber int
	Color      rules.Color // side that moved, empty on the root
	From       string
	To         string
	ParentID   string
	Children   []string
	Source     Source
}

// IsRoot reports whether n is the tree root.
func (n Node) IsRoot() bool {
	return n.ParentID == "" && n.ID == RootID
}

// Rules validates moves. rules.Adapter satisfies it.
type Rules interface {
	Apply(fen, origin, dest string, promo rules.Promotion) (rules.Move, error)
	ApplySAN(fen, san string) (rules.Move, error)
}

// Tree is not safe for concurrent use; the interactive layer owns it.
type Tree struct {
	rules     Rules
	nodes     map[string]*Node
	preferred map[string]string
	current   string
	newID     func() string
}

// New returns a tree containing only the root at the standard starting position.
func New(r Rules) *Tree {
	t := &Tree{
		rules: r,
		newID: uuid.NewString,
	}
	t.Reset()
	return t
}

func newRoot() *Node {
	return &Node{
		ID:     RootID,
		FEN:    rules.StartFEN,
		Source: SourceInteractive,
	}
}

// Reset discards every branch and returns to a root-only tree.
func (t *Tree) Reset() {
	t.nodes = map[string]*Node{RootID: newRoot()}
	t.preferred = make(map[string]string)
	t.current = RootID
}

// Len returns the number of nodes, root included.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Node returns a copy of the node with the given id.
func (t *Tree) Node(id string) (Node, bool) {
	n, ok := t.nodes[id]
	if !ok {
		return Node{}, false
	}
	cp := *n
	cp.Children = append([]string(nil), n.Children...)
	return cp, true
}

// Current returns the cursor node id.
func (t *Tree) Current() string {
	return t.current
}

// CurrentNode returns a copy of the cursor node.
func (t *Tree) CurrentNode() Node {
	n, _ := t.Node(t.current)
	return n
}

// ApplyMove plays origin->dest from the node fromID. When a child of fromID already
// holds the resulting position that child is reused. The cursor moves to the result.
func (t *Tree) ApplyMove(fromID, origin, dest string, promo rules.Promotion) (string, error) {
	parent, ok := t.nodes[fromID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownNode, fromID)
	}
	mv, err := t.rules.Apply(parent.FEN, origin, dest, promo)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	id := t.attach(t.nodes, t.preferred, parent, mv, SourceInteractive)
	t.current = id
	return id, nil
}

// ApplySAN is ApplyMove with the move given in SAN.
func (t *Tree) ApplySAN(fromID, san string) (string, error) {
	parent, ok := t.nodes[fromID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownNode, fromID)
	}
	mv, err := t.rules.ApplySAN(parent.FEN, san)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	id := t.attach(t.nodes, t.preferred, parent, mv, SourceInteractive)
	t.current = id
	return id, nil
}

// attach links mv under parent and returns the child id. Only the parent's own
// children are checked for the same position; siblings elsewhere are distinct lines.
// The first child of a parent becomes its preferred child.
func (t *Tree) attach(nodes map[string]*Node, preferred map[string]string, parent *Node, mv rules.Move, src Source) string {
	for _, childID := range parent.Children {
		if nodes[childID].FEN == mv.FEN {
			return childID
		}
	}

	ply := parent.Ply + 1
	child := &Node{
		ID:         t.newID(),
		SAN:        mv.SAN,
		FEN:        mv.FEN,
		Ply:        ply,
		MoveNumber: (ply + 1) / 2,
		Color:      mv.Color,
		From:       mv.From,
		To:         mv.To,
		ParentID:   parent.ID,
		Source:     src,
	}
	nodes[child.ID] = child

	hadChildren := len(parent.Children) > 0
	parent.Children = append(parent.Children, child.ID)
	if !hadChildren {
		preferred[parent.ID] = child.ID
	}
	return child.ID
}

// ImportLinear replaces the tree with a single chain built from sans. If any move is
// illegal the existing tree is kept untouched. Returns the ids from root to leaf.
func (t *Tree) ImportLinear(sans []string) ([]string, error) {
	nodes := map[string]*Node{RootID: newRoot()}
	ids := make([]string, 0, len(sans)+1)
	ids = append(ids, RootID)

	parent := nodes[RootID]
	for i, san := range sans {
		mv, err := t.rules.ApplySAN(parent.FEN, san)
		if err != nil {
			return nil, fmt.Errorf("%w: move %d (%s): %v", ErrIllegalMove, i+1, san, err)
		}
		// The scratch preference map is discarded: imported lines follow first children.
		id := t.attach(nodes, make(map[string]string), parent, mv, SourceImported)
		ids = append(ids, id)
		parent = nodes[id]
	}

	t.nodes = nodes
	t.preferred = make(map[string]string)
	t.current = ids[len(ids)-1]
	return ids, nil
}

// ImportRecord parses a PGN game and imports its mainline.
func (t *Tree) ImportRecord(text string) ([]string, error) {
	rec, err := rules.LoadGameRecord(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return t.ImportLinear(rec.SANs())
}
