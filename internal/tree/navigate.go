package tree

import "fmt"

// Navigate moves the cursor to id.
func (t *Tree) Navigate(id string) error {
	if _, ok := t.nodes[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	t.current = id
	return nil
}

// ParentOf returns the parent id. The root and unknown ids have none.
func (t *Tree) ParentOf(id string) (string, bool) {
	n, ok := t.nodes[id]
	if !ok || n.ParentID == "" {
		return "", false
	}
	return n.ParentID, true
}

// MainlineChild resolves the preferred child of id, defaulting to the first child.
func (t *Tree) MainlineChild(id string) (string, bool) {
	n, ok := t.nodes[id]
	if !ok || len(n.Children) == 0 {
		return "", false
	}
	if pref, ok := t.preferred[id]; ok && contains(n.Children, pref) {
		return pref, true
	}
	return n.Children[0], true
}

// SetPreferredChild promotes childID to the mainline under parentID.
// It is a no-op, returning false, when childID is not a child of parentID.
func (t *Tree) SetPreferredChild(parentID, childID string) bool {
	n, ok := t.nodes[parentID]
	if !ok || !contains(n.Children, childID) {
		return false
	}
	t.preferred[parentID] = childID
	return true
}

// PathToRoot returns the ids from the root down to id, both included.
func (t *Tree) PathToRoot(id string) ([]string, error) {
	if _, ok := t.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	var rev []string
	for cursor := id; cursor != ""; cursor = t.nodes[cursor].ParentID {
		rev = append(rev, cursor)
	}
	path := make([]string, len(rev))
	for i, nodeID := range rev {
		path[len(rev)-1-i] = nodeID
	}
	return path, nil
}

// Line returns the SAN moves leading from the root to id.
func (t *Tree) Line(id string) ([]string, error) {
	path, err := t.PathToRoot(id)
	if err != nil {
		return nil, err
	}
	sans := make([]string, 0, len(path)-1)
	for _, nodeID := range path[1:] {
		sans = append(sans, t.nodes[nodeID].SAN)
	}
	return sans, nil
}

// Mainline follows mainline children from id to the end of the line, id excluded.
func (t *Tree) Mainline(id string) []string {
	var out []string
	next, ok := t.MainlineChild(id)
	for ok {
		out = append(out, next)
		next, ok = t.MainlineChild(next)
	}
	return out
}

// Back moves the cursor to its parent. It reports false at the root.
func (t *Tree) Back() bool {
	parent, ok := t.ParentOf(t.current)
	if ok {
		t.current = parent
	}
	return ok
}

// Forward moves the cursor to its mainline child. It reports false at a leaf.
func (t *Tree) Forward() bool {
	child, ok := t.MainlineChild(t.current)
	if ok {
		t.current = child
	}
	return ok
}

// GoToStart moves the cursor to the root.
func (t *Tree) GoToStart() {
	t.current = RootID
}

// GoToEnd follows the mainline from the cursor to its last move.
func (t *Tree) GoToEnd() {
	for t.Forward() {
	}
}

// MoveRow pairs a White move with Black's reply under one move number.
type MoveRow struct {
	Number int
	White  *Node
	Black  *Node
}

// MoveRows groups the mainline from the root into numbered rows.
func (t *Tree) MoveRows() []MoveRow {
	var rows []MoveRow
	for _, id := range t.Mainline(RootID) {
		n, _ := t.Node(id)
		if n.Ply%2 == 1 {
			rows = append(rows, MoveRow{Number: n.MoveNumber, White: &n})
			continue
		}
		if len(rows) > 0 && rows[len(rows)-1].Number == n.MoveNumber && rows[len(rows)-1].Black == nil {
			rows[len(rows)-1].Black = &n
			continue
		}
		rows = append(rows, MoveRow{Number: n.MoveNumber, Black: &n})
	}
	return rows
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
