package tree

import (
	"errors"
	"reflect"
	"testing"

	"github.com/freeeve/chessanalyzer/internal/rules"
)

var italian = []string{"e4", "e5", "Nf3", "Nc6", "Bc4", "Bc5"}

const italianFEN = "r1bqk1nr/pppp1ppp/2n5/2b1p3/2B1P3/5N2/PPPP1PPP/RNBQK2R w KQkq - 4 4"

func newTree() *Tree {
	return New(rules.New())
}

func TestNew(t *testing.T) {
	tr := newTree()
	if tr.Len() != 1 {
		t.Fatalf("Len = %d, want 1", tr.Len())
	}
	root := tr.CurrentNode()
	if !root.IsRoot() || root.FEN != rules.StartFEN || root.Ply != 0 {
		t.Errorf("root = %+v", root)
	}
	if _, ok := tr.ParentOf(RootID); ok {
		t.Error("root should have no parent")
	}
}

func TestImportLinear_Italian(t *testing.T) {
	tr := newTree()
	ids, err := tr.ImportLinear(italian)
	if err != nil {
		t.Fatalf("ImportLinear: %v", err)
	}
	if len(ids) != 7 || tr.Len() != 7 {
		t.Fatalf("ids = %d, Len = %d, want 7", len(ids), tr.Len())
	}

	leaf, _ := tr.Node(ids[6])
	if leaf.SAN != "Bc5" || leaf.Ply != 6 || leaf.MoveNumber != 3 || leaf.Color != rules.Black {
		t.Errorf("leaf = %+v", leaf)
	}
	if leaf.Source != SourceImported {
		t.Errorf("Source = %s, want imported", leaf.Source)
	}
	if tr.Current() != ids[6] {
		t.Errorf("cursor = %s, want leaf", tr.Current())
	}

	first, _ := tr.Node(ids[1])
	if first.MoveNumber != 1 || first.Color != rules.White || first.From != "e2" || first.To != "e4" {
		t.Errorf("first = %+v", first)
	}

	line, err := tr.Line(ids[6])
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(line, italian) {
		t.Errorf("Line = %v, want %v", line, italian)
	}

	if got := tr.Mainline(RootID); !reflect.DeepEqual(got, ids[1:]) {
		t.Errorf("Mainline = %v, want %v", got, ids[1:])
	}
}

func TestImportLinear_Atomic(t *testing.T) {
	tr := newTree()
	ids, err := tr.ImportLinear(italian)
	if err != nil {
		t.Fatal(err)
	}

	_, err = tr.ImportLinear([]string{"d4", "d5", "Ke3"})
	if !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("error = %v, want ErrIllegalMove", err)
	}
	if tr.Len() != 7 {
		t.Errorf("Len = %d after failed import, want 7", tr.Len())
	}
	if tr.Current() != ids[6] {
		t.Errorf("cursor moved after failed import")
	}
	if _, ok := tr.Node(ids[3]); !ok {
		t.Error("previous node lost after failed import")
	}
}

func TestImportLinear_ClearsPreference(t *testing.T) {
	tr := newTree()
	a, _ := tr.ApplyMove(RootID, "e2", "e4", rules.PromoNone)
	b, _ := tr.ApplyMove(RootID, "d2", "d4", rules.PromoNone)
	tr.SetPreferredChild(RootID, b)

	ids, err := tr.ImportLinear([]string{"c4"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.Node(a); ok {
		t.Error("old branch survived import")
	}
	if got, _ := tr.MainlineChild(RootID); got != ids[1] {
		t.Errorf("MainlineChild = %s, want %s", got, ids[1])
	}
}

func TestImportLinear_Empty(t *testing.T) {
	tr := newTree()
	tr.ApplyMove(RootID, "e2", "e4", rules.PromoNone)
	ids, err := tr.ImportLinear(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || tr.Len() != 1 || tr.Current() != RootID {
		t.Errorf("ids = %v, Len = %d, cursor = %s", ids, tr.Len(), tr.Current())
	}
}

func TestApplyMove_Italian(t *testing.T) {
	tr := newTree()
	moves := []struct{ origin, dest, san string }{
		{"e2", "e4", "e4"},
		{"e7", "e5", "e5"},
		{"g1", "f3", "Nf3"},
		{"b8", "c6", "Nc6"},
		{"f1", "c4", "Bc4"},
		{"f8", "c5", "Bc5"},
	}
	parent := RootID
	for _, mv := range moves {
		id, err := tr.ApplyMove(parent, mv.origin, mv.dest, rules.PromoNone)
		if err != nil {
			t.Fatalf("%s: %v", mv.san, err)
		}
		if child, ok := tr.MainlineChild(parent); !ok || child != id {
			t.Errorf("%s: MainlineChild = %q, %v, want %q", mv.san, child, ok, id)
		}
		if p, _ := tr.Node(parent); len(p.Children) != 1 {
			t.Errorf("%s: parent has %d children, want 1", mv.san, len(p.Children))
		}
		if n, _ := tr.Node(id); n.SAN != mv.san || n.Source != SourceInteractive {
			t.Errorf("node = %+v, want SAN %s", n, mv.san)
		}
		parent = id
	}
	if tr.Len() != 7 {
		t.Errorf("Len = %d, want 7", tr.Len())
	}
	if leaf, _ := tr.Node(parent); leaf.FEN != italianFEN {
		t.Errorf("leaf FEN = %q, want %q", leaf.FEN, italianFEN)
	}
	if tr.Current() != parent {
		t.Errorf("cursor = %s, want leaf", tr.Current())
	}
}

func TestApplyMove_ReusesChild(t *testing.T) {
	tr := newTree()
	first, err := tr.ApplyMove(RootID, "e2", "e4", rules.PromoNone)
	if err != nil {
		t.Fatal(err)
	}
	second, err := tr.ApplyMove(RootID, "e2", "e4", rules.PromoNone)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("ids differ: %s vs %s", first, second)
	}
	if tr.Len() != 2 {
		t.Errorf("Len = %d, want 2", tr.Len())
	}
}

func TestApplyMove_Transposition(t *testing.T) {
	// 1.Nf3 Nf6 2.Nc3 and 1.Nc3 Nf6 2.Nf3 reach the same position on separate
	// branches; only siblings are merged.
	tr := newTree()
	for _, line := range [][][2]string{
		{{"g1", "f3"}, {"g8", "f6"}, {"b1", "c3"}},
		{{"b1", "c3"}, {"g8", "f6"}, {"g1", "f3"}},
	} {
		id := RootID
		for _, mv := range line {
			var err error
			id, err = tr.ApplyMove(id, mv[0], mv[1], rules.PromoNone)
			if err != nil {
				t.Fatal(err)
			}
		}
	}
	if tr.Len() != 7 {
		t.Errorf("Len = %d, want 7", tr.Len())
	}
}

func TestApplyMove_Rejected(t *testing.T) {
	tr := newTree()
	if _, err := tr.ApplyMove(RootID, "e2", "e5", rules.PromoNone); !errors.Is(err, ErrIllegalMove) {
		t.Errorf("error = %v, want ErrIllegalMove", err)
	}
	if _, err := tr.ApplyMove("missing", "e2", "e4", rules.PromoNone); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("error = %v, want ErrUnknownNode", err)
	}
	if tr.Len() != 1 || tr.Current() != RootID {
		t.Error("tree changed after rejected move")
	}
}

func TestPreferredChild(t *testing.T) {
	tr := newTree()
	a, _ := tr.ApplyMove(RootID, "e2", "e4", rules.PromoNone)
	b, _ := tr.ApplyMove(RootID, "d2", "d4", rules.PromoNone)

	if got, _ := tr.MainlineChild(RootID); got != a {
		t.Errorf("MainlineChild = %s, want first child %s", got, a)
	}

	c, _ := tr.ApplyMove(RootID, "c2", "c4", rules.PromoNone)
	if got, _ := tr.MainlineChild(RootID); got != a {
		t.Errorf("third child changed mainline to %s", got)
	}

	if !tr.SetPreferredChild(RootID, b) {
		t.Fatal("SetPreferredChild(b) = false")
	}
	if got, _ := tr.MainlineChild(RootID); got != b {
		t.Errorf("MainlineChild = %s, want %s", got, b)
	}

	e5, _ := tr.ApplyMove(a, "e7", "e5", rules.PromoNone)
	if tr.SetPreferredChild(RootID, e5) {
		t.Error("SetPreferredChild accepted a grandchild")
	}
	if got, _ := tr.MainlineChild(RootID); got != b {
		t.Errorf("MainlineChild = %s after no-op, want %s", got, b)
	}
	_ = c
}

func TestNavigation(t *testing.T) {
	tr := newTree()
	ids, err := tr.ImportLinear(italian)
	if err != nil {
		t.Fatal(err)
	}

	tr.GoToStart()
	if tr.Current() != RootID {
		t.Fatal("GoToStart did not reach root")
	}
	if tr.Back() {
		t.Error("Back at root reported true")
	}
	if !tr.Forward() || tr.Current() != ids[1] {
		t.Errorf("Forward = %s, want %s", tr.Current(), ids[1])
	}
	tr.GoToEnd()
	if tr.Current() != ids[6] {
		t.Errorf("GoToEnd = %s, want leaf", tr.Current())
	}
	if tr.Forward() {
		t.Error("Forward at leaf reported true")
	}
	if !tr.Back() || tr.Current() != ids[5] {
		t.Errorf("Back = %s, want %s", tr.Current(), ids[5])
	}

	if err := tr.Navigate(ids[2]); err != nil {
		t.Fatal(err)
	}
	if err := tr.Navigate("nope"); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("Navigate(nope) = %v", err)
	}
	if tr.Current() != ids[2] {
		t.Error("failed Navigate moved the cursor")
	}
}

func TestPathToRoot(t *testing.T) {
	tr := newTree()
	ids, _ := tr.ImportLinear(italian)

	// branch at move 2 for black
	alt, err := tr.ApplySAN(ids[3], "d6")
	if err != nil {
		t.Fatal(err)
	}

	path, err := tr.PathToRoot(alt)
	if err != nil {
		t.Fatal(err)
	}
	want := append(append([]string(nil), ids[:4]...), alt)
	if !reflect.DeepEqual(path, want) {
		t.Errorf("PathToRoot = %v, want %v", path, want)
	}

	line, _ := tr.Line(alt)
	if !reflect.DeepEqual(line, []string{"e4", "e5", "Nf3", "d6"}) {
		t.Errorf("Line = %v", line)
	}

	// the imported mainline is still first under ids[3]
	if got, _ := tr.MainlineChild(ids[3]); got != ids[4] {
		t.Errorf("MainlineChild = %s, want %s", got, ids[4])
	}
}

func TestImportRecord(t *testing.T) {
	tr := newTree()
	ids, err := tr.ImportRecord(`[Event "Casual"]

1. e4 e5 2. Nf3 Nc6 3. Bc4 Bc5 *`)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 7 {
		t.Errorf("ids = %d, want 7", len(ids))
	}

	if _, err := tr.ImportRecord("1. e4 e5 2. Qxf7"); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("error = %v, want ErrInvalidRecord", err)
	}
	if tr.Len() != 7 {
		t.Error("failed record import changed the tree")
	}
}

func TestMoveRows(t *testing.T) {
	tr := newTree()
	if _, err := tr.ImportLinear([]string{"e4", "e5", "Nf3"}); err != nil {
		t.Fatal(err)
	}
	rows := tr.MoveRows()
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].Number != 1 || rows[0].White.SAN != "e4" || rows[0].Black.SAN != "e5" {
		t.Errorf("row 1 = %+v", rows[0])
	}
	if rows[1].Number != 2 || rows[1].White.SAN != "Nf3" || rows[1].Black != nil {
		t.Errorf("row 2 = %+v", rows[1])
	}
}

func TestReset(t *testing.T) {
	tr := newTree()
	tr.ImportLinear(italian)
	tr.Reset()
	if tr.Len() != 1 || tr.Current() != RootID {
		t.Errorf("Len = %d, cursor = %s", tr.Len(), tr.Current())
	}
}
