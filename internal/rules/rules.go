// Package rules validates and applies chess moves on FEN positions using the pgn
// move generator, and renders moves in SAN.
package rules

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/freeeve/pgn/v3"
)

var (
	// ErrIllegalMove is returned for moves the position does not allow,
	// including moves from a square without a piece of the side to move.
	ErrIllegalMove = errors.New("illegal move")
	// ErrInvalidFEN is returned when a position string cannot be parsed.
	ErrInvalidFEN = errors.New("invalid FEN")
	// ErrParse is returned for game records that cannot be read.
	ErrParse = errors.New("invalid game record")
)

// Move is a validated move together with the position it produces.
type Move struct {
	SAN       string
	From      string
	To        string
	Promotion Promotion
	Color     Color  // side that moved
	FEN       string // resulting position
}

// UCI returns the move in long algebraic form, e.g. "e7e8q".
func (m Move) UCI() string {
	return FormatUCIMove(m.From, m.To, m.Promotion)
}

// Adapter is the rules engine. It holds no state; every call starts from a FEN.
type Adapter struct{}

// New returns a rules adapter.
func New() Adapter {
	return Adapter{}
}

func loadState(fen string) (*pgn.GameState, error) {
	gs, err := pgn.NewGame(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	return gs, nil
}

func mvPromotion(mv pgn.Mv) Promotion {
	switch mv.Promo {
	case pgn.PromoQueen:
		return PromoQueen
	case pgn.PromoRook:
		return PromoRook
	case pgn.PromoBishop:
		return PromoBishop
	case pgn.PromoKnight:
		return PromoKnight
	}
	return PromoNone
}

// LegalDestinations maps each origin square to its legal destination squares.
func (Adapter) LegalDestinations(fen string) (map[string][]string, error) {
	gs, err := loadState(fen)
	if err != nil {
		return nil, err
	}
	dests := make(map[string][]string)
	seen := make(map[[2]int]bool)
	for _, mv := range pgn.GenerateLegalMoves(gs) {
		key := [2]int{int(mv.From), int(mv.To)}
		if seen[key] {
			continue // promotions share a destination
		}
		seen[key] = true
		from := SquareName(key[0])
		dests[from] = append(dests[from], SquareName(key[1]))
	}
	for _, list := range dests {
		sort.Strings(list)
	}
	return dests, nil
}

// Apply plays origin->dest on fen. A promotion move without a piece promotes to a queen.
func (Adapter) Apply(fen, origin, dest string, promo Promotion) (Move, error) {
	gs, err := loadState(fen)
	if err != nil {
		return Move{}, err
	}
	from, err := SquareIndex(origin)
	if err != nil {
		return Move{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	to, err := SquareIndex(dest)
	if err != nil {
		return Move{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	side := colorOf(gs.SideToMove)
	if p := gs.PieceAt(pgn.Square(from)); p == 0 || pieceColor(p) != side {
		return Move{}, fmt.Errorf("%w: no %s piece on %s", ErrIllegalMove, side, origin)
	}
	if promo == PromoNone && NeedsPromotion(fen, origin, dest) {
		promo = PromoQueen
	}

	legal := pgn.GenerateLegalMoves(gs)
	for _, mv := range legal {
		if int(mv.From) != from || int(mv.To) != to {
			continue
		}
		if mp := mvPromotion(mv); mp != PromoNone && mp != promo {
			continue
		}
		return play(gs, mv, legal)
	}
	return Move{}, fmt.Errorf("%w: %s%s", ErrIllegalMove, origin, dest)
}

// ApplySAN plays a move given in SAN. Check, mate and annotation suffixes are ignored.
func (Adapter) ApplySAN(fen, san string) (Move, error) {
	san = strings.TrimSpace(san)
	if san == "" {
		return Move{}, fmt.Errorf("%w: empty SAN", ErrIllegalMove)
	}
	gs, err := loadState(fen)
	if err != nil {
		return Move{}, err
	}
	parsed, err := pgn.ParseSAN(gs, san)
	if err != nil {
		return Move{}, fmt.Errorf("%w: %s: %v", ErrIllegalMove, san, err)
	}
	return playLegal(gs, parsed)
}

// playLegal plays a move resolved by the SAN parser once the move generator
// confirms it, since the parser only rejects moves that leave the king in check.
func playLegal(gs *pgn.GameState, parsed pgn.Mv) (Move, error) {
	legal := pgn.GenerateLegalMoves(gs)
	for _, mv := range legal {
		if mv.From == parsed.From && mv.To == parsed.To && mv.Promo == parsed.Promo {
			return play(gs, mv, legal)
		}
	}
	return Move{}, fmt.Errorf("%w: %s", ErrIllegalMove, parsed)
}

// play applies mv to gs, which is consumed.
func play(gs *pgn.GameState, mv pgn.Mv, legal []pgn.Mv) (Move, error) {
	side := colorOf(gs.SideToMove)
	san := baseSAN(gs, mv, legal)
	if err := pgn.ApplyMove(gs, mv); err != nil {
		return Move{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	if gs.IsInCheck() {
		if len(pgn.GenerateLegalMoves(gs)) == 0 {
			san += "#"
		} else {
			san += "+"
		}
	}
	return Move{
		SAN:       san,
		From:      SquareName(int(mv.From)),
		To:        SquareName(int(mv.To)),
		Promotion: mvPromotion(mv),
		Color:     side,
		FEN:       gs.ToFEN(),
	}, nil
}
