package rules

import "github.com/freeeve/pgn/v3"

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Color is the side to move or the side that moved.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Sign is +1 for White and -1 for Black.
func (c Color) Sign() int {
	if c == Black {
		return -1
	}
	return 1
}

// Opponent returns the other side.
func (c Color) Opponent() Color {
	if c == Black {
		return White
	}
	return Black
}

func colorOf(c pgn.Color) Color {
	if c == pgn.Black {
		return Black
	}
	return White
}

func pieceColor(p byte) Color {
	if p >= 'a' && p <= 'z' {
		return Black
	}
	return White
}

func upper(p byte) byte {
	if p >= 'a' && p <= 'z' {
		return p - 32
	}
	return p
}

// SideToMove reads the active color of a FEN.
func SideToMove(fen string) (Color, error) {
	gs, err := loadState(fen)
	if err != nil {
		return "", err
	}
	return colorOf(gs.SideToMove), nil
}

// pieceValues are centipawn weights for the material fallback.
var pieceValues = map[byte]int{
	'P': 100,
	'N': 320,
	'B': 330,
	'R': 500,
	'Q': 900,
	'K': 0,
}

// Material returns White material minus Black material in centipawns.
func Material(fen string) (int, error) {
	gs, err := loadState(fen)
	if err != nil {
		return 0, err
	}
	score := 0
	for sq := pgn.Square(0); sq < 64; sq++ {
		p := gs.PieceAt(sq)
		if p == 0 {
			continue
		}
		v := pieceValues[upper(p)]
		if pieceColor(p) == White {
			score += v
		} else {
			score -= v
		}
	}
	return score, nil
}

// NeedsPromotion reports whether moving the piece on origin to dest is a pawn
// reaching its last rank, in which case the caller should ask for a piece.
func NeedsPromotion(fen, origin, dest string) bool {
	gs, err := loadState(fen)
	if err != nil {
		return false
	}
	side := colorOf(gs.SideToMove)
	from, err := SquareIndex(origin)
	if err != nil {
		return false
	}
	to, err := SquareIndex(dest)
	if err != nil {
		return false
	}
	p := gs.PieceAt(pgn.Square(from))
	if upper(p) != 'P' || pieceColor(p) != side {
		return false
	}
	if side == White {
		return to/8 == 7
	}
	return to/8 == 0
}
