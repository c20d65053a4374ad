package rules

import "fmt"

// Square indices follow A1=0, B1=1, ..., H8=63.

const (
	files = "abcdefgh"
	ranks = "12345678"
)

// Promotion is the piece a pawn promotes to.
type Promotion byte

const (
	PromoNone Promotion = iota
	PromoQueen
	PromoRook
	PromoBishop
	PromoKnight
)

// Letter returns the lowercase UCI suffix ("q", "r", "b", "n"), or "" for PromoNone.
func (p Promotion) Letter() string {
	switch p {
	case PromoQueen:
		return "q"
	case PromoRook:
		return "r"
	case PromoBishop:
		return "b"
	case PromoKnight:
		return "n"
	}
	return ""
}

// ParsePromotion accepts q/r/b/n in either case. The empty string is PromoNone.
func ParsePromotion(s string) (Promotion, error) {
	switch s {
	case "":
		return PromoNone, nil
	case "q", "Q":
		return PromoQueen, nil
	case "r", "R":
		return PromoRook, nil
	case "b", "B":
		return PromoBishop, nil
	case "n", "N":
		return PromoKnight, nil
	}
	return PromoNone, fmt.Errorf("invalid promotion piece: %q", s)
}

// SquareIndex converts "e4" to 28.
func SquareIndex(name string) (int, error) {
	if len(name) != 2 {
		return 0, fmt.Errorf("invalid square: %q", name)
	}
	file := int(name[0] - 'a')
	rank := int(name[1] - '1')
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return 0, fmt.Errorf("invalid square: %q", name)
	}
	return rank*8 + file, nil
}

// SquareName converts 28 to "e4".
func SquareName(idx int) string {
	if idx < 0 || idx > 63 {
		return ""
	}
	return string([]byte{files[idx%8], ranks[idx/8]})
}

// ParseUCIMove splits a UCI move such as "e2e4" or "e7e8q".
func ParseUCIMove(uci string) (origin, dest string, promo Promotion, err error) {
	if len(uci) < 4 || len(uci) > 5 {
		return "", "", PromoNone, fmt.Errorf("invalid UCI move: %q", uci)
	}
	origin, dest = uci[0:2], uci[2:4]
	if _, err := SquareIndex(origin); err != nil {
		return "", "", PromoNone, fmt.Errorf("invalid from square in UCI %q: %w", uci, err)
	}
	if _, err := SquareIndex(dest); err != nil {
		return "", "", PromoNone, fmt.Errorf("invalid to square in UCI %q: %w", uci, err)
	}
	promo, err = ParsePromotion(uci[4:])
	if err != nil {
		return "", "", PromoNone, err
	}
	return origin, dest, promo, nil
}

// FormatUCIMove is the inverse of ParseUCIMove.
func FormatUCIMove(origin, dest string, promo Promotion) string {
	return origin + dest + promo.Letter()
}
