package rules

import "github.com/freeeve/pgn/v3"

// baseSAN renders mv in SAN without the check/mate suffix.
// gs must be the position before the move; legal is its full legal move list.
func baseSAN(gs *pgn.GameState, mv pgn.Mv, legal []pgn.Mv) string {
	fromSq := int(mv.From)
	toSq := int(mv.To)
	fromFile := fromSq % 8
	toFile := toSq % 8
	toRank := toSq / 8

	piece := gs.PieceAt(mv.From)
	pieceChar := upper(piece)

	// Castling: the king moves two files
	if pieceChar == 'K' && (fromFile-toFile == 2 || toFile-fromFile == 2) {
		if toFile > fromFile {
			return "O-O"
		}
		return "O-O-O"
	}

	isPawn := pieceChar == 'P'
	// en passant lands on an empty square while changing file
	isCapture := gs.PieceAt(mv.To) != 0 || (isPawn && fromFile != toFile)

	var san string
	if isPawn {
		if isCapture {
			san = string(files[fromFile]) + "x" + string(files[toFile]) + string(ranks[toRank])
		} else {
			san = string(files[toFile]) + string(ranks[toRank])
		}
		switch mvPromotion(mv) {
		case PromoQueen:
			san += "=Q"
		case PromoRook:
			san += "=R"
		case PromoBishop:
			san += "=B"
		case PromoKnight:
			san += "=N"
		}
		return san
	}

	san = string(pieceChar)

	// Disambiguation against other pieces of the same type reaching the same square
	sameFile, sameRank, ambiguous := false, false, false
	for _, other := range legal {
		otherFrom := int(other.From)
		if int(other.To) != toSq || otherFrom == fromSq {
			continue
		}
		if upper(gs.PieceAt(other.From)) != pieceChar {
			continue
		}
		ambiguous = true
		if otherFrom%8 == fromFile {
			sameFile = true
		}
		if otherFrom/8 == fromSq/8 {
			sameRank = true
		}
	}
	if ambiguous {
		switch {
		case !sameFile:
			san += string(files[fromFile])
		case !sameRank:
			san += string(ranks[fromSq/8])
		default:
			san += string(files[fromFile]) + string(ranks[fromSq/8])
		}
	}

	if isCapture {
		san += "x"
	}
	return san + string(files[toFile]) + string(ranks[toRank])
}
