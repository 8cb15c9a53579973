package board

// GenerateLegalMoves returns every legal move in the position.
func (p *Position) GenerateLegalMoves() *MoveList {
	ml := &MoveList{}
	p.LegalMoves(ml)
	return ml
}

// LegalMoves fills ml with every legal move, reusing its storage.
func (p *Position) LegalMoves(ml *MoveList) {
	ml.Clear()
	p.generate(ml, false)
	p.filterLegal(ml)
}

// LegalCaptures fills ml with the legal captures and queen promotions.
func (p *Position) LegalCaptures(ml *MoveList) {
	ml.Clear()
	p.generate(ml, true)
	p.filterLegal(ml)
}

// HasLegalMoves reports whether the side to move can move at all.
func (p *Position) HasLegalMoves() bool {
	var ml MoveList
	p.LegalMoves(&ml)
	return ml.count > 0
}

// IsLegal reports whether m is a legal move in the position. Moves from the
// transposition table or a PV are checked this way before they are played.
func (p *Position) IsLegal(m Move) bool {
	if m == NoMove {
		return false
	}
	var ml MoveList
	p.LegalMoves(&ml)
	return ml.Contains(m)
}

// filterLegal drops pseudo-legal moves that leave the own king attacked.
// Only king moves, en passant and pinned pieces need a closer look when
// the king is not in check.
func (p *Position) filterLegal(ml *MoveList) {
	pinned := p.pinned()
	n := 0
	for i := 0; i < ml.count; i++ {
		if m := ml.moves[i]; p.legal(m, pinned) {
			ml.moves[n] = m
			n++
		}
	}
	ml.count = n
}

func (p *Position) legal(m Move, pinned Bitboard) bool {
	us := p.SideToMove
	them := us.Other()
	from, to := m.From(), m.To()
	ksq := p.KingSquare[us]
	enemy := &p.Pieces[them]

	if from == ksq {
		if m.IsCastling() {
			return true
		}
		return p.attackersByColor(to, them, p.AllOccupied&^SquareBB(from)) == 0
	}

	if m.IsEnPassant() {
		victim := epVictim(to, us)
		if p.Checkers&^SquareBB(victim)&(enemy[Knight]|enemy[Pawn]) != 0 {
			return false
		}
		occ := p.AllOccupied&^(SquareBB(from)|SquareBB(victim)) | SquareBB(to)
		return BishopAttacks(ksq, occ)&(enemy[Bishop]|enemy[Queen]) == 0 &&
			RookAttacks(ksq, occ)&(enemy[Rook]|enemy[Queen]) == 0
	}

	if p.Checkers != 0 {
		if p.Checkers.Several() {
			return false
		}
		checker := p.Checkers.LSB()
		if to != checker && !Between(checker, ksq).Has(to) {
			return false
		}
	}
	return pinned&SquareBB(from) == 0 || Aligned(ksq, from, to)
}

func (p *Position) generate(ml *MoveList, noisyOnly bool) {
	us := p.SideToMove
	targets := ^p.Occupied[us]
	if noisyOnly {
		targets = p.Occupied[us.Other()]
	}

	// In double check only the king can move.
	if !p.Checkers.Several() {
		p.pawnMoves(ml, noisyOnly)
		for pt := Knight; pt <= Queen; pt++ {
			for bb := p.Pieces[us][pt]; bb != 0; {
				from := bb.PopLSB()
				addMoves(ml, from, p.pieceAttacks(pt, from)&targets)
			}
		}
	}

	ksq := p.KingSquare[us]
	addMoves(ml, ksq, kingAttacks[ksq]&targets)
	if !noisyOnly && p.Checkers == 0 {
		p.castleMoves(ml)
	}
}

func (p *Position) pieceAttacks(pt PieceType, sq Square) Bitboard {
	switch pt {
	case Knight:
		return knightAttacks[sq]
	case Bishop:
		return BishopAttacks(sq, p.AllOccupied)
	case Rook:
		return RookAttacks(sq, p.AllOccupied)
	case Queen:
		return QueenAttacks(sq, p.AllOccupied)
	default:
		return kingAttacks[sq]
	}
}

func addMoves(ml *MoveList, from Square, targets Bitboard) {
	for targets != 0 {
		ml.Add(NewMove(from, targets.PopLSB()))
	}
}

// addShifted adds a move for every target, with the origin at a fixed offset.
func addShifted(ml *MoveList, targets Bitboard, offset int) {
	for targets != 0 {
		to := targets.PopLSB()
		ml.Add(NewMove(Square(int(to)-offset), to))
	}
}

func addPromotions(ml *MoveList, targets Bitboard, offset int, noisyOnly bool) {
	for targets != 0 {
		to := targets.PopLSB()
		from := Square(int(to) - offset)
		ml.Add(NewPromotion(from, to, Queen))
		if noisyOnly {
			continue
		}
		ml.Add(NewPromotion(from, to, Rook))
		ml.Add(NewPromotion(from, to, Bishop))
		ml.Add(NewPromotion(from, to, Knight))
	}
}

func (p *Position) pawnMoves(ml *MoveList, noisyOnly bool) {
	us := p.SideToMove
	pawns := p.Pieces[us][Pawn]
	enemies := p.Occupied[us.Other()]
	empty := ^p.AllOccupied

	var push1, push2, capWest, capEast, promoRank Bitboard
	up := 8
	if us == White {
		push1 = pawns.North() & empty
		push2 = (push1 & Rank3).North() & empty
		capWest = pawns.NorthWest() & enemies
		capEast = pawns.NorthEast() & enemies
		promoRank = Rank8
	} else {
		up = -8
		push1 = pawns.South() & empty
		push2 = (push1 & Rank6).South() & empty
		capWest = pawns.SouthWest() & enemies
		capEast = pawns.SouthEast() & enemies
		promoRank = Rank1
	}

	if !noisyOnly {
		addShifted(ml, push1&^promoRank, up)
		addShifted(ml, push2, 2*up)
	}
	addShifted(ml, capWest&^promoRank, up-1)
	addShifted(ml, capEast&^promoRank, up+1)

	addPromotions(ml, push1&promoRank, up, noisyOnly)
	addPromotions(ml, capWest&promoRank, up-1, noisyOnly)
	addPromotions(ml, capEast&promoRank, up+1, noisyOnly)

	if p.EnPassant != NoSquare {
		for bb := pawnAttacks[us.Other()][p.EnPassant] & pawns; bb != 0; {
			ml.Add(NewEnPassant(bb.PopLSB(), p.EnPassant))
		}
	}
}

// castleMoves assumes the king is not in check.
func (p *Position) castleMoves(ml *MoveList) {
	us := p.SideToMove
	them := us.Other()
	home, kingSide, queenSide := E1, WhiteKingSideCastle, WhiteQueenSideCastle
	if us == Black {
		home, kingSide, queenSide = E8, BlackKingSideCastle, BlackQueenSideCastle
	}
	if p.KingSquare[us] != home {
		return
	}
	rook := NewPiece(Rook, us)
	if p.CastlingRights&kingSide != 0 && p.Board[home+3] == rook &&
		p.AllOccupied&(SquareBB(home+1)|SquareBB(home+2)) == 0 &&
		!p.IsSquareAttacked(home+1, them) && !p.IsSquareAttacked(home+2, them) {
		ml.Add(NewCastling(home, home+2))
	}
	if p.CastlingRights&queenSide != 0 && p.Board[home-4] == rook &&
		p.AllOccupied&(SquareBB(home-1)|SquareBB(home-2)|SquareBB(home-3)) == 0 &&
		!p.IsSquareAttacked(home-1, them) && !p.IsSquareAttacked(home-2, them) {
		ml.Add(NewCastling(home, home-2))
	}
}

// Perft counts the leaf nodes of the legal move tree to the given depth.
func (p *Position) Perft(depth int) uint64 {
	if depth == 0 {
		return 1
	}
	var ml MoveList
	p.LegalMoves(&ml)
	if depth == 1 {
		return uint64(ml.count)
	}
	var nodes uint64
	for _, m := range ml.Slice() {
		undo := p.MakeMove(m)
		nodes += p.Perft(depth - 1)
		p.UnmakeMove(m, undo)
	}
	return nodes
}
