package board

var (
	knightAttacks [64]Bitboard
	kingAttacks   [64]Bitboard
	pawnAttacks   [2][64]Bitboard

	// betweenBB[a][b] holds the squares strictly between two aligned squares.
	betweenBB [64][64]Bitboard
	// lineBB[a][b] is the whole line through two aligned squares.
	lineBB [64][64]Bitboard

	// passedMask[c][sq] covers the squares in front of sq on its own and
	// adjacent files, seen from c.
	passedMask [2][64]Bitboard
)

func init() {
	initMagics()
	for sq := A1; sq <= H8; sq++ {
		bb := SquareBB(sq)
		knightAttacks[sq] = (bb<<17)&notFileA | (bb<<15)&notFileH |
			(bb>>17)&notFileH | (bb>>15)&notFileA |
			(bb<<10)&notFileAB | (bb<<6)&notFileGH |
			(bb>>10)&notFileGH | (bb>>6)&notFileAB
		kingAttacks[sq] = bb.North() | bb.South() | bb.East() | bb.West() |
			bb.NorthEast() | bb.NorthWest() | bb.SouthEast() | bb.SouthWest()
		pawnAttacks[White][sq] = bb.NorthEast() | bb.NorthWest()
		pawnAttacks[Black][sq] = bb.SouthEast() | bb.SouthWest()

		span := bb | bb.East() | bb.West()
		passedMask[White][sq] = span.North().NorthFill()
		passedMask[Black][sq] = span.South().SouthFill()
	}
	for a := A1; a <= H8; a++ {
		for _, dirs := range [2][4][2]int{bishopDirs, rookDirs} {
			full := slidingAttacks(a, 0, dirs)
			for b := A1; b <= H8; b++ {
				if !full.Has(b) {
					continue
				}
				betweenBB[a][b] = slidingAttacks(a, SquareBB(b), dirs) & slidingAttacks(b, SquareBB(a), dirs)
				lineBB[a][b] = (full & slidingAttacks(b, 0, dirs)) | SquareBB(a) | SquareBB(b)
			}
		}
	}
}

func KnightAttacks(sq Square) Bitboard { return knightAttacks[sq] }
func KingAttacks(sq Square) Bitboard   { return kingAttacks[sq] }

// PawnAttacks returns the squares a pawn of color c on sq attacks.
func PawnAttacks(sq Square, c Color) Bitboard { return pawnAttacks[c][sq] }

// Between returns the squares strictly between a and b, or Empty when the
// two are not on a common rank, file or diagonal.
func Between(a, b Square) Bitboard { return betweenBB[a][b] }

// Aligned reports whether c lies on the line through a and b.
func Aligned(a, b, c Square) bool { return lineBB[a][b].Has(c) }

// PassedPawnMask returns the squares an enemy pawn must occupy to stop or
// capture a c pawn on sq on its way to promotion.
func PassedPawnMask(c Color, sq Square) Bitboard { return passedMask[c][sq] }

// AttackersTo returns every piece of either color attacking sq, with sliders
// seen through occupied.
func (p *Position) AttackersTo(sq Square, occupied Bitboard) Bitboard {
	diag := p.Pieces[White][Bishop] | p.Pieces[Black][Bishop] | p.Pieces[White][Queen] | p.Pieces[Black][Queen]
	orth := p.Pieces[White][Rook] | p.Pieces[Black][Rook] | p.Pieces[White][Queen] | p.Pieces[Black][Queen]
	return pawnAttacks[Black][sq]&p.Pieces[White][Pawn] |
		pawnAttacks[White][sq]&p.Pieces[Black][Pawn] |
		knightAttacks[sq]&(p.Pieces[White][Knight]|p.Pieces[Black][Knight]) |
		kingAttacks[sq]&(p.Pieces[White][King]|p.Pieces[Black][King]) |
		BishopAttacks(sq, occupied)&diag |
		RookAttacks(sq, occupied)&orth
}

// attackersByColor returns the pieces of color c attacking sq.
func (p *Position) attackersByColor(sq Square, c Color, occupied Bitboard) Bitboard {
	pc := &p.Pieces[c]
	return pawnAttacks[c.Other()][sq]&pc[Pawn] |
		knightAttacks[sq]&pc[Knight] |
		kingAttacks[sq]&pc[King] |
		BishopAttacks(sq, occupied)&(pc[Bishop]|pc[Queen]) |
		RookAttacks(sq, occupied)&(pc[Rook]|pc[Queen])
}

// IsSquareAttacked reports whether any piece of color by attacks sq.
func (p *Position) IsSquareAttacked(sq Square, by Color) bool {
	return p.attackersByColor(sq, by, p.AllOccupied) != 0
}

func (p *Position) updateCheckers() {
	us := p.SideToMove
	p.Checkers = p.attackersByColor(p.KingSquare[us], us.Other(), p.AllOccupied)
}

// leastValuable picks the cheapest piece of color c out of set.
func (p *Position) leastValuable(set Bitboard, c Color) (Square, PieceType) {
	for pt := Pawn; pt <= King; pt++ {
		if bb := set & p.Pieces[c][pt]; bb != 0 {
			return bb.LSB(), pt
		}
	}
	return NoSquare, NoPieceType
}

// SEE returns the static exchange evaluation of m in centipawns: the
// material balance for the mover after the best sequence of recaptures on
// the destination square, where either side may stop capturing.
func (p *Position) SEE(m Move) int {
	from, to := m.From(), m.To()
	us := p.SideToMove

	var gain [32]int
	occ := p.AllOccupied &^ SquareBB(from)
	switch {
	case m.IsEnPassant():
		gain[0] = PieceValue[Pawn]
		occ &^= SquareBB(epVictim(to, us))
	case p.Board[to] != NoPiece:
		gain[0] = p.Board[to].Value()
	}

	onSquare := p.Board[from].Type()
	if m.IsPromotion() {
		onSquare = m.Promotion()
		gain[0] += PieceValue[onSquare] - PieceValue[Pawn]
	}

	diag := p.Pieces[White][Bishop] | p.Pieces[Black][Bishop] | p.Pieces[White][Queen] | p.Pieces[Black][Queen]
	orth := p.Pieces[White][Rook] | p.Pieces[Black][Rook] | p.Pieces[White][Queen] | p.Pieces[Black][Queen]
	attackers := p.AttackersTo(to, occ) & occ

	side := us.Other()
	d := 0
	for d < len(gain)-1 {
		d++
		gain[d] = PieceValue[onSquare] - gain[d-1]

		sq, pt := p.leastValuable(attackers&p.Occupied[side], side)
		if pt == NoPieceType {
			break
		}
		// The king may only take last.
		if pt == King && attackers&p.Occupied[side.Other()] != 0 {
			break
		}
		occ &^= SquareBB(sq)
		attackers &^= SquareBB(sq)
		if pt == Pawn || pt == Bishop || pt == Queen {
			attackers |= BishopAttacks(to, occ) & diag & occ
		}
		if pt == Rook || pt == Queen {
			attackers |= RookAttacks(to, occ) & orth & occ
		}
		onSquare = pt
		side = side.Other()
	}
	for d--; d > 0; d-- {
		gain[d-1] = -max(-gain[d-1], gain[d])
	}
	return gain[0]
}

// SEEGreaterEqual reports whether SEE(m) >= threshold.
func (p *Position) SEEGreaterEqual(m Move, threshold int) bool {
	return p.SEE(m) >= threshold
}
