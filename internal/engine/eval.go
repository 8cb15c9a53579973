// Package engine implements the chess search: the shared transposition
// table, move ordering, the PVS worker and the Lazy SMP driver around it.
package engine

import (
	"github.com/hailam/kestrel/internal/board"
)

// Material values by phase.
var (
	mgValue = [6]int{82, 337, 365, 477, 1025, 0}
	egValue = [6]int{94, 281, 297, 512, 936, 0}
)

// Phase weight per piece type; a full board sums to maxPhase.
var phaseWeight = [6]int{0, 1, 1, 2, 4, 0}

const (
	maxPhase          = 24
	tempoBonus        = 10
	bishopPairMg      = 25
	bishopPairEg      = 50
	rookOpenFileMg    = 20
	rookOpenFileEg    = 10
	rookSemiOpenMg    = 10
	rookSemiOpenEg    = 5
	doubledPawnMg     = -10
	doubledPawnEg     = -20
	isolatedPawnMg    = -15
	isolatedPawnEg    = -10
	passedPawnBonusEg = 8 // per relative rank squared
)

// Piece-square tables are laid out as seen from White with a8 first, so a
// white piece on sq reads index sq^56 and a black piece reads sq.

var pawnMg = [64]int{
	0, 0, 0, 0, 0, 0, 0, 0,
	50, 50, 50, 50, 50, 50, 50, 50,
	10, 10, 20, 30, 30, 20, 10, 10,
	5, 5, 10, 25, 25, 10, 5, 5,
	0, 0, 0, 20, 20, 0, 0, 0,
	5, -5, -10, 0, 0, -10, -5, 5,
	5, 10, 10, -20, -20, 10, 10, 5,
	0, 0, 0, 0, 0, 0, 0, 0,
}

var pawnEg = [64]int{
	0, 0, 0, 0, 0, 0, 0, 0,
	80, 80, 80, 80, 80, 80, 80, 80,
	50, 50, 50, 50, 50, 50, 50, 50,
	30, 30, 30, 30, 30, 30, 30, 30,
	15, 15, 15, 15, 15, 15, 15, 15,
	5, 5, 5, 5, 5, 5, 5, 5,
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
}

var knightPST = [64]int{
	-50, -40, -30, -30, -30, -30, -40, -50,
	-40, -20, 0, 0, 0, 0, -20, -40,
	-30, 0, 10, 15, 15, 10, 0, -30,
	-30, 5, 15, 20, 20, 15, 5, -30,
	-30, 0, 15, 20, 20, 15, 0, -30,
	-30, 5, 10, 15, 15, 10, 5, -30,
	-40, -20, 0, 5, 5, 0, -20, -40,
	-50, -40, -30, -30, -30, -30, -40, -50,
}

var bishopPST = [64]int{
	-20, -10, -10, -10, -10, -10, -10, -20,
	-10, 0, 0, 0, 0, 0, 0, -10,
	-10, 0, 5, 10, 10, 5, 0, -10,
	-10, 5, 5, 10, 10, 5, 5, -10,
	-10, 0, 10, 10, 10, 10, 0, -10,
	-10, 10, 10, 10, 10, 10, 10, -10,
	-10, 5, 0, 0, 0, 0, 5, -10,
	-20, -10, -10, -10, -10, -10, -10, -20,
}

var rookPST = [64]int{
	0, 0, 0, 0, 0, 0, 0, 0,
	5, 10, 10, 10, 10, 10, 10, 5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	0, 0, 0, 5, 5, 0, 0, 0,
}

var queenPST = [64]int{
	-20, -10, -10, -5, -5, -10, -10, -20,
	-10, 0, 0, 0, 0, 0, 0, -10,
	-10, 0, 5, 5, 5, 5, 0, -10,
	-5, 0, 5, 5, 5, 5, 0, -5,
	0, 0, 5, 5, 5, 5, 0, -5,
	-10, 5, 5, 5, 5, 5, 0, -10,
	-10, 0, 5, 0, 0, 0, 0, -10,
	-20, -10, -10, -5, -5, -10, -10, -20,
}

var kingMg = [64]int{
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-20, -30, -30, -40, -40, -30, -30, -20,
	-10, -20, -20, -20, -20, -20, -20, -10,
	20, 20, 0, 0, 0, 0, 20, 20,
	20, 30, 10, 0, 0, 10, 30, 20,
}

var kingEg = [64]int{
	-50, -40, -30, -20, -20, -30, -40, -50,
	-30, -20, -10, 0, 0, -10, -20, -30,
	-30, -10, 20, 30, 30, 20, -10, -30,
	-30, -10, 30, 40, 40, 30, -10, -30,
	-30, -10, 30, 40, 40, 30, -10, -30,
	-30, -10, 20, 30, 30, 20, -10, -30,
	-30, -30, 0, 0, 0, 0, -30, -30,
	-50, -30, -30, -30, -30, -30, -30, -50,
}

var (
	mgTables = [6]*[64]int{&pawnMg, &knightPST, &bishopPST, &rookPST, &queenPST, &kingMg}
	egTables = [6]*[64]int{&pawnEg, &knightPST, &bishopPST, &rookPST, &queenPST, &kingEg}
)

// Evaluate returns a tapered material and piece-square score from the side
// to move's point of view.
func Evaluate(pos *board.Position) int {
	var mg, eg [2]int
	var pawnFiles [2][8]int
	phase := 0

	for sq := board.A1; sq <= board.H8; sq++ {
		pc := pos.Board[sq]
		if pc == board.NoPiece {
			continue
		}
		c, pt := pc.Color(), pc.Type()
		idx := int(sq)
		if c == board.White {
			idx ^= 56
		}
		mg[c] += mgValue[pt] + mgTables[pt][idx]
		eg[c] += egValue[pt] + egTables[pt][idx]
		phase += phaseWeight[pt]
		if pt == board.Pawn {
			pawnFiles[c][sq.File()]++
		}
	}

	for c := board.White; c <= board.Black; c++ {
		if pos.Pieces[c][board.Bishop].PopCount() >= 2 {
			mg[c] += bishopPairMg
			eg[c] += bishopPairEg
		}
		for f := 0; f < 8; f++ {
			n := pawnFiles[c][f]
			if n > 1 {
				mg[c] += doubledPawnMg * (n - 1)
				eg[c] += doubledPawnEg * (n - 1)
			}
			if n > 0 && (f == 0 || pawnFiles[c][f-1] == 0) && (f == 7 || pawnFiles[c][f+1] == 0) {
				mg[c] += isolatedPawnMg * n
				eg[c] += isolatedPawnEg * n
			}
		}
	}

	for sq := board.A1; sq <= board.H8; sq++ {
		pc := pos.Board[sq]
		if pc == board.NoPiece {
			continue
		}
		c := pc.Color()
		switch pc.Type() {
		case board.Rook:
			f := sq.File()
			switch {
			case pawnFiles[c][f] == 0 && pawnFiles[c.Other()][f] == 0:
				mg[c] += rookOpenFileMg
				eg[c] += rookOpenFileEg
			case pawnFiles[c][f] == 0:
				mg[c] += rookSemiOpenMg
				eg[c] += rookSemiOpenEg
			}
		case board.Pawn:
			if isPassed(pos, sq, c) {
				r := sq.RelativeRank(c)
				eg[c] += passedPawnBonusEg * r * r / 2
			}
		}
	}

	us, them := pos.SideToMove, pos.SideToMove.Other()
	phase = min(phase, maxPhase)
	score := ((mg[us]-mg[them])*phase + (eg[us]-eg[them])*(maxPhase-phase)) / maxPhase
	return score + tempoBonus
}

// isPassed reports whether no enemy pawn can stop the pawn on sq.
func isPassed(pos *board.Position, sq board.Square, c board.Color) bool {
	return pos.Pieces[c.Other()][board.Pawn]&board.PassedPawnMask(c, sq) == 0
}
