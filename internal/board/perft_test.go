package board

import (
	"testing"

	"github.com/matryer/is"
)

const kiwipeteFEN = "r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq -"

func TestPerft(t *testing.T) {
	tests := []struct {
		name  string
		fen   string
		nodes []uint64
	}{
		{"startpos", StartFEN, []uint64{20, 400, 8902, 197281}},
		{"kiwipete", kiwipeteFEN, []uint64{48, 2039, 97862}},
		{"endgame", "8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1", []uint64{14, 191, 2812, 43238}},
		{"promotions", "r3k2r/Pppp1ppp/1b3nbN/nP6/BBP1P3/q4N2/Pp1P2PP/R2Q1RK1 w kq - 0 1", []uint64{6, 264, 9467}},
		{"discovered", "rnbq1k1r/pp1Pbppp/2p5/8/2B5/8/PPP1NnPP/RNBQK2R w KQ - 1 8", []uint64{44, 1486, 62379}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			is := is.New(t)
			pos, err := ParseFEN(tc.fen)
			is.NoErr(err)
			for i, want := range tc.nodes {
				is.Equal(pos.Perft(i+1), want) // perft node count
			}
		})
	}
}

// Walking the tree must leave the hash and board exactly as they were, and
// every incremental hash must agree with a from-scratch recomputation.
func TestMakeUnmakeRestoresState(t *testing.T) {
	is := is.New(t)
	pos, err := ParseFEN(kiwipeteFEN)
	is.NoErr(err)
	before := *pos

	var walk func(depth int)
	walk = func(depth int) {
		if depth == 0 {
			return
		}
		for _, m := range pos.GenerateLegalMoves().Slice() {
			undo := pos.MakeMove(m)
			is.Equal(pos.Hash, pos.ComputeHash())       // incremental hash
			is.Equal(pos.PawnKey, pos.ComputePawnKey()) // incremental pawn key
			walk(depth - 1)
			pos.UnmakeMove(m, undo)
		}
	}
	walk(2)

	is.Equal(pos.Board, before.Board)
	is.Equal(pos.Pieces, before.Pieces)
	is.Equal(pos.Occupied, before.Occupied)
	is.Equal(pos.AllOccupied, before.AllOccupied)
	is.Equal(pos.Hash, before.Hash)
	is.Equal(pos.PawnKey, before.PawnKey)
	is.Equal(pos.Checkers, before.Checkers)
	is.Equal(pos.CastlingRights, before.CastlingRights)
	is.Equal(pos.KingSquare, before.KingSquare)
}

// The mailbox must always agree with the bitboards.
func TestBoardMatchesBitboards(t *testing.T) {
	is := is.New(t)
	pos, err := ParseFEN(kiwipeteFEN)
	is.NoErr(err)
	for _, m := range pos.GenerateLegalMoves().Slice() {
		undo := pos.MakeMove(m)
		for sq := A1; sq <= H8; sq++ {
			pc := pos.Board[sq]
			if pc == NoPiece {
				is.True(!pos.AllOccupied.Has(sq))
				continue
			}
			is.True(pos.Pieces[pc.Color()][pc.Type()].Has(sq)) // mailbox piece in its bitboard
		}
		pos.UnmakeMove(m, undo)
	}
}
