package engine

import (
	"testing"

	"github.com/matryer/is"

	"github.com/hailam/kestrel/internal/board"
)

func TestCorrectionKeyedByPawnStructure(t *testing.T) {
	is := is.New(t)
	ch := NewCorrectionHistory()

	a := mustParse(t, "4k3/pp3ppp/8/8/8/8/PP3PPP/R3K3 w - - 0 1")
	// Same pawns, other pieces.
	b := mustParse(t, "4k3/pp3ppp/8/8/8/5N2/PP3PPP/4K2R w - - 0 1")
	// One pawn pushed.
	c := mustParse(t, "4k3/pp3ppp/8/8/8/7P/PP3PP1/R3K3 w - - 0 1")
	is.Equal(a.PawnKey, b.PawnKey)
	is.True(a.Hash != b.Hash)
	is.True(a.PawnKey != c.PawnKey)

	for range 50 {
		ch.Update(a, 120, 100, 12)
	}
	got := ch.Get(a)
	is.True(got > 10)  // pulled towards the search result
	is.True(got <= 20) // never past the observed error
	is.Equal(ch.Get(b), got)
	is.Equal(ch.Get(c), 0)
}

func TestCorrectionFollowsPawnMoves(t *testing.T) {
	is := is.New(t)
	ch := NewCorrectionHistory()
	pos := board.NewPosition()

	for range 50 {
		ch.Update(pos, -30, 0, 10)
	}
	is.True(ch.Get(pos) < 0)

	knight := mustMove(t, pos, "g1f3")
	undo := pos.MakeMove(knight)
	null := pos.MakeNullMove()
	is.True(ch.Get(pos) < 0) // knight move keeps the pawn key
	pos.UnmakeNullMove(null)
	pos.UnmakeMove(knight, undo)

	pawn := mustMove(t, pos, "e2e4")
	pos.MakeMove(pawn)
	pos.MakeNullMove()
	is.Equal(ch.Get(pos), 0)
}

func TestCorrectionBounded(t *testing.T) {
	is := is.New(t)
	ch := NewCorrectionHistory()
	pos := board.NewPosition()
	limit := correctionLimit / correctionGrain

	for range 1000 {
		ch.Update(pos, 30000, -30000, 20)
	}
	is.Equal(ch.Get(pos), limit)

	ch.Update(pos, 0, 500, 0) // depth 0 is ignored
	is.Equal(ch.Get(pos), limit)

	ch.Clear()
	is.Equal(ch.Get(pos), 0)
}
