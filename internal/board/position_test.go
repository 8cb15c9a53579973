package board

import (
	"errors"
	"testing"

	"github.com/matryer/is"
)

func mustParse(t *testing.T, fen string) *Position {
	t.Helper()
	pos, err := ParseFEN(fen)
	if err != nil {
		t.Fatalf("parse %q: %v", fen, err)
	}
	return pos
}

func play(t *testing.T, pos *Position, moves ...string) {
	t.Helper()
	for _, s := range moves {
		m, err := ParseMove(s, pos)
		if err != nil {
			t.Fatalf("move %s: %v", s, err)
		}
		pos.MakeMove(m)
	}
}

func TestFENRoundTrip(t *testing.T) {
	is := is.New(t)
	for _, fen := range []string{
		StartFEN,
		"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
		"rnbqkbnr/ppp1pppp/8/3pP3/8/8/PPPP1PPP/RNBQKBNR w KQkq d6 0 3",
		"8/8/8/8/8/8/8/K6k b - - 42 80",
	} {
		is.Equal(mustParse(t, fen).ToFEN(), fen)
	}
}

func TestParseFENErrors(t *testing.T) {
	is := is.New(t)
	for _, fen := range []string{
		"",
		"8/8/8/8/8/8/8 w - -",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR x KQkq -",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQxq -",
		"8/8/8/8/8/8/8/8 w - -",
		"k6R/8/8/8/8/8/8/K7 w - -",
		"P6k/8/8/8/8/8/8/K7 w - -",
	} {
		_, err := ParseFEN(fen)
		is.True(errors.Is(err, ErrInvalidFEN)) // rejected FEN
	}
}

func TestCheckmateAndStalemate(t *testing.T) {
	is := is.New(t)

	mate := mustParse(t, "R6k/6pp/8/8/8/8/8/K7 b - - 0 1")
	is.True(mate.InCheck())
	is.True(mate.IsCheckmate())
	is.Equal(mate.GenerateLegalMoves().Len(), 0)

	notMate := mustParse(t, "6Rk/8/8/8/8/8/8/K7 b - - 0 1")
	is.True(notMate.InCheck())
	is.True(!notMate.IsCheckmate()) // king can take the rook

	stale := mustParse(t, "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1")
	is.True(stale.IsStalemate())
}

func TestParseMoveRejectsIllegal(t *testing.T) {
	is := is.New(t)
	pos := NewPosition()
	_, err := ParseMove("e2e5", pos)
	is.True(errors.Is(err, ErrIllegalMove))
	m, err := ParseMove("e1g1", mustParse(t, "r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1"))
	is.NoErr(err)
	is.True(m.IsCastling())
}

func TestRepetition(t *testing.T) {
	is := is.New(t)
	pos := NewPosition()
	play(t, pos, "g1f3", "g8f6", "f3g1", "f6g8")
	is.True(!pos.IsRepetition(0)) // a single game repetition is not a draw yet
	is.True(pos.IsRepetition(5))  // but it is inside the search path

	play(t, pos, "g1f3", "g8f6", "f3g1", "f6g8")
	is.True(pos.IsRepetition(0)) // threefold

	play(t, pos, "e2e4")
	is.True(!pos.IsRepetition(100)) // pawn move resets the window
}

func TestNullMove(t *testing.T) {
	is := is.New(t)
	pos := mustParse(t, "rnbqkbnr/ppp1pppp/8/3pP3/8/8/PPPP1PPP/RNBQKBNR b KQkq - 0 2")
	hash := pos.Hash
	undo := pos.MakeNullMove()
	is.Equal(pos.SideToMove, White)
	is.Equal(pos.EnPassant, NoSquare)
	is.Equal(pos.Hash, pos.ComputeHash())
	pos.UnmakeNullMove(undo)
	is.Equal(pos.Hash, hash)
	is.Equal(pos.SideToMove, Black)
}

func TestInsufficientMaterial(t *testing.T) {
	is := is.New(t)
	is.True(mustParse(t, "8/8/8/4k3/8/8/8/4K3 w - - 0 1").IsInsufficientMaterial())
	is.True(mustParse(t, "8/8/8/4k3/8/8/8/4KN2 w - - 0 1").IsInsufficientMaterial())
	is.True(!mustParse(t, "8/8/8/4k3/8/8/8/4KR2 w - - 0 1").IsInsufficientMaterial())
	is.True(!mustParse(t, "8/8/8/4k3/8/8/4P3/4K3 w - - 0 1").IsInsufficientMaterial())
}

func TestSEE(t *testing.T) {
	tests := []struct {
		name string
		fen  string
		move string
		want int
	}{
		{"free pawn", "4k3/8/8/3p4/4P3/8/8/4K3 w - - 0 1", "e4d5", 100},
		{"pawn trade", "4k3/8/4p3/3p4/4P3/8/8/4K3 w - - 0 1", "e4d5", 0},
		{"rook takes defended pawn", "4k3/8/4p3/3p4/8/8/8/3RK3 w - - 0 1", "d1d5", -400},
		{"xray rook recaptures", "3rk3/8/8/3p4/8/8/3R4/3RK3 w - - 0 1", "d2d5", 100},
		{"quiet move to attacked square", "4k3/8/4p3/8/8/8/8/3QK3 w - - 0 1", "d1d5", -900},
		{"pawn takes defended rook", "4k3/8/4p3/3r4/4P3/8/8/4K3 w - - 0 1", "e4d5", 400},
		{"king recaptures undefended", "8/8/4k3/3p4/8/8/3R4/4K3 w - - 0 1", "d2d5", -400},
		{"king cannot recapture defended square", "8/8/4k3/3p4/8/8/3R4/3QK3 w - - 0 1", "d2d5", 100},
		{"promotion capture", "1r2k3/P7/8/8/8/8/8/4K3 w - - 0 1", "a7b8q", 1300},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			is := is.New(t)
			pos := mustParse(t, tc.fen)
			m, err := ParseMove(tc.move, pos)
			is.NoErr(err)
			is.Equal(pos.SEE(m), tc.want)
		})
	}
}

func TestGivesCheck(t *testing.T) {
	tests := []struct {
		name string
		fen  string
		move string
		want bool
	}{
		{"direct knight", "4k3/8/8/8/4N3/8/8/4K3 w - - 0 1", "e4f6", true},
		{"quiet knight", "4k3/8/8/8/4N3/8/8/4K3 w - - 0 1", "e4c5", false},
		{"direct rook", "4k3/8/8/8/8/8/8/R3K3 w - - 0 1", "a1a8", true},
		{"discovered bishop", "4k3/8/8/8/8/2N5/8/B3K3 w - - 0 1", "c3e2", false},
		{"discovered by knight", "7k/8/8/8/8/2N5/8/B3K3 w - - 0 1", "c3e4", true},
		{"castling rook", "5k2/8/8/8/8/8/8/4K2R w K - 0 1", "e1g1", true},
		{"en passant discovery", "8/8/8/R2pP2k/8/8/8/4K3 w - d6 0 1", "e5d6", true},
		{"promotion", "4k3/1P6/8/8/8/8/8/4K3 w - - 0 1", "b7b8q", true},
		{"underpromotion knight", "8/1P1k4/8/8/8/8/8/4K3 w - - 0 1", "b7b8n", true},
		{"underpromotion rook", "8/1P1k4/8/8/8/8/8/4K3 w - - 0 1", "b7b8r", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			is := is.New(t)
			pos := mustParse(t, tc.fen)
			m, err := ParseMove(tc.move, pos)
			is.NoErr(err)
			is.Equal(pos.GivesCheck(m), tc.want)
		})
	}
}

// GivesCheck must agree with actually playing the move.
func TestGivesCheckMatchesMakeMove(t *testing.T) {
	is := is.New(t)
	for _, fen := range []string{
		StartFEN,
		"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
		"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1",
		"r3k2r/Pppp1ppp/1b3nbN/nP6/BBP1P3/q4N2/Pp1P2PP/R2Q1RK1 w kq - 0 1",
	} {
		pos := mustParse(t, fen)
		for _, m := range pos.GenerateLegalMoves().Slice() {
			want := func() bool {
				undo := pos.MakeMove(m)
				defer pos.UnmakeMove(m, undo)
				return pos.InCheck()
			}()
			is.Equal(pos.GivesCheck(m), want) // GivesCheck agrees with MakeMove
		}
	}
}
