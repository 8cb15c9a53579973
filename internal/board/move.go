package board

import (
	"errors"
	"fmt"
)

// ErrIllegalMove is returned when a move string does not name a legal move.
var ErrIllegalMove = errors.New("illegal move")

// Move packs a move into 16 bits:
//
//	bits 0-5   from square
//	bits 6-11  to square
//	bits 12-13 promotion piece (knight, bishop, rook, queen)
//	bits 14-15 flag
type Move uint16

const (
	FlagNormal    uint16 = 0 << 14
	FlagPromotion uint16 = 1 << 14
	FlagEnPassant uint16 = 2 << 14
	FlagCastling  uint16 = 3 << 14
)

// NoMove is the zero move. a1a1 can never be legal so it doubles as "none".
const NoMove Move = 0

func NewMove(from, to Square) Move {
	return Move(from) | Move(to)<<6
}

func NewPromotion(from, to Square, promo PieceType) Move {
	return Move(from) | Move(to)<<6 | Move(promo-Knight)<<12 | Move(FlagPromotion)
}

func NewEnPassant(from, to Square) Move {
	return Move(from) | Move(to)<<6 | Move(FlagEnPassant)
}

// NewCastling encodes castling as the king's two-square step.
func NewCastling(from, to Square) Move {
	return Move(from) | Move(to)<<6 | Move(FlagCastling)
}

func (m Move) From() Square {
	return Square(m & 0x3F)
}

func (m Move) To() Square {
	return Square((m >> 6) & 0x3F)
}

func (m Move) Flag() uint16 {
	return uint16(m) & 0xC000
}

// Promotion is only meaningful when IsPromotion reports true.
func (m Move) Promotion() PieceType {
	return PieceType((m>>12)&3) + Knight
}

func (m Move) IsPromotion() bool {
	return m.Flag() == FlagPromotion
}

func (m Move) IsCastling() bool {
	return m.Flag() == FlagCastling
}

func (m Move) IsEnPassant() bool {
	return m.Flag() == FlagEnPassant
}

// IsCapture reports whether m takes a piece in pos.
func (m Move) IsCapture(pos *Position) bool {
	return m.IsEnPassant() || pos.Board[m.To()] != NoPiece
}

// IsQuiet reports whether m is neither a capture nor a promotion.
func (m Move) IsQuiet(pos *Position) bool {
	return !m.IsCapture(pos) && !m.IsPromotion()
}

// String returns the move in UCI long algebraic form.
func (m Move) String() string {
	if m == NoMove {
		return "0000"
	}
	s := m.From().String() + m.To().String()
	if m.IsPromotion() {
		s += string("nbrq"[m.Promotion()-Knight])
	}
	return s
}

// ParseMove resolves a UCI move string against the legal moves of pos.
func ParseMove(s string, pos *Position) (Move, error) {
	if len(s) != 4 && len(s) != 5 {
		return NoMove, fmt.Errorf("parse move %q: %w", s, ErrIllegalMove)
	}
	moves := pos.GenerateLegalMoves()
	for _, m := range moves.Slice() {
		if m.String() == s {
			return m, nil
		}
	}
	return NoMove, fmt.Errorf("parse move %q: %w", s, ErrIllegalMove)
}

// MoveList is a fixed-capacity move buffer that avoids heap churn in search.
type MoveList struct {
	moves [256]Move
	count int
}

func NewMoveList() *MoveList {
	return &MoveList{}
}

func (ml *MoveList) Add(m Move) {
	ml.moves[ml.count] = m
	ml.count++
}

func (ml *MoveList) Len() int {
	return ml.count
}

func (ml *MoveList) Get(i int) Move {
	return ml.moves[i]
}

func (ml *MoveList) Set(i int, m Move) {
	ml.moves[i] = m
}

func (ml *MoveList) Swap(i, j int) {
	ml.moves[i], ml.moves[j] = ml.moves[j], ml.moves[i]
}

func (ml *MoveList) Clear() {
	ml.count = 0
}

func (ml *MoveList) Contains(m Move) bool {
	for i := 0; i < ml.count; i++ {
		if ml.moves[i] == m {
			return true
		}
	}
	return false
}

// Slice aliases the backing array; it is invalidated by the next Add or Clear.
func (ml *MoveList) Slice() []Move {
	return ml.moves[:ml.count]
}

// UndoInfo carries the irreversible state needed by UnmakeMove.
type UndoInfo struct {
	Captured       Piece
	CastlingRights CastlingRights
	EnPassant      Square
	HalfMoveClock  int
	Hash           uint64
	PawnKey        uint64
	Checkers       Bitboard
}

// NullMoveUndo carries the state needed by UnmakeNullMove.
type NullMoveUndo struct {
	EnPassant     Square
	HalfMoveClock int
	Hash          uint64
	Checkers      Bitboard
}
