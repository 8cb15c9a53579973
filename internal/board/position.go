package board

import (
	"fmt"
	"strings"
)

// CastlingRights is a bit set of the remaining castling options.
type CastlingRights uint8

const (
	WhiteKingSideCastle CastlingRights = 1 << iota
	WhiteQueenSideCastle
	BlackKingSideCastle
	BlackQueenSideCastle

	NoCastling  CastlingRights = 0
	AllCastling                = WhiteKingSideCastle | WhiteQueenSideCastle | BlackKingSideCastle | BlackQueenSideCastle
)

// String returns the FEN castling field.
func (cr CastlingRights) String() string {
	if cr == NoCastling {
		return "-"
	}
	var sb strings.Builder
	for i, c := range "KQkq" {
		if cr&(1<<i) != 0 {
			sb.WriteRune(c)
		}
	}
	return sb.String()
}

// castleMask[sq] is ANDed into the rights whenever a move touches sq.
var castleMask [64]CastlingRights

func init() {
	for sq := range castleMask {
		castleMask[sq] = AllCastling
	}
	castleMask[E1] &^= WhiteKingSideCastle | WhiteQueenSideCastle
	castleMask[H1] &^= WhiteKingSideCastle
	castleMask[A1] &^= WhiteQueenSideCastle
	castleMask[E8] &^= BlackKingSideCastle | BlackQueenSideCastle
	castleMask[H8] &^= BlackKingSideCastle
	castleMask[A8] &^= BlackQueenSideCastle
}

// Position is a bitboard chess position with incremental Zobrist hashing.
// Board mirrors the bitboards as a mailbox so piece lookups stay O(1).
//
// keys holds the hash of every position that preceded the current one,
// across both game moves and moves made during search, so that repetitions
// can be detected without a separate history structure.
type Position struct {
	Pieces      [2][6]Bitboard
	Occupied    [2]Bitboard
	AllOccupied Bitboard
	Board       [64]Piece

	SideToMove     Color
	CastlingRights CastlingRights
	EnPassant      Square
	HalfMoveClock  int
	FullMoveNumber int

	Hash    uint64
	PawnKey uint64

	KingSquare [2]Square
	// Checkers holds the pieces giving check to the side to move.
	Checkers Bitboard

	keys []uint64
}

// NewPosition returns the standard starting position.
func NewPosition() *Position {
	pos, err := ParseFEN(StartFEN)
	if err != nil {
		panic(err)
	}
	return pos
}

// Copy returns an independent deep copy, including repetition history.
func (p *Position) Copy() *Position {
	cp := *p
	cp.keys = append(make([]uint64, 0, len(p.keys)+256), p.keys...)
	return &cp
}

func (p *Position) PieceAt(sq Square) Piece {
	return p.Board[sq]
}

func (p *Position) IsEmpty(sq Square) bool {
	return p.Board[sq] == NoPiece
}

func (p *Position) putPiece(pc Piece, sq Square) {
	c, pt := pc.Color(), pc.Type()
	bb := SquareBB(sq)
	p.Pieces[c][pt] |= bb
	p.Occupied[c] |= bb
	p.AllOccupied |= bb
	p.Board[sq] = pc
	p.Hash ^= zobristPiece[c][pt][sq]
	switch pt {
	case Pawn:
		p.PawnKey ^= zobristPiece[c][Pawn][sq]
	case King:
		p.KingSquare[c] = sq
	}
}

func (p *Position) removePiece(sq Square) Piece {
	pc := p.Board[sq]
	c, pt := pc.Color(), pc.Type()
	bb := SquareBB(sq)
	p.Pieces[c][pt] &^= bb
	p.Occupied[c] &^= bb
	p.AllOccupied &^= bb
	p.Board[sq] = NoPiece
	p.Hash ^= zobristPiece[c][pt][sq]
	if pt == Pawn {
		p.PawnKey ^= zobristPiece[c][Pawn][sq]
	}
	return pc
}

// InCheck reports whether the side to move is in check.
func (p *Position) InCheck() bool {
	return p.Checkers != 0
}

// HasNonPawnMaterial reports whether the side to move has a knight, bishop, rook or queen.
func (p *Position) HasNonPawnMaterial() bool {
	pc := &p.Pieces[p.SideToMove]
	return pc[Knight]|pc[Bishop]|pc[Rook]|pc[Queen] != 0
}

// pinned returns the pieces of the side to move that shield their king
// from an enemy slider.
func (p *Position) pinned() Bitboard {
	us := p.SideToMove
	them := us.Other()
	ksq := p.KingSquare[us]
	snipers := RookAttacks(ksq, 0)&(p.Pieces[them][Rook]|p.Pieces[them][Queen]) |
		BishopAttacks(ksq, 0)&(p.Pieces[them][Bishop]|p.Pieces[them][Queen])

	var pinned Bitboard
	for snipers != 0 {
		blockers := Between(snipers.PopLSB(), ksq) & p.AllOccupied
		if blockers != 0 && !blockers.Several() && blockers&p.Occupied[us] != 0 {
			pinned |= blockers
		}
	}
	return pinned
}

// MakeMove plays m, which must be legal, and returns the undo record.
func (p *Position) MakeMove(m Move) UndoInfo {
	undo := UndoInfo{
		Captured:       NoPiece,
		CastlingRights: p.CastlingRights,
		EnPassant:      p.EnPassant,
		HalfMoveClock:  p.HalfMoveClock,
		Hash:           p.Hash,
		PawnKey:        p.PawnKey,
		Checkers:       p.Checkers,
	}
	p.keys = append(p.keys, p.Hash)

	us := p.SideToMove
	from, to := m.From(), m.To()
	moving := p.Board[from]

	p.Hash ^= zobristCastling[p.CastlingRights]
	if p.EnPassant != NoSquare {
		p.Hash ^= zobristEnPassant[p.EnPassant.File()]
	}
	p.EnPassant = NoSquare
	p.HalfMoveClock++

	switch {
	case m.IsEnPassant():
		undo.Captured = p.removePiece(epVictim(to, us))
	case p.Board[to] != NoPiece:
		undo.Captured = p.removePiece(to)
	}
	if undo.Captured != NoPiece || moving.Type() == Pawn {
		p.HalfMoveClock = 0
	}

	p.removePiece(from)
	if m.IsPromotion() {
		p.putPiece(NewPiece(m.Promotion(), us), to)
	} else {
		p.putPiece(moving, to)
	}

	if m.IsCastling() {
		rookFrom, rookTo := castleRookSquares(to)
		p.putPiece(p.removePiece(rookFrom), rookTo)
	}

	if moving.Type() == Pawn && (int(to)-int(from) == 16 || int(from)-int(to) == 16) {
		p.EnPassant = Square((int(from) + int(to)) / 2)
		p.Hash ^= zobristEnPassant[p.EnPassant.File()]
	}

	p.CastlingRights &= castleMask[from] & castleMask[to]
	p.Hash ^= zobristCastling[p.CastlingRights]

	if us == Black {
		p.FullMoveNumber++
	}
	p.SideToMove = us.Other()
	p.Hash ^= zobristSideToMove
	p.updateCheckers()
	return undo
}

// UnmakeMove reverts m using the record returned by MakeMove.
func (p *Position) UnmakeMove(m Move, undo UndoInfo) {
	p.SideToMove = p.SideToMove.Other()
	us := p.SideToMove
	from, to := m.From(), m.To()

	if m.IsCastling() {
		rookFrom, rookTo := castleRookSquares(to)
		p.putPiece(p.removePiece(rookTo), rookFrom)
	}

	moved := p.removePiece(to)
	if m.IsPromotion() {
		moved = NewPiece(Pawn, us)
	}
	p.putPiece(moved, from)

	if undo.Captured != NoPiece {
		if m.IsEnPassant() {
			p.putPiece(undo.Captured, epVictim(to, us))
		} else {
			p.putPiece(undo.Captured, to)
		}
	}

	if us == Black {
		p.FullMoveNumber--
	}
	p.CastlingRights = undo.CastlingRights
	p.EnPassant = undo.EnPassant
	p.HalfMoveClock = undo.HalfMoveClock
	p.Hash = undo.Hash
	p.PawnKey = undo.PawnKey
	p.Checkers = undo.Checkers
	p.keys = p.keys[:len(p.keys)-1]
}

// MakeNullMove passes the turn. The halfmove clock is reset so repetition
// scans never look across a null move.
func (p *Position) MakeNullMove() NullMoveUndo {
	undo := NullMoveUndo{EnPassant: p.EnPassant, HalfMoveClock: p.HalfMoveClock, Hash: p.Hash, Checkers: p.Checkers}
	p.keys = append(p.keys, p.Hash)
	if p.EnPassant != NoSquare {
		p.Hash ^= zobristEnPassant[p.EnPassant.File()]
		p.EnPassant = NoSquare
	}
	p.HalfMoveClock = 0
	p.SideToMove = p.SideToMove.Other()
	p.Hash ^= zobristSideToMove
	p.updateCheckers()
	return undo
}

func (p *Position) UnmakeNullMove(undo NullMoveUndo) {
	p.SideToMove = p.SideToMove.Other()
	p.EnPassant = undo.EnPassant
	p.HalfMoveClock = undo.HalfMoveClock
	p.Hash = undo.Hash
	p.Checkers = undo.Checkers
	p.keys = p.keys[:len(p.keys)-1]
}

// GivesCheck reports whether playing the legal move m checks the opponent,
// directly or by discovery, without making the move.
func (p *Position) GivesCheck(m Move) bool {
	us := p.SideToMove
	them := us.Other()
	from, to := m.From(), m.To()
	ksq := p.KingSquare[them]
	pc := &p.Pieces[us]

	pt := p.Board[from].Type()
	if m.IsPromotion() {
		pt = m.Promotion()
	}

	occ := p.AllOccupied&^SquareBB(from) | SquareBB(to)
	pawns, knights := pc[Pawn]&^SquareBB(from), pc[Knight]&^SquareBB(from)
	diag := (pc[Bishop] | pc[Queen]) &^ SquareBB(from)
	orth := (pc[Rook] | pc[Queen]) &^ SquareBB(from)

	switch pt {
	case Pawn:
		pawns |= SquareBB(to)
	case Knight:
		knights |= SquareBB(to)
	case Bishop:
		diag |= SquareBB(to)
	case Rook:
		orth |= SquareBB(to)
	case Queen:
		diag |= SquareBB(to)
		orth |= SquareBB(to)
	}

	switch {
	case m.IsEnPassant():
		occ &^= SquareBB(epVictim(to, us))
	case m.IsCastling():
		rookFrom, rookTo := castleRookSquares(to)
		occ = occ&^SquareBB(rookFrom) | SquareBB(rookTo)
		orth = orth&^SquareBB(rookFrom) | SquareBB(rookTo)
	}

	return pawnAttacks[them][ksq]&pawns != 0 ||
		knightAttacks[ksq]&knights != 0 ||
		BishopAttacks(ksq, occ)&diag != 0 ||
		RookAttacks(ksq, occ)&orth != 0
}

// IsRepetition reports whether the current position occurred before.
// A single repetition inside the last ply half-moves (the search path)
// is enough; older positions from the game must have occurred twice.
func (p *Position) IsRepetition(ply int) bool {
	n := len(p.keys)
	limit := min(p.HalfMoveClock, n)
	seen := 0
	for i := 4; i <= limit; i += 2 {
		if p.keys[n-i] != p.Hash {
			continue
		}
		if i < ply {
			return true
		}
		seen++
		if seen >= 2 {
			return true
		}
	}
	return false
}

// IsFiftyMoveDraw reports whether the fifty-move rule applies.
func (p *Position) IsFiftyMoveDraw() bool {
	return p.HalfMoveClock >= 100
}

// IsInsufficientMaterial reports positions where neither side can mate:
// bare kings, or a single minor piece against a bare king.
func (p *Position) IsInsufficientMaterial() bool {
	heavy := p.Pieces[White][Pawn] | p.Pieces[Black][Pawn] |
		p.Pieces[White][Rook] | p.Pieces[Black][Rook] |
		p.Pieces[White][Queen] | p.Pieces[Black][Queen]
	if heavy != 0 {
		return false
	}
	minors := p.Pieces[White][Knight] | p.Pieces[Black][Knight] |
		p.Pieces[White][Bishop] | p.Pieces[Black][Bishop]
	return !minors.Several()
}

// IsCheckmate reports whether the side to move is checkmated.
func (p *Position) IsCheckmate() bool {
	return p.InCheck() && !p.HasLegalMoves()
}

// IsStalemate reports whether the side to move has no legal move and is not in check.
func (p *Position) IsStalemate() bool {
	return !p.InCheck() && !p.HasLegalMoves()
}

func epVictim(to Square, us Color) Square {
	if us == White {
		return to - 8
	}
	return to + 8
}

func castleRookSquares(kingTo Square) (from, to Square) {
	switch kingTo {
	case G1:
		return H1, F1
	case C1:
		return A1, D1
	case G8:
		return H8, F8
	default:
		return A8, D8
	}
}

// String renders the board for debugging and the UCI "d" command.
func (p *Position) String() string {
	var sb strings.Builder
	sb.WriteByte('\n')
	for rank := 7; rank >= 0; rank-- {
		fmt.Fprintf(&sb, "%d  ", rank+1)
		for file := 0; file < 8; file++ {
			sb.WriteString(p.Board[NewSquare(file, rank)].String())
			sb.WriteByte(' ')
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("\n   a b c d e f g h\n\n")
	fmt.Fprintf(&sb, "Fen: %s\n", p.ToFEN())
	fmt.Fprintf(&sb, "Key: %016X\n", p.Hash)
	if p.Checkers != 0 {
		sb.WriteString("Checkers:")
		for bb := p.Checkers; bb != 0; {
			sb.WriteString(" " + bb.PopLSB().String())
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
