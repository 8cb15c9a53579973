package board

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// ErrInvalidFEN wraps every FEN parse failure.
var ErrInvalidFEN = errors.New("invalid FEN")

// ParseFEN parses a FEN record. The halfmove and fullmove fields are optional.
func ParseFEN(fen string) (*Position, error) {
	parts := strings.Fields(fen)
	if len(parts) < 4 {
		return nil, fmt.Errorf("%w: need at least 4 fields, got %d", ErrInvalidFEN, len(parts))
	}

	pos := &Position{EnPassant: NoSquare, FullMoveNumber: 1}
	for sq := range pos.Board {
		pos.Board[sq] = NoPiece
	}
	pos.KingSquare = [2]Square{NoSquare, NoSquare}

	if err := parsePlacement(pos, parts[0]); err != nil {
		return nil, err
	}

	switch parts[1] {
	case "w":
		pos.SideToMove = White
	case "b":
		pos.SideToMove = Black
	default:
		return nil, fmt.Errorf("%w: side to move %q", ErrInvalidFEN, parts[1])
	}

	if parts[2] != "-" {
		for _, c := range parts[2] {
			i := strings.IndexRune("KQkq", c)
			if i < 0 {
				return nil, fmt.Errorf("%w: castling %q", ErrInvalidFEN, parts[2])
			}
			pos.CastlingRights |= 1 << i
		}
	}

	if parts[3] != "-" {
		sq, err := ParseSquare(parts[3])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFEN, err)
		}
		pos.EnPassant = sq
	}

	if len(parts) > 4 {
		n, err := strconv.Atoi(parts[4])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: halfmove clock %q", ErrInvalidFEN, parts[4])
		}
		pos.HalfMoveClock = n
	}
	if len(parts) > 5 {
		n, err := strconv.Atoi(parts[5])
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: fullmove number %q", ErrInvalidFEN, parts[5])
		}
		pos.FullMoveNumber = n
	}

	if pos.Pieces[White][King].PopCount() != 1 || pos.Pieces[Black][King].PopCount() != 1 {
		return nil, fmt.Errorf("%w: each side needs exactly one king", ErrInvalidFEN)
	}
	if pos.IsSquareAttacked(pos.KingSquare[pos.SideToMove.Other()], pos.SideToMove) {
		return nil, fmt.Errorf("%w: side not to move is in check", ErrInvalidFEN)
	}

	pos.Hash = pos.ComputeHash()
	pos.PawnKey = pos.ComputePawnKey()
	pos.updateCheckers()
	return pos, nil
}

func parsePlacement(pos *Position, placement string) error {
	ranks := strings.Split(placement, "/")
	if len(ranks) != 8 {
		return fmt.Errorf("%w: need 8 ranks, got %d", ErrInvalidFEN, len(ranks))
	}
	for i, row := range ranks {
		rank := 7 - i
		file := 0
		for j := 0; j < len(row); j++ {
			c := row[j]
			if c >= '1' && c <= '8' {
				file += int(c - '0')
				continue
			}
			pc := PieceFromChar(c)
			if pc == NoPiece || file > 7 {
				return fmt.Errorf("%w: bad rank %q", ErrInvalidFEN, row)
			}
			if pc.Type() == Pawn && (rank == 0 || rank == 7) {
				return fmt.Errorf("%w: pawn on back rank", ErrInvalidFEN)
			}
			pos.putPiece(pc, NewSquare(file, rank))
			file++
		}
		if file != 8 {
			return fmt.Errorf("%w: rank %q has %d squares", ErrInvalidFEN, row, file)
		}
	}
	return nil
}

// ToFEN renders the position as a FEN record.
func (p *Position) ToFEN() string {
	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		empty := 0
		for file := 0; file < 8; file++ {
			pc := p.Board[NewSquare(file, rank)]
			if pc == NoPiece {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteString(strconv.Itoa(empty))
				empty = 0
			}
			sb.WriteString(pc.String())
		}
		if empty > 0 {
			sb.WriteString(strconv.Itoa(empty))
		}
		if rank > 0 {
			sb.WriteByte('/')
		}
	}
	side := "w"
	if p.SideToMove == Black {
		side = "b"
	}
	fmt.Fprintf(&sb, " %s %s %s %d %d", side, p.CastlingRights, p.EnPassant, p.HalfMoveClock, p.FullMoveNumber)
	return sb.String()
}
