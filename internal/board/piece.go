package board

// Color is the side a piece belongs to.
type Color uint8

const (
	White Color = iota
	Black
	NoColor Color = 2
)

// Other returns the opposing color.
func (c Color) Other() Color {
	return c ^ 1
}

func (c Color) String() string {
	switch c {
	case White:
		return "white"
	case Black:
		return "black"
	default:
		return "none"
	}
}

// PieceType is a colorless piece kind.
type PieceType uint8

const (
	Pawn PieceType = iota
	Knight
	Bishop
	Rook
	Queen
	King
	NoPieceType PieceType = 6
)

func (pt PieceType) String() string {
	if pt >= NoPieceType {
		return "none"
	}
	return [...]string{"pawn", "knight", "bishop", "rook", "queen", "king"}[pt]
}

// PieceValue is the exchange value of each piece type in centipawns.
// The king is given a huge value so that trading it is never profitable.
var PieceValue = [7]int{100, 320, 330, 500, 900, 20000, 0}

// Piece is a PieceType tagged with a Color, encoded as type + color*6.
type Piece uint8

const (
	WhitePawn Piece = iota
	WhiteKnight
	WhiteBishop
	WhiteRook
	WhiteQueen
	WhiteKing
	BlackPawn
	BlackKnight
	BlackBishop
	BlackRook
	BlackQueen
	BlackKing
	NoPiece
)

const pieceChars = "PNBRQKpnbrqk"

// NewPiece combines a type and a color.
func NewPiece(pt PieceType, c Color) Piece {
	if pt >= NoPieceType || c >= NoColor {
		return NoPiece
	}
	return Piece(pt) + Piece(c)*6
}

// Type returns the piece kind, or NoPieceType for NoPiece.
func (p Piece) Type() PieceType {
	if p >= NoPiece {
		return NoPieceType
	}
	return PieceType(p % 6)
}

// Color returns the owner of the piece, or NoColor for NoPiece.
func (p Piece) Color() Color {
	if p >= NoPiece {
		return NoColor
	}
	return Color(p / 6)
}

// Value returns the exchange value of the piece.
func (p Piece) Value() int {
	return PieceValue[p.Type()]
}

// String returns the FEN letter for the piece.
func (p Piece) String() string {
	if p >= NoPiece {
		return "."
	}
	return string(pieceChars[p])
}

// PieceFromChar parses a FEN letter. Unknown letters yield NoPiece.
func PieceFromChar(c byte) Piece {
	for i := 0; i < len(pieceChars); i++ {
		if pieceChars[i] == c {
			return Piece(i)
		}
	}
	return NoPiece
}
