package board

import (
	"math/bits"
	"strings"
)

// Bitboard is a set of squares, bit 0 = a1 through bit 63 = h8.
type Bitboard uint64

const (
	FileA Bitboard = 0x0101010101010101
	FileB Bitboard = FileA << 1
	FileG Bitboard = FileA << 6
	FileH Bitboard = FileA << 7

	Rank1 Bitboard = 0x00000000000000FF
	Rank2 Bitboard = Rank1 << 8
	Rank3 Bitboard = Rank1 << 16
	Rank6 Bitboard = Rank1 << 40
	Rank7 Bitboard = Rank1 << 48
	Rank8 Bitboard = Rank1 << 56

	Empty Bitboard = 0

	notFileA  Bitboard = ^FileA
	notFileH  Bitboard = ^FileH
	notFileAB Bitboard = ^(FileA | FileB)
	notFileGH Bitboard = ^(FileG | FileH)
)

// FileMask and RankMask index the file and rank masks by number.
var (
	FileMask = [8]Bitboard{FileA, FileA << 1, FileA << 2, FileA << 3, FileA << 4, FileA << 5, FileA << 6, FileA << 7}
	RankMask = [8]Bitboard{Rank1, Rank1 << 8, Rank1 << 16, Rank1 << 24, Rank1 << 32, Rank1 << 40, Rank1 << 48, Rank1 << 56}
)

// SquareBB returns a bitboard with only sq set.
func SquareBB(sq Square) Bitboard {
	return 1 << sq
}

func (b Bitboard) Has(sq Square) bool {
	return b&(1<<sq) != 0
}

func (b Bitboard) PopCount() int {
	return bits.OnesCount64(uint64(b))
}

// LSB returns the lowest set square, or NoSquare for an empty set.
func (b Bitboard) LSB() Square {
	if b == 0 {
		return NoSquare
	}
	return Square(bits.TrailingZeros64(uint64(b)))
}

// PopLSB removes and returns the lowest set square.
func (b *Bitboard) PopLSB() Square {
	sq := b.LSB()
	*b &= *b - 1
	return sq
}

// Several reports whether more than one square is set.
func (b Bitboard) Several() bool {
	return b&(b-1) != 0
}

func (b Bitboard) North() Bitboard     { return b << 8 }
func (b Bitboard) South() Bitboard     { return b >> 8 }
func (b Bitboard) East() Bitboard      { return (b << 1) & notFileA }
func (b Bitboard) West() Bitboard      { return (b >> 1) & notFileH }
func (b Bitboard) NorthEast() Bitboard { return (b << 9) & notFileA }
func (b Bitboard) NorthWest() Bitboard { return (b << 7) & notFileH }
func (b Bitboard) SouthEast() Bitboard { return (b >> 7) & notFileA }
func (b Bitboard) SouthWest() Bitboard { return (b >> 9) & notFileH }

// NorthFill smears every set bit towards the eighth rank.
func (b Bitboard) NorthFill() Bitboard {
	b |= b << 8
	b |= b << 16
	b |= b << 32
	return b
}

// SouthFill smears every set bit towards the first rank.
func (b Bitboard) SouthFill() Bitboard {
	b |= b >> 8
	b |= b >> 16
	b |= b >> 32
	return b
}

// String draws the set as an 8x8 grid, rank 8 first.
func (b Bitboard) String() string {
	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		sb.WriteByte(byte('1' + rank))
		sb.WriteByte(' ')
		for file := 0; file < 8; file++ {
			if b.Has(NewSquare(file, rank)) {
				sb.WriteString("1 ")
			} else {
				sb.WriteString(". ")
			}
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("  a b c d e f g h\n")
	return sb.String()
}
