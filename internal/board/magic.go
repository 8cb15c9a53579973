package board

// Slider attacks use fancy magic bitboards: the relevant blockers of a square
// are multiplied by a magic constant and the top bits index a shared table.

type magic struct {
	mask   Bitboard
	number uint64
	shift  uint8
	offset uint32
}

var (
	bishopMagics [64]magic
	rookMagics   [64]magic

	bishopTable [5248]Bitboard
	rookTable   [102400]Bitboard
)

var bishopMagicNumbers = [64]uint64{
	0x0002020202020200, 0x0002020202020000, 0x0004010202000000, 0x0004040080000000,
	0x0001104000000000, 0x0000821040000000, 0x0000410410400000, 0x0000104104104000,
	0x0000040404040400, 0x0000020202020200, 0x0000040102020000, 0x0000040400800000,
	0x0000011040000000, 0x0000008210400000, 0x0000004104104000, 0x0000002082082000,
	0x0004000808080800, 0x0002000404040400, 0x0001000202020200, 0x0000800802004000,
	0x0000800400A00000, 0x0000200100884000, 0x0000400082082000, 0x0000200041041000,
	0x0002080010101000, 0x0001040008080800, 0x0000208004010400, 0x0000404004010200,
	0x0000840000802000, 0x0000404002011000, 0x0000808001041000, 0x0000404000820800,
	0x0001041000202000, 0x0000820800101000, 0x0000104400080800, 0x0000020080080080,
	0x0000404040040100, 0x0000808100020100, 0x0001010100020800, 0x0000808080010400,
	0x0000820820004000, 0x0000410410002000, 0x0000082088001000, 0x0000002011000800,
	0x0000080100400400, 0x0001010101000200, 0x0002020202000400, 0x0001010101000200,
	0x0000410410400000, 0x0000208208200000, 0x0000002084100000, 0x0000000020880000,
	0x0000001002020000, 0x0000040408020000, 0x0004040404040000, 0x0002020202020000,
	0x0000104104104000, 0x0000002082082000, 0x0000000020841000, 0x0000000000208800,
	0x0000000010020200, 0x0000000404080200, 0x0000040404040400, 0x0002020202020200,
}

var rookMagicNumbers = [64]uint64{
	0x0080001020400080, 0x0040001000200040, 0x0080081000200080, 0x0080040800100080,
	0x0080020400080080, 0x0080010200040080, 0x0080008001000200, 0x0080002040800100,
	0x0000800020400080, 0x0000400020005000, 0x0000801000200080, 0x0000800800100080,
	0x0000800400080080, 0x0000800200040080, 0x0000800100020080, 0x0000800040800100,
	0x0000208000400080, 0x0000404000201000, 0x0000808010002000, 0x0000808008001000,
	0x0000808004000800, 0x0000808002000400, 0x0000010100020004, 0x0000020000408104,
	0x0000208080004000, 0x0000200040005000, 0x0000100080200080, 0x0000080080100080,
	0x0000040080080080, 0x0000020080040080, 0x0000010080800200, 0x0000800080004100,
	0x0000204000800080, 0x0000200040401000, 0x0000100080802000, 0x0000080080801000,
	0x0000040080800800, 0x0000020080800400, 0x0000020001010004, 0x0000800040800100,
	0x0000204000808000, 0x0000200040008080, 0x0000100020008080, 0x0000080010008080,
	0x0000040008008080, 0x0000020004008080, 0x0000010002008080, 0x0000004081020004,
	0x0000204000800080, 0x0000200040008080, 0x0000100020008080, 0x0000080010008080,
	0x0000040008008080, 0x0000020004008080, 0x0000800100020080, 0x0000800041000080,
	0x00FFFCDDFCED714A, 0x007FFCDDFCED714A, 0x003FFFCDFFD88096, 0x0000040810002101,
	0x0001000204080011, 0x0001000204000801, 0x0001000082000401, 0x0001FFFAABFAD1A2,
}

var (
	bishopDirs = [4][2]int{{1, 1}, {-1, 1}, {1, -1}, {-1, -1}}
	rookDirs   = [4][2]int{{0, 1}, {0, -1}, {1, 0}, {-1, 0}}
)

func initMagics() {
	initSlider(&bishopMagics, bishopTable[:], &bishopMagicNumbers, bishopDirs)
	initSlider(&rookMagics, rookTable[:], &rookMagicNumbers, rookDirs)
}

// initSlider fills the attack table for one slider type. A listed magic that
// maps two blocker sets with different attacks to one slot is replaced by a
// freshly searched number, so the table is always exact.
func initSlider(magics *[64]magic, table []Bitboard, numbers *[64]uint64, dirs [4][2]int) {
	rng := prng{state: 0x6D2B79F5C1A3E4B7}
	var offset uint32
	for sq := A1; sq <= H8; sq++ {
		mask := relevantMask(sq, dirs)
		n := mask.PopCount()
		size := 1 << n

		occs := make([]Bitboard, size)
		attacks := make([]Bitboard, size)
		for i := range occs {
			occs[i] = occupancyFromIndex(i, mask)
			attacks[i] = slidingAttacks(sq, occs[i], dirs)
		}

		m := magic{mask: mask, number: numbers[sq], shift: uint8(64 - n), offset: offset}
		slots := table[offset : offset+uint32(size)]
		for !fillSlots(m, slots, occs, attacks) {
			m.number = rng.next() & rng.next() & rng.next()
		}
		magics[sq] = m
		offset += uint32(size)
	}
}

func fillSlots(m magic, slots []Bitboard, occs, attacks []Bitboard) bool {
	clear(slots)
	used := make([]bool, len(slots))
	for i, occ := range occs {
		idx := (uint64(occ) * m.number) >> m.shift
		switch {
		case !used[idx]:
			used[idx] = true
			slots[idx] = attacks[i]
		case slots[idx] != attacks[i]:
			return false
		}
	}
	return true
}

// relevantMask lists the blocker squares that can change sq's attacks:
// each ray without its final edge square.
func relevantMask(sq Square, dirs [4][2]int) Bitboard {
	var mask Bitboard
	for _, d := range dirs {
		f, r := sq.File()+d[0], sq.Rank()+d[1]
		for onBoard(f+d[0], r+d[1]) {
			mask |= SquareBB(NewSquare(f, r))
			f, r = f+d[0], r+d[1]
		}
	}
	return mask
}

func occupancyFromIndex(index int, mask Bitboard) Bitboard {
	var occ Bitboard
	for i := 0; mask != 0; i++ {
		sq := mask.PopLSB()
		if index&(1<<i) != 0 {
			occ |= SquareBB(sq)
		}
	}
	return occ
}

// slidingAttacks walks each ray until it leaves the board or hits a blocker.
func slidingAttacks(sq Square, occupied Bitboard, dirs [4][2]int) Bitboard {
	var attacks Bitboard
	for _, d := range dirs {
		for f, r := sq.File()+d[0], sq.Rank()+d[1]; onBoard(f, r); f, r = f+d[0], r+d[1] {
			s := NewSquare(f, r)
			attacks |= SquareBB(s)
			if occupied.Has(s) {
				break
			}
		}
	}
	return attacks
}

func onBoard(file, rank int) bool {
	return file >= 0 && file < 8 && rank >= 0 && rank < 8
}

// BishopAttacks returns the squares a bishop on sq attacks given occupied.
func BishopAttacks(sq Square, occupied Bitboard) Bitboard {
	m := &bishopMagics[sq]
	return bishopTable[m.offset+uint32((uint64(occupied&m.mask)*m.number)>>m.shift)]
}

// RookAttacks returns the squares a rook on sq attacks given occupied.
func RookAttacks(sq Square, occupied Bitboard) Bitboard {
	m := &rookMagics[sq]
	return rookTable[m.offset+uint32((uint64(occupied&m.mask)*m.number)>>m.shift)]
}

func QueenAttacks(sq Square, occupied Bitboard) Bitboard {
	return BishopAttacks(sq, occupied) | RookAttacks(sq, occupied)
}
