package board

// Zobrist keys come from a fixed seed so hashes are stable across runs.
var (
	zobristPiece      [2][6][64]uint64
	zobristEnPassant  [8]uint64
	zobristCastling   [16]uint64
	zobristSideToMove uint64
)

func init() {
	rng := prng{state: 0x98F107A2BEEF1234}
	for c := White; c <= Black; c++ {
		for pt := Pawn; pt <= King; pt++ {
			for sq := A1; sq <= H8; sq++ {
				zobristPiece[c][pt][sq] = rng.next()
			}
		}
	}
	for file := range zobristEnPassant {
		zobristEnPassant[file] = rng.next()
	}
	for cr := range zobristCastling {
		zobristCastling[cr] = rng.next()
	}
	zobristSideToMove = rng.next()
}

// prng is xorshift64*.
type prng struct {
	state uint64
}

func (p *prng) next() uint64 {
	p.state ^= p.state >> 12
	p.state ^= p.state << 25
	p.state ^= p.state >> 27
	return p.state * 0x2545F4914F6CDD1D
}

// ComputeHash recomputes the Zobrist key of the position from scratch.
func (p *Position) ComputeHash() uint64 {
	var hash uint64
	for c := White; c <= Black; c++ {
		for pt := Pawn; pt <= King; pt++ {
			for bb := p.Pieces[c][pt]; bb != 0; {
				hash ^= zobristPiece[c][pt][bb.PopLSB()]
			}
		}
	}
	if p.SideToMove == Black {
		hash ^= zobristSideToMove
	}
	hash ^= zobristCastling[p.CastlingRights]
	if p.EnPassant != NoSquare {
		hash ^= zobristEnPassant[p.EnPassant.File()]
	}
	return hash
}

// ComputePawnKey recomputes the key of the pawn structure alone.
func (p *Position) ComputePawnKey() uint64 {
	var key uint64
	for c := White; c <= Black; c++ {
		for bb := p.Pieces[c][Pawn]; bb != 0; {
			key ^= zobristPiece[c][Pawn][bb.PopLSB()]
		}
	}
	return key
}
