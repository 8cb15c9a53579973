package engine

import (
	"github.com/hailam/kestrel/internal/board"
)

const (
	correctionSize  = 1 << 16
	correctionMask  = correctionSize - 1
	correctionGrain = 256
	correctionLimit = 32 * correctionGrain
)

// CorrectionHistory learns how far the static evaluation tends to be from
// search results for similar positions and nudges later evaluations by the
// running average. Entries are indexed by side to move and pawn structure, so
// positions sharing a pawn skeleton share what was learned about them.
type CorrectionHistory struct {
	table [2][correctionSize]int16
}

func NewCorrectionHistory() *CorrectionHistory {
	return &CorrectionHistory{}
}

func correctionIndex(key uint64) uint64 {
	return (key ^ key>>18) & correctionMask
}

// Get returns the correction to add to the raw static evaluation.
func (ch *CorrectionHistory) Get(pos *board.Position) int {
	return int(ch.table[pos.SideToMove][correctionIndex(pos.PawnKey)]) / correctionGrain
}

// Update blends the error between searchScore and staticEval into the
// entry, weighting deeper searches more.
func (ch *CorrectionHistory) Update(pos *board.Position, searchScore, staticEval, depth int) {
	if depth < 1 {
		return
	}
	entry := &ch.table[pos.SideToMove][correctionIndex(pos.PawnKey)]
	weight := min(depth+1, 16)
	target := (searchScore - staticEval) * correctionGrain
	v := (int(*entry)*(256-weight) + target*weight) / 256
	*entry = int16(max(-correctionLimit, min(v, correctionLimit)))
}

func (ch *CorrectionHistory) Clear() {
	*ch = CorrectionHistory{}
}
