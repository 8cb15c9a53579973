package engine

import (
	"math"

	"github.com/hailam/kestrel/internal/board"
)

// SearchParams holds the tunable margins of the search. Only the shape of
// each formula is fixed; the numbers come from configuration.
type SearchParams struct {
	// Reverse futility: prune when eval - RFPMargin*depth >= beta.
	RFPMaxDepth int
	RFPMargin   int

	// Null move: R = NullMoveBase + depth/NullMoveDepthDivisor + min((eval-beta)/NullMoveEvalDivisor, 3).
	NullMoveMinDepth     int
	NullMoveBase         int
	NullMoveDepthDivisor int
	NullMoveEvalDivisor  int

	// Futility: skip quiets when eval + FutilityBase + FutilityMargin*depth <= alpha.
	FutilityMaxDepth int
	FutilityBase     int
	FutilityMargin   int

	// Late move pruning: LMPBase + depth*depth*LMPFactor quiets, halved when not improving.
	LMPBase   int
	LMPFactor int

	// Late move reductions: LMRBase + ln(depth)*ln(moveIndex)/LMRDivisor.
	LMRBase           float64
	LMRDivisor        float64
	LMRHistoryDivisor int

	// History pruning: skip quiets whose history < -HistoryPruneFactor*depth*depth.
	HistoryPruneMaxDepth int
	HistoryPruneFactor   int

	// SEE pruning thresholds, quadratic in depth for quiets and linear for captures.
	SEEQuietMargin   int
	SEECaptureMargin int

	// Singular extension: verification at SingularMinDepth and beyond with
	// sBeta = ttScore - SingularMarginFactor*depth.
	SingularMinDepth     int
	SingularMarginFactor int

	// Low-depth singular extension: below SingularMinDepth, extend the TT
	// move when ttScore >= eval + LowDepthSingularMargin.
	LowDepthSingularMinDepth int
	LowDepthSingularMargin   int

	// Aspiration windows start at ±AspirationDelta and fall back to a full
	// window after AspirationMaxWidenings failures.
	AspirationDelta        int
	AspirationMaxWidenings int

	QSearchDeltaMargin int
	IIRMinDepth        int
}

// DefaultSearchParams returns the built-in tuning.
func DefaultSearchParams() SearchParams {
	return SearchParams{
		RFPMaxDepth:              8,
		RFPMargin:                75,
		NullMoveMinDepth:         3,
		NullMoveBase:             3,
		NullMoveDepthDivisor:     3,
		NullMoveEvalDivisor:      200,
		FutilityMaxDepth:         7,
		FutilityBase:             80,
		FutilityMargin:           90,
		LMPBase:                  3,
		LMPFactor:                1,
		LMRBase:                  0.75,
		LMRDivisor:               2.25,
		LMRHistoryDivisor:        8192,
		HistoryPruneMaxDepth:     6,
		HistoryPruneFactor:       256,
		SEEQuietMargin:           50,
		SEECaptureMargin:         90,
		SingularMinDepth:         7,
		SingularMarginFactor:     3,
		LowDepthSingularMinDepth: 4,
		LowDepthSingularMargin:   150,
		AspirationDelta:          25,
		AspirationMaxWidenings:   6,
		QSearchDeltaMargin:       200,
		IIRMinDepth:              4,
	}
}

const (
	lmrTableSize = 64
	lmpTableSize = 16
)

// searchTables are precomputed from SearchParams once per engine.
type searchTables struct {
	lmr [lmrTableSize][lmrTableSize]int
	// lmp[improving][depth]
	lmp [2][lmpTableSize]int
}

func newSearchTables(p SearchParams) *searchTables {
	t := &searchTables{}
	for d := 1; d < lmrTableSize; d++ {
		for m := 1; m < lmrTableSize; m++ {
			t.lmr[d][m] = int(p.LMRBase + math.Log(float64(d))*math.Log(float64(m))/p.LMRDivisor)
		}
	}
	for d := 0; d < lmpTableSize; d++ {
		full := p.LMPBase + d*d*p.LMPFactor
		t.lmp[1][d] = full
		t.lmp[0][d] = full / 2
	}
	return t
}

func (t *searchTables) reduction(depth, moveIndex int) int {
	return t.lmr[min(depth, lmrTableSize-1)][min(moveIndex, lmrTableSize-1)]
}

func (t *searchTables) lmpLimit(depth int, improving bool) int {
	i := 0
	if improving {
		i = 1
	}
	return t.lmp[i][min(depth, lmpTableSize-1)]
}

// PVTable collects the principal variation in a triangular array.
type PVTable struct {
	length [MaxPly + 1]int
	moves  [MaxPly + 1][MaxPly + 1]board.Move
}

func (pv *PVTable) clear(ply int) {
	pv.length[ply] = 0
}

// update makes m followed by the child's line the variation at ply.
func (pv *PVTable) update(ply int, m board.Move) {
	pv.moves[ply][0] = m
	n := 0
	if ply+1 <= MaxPly {
		n = copy(pv.moves[ply][1:], pv.moves[ply+1][:pv.length[ply+1]])
	}
	pv.length[ply] = n + 1
}

// Line returns a copy of the root variation.
func (pv *PVTable) Line() []board.Move {
	return append([]board.Move(nil), pv.moves[0][:pv.length[0]]...)
}

// needsVerification reports whether a reduced null-window probe that
// scored score must be repeated at full depth. Only probes that beat alpha
// earn the extra work.
func needsVerification(reduced bool, score, alpha int) bool {
	return reduced && score > alpha
}

// needsFullWindow reports whether a null-window result must be re-searched
// with the full window. A fail-low never qualifies.
func needsFullWindow(pvNode bool, score, alpha int) bool {
	return pvNode && score > alpha
}
