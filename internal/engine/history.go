package engine

import (
	"github.com/hailam/kestrel/internal/board"
)

// MaxHistory bounds every history counter. The gravity update keeps values
// inside [-MaxHistory, MaxHistory] as long as bonuses stay within it.
const MaxHistory = 16384

// historyBonus is the reward for a move that caused a cutoff at depth.
func historyBonus(depth int) int {
	return min(16*depth*depth, 1200)
}

// gravity moves entry towards ±MaxHistory, slowing down as it saturates.
func gravity(entry *int16, bonus int) {
	bonus = max(-MaxHistory, min(bonus, MaxHistory))
	v := int(*entry)
	v += bonus - v*abs(bonus)/MaxHistory
	*entry = int16(v)
}

// HistoryTables holds the move statistics used for ordering, pruning and
// reductions. A worker owns one instance unless histories are shared, in
// which case concurrent updates are unsynchronised and may be lost.
type HistoryTables struct {
	// quiet[color][from][to]
	quiet [2][64][64]int16
	// capture[piece][to][captured type]
	capture [12][64][6]int16
	// continuation[previous piece][previous to][piece][to]
	continuation [12][64][12][64]int16
	// refutation[previous piece][previous to] is the quiet move that last
	// refuted the opponent's move. It survives between searches.
	refutation [12][64]board.Move
}

func NewHistoryTables() *HistoryTables {
	return &HistoryTables{}
}

func (h *HistoryTables) Quiet(c board.Color, m board.Move) int {
	return int(h.quiet[c][m.From()][m.To()])
}

func (h *HistoryTables) UpdateQuiet(c board.Color, m board.Move, bonus int) {
	gravity(&h.quiet[c][m.From()][m.To()], bonus)
}

func (h *HistoryTables) Capture(pc board.Piece, to board.Square, captured board.PieceType) int {
	if pc == board.NoPiece || captured >= board.King {
		return 0
	}
	return int(h.capture[pc][to][captured])
}

func (h *HistoryTables) UpdateCapture(pc board.Piece, to board.Square, captured board.PieceType, bonus int) {
	if pc == board.NoPiece || captured >= board.King {
		return
	}
	gravity(&h.capture[pc][to][captured], bonus)
}

// Continuation scores pc moving to to in reply to prev having moved to prevTo.
func (h *HistoryTables) Continuation(prev board.Piece, prevTo board.Square, pc board.Piece, to board.Square) int {
	if prev == board.NoPiece || pc == board.NoPiece {
		return 0
	}
	return int(h.continuation[prev][prevTo][pc][to])
}

func (h *HistoryTables) UpdateContinuation(prev board.Piece, prevTo board.Square, pc board.Piece, to board.Square, bonus int) {
	if prev == board.NoPiece || pc == board.NoPiece {
		return
	}
	gravity(&h.continuation[prev][prevTo][pc][to], bonus)
}

func (h *HistoryTables) Refutation(prev board.Piece, prevTo board.Square) board.Move {
	if prev == board.NoPiece {
		return board.NoMove
	}
	return h.refutation[prev][prevTo]
}

func (h *HistoryTables) SetRefutation(prev board.Piece, prevTo board.Square, m board.Move) {
	if prev == board.NoPiece {
		return
	}
	h.refutation[prev][prevTo] = m
}

// Age halves every counter so that older statistics fade between searches.
func (h *HistoryTables) Age() {
	for c := range h.quiet {
		for from := range h.quiet[c] {
			for to := range h.quiet[c][from] {
				h.quiet[c][from][to] /= 2
			}
		}
	}
	for pc := range h.capture {
		for to := range h.capture[pc] {
			for t := range h.capture[pc][to] {
				h.capture[pc][to][t] /= 2
			}
		}
	}
	for i := range h.continuation {
		for j := range h.continuation[i] {
			for k := range h.continuation[i][j] {
				for l := range h.continuation[i][j][k] {
					h.continuation[i][j][k][l] /= 2
				}
			}
		}
	}
}

// Clear forgets everything, including refutations.
func (h *HistoryTables) Clear() {
	*h = HistoryTables{}
}

// KillerTable keeps the two most recent quiet cutoff moves per ply.
type KillerTable [MaxPly + 1][2]board.Move

// Add records m as the newest killer at ply.
func (k *KillerTable) Add(ply int, m board.Move) {
	if ply > MaxPly || k[ply][0] == m {
		return
	}
	k[ply][1] = k[ply][0]
	k[ply][0] = m
}

func (k *KillerTable) Clear() {
	*k = KillerTable{}
}
