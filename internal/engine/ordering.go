package engine

import (
	"lukechampine.com/frand"

	"github.com/hailam/kestrel/internal/board"
)

// moveKind is the ordering bucket a move falls into, best first.
type moveKind uint8

const (
	kindTT moveKind = iota
	kindGoodNoisy
	kindKiller
	kindRefutation
	kindQuiet
	kindBadNoisy
	kindUnderPromotion
)

// Bucket bases. Scores inside a bucket never cross into a neighbour.
const (
	scoreTTMove         = 1 << 30
	scoreGoodNoisy      = 1 << 28
	scoreKiller         = 1 << 27
	scoreRefutation     = 1 << 26
	scoreBadNoisy       = -(1 << 28)
	scoreUnderPromotion = -(1 << 30)
)

// pieceTo identifies an earlier move for continuation history.
type pieceTo struct {
	piece board.Piece
	to    board.Square
}

var noPieceTo = pieceTo{piece: board.NoPiece}

// orderContext is what the picker needs to know about the node.
type orderContext struct {
	ttMove     board.Move
	killers    [2]board.Move
	refutation board.Move
	history    *HistoryTables
	// cont[0] is the opponent's last move, cont[1] our move before it.
	cont [2]pieceTo
}

// MovePicker yields a node's legal moves by bucket: TT move, winning and
// equal captures with queen promotions, killers, refutation, remaining
// quiets by history, losing captures, then under-promotions. Captures are
// classified by SEE but sorted by victim value and capture history.
type MovePicker struct {
	moves      board.MoveList
	scores     [256]int
	kinds      [256]moveKind
	index      int
	skipQuiets bool
}

// Init scores the moves already generated into mp.moves.
func (mp *MovePicker) Init(pos *board.Position, oc *orderContext) {
	mp.index = 0
	mp.skipQuiets = false
	us := pos.SideToMove
	for i := 0; i < mp.moves.Len(); i++ {
		m := mp.moves.Get(i)
		switch {
		case m == oc.ttMove:
			mp.set(i, kindTT, scoreTTMove)
		case m.IsPromotion() && m.Promotion() != board.Queen:
			mp.set(i, kindUnderPromotion, scoreUnderPromotion+int(m.Promotion()))
		case m.IsCapture(pos) || m.IsPromotion():
			s := noisyScore(pos, m, oc.history)
			if pos.SEEGreaterEqual(m, 0) {
				mp.set(i, kindGoodNoisy, scoreGoodNoisy+s)
			} else {
				mp.set(i, kindBadNoisy, scoreBadNoisy+s)
			}
		case m == oc.killers[0]:
			mp.set(i, kindKiller, scoreKiller+1)
		case m == oc.killers[1]:
			mp.set(i, kindKiller, scoreKiller)
		case m == oc.refutation:
			mp.set(i, kindRefutation, scoreRefutation)
		default:
			pc := pos.Board[m.From()]
			s := oc.history.Quiet(us, m)
			for _, c := range oc.cont {
				s += oc.history.Continuation(c.piece, c.to, pc, m.To())
			}
			mp.set(i, kindQuiet, s)
		}
	}
}

// InitNoisy scores a capture-only list for quiescence search.
func (mp *MovePicker) InitNoisy(pos *board.Position, h *HistoryTables) {
	mp.index = 0
	mp.skipQuiets = false
	for i := 0; i < mp.moves.Len(); i++ {
		m := mp.moves.Get(i)
		mp.set(i, kindGoodNoisy, noisyScore(pos, m, h))
	}
}

func (mp *MovePicker) set(i int, kind moveKind, score int) {
	mp.kinds[i] = kind
	mp.scores[i] = score
}

// noisyScore ranks captures and promotions by what they win, refined by
// capture history.
func noisyScore(pos *board.Position, m board.Move, h *HistoryTables) int {
	victim := capturedType(pos, m)
	s := 0
	if victim != board.NoPieceType {
		s = board.PieceValue[victim] * 16
	}
	if m.IsPromotion() {
		s += (board.PieceValue[m.Promotion()] - board.PieceValue[board.Pawn]) * 16
	}
	return s + h.Capture(pos.Board[m.From()], m.To(), victim)
}

// capturedType returns the type taken by m, or NoPieceType.
func capturedType(pos *board.Position, m board.Move) board.PieceType {
	if m.IsEnPassant() {
		return board.Pawn
	}
	return pos.Board[m.To()].Type()
}

// perturb adds up to amount of noise to quiet and winning capture scores so
// helper threads walk the root in different orders. Buckets never cross.
func (mp *MovePicker) perturb(amount int) {
	for i := 0; i < mp.moves.Len(); i++ {
		if k := mp.kinds[i]; k == kindQuiet || k == kindGoodNoisy {
			mp.scores[i] += frand.Intn(amount)
		}
	}
}

// SkipQuiets makes Next pass over the remaining quiet moves.
func (mp *MovePicker) SkipQuiets() {
	mp.skipQuiets = true
}

// Next returns the best remaining move by selection.
func (mp *MovePicker) Next() (board.Move, bool) {
	n := mp.moves.Len()
	for mp.index < n {
		best := mp.index
		for j := best + 1; j < n; j++ {
			if mp.scores[j] > mp.scores[best] {
				best = j
			}
		}
		if best != mp.index {
			mp.moves.Swap(mp.index, best)
			mp.scores[mp.index], mp.scores[best] = mp.scores[best], mp.scores[mp.index]
			mp.kinds[mp.index], mp.kinds[best] = mp.kinds[best], mp.kinds[mp.index]
		}
		m, kind := mp.moves.Get(mp.index), mp.kinds[mp.index]
		mp.index++
		if mp.skipQuiets && (kind == kindKiller || kind == kindRefutation || kind == kindQuiet) {
			continue
		}
		return m, true
	}
	return board.NoMove, false
}
