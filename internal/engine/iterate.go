package engine

import (
	"github.com/rs/zerolog/log"

	"github.com/hailam/kestrel/internal/board"
)

// aspirationWindow tracks the bounds of one depth's aspiration loop. Each
// failure doubles delta and moves only the failing bound; once maxFails is
// exceeded that bound opens fully, so the loop always converges.
type aspirationWindow struct {
	alpha, beta int
	delta       int
	fails       int
	maxFails    int
}

func newAspirationWindow(prev, depth int, p *SearchParams) aspirationWindow {
	a := aspirationWindow{
		alpha:    -Infinity,
		beta:     Infinity,
		delta:    p.AspirationDelta,
		maxFails: p.AspirationMaxWidenings,
	}
	if depth >= aspirationMinDepth && !IsMateScore(prev) {
		a.alpha = max(prev-a.delta, -Infinity)
		a.beta = min(prev+a.delta, Infinity)
	}
	return a
}

const aspirationMinDepth = 4

func (a *aspirationWindow) contains(score int) bool {
	return score > a.alpha && score < a.beta
}

// widen moves the bound that score failed against.
func (a *aspirationWindow) widen(score int) {
	a.fails++
	a.delta *= 2
	open := a.fails > a.maxFails
	if score <= a.alpha {
		a.alpha = max(score-a.delta, -Infinity)
		if open {
			a.alpha = -Infinity
		}
		return
	}
	a.beta = min(score+a.delta, Infinity)
	if open {
		a.beta = Infinity
	}
}

// aspirate searches the root at depth inside a window centred on prev,
// widening until the score lands inside. ok is false if the search was
// stopped before the depth completed.
func (w *Worker) aspirate(depth, prev int) (score int, ok bool) {
	win := newAspirationWindow(prev, depth, w.params)
	for {
		score = w.negamax(depth, 0, win.alpha, win.beta, true)
		if w.stopped() {
			return 0, false
		}
		if win.contains(score) {
			return score, true
		}
		log.Trace().Int("worker", w.id).Int("depth", depth).Int("score", score).
			Int("alpha", win.alpha).Int("beta", win.beta).Msg("aspiration-fail")
		win.widen(score)
	}
}

// iterate runs iterative deepening up to maxDepth or until stopped. Every
// completed depth replaces w.result; an aborted depth never does.
func (w *Worker) iterate(maxDepth int) {
	main := w.id == 0
	prevScore := w.seedScore
	stability, changes := 0, 0
	lastMove := board.NoMove

	for depth := 1; depth <= maxDepth; depth++ {
		w.rootDepth = depth
		w.seldepth = 0

		score, ok := w.aspirate(depth, prevScore)
		if !ok {
			break
		}
		if w.pv.length[0] == 0 {
			break
		}

		w.result = WorkerResult{
			WorkerID: w.id,
			Depth:    depth,
			SelDepth: w.seldepth,
			Score:    score,
			Move:     w.pv.moves[0][0],
			PV:       w.pv.Line(),
			Nodes:    w.nodes,
		}
		prevScore = score

		if !main {
			continue
		}

		log.Debug().Int("depth", depth).Int("score", score).Uint64("nodes", w.nodes).
			Str("move", w.result.Move.String()).Msg("iteration-complete")
		if w.shared.report != nil {
			w.shared.report(w.result)
		}

		if w.result.Move == lastMove {
			stability++
			if changes > 0 && stability%2 == 0 {
				changes--
			}
		} else {
			stability = 0
			changes++
		}
		lastMove = w.result.Move
		w.shared.tm.AdjustForStability(stability, changes)

		if w.shared.tm.PastOptimum() {
			break
		}
		// A forced mate shorter than the depth searched will not improve.
		if !w.shared.limits.Infinite && IsMateScore(score) && MateScore-abs(score) <= depth {
			break
		}
	}
}
