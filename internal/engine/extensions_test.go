package engine

import (
	"sync/atomic"
	"testing"

	"github.com/matryer/is"

	"github.com/hailam/kestrel/internal/board"
)

// newNodeWorker readies the engine's main worker to search fen from inside
// the tree, two plies below the root.
func newNodeWorker(t *testing.T, fen string) *Worker {
	t.Helper()
	eng := newTestEngine(1)
	shared := &searchShared{stop: new(atomic.Bool), limits: SearchLimits{Infinite: true}, tm: NewTimeManager()}
	w := eng.workers[0]
	w.prepare(mustParse(t, fen), shared, 0)
	w.rootDepth = 20
	w.frame(2).staticEval = Evaluate(w.pos)
	return w
}

func TestSingularExtendsOnlyGoodMove(t *testing.T) {
	is := is.New(t)
	w := newNodeWorker(t, "rnb1kbnr/pppp1ppp/8/4p1q1/3P4/2N5/PPP1PPPP/R1BQKBNR w KQkq - 0 1")
	m := mustMove(t, w.pos, "c1g5")
	entry := TTEntry{BestMove: m, Score: 800, Depth: 8, Flag: TTLowerBound}

	ext, cut := w.singular(8, 2, 900, w.frame(2).staticEval, m, entry, 800)
	is.Equal(ext, 1) // nothing else comes close to winning the queen
	is.True(!cut.ok)
	is.True(w.nodes > 0)
	is.Equal(w.frame(2).excluded, board.NoMove) // exclusion is undone
}

func TestSingularMultiCut(t *testing.T) {
	is := is.New(t)
	// White is a queen up, so every reasonable move beats beta.
	w := newNodeWorker(t, "rnb1kbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1")
	m := mustMove(t, w.pos, "e2e4")
	entry := TTEntry{BestMove: m, Score: 400, Depth: 8, Flag: TTLowerBound}

	ext, cut := w.singular(8, 2, 300, w.frame(2).staticEval, m, entry, 400)
	is.Equal(ext, 0)
	is.True(cut.ok)
	is.Equal(cut.score, 400-DefaultSearchParams().SingularMarginFactor*8)

	// With beta above sBeta the alternatives only deny the extension.
	ext, cut = w.singular(8, 2, 500, w.frame(2).staticEval, m, entry, 400)
	is.Equal(ext, 0)
	is.True(!cut.ok)
}

func TestLowDepthSingularNeverCuts(t *testing.T) {
	is := is.New(t)
	w := newNodeWorker(t, "rnb1kbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1")
	m := mustMove(t, w.pos, "e2e4")
	entry := TTEntry{BestMove: m, Score: 400, Depth: 3, Flag: TTLowerBound}

	ext, cut := w.singular(5, 2, 300, 0, m, entry, 400)
	is.Equal(ext, 1) // TT score well above the static evaluation
	is.True(!cut.ok)
	is.Equal(w.nodes, uint64(0)) // decided without a search

	ext, cut = w.singular(5, 2, 300, 300, m, entry, 400)
	is.Equal(ext, 0) // margin not reached
	is.True(!cut.ok)

	ext, cut = w.singular(3, 2, 300, 0, m, entry, 400)
	is.Equal(ext, 0) // too shallow for either rule
	is.True(!cut.ok)
}

func TestSingularNeedsDeepEnoughEntry(t *testing.T) {
	is := is.New(t)
	w := newNodeWorker(t, "rnb1kbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1")
	m := mustMove(t, w.pos, "e2e4")
	entry := TTEntry{BestMove: m, Score: 400, Depth: 4, Flag: TTLowerBound}

	ext, cut := w.singular(8, 2, 300, w.frame(2).staticEval, m, entry, 400)
	is.Equal(ext, 0)
	is.True(!cut.ok)
	is.Equal(w.nodes, uint64(0))
}
