package engine

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/hailam/kestrel/internal/board"
	"github.com/hailam/kestrel/internal/storage"
)

func newTestEngine(threads int) *Engine {
	opts := DefaultOptions()
	opts.HashMB = 16
	opts.Threads = threads
	return NewEngine(opts)
}

func isLegal(pos *board.Position, m board.Move) bool {
	var ml board.MoveList
	pos.LegalMoves(&ml)
	return ml.Contains(m)
}

func TestSearchStartposDepthOne(t *testing.T) {
	is := is.New(t)
	pos := board.NewPosition()
	res := newTestEngine(1).Search(context.Background(), pos, SearchLimits{Depth: 1})

	is.True(isLegal(pos, res.BestMove))
	is.Equal(res.Depth, 1)
	is.True(abs(res.Score) < 100) // startpos is balanced
	is.True(res.Nodes > 0)
}

func TestSearchNoLegalMoves(t *testing.T) {
	is := is.New(t)
	eng := newTestEngine(1)

	mated := mustParse(t, "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3")
	res := eng.Search(context.Background(), mated, SearchLimits{Depth: 4})
	is.Equal(res.BestMove, board.NoMove)
	is.Equal(res.Score, MatedIn(0))

	stalemate := mustParse(t, "k7/8/1Q6/8/8/8/8/7K b - - 0 1")
	res = eng.Search(context.Background(), stalemate, SearchLimits{Depth: 4})
	is.Equal(res.BestMove, board.NoMove)
	is.Equal(res.Score, DrawScore)
}

func TestSearchFindsMateInTwo(t *testing.T) {
	is := is.New(t)
	pos := mustParse(t, "r2qkb1r/pp2nppp/3p4/2pNN1B1/2BnP3/3P4/PPP2PPP/R2bK2R w KQkq - 1 1")
	res := newTestEngine(1).Search(context.Background(), pos, SearchLimits{Depth: 6})

	is.Equal(res.BestMove.String(), "d5f6")
	is.Equal(res.Score, MateIn(3))
	is.Equal(ScoreToString(res.Score), "mate 2")
}

func TestSearchFindsMateInOne(t *testing.T) {
	is := is.New(t)
	pos := mustParse(t, "6k1/5ppp/8/8/8/8/5PPP/3R2K1 w - - 0 1")
	res := newTestEngine(1).Search(context.Background(), pos, SearchLimits{Depth: 3})
	is.Equal(res.BestMove.String(), "d1d8")
	is.Equal(res.Score, MateIn(1))
}

func TestSearchWinsHangingQueen(t *testing.T) {
	is := is.New(t)
	pos := mustParse(t, "rnb1kbnr/pppp1ppp/8/4p1q1/3P4/2N5/PPP1PPPP/R1BQKBNR w KQkq - 0 1")
	res := newTestEngine(1).Search(context.Background(), pos, SearchLimits{Depth: 4})
	is.Equal(res.BestMove.String(), "c1g5")
	is.True(res.Score > 500)
}

func TestIterativeDeepeningMonotonic(t *testing.T) {
	is := is.New(t)
	pos := mustParse(t, kiwipete)
	last := 0
	for depth := 1; depth <= 5; depth++ {
		res := newTestEngine(1).Search(context.Background(), pos, SearchLimits{Depth: depth})
		is.True(res.Depth >= last)
		is.Equal(res.Depth, depth)
		is.True(isLegal(pos, res.BestMove))
		last = res.Depth
	}
}

func TestSearchReportsEachDepth(t *testing.T) {
	is := is.New(t)
	eng := newTestEngine(1)
	var infos []SearchInfo
	eng.OnInfo = func(info SearchInfo) {
		infos = append(infos, info)
	}
	eng.Search(context.Background(), board.NewPosition(), SearchLimits{Depth: 5})

	is.Equal(len(infos), 5)
	for i, info := range infos {
		is.Equal(info.Depth, i+1)
		is.True(len(info.PV) > 0)
		is.True(info.SelDepth >= 1)
	}
}

func TestSearchStop(t *testing.T) {
	is := is.New(t)
	eng := newTestEngine(2)
	pos := mustParse(t, kiwipete)

	done := make(chan SearchResult)
	go func() {
		done <- eng.Search(context.Background(), pos, SearchLimits{Infinite: true})
	}()
	time.Sleep(100 * time.Millisecond)
	eng.Stop()

	select {
	case res := <-done:
		is.True(isLegal(pos, res.BestMove))
	case <-time.After(5 * time.Second):
		t.Fatal("search did not stop")
	}
}

func TestSearchContextCancel(t *testing.T) {
	is := is.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	pos := board.NewPosition()
	res := newTestEngine(1).Search(ctx, pos, SearchLimits{Infinite: true})
	is.True(isLegal(pos, res.BestMove))
}

func TestSearchNodeLimit(t *testing.T) {
	is := is.New(t)
	pos := mustParse(t, kiwipete)
	res := newTestEngine(1).Search(context.Background(), pos, SearchLimits{Nodes: 20000})
	is.True(isLegal(pos, res.BestMove))
	is.True(res.Nodes < 40000)
}

func TestSearchMoveTime(t *testing.T) {
	is := is.New(t)
	start := time.Now()
	res := newTestEngine(1).Search(context.Background(), board.NewPosition(),
		SearchLimits{MoveTime: 200 * time.Millisecond})
	is.True(time.Since(start) < time.Second)
	is.True(res.Depth >= 1)
}

func TestLazySMPReachesDepth(t *testing.T) {
	is := is.New(t)
	pos := mustParse(t, kiwipete)
	single := newTestEngine(1).Search(context.Background(), pos, SearchLimits{Depth: 6})
	multi := newTestEngine(4).Search(context.Background(), pos, SearchLimits{Depth: 6})

	is.True(multi.Depth >= single.Depth)
	is.True(isLegal(pos, multi.BestMove))
}

func TestLazySMPSameTimeBudget(t *testing.T) {
	if runtime.NumCPU() < 4 {
		t.Skip("needs four cores")
	}
	is := is.New(t)
	pos := mustParse(t, kiwipete)
	limits := SearchLimits{MoveTime: 500 * time.Millisecond}
	single := newTestEngine(1).Search(context.Background(), pos, limits)
	multi := newTestEngine(4).Search(context.Background(), pos, limits)

	is.True(multi.Depth >= single.Depth) // helpers never slow the main worker down
	is.True(multi.Nodes > single.Nodes)
	is.True(isLegal(pos, multi.BestMove))
}

func TestSharedHistorySearch(t *testing.T) {
	is := is.New(t)
	opts := DefaultOptions()
	opts.HashMB = 16
	opts.Threads = 3
	opts.SharedHistory = true
	eng := NewEngine(opts)
	is.Equal(len(eng.history), 1)

	pos := board.NewPosition()
	res := eng.Search(context.Background(), pos, SearchLimits{Depth: 5})
	is.True(isLegal(pos, res.BestMove))
}

func TestSelectResult(t *testing.T) {
	is := is.New(t)
	a := board.NewMove(board.E2, board.E4)
	b := board.NewMove(board.D2, board.D4)
	c := board.NewMove(board.G1, board.F3)

	got := selectResult([]WorkerResult{
		{WorkerID: 0, Depth: 7, Move: a},
		{WorkerID: 1, Depth: 8, Move: b},
		{WorkerID: 2, Depth: 8, Move: c},
	})
	is.Equal(got.WorkerID, 1) // deepest, earliest on ties

	got = selectResult([]WorkerResult{
		{WorkerID: 0, Depth: 7, Move: a},
		{WorkerID: 1, Depth: 7, Move: b},
	})
	is.Equal(got.WorkerID, 0)

	got = selectResult([]WorkerResult{
		{WorkerID: 0},
		{WorkerID: 1, Depth: 2, Move: b},
	})
	is.Equal(got.WorkerID, 1)
}

func TestAspirationWindowConverges(t *testing.T) {
	is := is.New(t)
	p := DefaultSearchParams()
	for _, prev := range []int{0, 35, -410, 2500, MateThreshold - 5} {
		for _, target := range []int{-MateScore + 1, -3000, -26, 0, 24, 900, 30000, MateScore - 1} {
			win := newAspirationWindow(prev, 8, &p)
			searches := 1
			for !win.contains(target) {
				win.widen(target)
				searches++
				is.True(searches <= p.AspirationMaxWidenings+3)
			}
		}
	}

	win := newAspirationWindow(50, 2, &p)
	is.Equal(win.alpha, -Infinity) // shallow depths use a full window
	is.Equal(win.beta, Infinity)
}

func TestNullWindowReSearchRules(t *testing.T) {
	is := is.New(t)
	alpha := 40

	// A fail-low never earns a re-search.
	for _, score := range []int{-100, 39, 40} {
		is.True(!needsVerification(true, score, alpha))
		is.True(!needsFullWindow(true, score, alpha))
	}

	is.True(needsVerification(true, 41, alpha))
	is.True(!needsVerification(false, 41, alpha))
	is.True(needsFullWindow(true, 41, alpha))
	is.True(!needsFullWindow(false, 41, alpha))
}

func TestNullWindowFailLowsAreFinal(t *testing.T) {
	is := is.New(t)
	eng := newTestEngine(1)
	eng.Search(context.Background(), mustParse(t, kiwipete), SearchLimits{Depth: 7})

	st := eng.workers[0].stats
	is.True(st.nullWindow > 0)
	is.True(st.verifications > 0)
	is.True(st.fullWindow > 0)
	is.Equal(st.failLowReSearches, uint64(0))
	is.True(st.verifications+st.fullWindow < st.nullWindow) // most late moves fail low once
}

func TestMateScoresOrdering(t *testing.T) {
	is := is.New(t)
	largestNormal := clampEval(Infinity)
	is.True(MateIn(1) > MateIn(3))
	is.True(MateIn(3) > largestNormal)
	is.True(MateIn(MaxPly-1) > largestNormal)
	is.True(MatedIn(1) < MatedIn(3))
	is.True(MatedIn(3) < clampEval(-Infinity))
	is.True(!IsMateScore(largestNormal))

	// A real mate in one outranks anything the evaluation can say.
	res := newTestEngine(1).Search(context.Background(), mustParse(t, "6k1/5ppp/8/8/8/8/5PPP/3R2K1 w - - 0 1"), SearchLimits{Depth: 4})
	is.True(res.Score > largestNormal)
	is.True(res.Score > MateIn(3))
}

type memoryStore struct {
	recs map[string]storage.Record
}

func (m *memoryStore) Get(fen string) (storage.Record, error) {
	rec, ok := m.recs[fen]
	if !ok {
		return storage.Record{}, storage.ErrNotFound
	}
	return rec, nil
}

func (m *memoryStore) Put(fen string, rec storage.Record) error {
	m.recs[fen] = rec
	return nil
}

func TestAnalysisSeedAndSave(t *testing.T) {
	is := is.New(t)
	pos := board.NewPosition()
	fen := pos.ToFEN()
	store := &memoryStore{recs: map[string]storage.Record{
		fen: {Move: "g1f3", Score: 30, Depth: 20},
	}}

	eng := newTestEngine(1)
	eng.SetAnalysisStore(store)
	is.Equal(eng.seed(pos), 30)
	e, ok := eng.TT().Probe(pos.Hash)
	is.True(ok)
	is.Equal(e.BestMove.String(), "g1f3")

	delete(store.recs, fen)
	res := eng.Search(context.Background(), pos, SearchLimits{Depth: minStoredDepth})
	rec, ok := store.recs[fen]
	is.True(ok)
	is.Equal(rec.Depth, res.Depth)
	is.Equal(rec.Move, res.BestMove.String())
}

func TestSeededRootEntryIsOverwritten(t *testing.T) {
	is := is.New(t)
	pos := board.NewPosition()
	store := &memoryStore{recs: map[string]storage.Record{
		pos.ToFEN(): {Move: "g1f3", Score: 30, Depth: 20},
	}}
	eng := newTestEngine(1)
	eng.SetAnalysisStore(store)

	eng.Search(context.Background(), pos, SearchLimits{Depth: 1})
	is.Equal(eng.workers[0].seedScore, 30) // first aspiration centre

	// The depth 1 root result replaces the seeded depth 20 entry.
	e, ok := eng.TT().Probe(pos.Hash)
	is.True(ok)
	is.Equal(int(e.Depth), 1)
	is.Equal(e.Flag, TTExact)
}

func TestEngineClear(t *testing.T) {
	is := is.New(t)
	eng := newTestEngine(2)
	pos := board.NewPosition()
	eng.Search(context.Background(), pos, SearchLimits{Depth: 5})
	_, ok := eng.TT().Probe(pos.Hash)
	is.True(ok)

	eng.Clear()
	is.Equal(eng.TT().HashFull(), 0)
	_, ok = eng.TT().Probe(pos.Hash)
	is.True(!ok)
}

func TestEvaluateSymmetric(t *testing.T) {
	is := is.New(t)
	is.Equal(Evaluate(board.NewPosition()), tempoBonus)

	white := mustParse(t, "4k3/8/8/8/8/8/8/3QK3 w - - 0 1")
	black := mustParse(t, "3qk3/8/8/8/8/8/8/4K3 b - - 0 1")
	is.Equal(Evaluate(white), Evaluate(black))
	is.True(Evaluate(white) > 800)
}
