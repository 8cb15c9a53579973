package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/hailam/kestrel/internal/board"
	"github.com/hailam/kestrel/internal/storage"
)

// minStoredDepth is the shallowest result worth persisting.
const minStoredDepth = 8

// SearchInfo is reported once per completed depth of the main worker.
type SearchInfo struct {
	Depth    int
	SelDepth int
	Score    int
	Nodes    uint64
	NPS      uint64
	Time     time.Duration
	PV       []board.Move
	HashFull int // permille
}

// SearchResult is the outcome of Search.
type SearchResult struct {
	BestMove board.Move
	Ponder   board.Move
	Score    int
	Depth    int
	SelDepth int
	PV       []board.Move
	Nodes    uint64
	Time     time.Duration
}

// Options configures an Engine.
type Options struct {
	HashMB        int
	Threads       int
	MoveOverhead  time.Duration
	SharedHistory bool
	Params        SearchParams
}

func DefaultOptions() Options {
	return Options{
		HashMB:       64,
		Threads:      1,
		MoveOverhead: 10 * time.Millisecond,
		Params:       DefaultSearchParams(),
	}
}

// AnalysisStore persists completed root searches between sessions.
type AnalysisStore interface {
	Get(fen string) (storage.Record, error)
	Put(fen string, rec storage.Record) error
}

// Engine owns the shared transposition table and the workers of a Lazy SMP
// search. Search must not be called concurrently; Stop may be called from
// any goroutine.
type Engine struct {
	opts    Options
	params  SearchParams
	tt      *TranspositionTable
	tables  *searchTables
	history []*HistoryTables
	workers []*Worker
	tm      *TimeManager
	store   AnalysisStore

	mu     sync.Mutex
	stop   *atomic.Bool // flag of the running search
	cancel context.CancelFunc

	OnInfo func(SearchInfo)
}

// NewEngine creates an engine. Zero option fields fall back to defaults.
func NewEngine(opts Options) *Engine {
	def := DefaultOptions()
	if opts.HashMB <= 0 {
		opts.HashMB = def.HashMB
	}
	if opts.Threads <= 0 {
		opts.Threads = def.Threads
	}
	if opts.Params == (SearchParams{}) {
		opts.Params = def.Params
	}

	e := &Engine{
		opts:   opts,
		params: opts.Params,
		tt:     NewTranspositionTable(opts.HashMB),
		tables: newSearchTables(opts.Params),
		tm:     NewTimeManager(),
	}
	e.buildWorkers()
	return e
}

func (e *Engine) buildWorkers() {
	n := e.opts.Threads
	e.history = e.history[:0]
	if e.opts.SharedHistory {
		e.history = append(e.history, NewHistoryTables())
	} else {
		for range n {
			e.history = append(e.history, NewHistoryTables())
		}
	}
	e.workers = make([]*Worker, n)
	for i := range e.workers {
		e.workers[i] = NewWorker(i, e.tt, &e.params, e.tables, e.history[i%len(e.history)])
	}
}

// SetThreads changes the number of search workers. Learned histories are
// discarded.
func (e *Engine) SetThreads(n int) {
	n = max(1, n)
	if n == e.opts.Threads {
		return
	}
	e.opts.Threads = n
	e.buildWorkers()
}

func (e *Engine) Threads() int {
	return e.opts.Threads
}

// SetHash resizes the transposition table.
func (e *Engine) SetHash(mb int) {
	e.opts.HashMB = max(1, mb)
	e.tt = NewTranspositionTable(e.opts.HashMB)
	for _, w := range e.workers {
		w.tt = e.tt
	}
}

func (e *Engine) SetMoveOverhead(d time.Duration) {
	e.opts.MoveOverhead = max(0, d)
}

// SetAnalysisStore enables seeding from and saving to s. nil disables it.
func (e *Engine) SetAnalysisStore(s AnalysisStore) {
	e.store = s
}

func (e *Engine) TT() *TranspositionTable {
	return e.tt
}

// Search finds the best move for pos within limits. It returns when the
// limits are exhausted, Stop is called, or ctx is done. An infinite search
// only returns after Stop or ctx cancellation.
//
// Stop only reaches a search that has already started. Callers that stop
// from another goroutine should cancel ctx instead: a ctx cancelled before
// Search runs still ends it promptly.
func (e *Engine) Search(ctx context.Context, pos *board.Position, limits SearchLimits) SearchResult {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Each search gets its own flag so a late cancellation of an earlier
	// search cannot stop this one.
	stop := new(atomic.Bool)
	e.mu.Lock()
	e.stop = stop
	e.cancel = cancel
	e.mu.Unlock()
	context.AfterFunc(ctx, func() { stop.Store(true) })
	start := time.Now()

	var legal board.MoveList
	pos.LegalMoves(&legal)
	if legal.Len() == 0 {
		score := DrawScore
		if pos.InCheck() {
			score = MatedIn(0)
		}
		if limits.Infinite {
			<-ctx.Done()
		}
		return SearchResult{BestMove: board.NoMove, Score: score}
	}

	e.tt.NewSearch()
	for _, h := range e.history {
		h.Age()
	}
	e.tm.Init(limits, pos.SideToMove, gamePly(pos), e.opts.MoveOverhead)

	shared := &searchShared{stop: stop, limits: limits, tm: e.tm}
	shared.report = func(r WorkerResult) {
		e.report(r, shared, start)
	}

	maxDepth := MaxPly - 1
	if limits.Depth > 0 {
		maxDepth = min(limits.Depth, maxDepth)
	}

	best := e.lazySMP(pos, shared, maxDepth, e.seed(pos))
	if limits.Infinite {
		<-ctx.Done()
	}

	res := SearchResult{
		BestMove: best.Move,
		Score:    best.Score,
		Depth:    best.Depth,
		SelDepth: best.SelDepth,
		PV:       best.PV,
		Nodes:    lo.SumBy(e.workers, func(w *Worker) uint64 { return w.nodes }),
		Time:     time.Since(start),
	}
	if res.BestMove == board.NoMove {
		// Stopped before the first depth completed.
		res.BestMove = legal.Get(0)
		res.PV = []board.Move{res.BestMove}
	}
	if len(res.PV) > 1 {
		res.Ponder = res.PV[1]
	}

	e.save(pos, res)
	log.Debug().Str("move", res.BestMove.String()).Int("score", res.Score).Int("depth", res.Depth).
		Uint64("nodes", res.Nodes).Dur("elapsed", res.Time).Msg("search-complete")
	return res
}

// Stop aborts the running search. The result of the deepest completed
// iteration is still returned by Search.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stop != nil {
		e.stop.Store(true)
	}
	if e.cancel != nil {
		e.cancel()
	}
}

// Clear forgets everything learned so far: table, histories, refutations
// and caches.
func (e *Engine) Clear() {
	if err := e.tt.Clear(context.Background(), e.opts.Threads); err != nil {
		log.Warn().Err(err).Msg("tt-clear-failed")
	}
	for _, h := range e.history {
		h.Clear()
	}
	for _, w := range e.workers {
		w.Clear()
	}
}

// ClearHash empties only the transposition table.
func (e *Engine) ClearHash() {
	if err := e.tt.Clear(context.Background(), e.opts.Threads); err != nil {
		log.Warn().Err(err).Msg("tt-clear-failed")
	}
}

func (e *Engine) Perft(pos *board.Position, depth int) uint64 {
	return pos.Perft(depth)
}

func (e *Engine) Evaluate(pos *board.Position) int {
	return Evaluate(pos)
}

func (e *Engine) report(r WorkerResult, shared *searchShared, start time.Time) {
	if e.OnInfo == nil {
		return
	}
	elapsed := time.Since(start)
	nodes := max(shared.nodes.Load(), r.Nodes)
	var nps uint64
	if elapsed > 0 {
		nps = uint64(float64(nodes) / elapsed.Seconds())
	}
	e.OnInfo(SearchInfo{
		Depth:    r.Depth,
		SelDepth: r.SelDepth,
		Score:    r.Score,
		Nodes:    nodes,
		NPS:      nps,
		Time:     elapsed,
		PV:       r.PV,
		HashFull: e.tt.HashFull(),
	})
}

// seed primes the table with a stored analysis of pos and returns its
// score as the first aspiration centre. The seeded entry only lives until
// the depth 1 iteration stores its own root result over it; what carries
// over is the stored move, which that iteration tries first, and the score.
func (e *Engine) seed(pos *board.Position) int {
	if e.store == nil {
		return 0
	}
	rec, err := e.store.Get(pos.ToFEN())
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warn().Err(err).Msg("analysis-load-failed")
		}
		return 0
	}
	m, err := board.ParseMove(rec.Move, pos)
	if err != nil {
		return 0
	}
	e.tt.Store(pos.Hash, rec.Depth, rec.Score, noEval, TTExact, m)
	log.Debug().Str("move", rec.Move).Int("depth", rec.Depth).Msg("analysis-seeded")
	return rec.Score
}

func (e *Engine) save(pos *board.Position, res SearchResult) {
	if e.store == nil || res.Depth < minStoredDepth {
		return
	}
	rec := storage.Record{
		Move:  res.BestMove.String(),
		Score: res.Score,
		Depth: res.Depth,
		PV:    lo.Map(res.PV, func(m board.Move, _ int) string { return m.String() }),
		Nodes: res.Nodes,
	}
	if err := e.store.Put(pos.ToFEN(), rec); err != nil {
		log.Warn().Err(err).Msg("analysis-save-failed")
	}
}

// gamePly is the number of half-moves played before pos.
func gamePly(pos *board.Position) int {
	return max(0, (pos.FullMoveNumber-1)*2+b2i(pos.SideToMove == board.Black))
}
