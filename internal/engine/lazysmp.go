package engine

import (
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/hailam/kestrel/internal/board"
)

// lazySMP runs every worker on its own copy of pos against the shared
// transposition table. Helpers differ from the main worker only through
// root ordering noise and the entries they leave in the table. The main
// worker raises the stop flag when it finishes so helpers never outlive it.
func (e *Engine) lazySMP(pos *board.Position, shared *searchShared, maxDepth, seed int) WorkerResult {
	var g errgroup.Group
	for _, w := range e.workers {
		w.prepare(pos, shared, seed)
		g.Go(func() error {
			w.iterate(maxDepth)
			if w.id == 0 {
				shared.stop.Store(true)
			}
			log.Debug().Int("worker", w.id).Int("depth", w.result.Depth).
				Uint64("nodes", w.nodes).Uint64("null-window", w.stats.nullWindow).
				Uint64("re-searches", w.stats.verifications+w.stats.fullWindow).Msg("worker-exit")
			return nil
		})
	}
	_ = g.Wait()

	return selectResult(lo.Map(e.workers, func(w *Worker, _ int) WorkerResult {
		return w.result
	}))
}

// selectResult picks the deepest completed result. Ties keep the earlier
// worker, so the main worker wins them. Results without a move lose to any
// result with one.
func selectResult(results []WorkerResult) WorkerResult {
	if len(results) == 0 {
		return WorkerResult{}
	}
	best := results[0]
	for _, r := range results[1:] {
		if r.Move == board.NoMove {
			continue
		}
		if best.Move == board.NoMove || r.Depth > best.Depth {
			best = r
		}
	}
	return best
}
