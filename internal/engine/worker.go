package engine

import (
	"sync/atomic"

	"github.com/hailam/kestrel/internal/board"
)

const (
	noEval            = -Infinity
	nodeCheckInterval = 1024
	maxQuiescencePly  = 32
	stackOffset       = 2
	rootPerturbation  = 256
)

// stackEntry is the per-ply search state. move and piece describe the move
// played from this ply, which the child reads for continuation history.
type stackEntry struct {
	move       board.Move
	piece      board.Piece
	staticEval int
	excluded   board.Move
	nullMove   bool
}

func (e *stackEntry) pieceTo() pieceTo {
	if e.piece == board.NoPiece {
		return noPieceTo
	}
	return pieceTo{piece: e.piece, to: e.move.To()}
}

// searchShared is the state every worker of one search points at.
type searchShared struct {
	stop   *atomic.Bool
	nodes  atomic.Uint64
	limits SearchLimits
	tm     *TimeManager
	report func(WorkerResult)
}

// Worker runs one iterative deepening search. Workers of a search share the
// transposition table and stop flag; everything else is their own unless
// histories are configured to be shared.
type Worker struct {
	id      int
	pos     *board.Position
	tt      *TranspositionTable
	params  *SearchParams
	tables  *searchTables
	shared  *searchShared
	history *HistoryTables
	killers KillerTable
	corr    *CorrectionHistory
	evals   *EvalCache

	stats     searchStats
	stack     [MaxPly + stackOffset + 2]stackEntry
	pv        PVTable
	nodes     uint64
	seldepth  int
	rootDepth int
	seedScore int

	result WorkerResult
}

// searchStats counts the null-window searches of late moves and the
// re-searches they triggered.
type searchStats struct {
	nullWindow    uint64
	verifications uint64
	fullWindow    uint64

	// failLowReSearches stays zero: a null-window fail-low is final.
	failLowReSearches uint64
}

func (s *searchStats) reSearched(score, alpha int) {
	if score <= alpha {
		s.failLowReSearches++
	}
}

// WorkerResult is the outcome of a worker's deepest completed iteration.
type WorkerResult struct {
	WorkerID int
	Depth    int
	SelDepth int
	Score    int
	Move     board.Move
	PV       []board.Move
	Nodes    uint64
}

// NewWorker creates a worker. history may be shared with other workers.
func NewWorker(id int, tt *TranspositionTable, params *SearchParams, tables *searchTables, history *HistoryTables) *Worker {
	return &Worker{
		id:      id,
		tt:      tt,
		params:  params,
		tables:  tables,
		history: history,
		corr:    NewCorrectionHistory(),
		evals:   NewEvalCache(256),
	}
}

func (w *Worker) ID() int {
	return w.id
}

func (w *Worker) Nodes() uint64 {
	return w.nodes
}

// prepare readies the worker for a new search of pos.
func (w *Worker) prepare(pos *board.Position, shared *searchShared, seedScore int) {
	w.pos = pos.Copy()
	w.shared = shared
	w.nodes = 0
	w.stats = searchStats{}
	w.seldepth = 0
	w.seedScore = seedScore
	w.killers.Clear()
	for i := range w.stack {
		w.stack[i] = stackEntry{piece: board.NoPiece, staticEval: noEval}
	}
	w.result = WorkerResult{WorkerID: w.id}
}

// Clear forgets everything learned in previous games.
func (w *Worker) Clear() {
	w.killers.Clear()
	w.corr.Clear()
	w.evals.Clear()
}

func (w *Worker) frame(ply int) *stackEntry {
	return &w.stack[ply+stackOffset]
}

func (w *Worker) stopped() bool {
	return w.shared.stop.Load()
}

// checkLimits publishes node progress and raises the stop flag once the
// node budget or the hard deadline is exhausted.
func (w *Worker) checkLimits() {
	total := w.shared.nodes.Add(nodeCheckInterval)
	if n := w.shared.limits.Nodes; n > 0 && total >= n {
		w.shared.stop.Store(true)
	}
	if w.shared.tm.ShouldStop() {
		w.shared.stop.Store(true)
	}
}

func (w *Worker) evaluate() int {
	if v, ok := w.evals.Probe(w.pos.Hash); ok {
		return v
	}
	v := Evaluate(w.pos)
	w.evals.Store(w.pos.Hash, v)
	return v
}

func (w *Worker) isDraw(ply int) bool {
	return w.pos.IsFiftyMoveDraw() || w.pos.IsInsufficientMaterial() || w.pos.IsRepetition(ply)
}

func clampEval(v int) int {
	return max(-MateThreshold+1, min(v, MateThreshold-1))
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ttCutoff reports whether a stored bound settles the window.
func ttCutoff(flag TTFlag, score, alpha, beta int) bool {
	switch flag {
	case TTExact:
		return true
	case TTLowerBound:
		return score >= beta
	case TTUpperBound:
		return score <= alpha
	}
	return false
}

// multiCut is the fail-high returned when a singular verification shows
// that a move other than the TT move also beats beta.
type multiCut struct {
	score int
	ok    bool
}

// singular decides the extension of the TT move m at a node searched to
// depth. From SingularMinDepth on, every other move is searched at reduced
// depth against sBeta; if none reaches it m is extended, and if one does
// while sBeta is at least beta the node is cut. Below SingularMinDepth a
// TT score well above the static evaluation extends m without a search and
// never cuts.
func (w *Worker) singular(depth, ply, beta, staticEval int, m board.Move, entry TTEntry, ttScore int) (int, multiCut) {
	p := w.params
	switch {
	case depth >= p.SingularMinDepth && int(entry.Depth) >= depth-3:
		ss := w.frame(ply)
		sBeta := ttScore - p.SingularMarginFactor*depth
		ss.excluded = m
		score := w.negamax((depth-1)/2, ply, sBeta-1, sBeta, false)
		ss.excluded = board.NoMove
		w.pv.clear(ply)
		switch {
		case w.stopped():
		case score < sBeta:
			return 1, multiCut{}
		case sBeta >= beta:
			return 0, multiCut{score: sBeta, ok: true}
		}
	case depth < p.SingularMinDepth && depth >= p.LowDepthSingularMinDepth &&
		int(entry.Depth) >= depth-2 && staticEval != noEval &&
		ttScore >= staticEval+p.LowDepthSingularMargin:
		return 1, multiCut{}
	}
	return 0, multiCut{}
}

// negamax is the principal variation search. It returns a fail-soft score
// from the side to move's point of view.
func (w *Worker) negamax(depth, ply, alpha, beta int, pvNode bool) int {
	p := w.params
	rootNode := ply == 0
	w.pv.clear(ply)

	w.nodes++
	if w.nodes%nodeCheckInterval == 0 {
		w.checkLimits()
	}
	if w.stopped() {
		return 0
	}
	if ply >= MaxPly {
		return w.evaluate()
	}
	if pvNode {
		w.seldepth = max(w.seldepth, ply)
	}

	ss := w.frame(ply)
	excluded := ss.excluded
	inCheck := w.pos.InCheck()

	// Draw detection and mate distance pruning
	if !rootNode {
		if w.isDraw(ply) {
			return DrawScore
		}
		alpha = max(alpha, MatedIn(ply))
		beta = min(beta, MateIn(ply+1))
		if alpha >= beta {
			return alpha
		}
	}

	// Probe transposition table
	var ttMove board.Move
	ttScore := 0
	entry, ttHit := w.tt.Probe(w.pos.Hash)
	if excluded != board.NoMove {
		ttHit = false
	}
	if ttHit {
		ttMove = entry.BestMove
		ttScore = AdjustScoreFromTT(int(entry.Score), ply)
		if !rootNode && int(entry.Depth) >= depth && ttCutoff(entry.Flag, ttScore, alpha, beta) {
			return ttScore
		}
	}

	// Horizon: hand off to quiescence
	if depth <= 0 {
		return w.quiescence(ply, 0, alpha, beta)
	}

	// Static evaluation
	rawEval, staticEval, eval := noEval, noEval, noEval
	switch {
	case inCheck:
	case excluded != board.NoMove:
		staticEval = ss.staticEval
		eval = staticEval
	default:
		if ttHit && int(entry.Eval) != noEval {
			rawEval = int(entry.Eval)
		} else {
			rawEval = w.evaluate()
		}
		staticEval = clampEval(rawEval + w.corr.Get(w.pos))
		eval = staticEval
		if ttHit && !IsMateScore(ttScore) &&
			(entry.Flag == TTExact ||
				(entry.Flag == TTLowerBound && ttScore > eval) ||
				(entry.Flag == TTUpperBound && ttScore < eval)) {
			eval = ttScore
		}
	}
	ss.staticEval = staticEval

	improving := false
	if !inCheck {
		if prev := w.frame(ply - 2).staticEval; prev != noEval {
			improving = staticEval > prev
		}
	}

	// Pre-move pruning
	if !pvNode && !inCheck && excluded == board.NoMove {
		// Reverse futility pruning
		if depth <= p.RFPMaxDepth && eval < MateThreshold &&
			eval-p.RFPMargin*(depth-b2i(improving)) >= beta {
			return eval
		}

		// Null move pruning
		if depth >= p.NullMoveMinDepth && eval >= beta && staticEval >= beta &&
			!w.frame(ply-1).nullMove && beta > -MateThreshold && w.pos.HasNonPawnMaterial() {
			r := p.NullMoveBase + depth/p.NullMoveDepthDivisor + min((eval-beta)/p.NullMoveEvalDivisor, 3)
			ss.move, ss.piece, ss.nullMove = board.NoMove, board.NoPiece, true
			undo := w.pos.MakeNullMove()
			score := -w.negamax(depth-1-r, ply+1, -beta, -beta+1, false)
			w.pos.UnmakeNullMove(undo)
			ss.nullMove = false
			if w.stopped() {
				return 0
			}
			if score >= beta {
				return beta
			}
		}
	}

	// Internal iterative reduction
	if depth >= p.IIRMinDepth && ttMove == board.NoMove && excluded == board.NoMove {
		depth--
	}

	// Generate and order moves
	var mp MovePicker
	w.pos.LegalMoves(&mp.moves)
	if mp.moves.Len() == 0 {
		if inCheck {
			return MatedIn(ply)
		}
		return DrawScore
	}
	prev := w.frame(ply - 1)
	oc := orderContext{
		ttMove:     ttMove,
		killers:    w.killers[ply],
		refutation: w.history.Refutation(prev.piece, prev.move.To()),
		history:    w.history,
		cont:       [2]pieceTo{prev.pieceTo(), w.frame(ply - 2).pieceTo()},
	}
	mp.Init(w.pos, &oc)
	if rootNode && w.id > 0 {
		mp.perturb(rootPerturbation)
	}

	us := w.pos.SideToMove
	origAlpha := alpha
	bestScore, bestMove := -Infinity, board.NoMove
	movesSearched, quietCount := 0, 0
	var quiets, noisy [64]board.Move
	nQuiets, nNoisy := 0, 0
	lmpLimit := w.tables.lmpLimit(depth, improving)

	for {
		m, ok := mp.Next()
		if !ok {
			break
		}
		if m == excluded {
			continue
		}

		isCapture := m.IsCapture(w.pos)
		quiet := !isCapture && !m.IsPromotion()
		moved := w.pos.Board[m.From()]
		victim := capturedType(w.pos, m)
		var hist int
		if quiet {
			hist = w.history.Quiet(us, m)
			for _, c := range oc.cont {
				hist += w.history.Continuation(c.piece, c.to, moved, m.To())
			}
		} else {
			hist = w.history.Capture(moved, m.To(), victim)
		}

		// Extensions
		extension := 0
		if inCheck {
			extension = 1
		}
		if !rootNode && m == ttMove && excluded == board.NoMove && ttHit &&
			entry.Flag != TTUpperBound && !IsMateScore(ttScore) && ply < 2*w.rootDepth {
			ext, cut := w.singular(depth, ply, beta, staticEval, m, entry, ttScore)
			if w.stopped() {
				return 0
			}
			if cut.ok {
				return cut.score
			}
			extension += ext
		}

		// Per-move pruning
		if !rootNode && bestScore > -MateThreshold {
			lmrDepth := max(depth-1-w.tables.reduction(depth, movesSearched+1), 0)
			if quiet {
				// Late move pruning
				if quietCount >= lmpLimit {
					mp.SkipQuiets()
					continue
				}
				// Futility pruning
				if !pvNode && !inCheck && lmrDepth <= p.FutilityMaxDepth &&
					staticEval+p.FutilityBase+p.FutilityMargin*lmrDepth <= alpha &&
					!w.pos.GivesCheck(m) {
					quietCount++
					continue
				}
				// History pruning
				if !pvNode && lmrDepth <= p.HistoryPruneMaxDepth && hist < -p.HistoryPruneFactor*depth*depth {
					quietCount++
					continue
				}
				if !inCheck && !w.pos.SEEGreaterEqual(m, -p.SEEQuietMargin*lmrDepth*lmrDepth) {
					quietCount++
					continue
				}
			} else if !inCheck && depth <= p.FutilityMaxDepth {
				// SEE-assisted futility for captures
				see := w.pos.SEE(m)
				if see < -p.SEECaptureMargin*depth {
					continue
				}
				if !pvNode && staticEval+p.FutilityBase+p.FutilityMargin*depth+see <= alpha {
					continue
				}
			}
		}

		ss.move, ss.piece = m, moved
		undo := w.pos.MakeMove(m)
		movesSearched++
		if quiet {
			quietCount++
		}
		newDepth := depth - 1 + extension

		var score int
		if movesSearched == 1 {
			score = -w.negamax(newDepth, ply+1, -beta, -alpha, pvNode)
		} else {
			// Late move reductions
			reduction := 0
			if depth >= 3 && movesSearched > 1+2*b2i(rootNode) {
				r := w.tables.reduction(depth, movesSearched)
				r -= hist / p.LMRHistoryDivisor
				if !quiet {
					r--
				}
				if pvNode {
					r--
				}
				if improving {
					r--
				}
				if inCheck {
					r--
				}
				reduction = max(0, min(r, newDepth-1))
			}

			score = -w.negamax(newDepth-reduction, ply+1, -alpha-1, -alpha, false)
			w.stats.nullWindow++
			if needsVerification(reduction > 0, score, alpha) {
				w.stats.reSearched(score, alpha)
				w.stats.verifications++
				score = -w.negamax(newDepth, ply+1, -alpha-1, -alpha, false)
			}
			if needsFullWindow(pvNode, score, alpha) {
				w.stats.reSearched(score, alpha)
				w.stats.fullWindow++
				score = -w.negamax(newDepth, ply+1, -beta, -alpha, true)
			}
		}

		w.pos.UnmakeMove(m, undo)
		if w.stopped() {
			return 0
		}

		if score > bestScore {
			bestScore = score
			if score > alpha {
				bestMove = m
				alpha = score
				w.pv.update(ply, m)
				if score >= beta {
					w.updateCutoffStats(ply, depth, m, quiet, moved, victim, quiets[:nQuiets], noisy[:nNoisy], &oc)
					break
				}
			}
		}

		if quiet && nQuiets < len(quiets) {
			quiets[nQuiets] = m
			nQuiets++
		} else if !quiet && nNoisy < len(noisy) {
			noisy[nNoisy] = m
			nNoisy++
		}
	}

	if movesSearched == 0 {
		// Only the excluded move was legal.
		return alpha
	}

	// Store the result
	if excluded == board.NoMove {
		flag := TTUpperBound
		switch {
		case bestScore >= beta:
			flag = TTLowerBound
		case bestScore > origAlpha:
			flag = TTExact
		}

		if !inCheck && rawEval != noEval && !IsMateScore(bestScore) && (bestMove == board.NoMove || bestMove.IsQuiet(w.pos)) &&
			!(flag == TTLowerBound && bestScore <= staticEval) &&
			!(flag == TTUpperBound && bestScore >= staticEval) {
			w.corr.Update(w.pos, bestScore, rawEval, depth)
		}

		w.tt.Store(w.pos.Hash, depth, AdjustScoreToTT(bestScore, ply), rawEval, flag, bestMove)
	}

	return bestScore
}

// updateCutoffStats rewards the move that failed high and penalises the
// moves of the same class tried before it.
func (w *Worker) updateCutoffStats(ply, depth int, m board.Move, quiet bool, moved board.Piece,
	victim board.PieceType, quiets, noisy []board.Move, oc *orderContext) {
	bonus := historyBonus(depth)
	if quiet {
		w.killers.Add(ply, m)
		w.history.SetRefutation(oc.cont[0].piece, oc.cont[0].to, m)
		w.updateQuietStats(m, moved, bonus, oc)
		for _, q := range quiets {
			w.updateQuietStats(q, w.pos.Board[q.From()], -bonus, oc)
		}
	} else {
		w.history.UpdateCapture(moved, m.To(), victim, bonus)
	}
	for _, n := range noisy {
		w.history.UpdateCapture(w.pos.Board[n.From()], n.To(), capturedType(w.pos, n), -bonus)
	}
}

func (w *Worker) updateQuietStats(m board.Move, moved board.Piece, bonus int, oc *orderContext) {
	w.history.UpdateQuiet(w.pos.SideToMove, m, bonus)
	for _, c := range oc.cont {
		w.history.UpdateContinuation(c.piece, c.to, moved, m.To(), bonus)
	}
}

// quiescence resolves captures (and every evasion when in check) until the
// position is quiet, so that the horizon never lands mid-exchange.
func (w *Worker) quiescence(ply, qply, alpha, beta int) int {
	w.pv.clear(ply)
	w.nodes++
	if w.nodes%nodeCheckInterval == 0 {
		w.checkLimits()
	}
	if w.stopped() {
		return 0
	}
	w.seldepth = max(w.seldepth, ply)

	if w.isDraw(ply) {
		return DrawScore
	}
	inCheck := w.pos.InCheck()
	if ply >= MaxPly || qply >= maxQuiescencePly {
		if inCheck {
			return DrawScore
		}
		return w.evaluate()
	}

	entry, ttHit := w.tt.Probe(w.pos.Hash)
	if ttHit {
		score := AdjustScoreFromTT(int(entry.Score), ply)
		if ttCutoff(entry.Flag, score, alpha, beta) {
			return score
		}
	}

	rawEval := noEval
	bestScore := -Infinity
	if !inCheck {
		// Stand pat
		if ttHit && int(entry.Eval) != noEval {
			rawEval = int(entry.Eval)
		} else {
			rawEval = w.evaluate()
		}
		bestScore = clampEval(rawEval + w.corr.Get(w.pos))
		if bestScore >= beta {
			return bestScore
		}
		alpha = max(alpha, bestScore)
	}

	var mp MovePicker
	if inCheck {
		w.pos.LegalMoves(&mp.moves)
		if mp.moves.Len() == 0 {
			return MatedIn(ply)
		}
	} else {
		w.pos.LegalCaptures(&mp.moves)
	}
	mp.InitNoisy(w.pos, w.history)

	bestMove := board.NoMove
	ss := w.frame(ply)
	for {
		m, ok := mp.Next()
		if !ok {
			break
		}
		if !inCheck {
			// Delta pruning
			gain := 0
			if victim := capturedType(w.pos, m); victim != board.NoPieceType {
				gain = board.PieceValue[victim]
			}
			if m.IsPromotion() {
				gain += board.PieceValue[board.Queen] - board.PieceValue[board.Pawn]
			}
			if bestScore+gain+w.params.QSearchDeltaMargin <= alpha {
				continue
			}
			if !w.pos.SEEGreaterEqual(m, 0) {
				continue
			}
		}

		ss.move, ss.piece = m, w.pos.Board[m.From()]
		undo := w.pos.MakeMove(m)
		score := -w.quiescence(ply+1, qply+1, -beta, -alpha)
		w.pos.UnmakeMove(m, undo)
		if w.stopped() {
			return 0
		}

		if score > bestScore {
			bestScore = score
			if score > alpha {
				bestMove = m
				alpha = score
				w.pv.update(ply, m)
				if score >= beta {
					break
				}
			}
		}
	}

	flag := TTUpperBound
	if bestScore >= beta {
		flag = TTLowerBound
	}
	w.tt.Store(w.pos.Hash, 0, AdjustScoreToTT(bestScore, ply), rawEval, flag, bestMove)
	return bestScore
}
