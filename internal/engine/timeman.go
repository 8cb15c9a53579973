package engine

import (
	"time"

	"github.com/hailam/kestrel/internal/board"
)

// SearchLimits bounds a search. Zero values mean "no limit"; a search with
// no limits at all runs until Stop.
type SearchLimits struct {
	Time      [2]time.Duration // wtime, btime
	Inc       [2]time.Duration // winc, binc
	MovesToGo int              // 0 = sudden death
	MoveTime  time.Duration
	Depth     int
	Nodes     uint64
	Infinite  bool
}

// TimeManager turns clock limits into a soft and a hard deadline. The soft
// deadline is checked between iterations, the hard one while searching.
type TimeManager struct {
	startTime   time.Time
	baseOptimum time.Duration
	optimumTime time.Duration
	maximumTime time.Duration
	limited     bool
	fixed       bool
}

func NewTimeManager() *TimeManager {
	return &TimeManager{}
}

// Init sets the deadlines for a search by side us at game ply ply. overhead
// is subtracted from every allocation to cover transport latency.
func (tm *TimeManager) Init(limits SearchLimits, us board.Color, ply int, overhead time.Duration) {
	tm.startTime = time.Now()
	tm.limited = false
	tm.fixed = false

	if limits.Infinite {
		return
	}

	if limits.MoveTime > 0 {
		tm.limited = true
		tm.fixed = true
		tm.optimumTime = max(limits.MoveTime-overhead, time.Millisecond)
		tm.maximumTime = tm.optimumTime
		tm.baseOptimum = tm.optimumTime
		return
	}

	timeLeft := limits.Time[us]
	if timeLeft <= 0 {
		return
	}
	tm.limited = true
	timeLeft = max(timeLeft-overhead, time.Millisecond)
	inc := limits.Inc[us]

	// Sudden death: expect fewer remaining moves as the game goes on.
	mtg := limits.MovesToGo
	if mtg == 0 {
		mtg = max(10, min(50-ply/4, 50))
	}

	tm.optimumTime = timeLeft/time.Duration(mtg) + inc*9/10
	if ply < 8 {
		tm.optimumTime = tm.optimumTime * 85 / 100
	}

	tm.maximumTime = min(tm.optimumTime*5, timeLeft*8/10)
	tm.optimumTime = min(tm.optimumTime, tm.maximumTime)

	tm.optimumTime = max(tm.optimumTime, 5*time.Millisecond)
	tm.maximumTime = max(tm.maximumTime, 10*time.Millisecond)
	tm.baseOptimum = tm.optimumTime
}

func (tm *TimeManager) Elapsed() time.Duration {
	return time.Since(tm.startTime)
}

func (tm *TimeManager) OptimumTime() time.Duration {
	return tm.optimumTime
}

func (tm *TimeManager) MaximumTime() time.Duration {
	return tm.maximumTime
}

// Limited reports whether the search is bound by the clock at all.
func (tm *TimeManager) Limited() bool {
	return tm.limited
}

// ShouldStop reports whether the hard deadline has passed.
func (tm *TimeManager) ShouldStop() bool {
	return tm.limited && tm.Elapsed() >= tm.maximumTime
}

// PastOptimum reports whether a new iteration should not be started.
func (tm *TimeManager) PastOptimum() bool {
	return tm.limited && tm.Elapsed() >= tm.optimumTime
}

// AdjustForStability shortens the soft deadline after the best move has
// held for several iterations and lengthens it while the best move keeps
// changing. It is called by the main worker only.
func (tm *TimeManager) AdjustForStability(stability, changes int) {
	if tm.fixed {
		return
	}
	percent := 100
	switch {
	case changes >= 4:
		percent = 200
	case changes >= 2:
		percent = 150
	case stability >= 6:
		percent = 40
	case stability >= 4:
		percent = 60
	}
	tm.optimumTime = min(tm.baseOptimum*time.Duration(percent)/100, tm.maximumTime)
}
