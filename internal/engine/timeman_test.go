package engine

import (
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/hailam/kestrel/internal/board"
)

func TestTimeManagerLimits(t *testing.T) {
	is := is.New(t)
	tm := NewTimeManager()

	tm.Init(SearchLimits{Infinite: true}, board.White, 0, 0)
	is.True(!tm.Limited())
	is.True(!tm.ShouldStop())

	tm.Init(SearchLimits{MoveTime: 500 * time.Millisecond}, board.White, 0, 20*time.Millisecond)
	is.True(tm.Limited())
	is.Equal(tm.OptimumTime(), 480*time.Millisecond)
	is.Equal(tm.MaximumTime(), tm.OptimumTime())
	tm.AdjustForStability(10, 0)
	is.Equal(tm.OptimumTime(), 480*time.Millisecond) // fixed budgets ignore stability

	limits := SearchLimits{
		Time: [2]time.Duration{60 * time.Second, 30 * time.Second},
		Inc:  [2]time.Duration{time.Second, time.Second},
	}
	tm.Init(limits, board.Black, 40, 10*time.Millisecond)
	is.True(tm.OptimumTime() > 0)
	is.True(tm.OptimumTime() <= tm.MaximumTime())
	is.True(tm.MaximumTime() < 30*time.Second)

	base := tm.OptimumTime()
	tm.AdjustForStability(6, 0)
	is.True(tm.OptimumTime() < base)
	tm.AdjustForStability(0, 4)
	is.True(tm.OptimumTime() > base)
	is.True(tm.OptimumTime() <= tm.MaximumTime())
}
