package engine

import (
	"context"
	"sync/atomic"

	"github.com/pbnjay/memory"
	"golang.org/x/sync/errgroup"

	"github.com/hailam/kestrel/internal/board"
)

// TTFlag classifies the score stored in an entry.
type TTFlag uint8

const (
	TTExact      TTFlag = iota // alpha < score < beta
	TTLowerBound               // failed high
	TTUpperBound               // failed low
)

// TTEntry is the decoded form of a table slot.
type TTEntry struct {
	BestMove board.Move
	Score    int16 // node-relative, see AdjustScoreToTT
	Eval     int16 // raw static evaluation, or noEval
	Depth    int8
	Flag     TTFlag
	Age      uint8
}

// Data word layout.
const (
	ttScoreShift = 16
	ttEvalShift  = 32
	ttDepthShift = 48
	ttFlagShift  = 56
	ttAgeShift   = 58
	ttAgeMask    = 0x3F
)

// ttSlot holds one entry as two words. key is hash^data so that a slot
// whose words were written by different stores fails validation.
type ttSlot struct {
	key  atomic.Uint64
	data atomic.Uint64
}

// TranspositionTable is a direct-mapped cache shared by all search workers
// without locks. Entries are self-validating: Probe only accepts a slot
// whose key and data words were written together for the probed hash.
type TranspositionTable struct {
	slots []ttSlot
	mask  uint64
	age   atomic.Uint32

	hits   atomic.Uint64
	probes atomic.Uint64
}

const ttSlotSize = 16

// NewTranspositionTable allocates a table of at most sizeMB megabytes. The
// size is clamped to half of physical memory and rounded down to a power
// of two number of slots.
func NewTranspositionTable(sizeMB int) *TranspositionTable {
	bytes := uint64(max(sizeMB, 1)) << 20
	if total := memory.TotalMemory(); total > 0 && bytes > total/2 {
		bytes = total / 2
	}
	n := roundDownToPowerOf2(max(bytes/ttSlotSize, 1024))
	return &TranspositionTable{
		slots: make([]ttSlot, n),
		mask:  n - 1,
	}
}

func roundDownToPowerOf2(n uint64) uint64 {
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return (n + 1) >> 1
}

func packEntry(e TTEntry) uint64 {
	return uint64(e.BestMove) |
		uint64(uint16(e.Score))<<ttScoreShift |
		uint64(uint16(e.Eval))<<ttEvalShift |
		uint64(uint8(e.Depth+1))<<ttDepthShift |
		uint64(e.Flag&3)<<ttFlagShift |
		uint64(e.Age&ttAgeMask)<<ttAgeShift
}

func unpackEntry(data uint64) TTEntry {
	return TTEntry{
		BestMove: board.Move(data),
		Score:    int16(uint16(data >> ttScoreShift)),
		Eval:     int16(uint16(data >> ttEvalShift)),
		Depth:    int8(uint8(data>>ttDepthShift)) - 1,
		Flag:     TTFlag(data>>ttFlagShift) & 3,
		Age:      uint8(data>>ttAgeShift) & ttAgeMask,
	}
}

func occupied(data uint64) bool {
	return uint8(data>>ttDepthShift) != 0
}

// Probe returns the entry stored for hash. A slot holding another position,
// or one torn by concurrent writers, is reported as absent.
func (tt *TranspositionTable) Probe(hash uint64) (TTEntry, bool) {
	tt.probes.Add(1)
	slot := &tt.slots[hash&tt.mask]
	data := slot.data.Load()
	key := slot.key.Load()
	if key^data != hash || !occupied(data) {
		return TTEntry{}, false
	}
	tt.hits.Add(1)
	return unpackEntry(data), true
}

// keepResident reports whether a same-generation entry of another position
// survives an incoming store. Depth decides; the only exception lets an exact
// result displace a bound that is one ply deeper.
func keepResident(old TTEntry, depth int, flag TTFlag) bool {
	if depth >= int(old.Depth) {
		return false
	}
	return !(flag == TTExact && old.Flag != TTExact && depth+1 == int(old.Depth))
}

// Store records a search result for hash. Empty slots, slots already holding
// hash and slots from an earlier search are always written. Otherwise the
// incoming entry replaces the resident one when it is at least as deep.
func (tt *TranspositionTable) Store(hash uint64, depth, score, eval int, flag TTFlag, move board.Move) {
	slot := &tt.slots[hash&tt.mask]
	age := uint8(tt.age.Load()) & ttAgeMask

	oldData := slot.data.Load()
	if occupied(oldData) {
		old := unpackEntry(oldData)
		if slot.key.Load()^oldData == hash {
			if move == board.NoMove {
				move = old.BestMove
			}
		} else if old.Age == age && keepResident(old, depth, flag) {
			return
		}
	}

	data := packEntry(TTEntry{
		BestMove: move,
		Score:    int16(score),
		Eval:     int16(eval),
		Depth:    int8(min(max(depth, 0), 126)),
		Flag:     flag,
		Age:      age,
	})
	slot.key.Store(hash ^ data)
	slot.data.Store(data)
}

// NewSearch advances the generation used by the replacement policy.
func (tt *TranspositionTable) NewSearch() {
	tt.age.Add(1)
}

// Clear zeroes the table using one goroutine per chunk.
func (tt *TranspositionTable) Clear(ctx context.Context, workers int) error {
	workers = max(workers, 1)
	chunk := (len(tt.slots) + workers - 1) / workers
	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(tt.slots); start += chunk {
		slots := tt.slots[start:min(start+chunk, len(tt.slots))]
		g.Go(func() error {
			for i := range slots {
				if i&0xFFFF == 0 && ctx.Err() != nil {
					return ctx.Err()
				}
				slots[i].key.Store(0)
				slots[i].data.Store(0)
			}
			return nil
		})
	}
	err := g.Wait()
	tt.age.Store(0)
	tt.hits.Store(0)
	tt.probes.Store(0)
	return err
}

// HashFull returns the permille of sampled slots written during the current search.
func (tt *TranspositionTable) HashFull() int {
	sample := min(1000, len(tt.slots))
	age := uint8(tt.age.Load()) & ttAgeMask
	used := 0
	for i := 0; i < sample; i++ {
		data := tt.slots[i].data.Load()
		if occupied(data) && unpackEntry(data).Age == age {
			used++
		}
	}
	return used * 1000 / sample
}

// HitRate returns the percentage of probes that found an entry.
func (tt *TranspositionTable) HitRate() float64 {
	probes := tt.probes.Load()
	if probes == 0 {
		return 0
	}
	return float64(tt.hits.Load()) / float64(probes) * 100
}

// Size returns the number of slots.
func (tt *TranspositionTable) Size() uint64 {
	return uint64(len(tt.slots))
}
