package engine

type evalEntry struct {
	key   uint64
	score int32
}

// EvalCache memoises static evaluations by position hash. It belongs to a
// single worker and is not safe for concurrent use.
type EvalCache struct {
	entries []evalEntry
	mask    uint64
}

// NewEvalCache creates a cache of roughly sizeKB kilobytes.
func NewEvalCache(sizeKB int) *EvalCache {
	n := roundDownToPowerOf2(max(uint64(sizeKB)*1024/16, 1))
	return &EvalCache{
		entries: make([]evalEntry, n),
		mask:    n - 1,
	}
}

func (c *EvalCache) Probe(hash uint64) (int, bool) {
	e := &c.entries[hash&c.mask]
	if e.key == hash && hash != 0 {
		return int(e.score), true
	}
	return 0, false
}

func (c *EvalCache) Store(hash uint64, score int) {
	c.entries[hash&c.mask] = evalEntry{key: hash, score: int32(score)}
}

func (c *EvalCache) Clear() {
	clear(c.entries)
}
