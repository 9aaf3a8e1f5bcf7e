package cowtree

import "sync/atomic"

// Chunk is an append-only file region containing many serialized pages
// plus the counters the store and garbage collector use to decide when a
// chunk is worth compacting. Counters are atomic since reads and the
// background compactor observe them without the writer's lock.
type Chunk struct {
	ID uint64

	maxLen        int64
	maxLenLive    int64
	pageCount     int64
	pageCountLive int64

	fileStore *FileStore
}

func newChunk(id uint64, fs *FileStore) *Chunk {
	return &Chunk{ID: id, fileStore: fs}
}

// MaxLen returns the total bytes ever written into the chunk.
func (c *Chunk) MaxLen() int64 { return atomic.LoadInt64(&c.maxLen) }

// MaxLenLive returns the bytes still reachable (not superseded or removed).
func (c *Chunk) MaxLenLive() int64 { return atomic.LoadInt64(&c.maxLenLive) }

// PageCount returns the total number of pages ever written into the chunk.
func (c *Chunk) PageCount() int64 { return atomic.LoadInt64(&c.pageCount) }

// PageCountLive returns the number of pages still reachable.
func (c *Chunk) PageCountLive() int64 { return atomic.LoadInt64(&c.pageCountLive) }

// recordWrite accounts for a freshly written page of the given length.
func (c *Chunk) recordWrite(length int) {
	atomic.AddInt64(&c.maxLen, int64(length))
	atomic.AddInt64(&c.maxLenLive, int64(length))
	atomic.AddInt64(&c.pageCount, 1)
	atomic.AddInt64(&c.pageCountLive, 1)
}

// recordRemoval accounts for a page of the given length becoming
// unreachable, without touching the total-bytes-ever-written counters.
func (c *Chunk) recordRemoval(length int) {
	atomic.AddInt64(&c.maxLenLive, -int64(length))
	atomic.AddInt64(&c.pageCountLive, -1)
}

// liveRatio is the fraction of the chunk's bytes still reachable, the
// signal the garbage collector uses to pick compaction candidates.
func (c *Chunk) liveRatio() float64 {
	total := c.MaxLen()
	if total == 0 {
		return 1
	}
	return float64(c.MaxLenLive()) / float64(total)
}
