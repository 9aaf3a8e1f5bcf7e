package cowtree

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto"
)

// pageCache holds recently accessed pages, keyed by on-disk position.
// ristretto's TinyLFU admission policy and cost-based eviction favor
// frequently revisited pages over one-off reads, which is what an LIRS-style
// policy would also optimize for; caching an internal page twice (see
// (*Page).write) is an admission nudge toward keeping hot internal pages
// resident, not a correctness property.
type pageCache struct {
	rc *ristretto.Cache
}

func newPageCache(maxCost int64) (*pageCache, error) {
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxCost / 8 * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
		KeyToHash:   pagePositionKeyToHash,
	})
	if err != nil {
		return nil, err
	}
	return &pageCache{rc: rc}, nil
}

// pagePositionKeyToHash hashes a PagePosition key with xxhash, matching
// ristretto's own KeyToHash convention for non-trivial key types.
func pagePositionKeyToHash(key interface{}) (uint64, uint64) {
	pos := uint64(key.(PagePosition))
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], pos)
	return xxhash.Sum64(b[:]), pos
}

func (pc *pageCache) get(pos PagePosition) (*Page, bool) {
	v, ok := pc.rc.Get(pos)
	if !ok {
		return nil, false
	}
	return v.(*Page), true
}

func (pc *pageCache) set(pos PagePosition, p *Page, cost int) {
	pc.rc.Set(pos, p, int64(cost))
}

func (pc *pageCache) del(pos PagePosition) {
	pc.rc.Del(pos)
}

func (pc *pageCache) close() {
	pc.rc.Close()
}
