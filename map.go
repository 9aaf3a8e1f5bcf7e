package cowtree

import "sync"

// Map is the external collaborator that owns a tree of pages: it supplies
// the comparator and codecs, the page loader for resolving position-only
// references, and the hook pages call into on removal. The page package
// never holds a concrete map type, only this capability set, so the same
// core serves ordinary key/value maps and map variants that hide a
// trailing child (spatial indexes and the like) via ChildPageCount.
type Map interface {
	Compare(a, b interface{}) int
	KeyCodec() Codec
	ValueCodec() Codec
	ID() uint64
	Store() *Store
	ReadPage(pos PagePosition) (*Page, error)
	RemovePage(pos PagePosition, memory int)
	ChildPageCount(p *Page) int
}

// KVMap is the default Map implementation: an ordinary key/value B-tree
// with a caller-supplied comparator and codecs, backed by one Store.
type KVMap struct {
	id         uint64
	compare    Comparator
	keyCodec   Codec
	valueCodec Codec
	store      *Store

	mu   sync.Mutex
	root *Page
}

// NewKVMap constructs a map with the given id, comparator, codecs, and
// backing store, and initializes an empty root page at version 0.
func NewKVMap(id uint64, compare Comparator, keyCodec, valueCodec Codec, store *Store) *KVMap {
	m := &KVMap{
		id:         id,
		compare:    compare,
		keyCodec:   keyCodec,
		valueCodec: valueCodec,
		store:      store,
	}
	m.root = createEmptyPage(m, 0)
	return m
}

func (m *KVMap) Compare(a, b interface{}) int { return m.compare(a, b) }
func (m *KVMap) KeyCodec() Codec              { return m.keyCodec }
func (m *KVMap) ValueCodec() Codec            { return m.valueCodec }
func (m *KVMap) ID() uint64                   { return m.id }
func (m *KVMap) Store() *Store                { return m.store }

// ReadPage resolves a position-only child reference by reading it from the
// store's chunk files, consulting the page cache first.
func (m *KVMap) ReadPage(pos PagePosition) (*Page, error) {
	if cached, ok := m.store.cacheGet(pos); ok {
		return cached, nil
	}
	p, err := ReadPage(m.store.fileStoreFor(pos), pos, m)
	if err != nil {
		return nil, err
	}
	m.store.cachePage(pos, p, p.memory)
	return p, nil
}

// RemovePage informs the store that a page at pos (with the given memory
// estimate) is no longer reachable, so the owning chunk's live-byte
// counters can be decremented.
func (m *KVMap) RemovePage(pos PagePosition, memory int) {
	m.store.decrementLiveBytes(pos, memory)
}

// ChildPageCount returns the raw number of children an internal page
// carries. Map variants that hide a trailing auxiliary child override this
// rather than the page introspecting its own subtype.
func (m *KVMap) ChildPageCount(p *Page) int {
	return len(p.children)
}

// Root returns the map's current root page under the map's lock.
func (m *KVMap) Root() *Page {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.root
}

func (m *KVMap) lock()   { m.mu.Lock() }
func (m *KVMap) unlock() { m.mu.Unlock() }
