package cowtree

// testMap is a minimal Map implementation used across this package's test
// files: []byte keys/values, lexicographic ordering, optionally backed by
// a real Store for tests that exercise serialization.
type testMap struct {
	id    uint64
	store *Store
}

func (m *testMap) Compare(a, b interface{}) int { return CompareBytes(a, b) }
func (m *testMap) KeyCodec() Codec              { return BytesCodec{} }
func (m *testMap) ValueCodec() Codec            { return BytesCodec{} }
func (m *testMap) ID() uint64                   { return m.id }
func (m *testMap) Store() *Store                { return m.store }

func (m *testMap) ReadPage(pos PagePosition) (*Page, error) {
	return ReadPage(m.store.fileStoreFor(pos), pos, m)
}

func (m *testMap) RemovePage(pos PagePosition, memory int) {
	if m.store != nil {
		m.store.decrementLiveBytes(pos, memory)
	}
}

func (m *testMap) ChildPageCount(p *Page) int { return len(p.children) }

func bk(s string) []byte { return []byte(s) }
