package cowtree

// defaultMaxKeys bounds how many keys a page holds before splitLeaf or
// splitInternal divides it.
const defaultMaxKeys = 64

// KeyValuePair carries one entry out of a range scan.
type KeyValuePair struct {
	Key   interface{}
	Value interface{}
}

// OpTransform rewrites (or filters, by returning nil) a KeyValuePair as it
// is collected during a range scan.
type OpTransform func(kv *KeyValuePair) *KeyValuePair

// RangeOpts configures a Range scan.
type RangeOpts struct {
	MinVersion *uint64
	Transform  OpTransform
}

// BTree drives the insert/remove/split machinery in page.go against a
// KVMap's current root, serializing every mutation under the map's
// single-writer lock and committing it with writeTree before returning.
type BTree struct {
	m       *KVMap
	maxKeys int
}

// NewBTree wraps m with B-tree operations using the default order.
func NewBTree(m *KVMap) *BTree {
	return &BTree{m: m, maxKeys: defaultMaxKeys}
}

func resolveChild(p *Page, index int, m *KVMap) (*Page, error) {
	ref := p.children[index]
	if ref.Page != nil {
		return ref.Page, nil
	}
	return m.ReadPage(ref.Position)
}

// Get returns the value for key, or ok=false if absent.
func (t *BTree) Get(key interface{}) (interface{}, bool, error) {
	p := t.m.Root()
	for {
		idx := p.binarySearch(key)
		if p.IsLeaf() {
			if idx >= 0 {
				return p.values[idx], true, nil
			}
			return nil, false, nil
		}
		childIdx := idx
		if idx < 0 {
			childIdx = -(idx + 1)
		} else {
			childIdx = idx + 1
		}
		child, err := resolveChild(p, childIdx, t.m)
		if err != nil {
			return nil, false, err
		}
		p = child
	}
}

// Put inserts or updates key/value, copy-on-write at a fresh version, and
// commits the resulting tree to disk before returning.
func (t *BTree) Put(key, value interface{}) error {
	t.m.lock()
	defer t.m.unlock()

	newVersion := t.m.root.version + 1
	newRoot, promoted, right, split, err := btreeInsert(t.m.root, key, value, newVersion, t.maxKeys, t.m)
	if err != nil {
		return err
	}

	if split {
		newRoot = createInternal(t.m, newVersion, []interface{}{promoted}, []PageReference{
			{Page: newRoot, Position: newRoot.position, Count: newRoot.totalCount},
			{Page: right, Position: right.position, Count: right.totalCount},
		})
	}

	if err := writeTree(newRoot, t.m.store); err != nil {
		return err
	}
	t.m.root = newRoot
	return nil
}

// btreeInsert recurses to the target leaf, inserting or updating key, and
// propagates splits back up. It returns the (possibly split) subtree root,
// the key to promote into the parent when split is true, and the new
// right sibling.
func btreeInsert(p *Page, key, value interface{}, version uint64, maxKeys int, m *KVMap) (newPage *Page, promotedKey interface{}, right *Page, split bool, err error) {
	cp := p.copy(version)
	idx := cp.binarySearch(key)

	if cp.IsLeaf() {
		if idx >= 0 {
			cp.setValue(idx, value)
		} else {
			cp.insertLeaf(-(idx+1), key, value)
		}
	} else {
		childIdx := idx
		if idx < 0 {
			childIdx = -(idx + 1)
		} else {
			childIdx = idx + 1
		}

		child, err := resolveChild(cp, childIdx, m)
		if err != nil {
			return nil, nil, nil, false, err
		}

		newChild, childPromoted, childRight, childSplit, err := btreeInsert(child, key, value, version, maxKeys, m)
		if err != nil {
			return nil, nil, nil, false, err
		}

		cp.setChild(childIdx, newChild)
		if childSplit {
			cp.insertNode(childIdx, childPromoted, childRight)
		}
	}

	if len(cp.keys) <= maxKeys {
		return cp, nil, nil, false, nil
	}

	mid := len(cp.keys) / 2
	if cp.IsLeaf() {
		right := cp.splitLeaf(mid)
		return cp, right.keys[0], right, true, nil
	}

	promoted := cp.keys[mid]
	right = cp.splitInternal(mid)
	return cp, promoted, right, true, nil
}

// Delete removes key if present, copy-on-write at a fresh version.
// Underflowing pages are left as-is: there is no sibling merge or
// redistribution, only insert, remove, and split.
func (t *BTree) Delete(key interface{}) (bool, error) {
	t.m.lock()
	defer t.m.unlock()

	newVersion := t.m.root.version + 1
	newRoot, removed, err := btreeDelete(t.m.root, key, newVersion, t.m)
	if err != nil {
		return false, err
	}
	if !removed {
		return false, nil
	}

	if err := writeTree(newRoot, t.m.store); err != nil {
		return false, err
	}
	t.m.root = newRoot
	return true, nil
}

func btreeDelete(p *Page, key interface{}, version uint64, m *KVMap) (*Page, bool, error) {
	cp := p.copy(version)
	idx := cp.binarySearch(key)

	if cp.IsLeaf() {
		if idx < 0 {
			return cp, false, nil
		}
		cp.remove(idx)
		return cp, true, nil
	}

	childIdx := idx
	if idx < 0 {
		childIdx = -(idx + 1)
	} else {
		childIdx = idx + 1
	}

	child, err := resolveChild(cp, childIdx, m)
	if err != nil {
		return nil, false, err
	}

	newChild, removed, err := btreeDelete(child, key, version, m)
	if err != nil {
		return nil, false, err
	}
	if removed {
		cp.setChild(childIdx, newChild)
	}
	return cp, removed, nil
}

// Range collects every entry with minKey <= key <= maxKey (either bound
// may be nil to mean unbounded), applying opts.Transform if set.
func (t *BTree) Range(minKey, maxKey interface{}, opts *RangeOpts) ([]KeyValuePair, error) {
	var out []KeyValuePair
	if err := t.rangeWalk(t.m.Root(), minKey, maxKey, opts, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *BTree) rangeWalk(p *Page, minKey, maxKey interface{}, opts *RangeOpts, out *[]KeyValuePair) error {
	if opts != nil && opts.MinVersion != nil && p.version < *opts.MinVersion {
		return nil
	}

	if p.IsLeaf() {
		for i, k := range p.keys {
			if minKey != nil && t.m.Compare(k, minKey) < 0 {
				continue
			}
			if maxKey != nil && t.m.Compare(k, maxKey) > 0 {
				break
			}
			kv := &KeyValuePair{Key: k, Value: p.values[i]}
			if opts != nil && opts.Transform != nil {
				kv = opts.Transform(kv)
			}
			if kv != nil {
				*out = append(*out, *kv)
			}
		}
		return nil
	}

	for i := range p.children {
		if minKey != nil && i < len(p.keys) && t.m.Compare(p.keys[i], minKey) <= 0 {
			continue
		}
		if maxKey != nil && i > 0 && t.m.Compare(p.keys[i-1], maxKey) > 0 {
			break
		}
		child, err := resolveChild(p, i, t.m)
		if err != nil {
			return err
		}
		if err := t.rangeWalk(child, minKey, maxKey, opts, out); err != nil {
			return err
		}
	}
	return nil
}
