package cowtree

// Version is an immutable read snapshot of a map at a point in time: a
// root page plus the version number that produced it. Since every mutator
// replaces arrays rather than writing into them, a Version remains valid
// and consistent indefinitely, even after later writers advance the map's
// current root.
type Version struct {
	root   *Page
	number uint64
	m      *KVMap
	bt     *BTree
}

// CurrentVersion snapshots m's current root under the map's lock.
func (m *KVMap) CurrentVersion() *Version {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &Version{root: m.root, number: m.root.version, m: m, bt: &BTree{m: m, maxKeys: defaultMaxKeys}}
}

// Number returns the version's map version number.
func (v *Version) Number() uint64 { return v.number }

// Get reads key against this snapshot's root, independent of any later
// writer.
func (v *Version) Get(key interface{}) (interface{}, bool, error) {
	p := v.root
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
		child, err := resolveChild(p, childIdx, v.m)
		if err != nil {
			return nil, false, err
		}
		p = child
	}
}

// Range scans this snapshot's root, independent of any later writer.
func (v *Version) Range(minKey, maxKey interface{}, opts *RangeOpts) ([]KeyValuePair, error) {
	var out []KeyValuePair
	if err := v.bt.rangeWalk(v.root, minKey, maxKey, opts, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteTxn batches several mutations into one new version, committed with
// a single two-phase write-out on Commit. Acquiring a WriteTxn holds the
// map's single-writer lock for the duration of the batch, so staged
// mutations never interleave with a concurrent writer's.
type WriteTxn struct {
	t       *BTree
	version uint64
	root    *Page
	done    bool
}

// Begin acquires the map's write lock and starts a new version.
func (t *BTree) Begin() *WriteTxn {
	t.m.lock()
	return &WriteTxn{t: t, version: t.m.root.version + 1, root: t.m.root}
}

// Put stages an insert/update within the transaction's in-progress tree.
func (tx *WriteTxn) Put(key, value interface{}) error {
	newRoot, promoted, right, split, err := btreeInsert(tx.root, key, value, tx.version, tx.t.maxKeys, tx.t.m)
	if err != nil {
		return err
	}
	if split {
		newRoot = createInternal(tx.t.m, tx.version, []interface{}{promoted}, []PageReference{
			{Page: newRoot, Position: newRoot.position, Count: newRoot.totalCount},
			{Page: right, Position: right.position, Count: right.totalCount},
		})
	}
	tx.root = newRoot
	return nil
}

// Delete stages a removal within the transaction's in-progress tree.
func (tx *WriteTxn) Delete(key interface{}) (bool, error) {
	newRoot, removed, err := btreeDelete(tx.root, key, tx.version, tx.t.m)
	if err != nil {
		return false, err
	}
	tx.root = newRoot
	return removed, nil
}

// Commit runs the two-phase write-out over the transaction's accumulated
// tree, publishes it as the map's new root, and releases the write lock.
func (tx *WriteTxn) Commit() error {
	defer tx.release()
	if err := writeTree(tx.root, tx.t.m.store); err != nil {
		return err
	}
	tx.t.m.root = tx.root
	return nil
}

// Rollback discards the transaction's staged tree without publishing it.
func (tx *WriteTxn) Rollback() {
	tx.release()
}

func (tx *WriteTxn) release() {
	if tx.done {
		return
	}
	tx.done = true
	tx.t.m.unlock()
}
