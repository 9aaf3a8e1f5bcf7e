package cowtree

import "sync/atomic"

// PageReference is a tagged edge to a child page: an on-disk position (0 if
// the child has never been serialized), an optional in-memory handle, and
// a cached descendant count so a parent never has to resolve the child just
// to answer totalCount queries.
type PageReference struct {
	Position PagePosition
	Page     *Page
	Count    int
}

// Page is a B-tree node: leaf or internal, versioned, copy-on-write, and
// self-describing once serialized. Exactly one of values or children is
// populated, per the leaf/internal split.
type Page struct {
	owner   Map
	version uint64

	position PagePosition

	totalCount    int
	cachedCompare int
	memory        int

	keys     []interface{}
	values   []interface{}   // leaf only
	children []PageReference // internal only

	removedInMemory atomic.Bool
}

// IsLeaf reports whether the page is a leaf (children unset).
func (p *Page) IsLeaf() bool { return p.children == nil }

// Version returns the map version that produced this page.
func (p *Page) Version() uint64 { return p.version }

// Position returns the page's packed on-disk identity, or 0 if unserialized.
func (p *Page) Position() PagePosition { return p.position }

// TotalCount returns the number of key/value entries reachable from this
// page (itself for a leaf, the sum of children for an internal page).
func (p *Page) TotalCount() int { return p.totalCount }

// Memory returns the incrementally tracked memory estimate.
func (p *Page) Memory() int { return p.memory }

// Keys exposes the page's key array. Callers must not mutate the result;
// mutators always allocate a fresh array rather than writing into this one.
func (p *Page) Keys() []interface{} { return p.keys }

// Values exposes the leaf's value array. Nil for internal pages.
func (p *Page) Values() []interface{} { return p.values }

// Children exposes the internal page's child references. Nil for leaves.
func (p *Page) Children() []PageReference { return p.children }

// createEmptyPage builds a fresh, empty leaf root and registers its memory
// estimate as unsaved with the owning store.
func createEmptyPage(owner Map, version uint64) *Page {
	p := &Page{
		owner:   owner,
		version: version,
		keys:    []interface{}{},
		values:  []interface{}{},
	}
	p.memory = p.recalculateMemory()
	p.registerUnsaved()
	return p
}

// createLeaf builds a leaf page from already-assembled key/value arrays,
// used after split and insert. totalCount and memory are computed fresh.
func createLeaf(owner Map, version uint64, keys, values []interface{}) *Page {
	p := &Page{
		owner:      owner,
		version:    version,
		keys:       keys,
		values:     values,
		totalCount: len(keys),
	}
	p.memory = p.recalculateMemory()
	p.registerUnsaved()
	return p
}

// createInternal builds an internal page from already-assembled key/child
// arrays. totalCount is the sum of the children's counts.
func createInternal(owner Map, version uint64, keys []interface{}, children []PageReference) *Page {
	p := &Page{
		owner:    owner,
		version:  version,
		keys:     keys,
		children: children,
	}
	for _, c := range children {
		p.totalCount += c.Count
	}
	p.memory = p.recalculateMemory()
	p.registerUnsaved()
	return p
}

func (p *Page) registerUnsaved() {
	if p.owner == nil {
		return
	}
	if store := p.owner.Store(); store != nil {
		store.registerUnsavedPage(p.memory)
	}
}

// copy constructs a new page bound to newVersion, sharing the current
// arrays, and releases the original's live bytes. The copy keeps the
// cachedCompare hint but starts with position 0; arrays diverge only once
// a subsequent mutator runs on the copy.
func (p *Page) copy(newVersion uint64) *Page {
	cp := &Page{
		owner:         p.owner,
		version:       newVersion,
		totalCount:    p.totalCount,
		cachedCompare: p.cachedCompare,
		memory:        p.memory,
		keys:          p.keys,
		values:        p.values,
		children:      p.children,
	}
	cp.registerUnsaved()
	p.removePage()
	return cp
}

// removePage informs the owning store that this page is no longer
// reachable: if it already has a position, the store is told immediately;
// otherwise the page is flagged so write-out informs the store once a
// position exists.
func (p *Page) removePage() {
	if p.owner == nil {
		return
	}
	if !p.position.IsZero() {
		p.owner.RemovePage(p.position, p.memory)
		return
	}
	p.removedInMemory.Store(true)
}

// binarySearch returns the index of key if found, otherwise
// -(insertionPoint+1). The first probe is seeded from cachedCompare to
// favor the common case of sequential or repeated nearby lookups.
func (p *Page) binarySearch(key interface{}) int {
	low, high := 0, len(p.keys)-1
	cmp := p.owner.Compare

	guess := p.cachedCompare - 1
	if guess < low || guess > high {
		guess = (low + high) / 2
	}

	first := true
	for low <= high {
		var mid int
		if first {
			mid = guess
			first = false
		} else {
			mid = (low + high) / 2
		}

		c := cmp(p.keys[mid], key)
		switch {
		case c < 0:
			low = mid + 1
		case c > 0:
			high = mid - 1
		default:
			p.cachedCompare = mid + 1
			return mid
		}
	}

	p.cachedCompare = low
	return -(low + 1)
}

// insertLeaf allocates a new (n+1)-sized key/value array with key/value
// placed at index, adjusting totalCount and memory.
func (p *Page) insertLeaf(index int, key, value interface{}) {
	n := len(p.keys)
	newKeys := make([]interface{}, n+1)
	newValues := make([]interface{}, n+1)

	copy(newKeys[:index], p.keys[:index])
	copy(newKeys[index+1:], p.keys[index:])
	newKeys[index] = key

	copy(newValues[:index], p.values[:index])
	copy(newValues[index+1:], p.values[index:])
	newValues[index] = value

	p.keys = newKeys
	p.values = newValues
	p.totalCount++
	p.memory += p.owner.KeyCodec().MemoryOf(key) + p.owner.ValueCodec().MemoryOf(value)
}

// insertNode allocates new (n+1)-sized key and (n+2)-sized children arrays,
// placing key at index and a PageReference for childPage at index+1, to the
// right of the new key; the child at index is left as it was.
func (p *Page) insertNode(index int, key interface{}, childPage *Page) {
	n := len(p.keys)
	newKeys := make([]interface{}, n+1)
	newChildren := make([]PageReference, n+2)

	copy(newKeys[:index], p.keys[:index])
	copy(newKeys[index+1:], p.keys[index:])
	newKeys[index] = key

	copy(newChildren[:index+1], p.children[:index+1])
	copy(newChildren[index+2:], p.children[index+1:])
	newChildren[index+1] = PageReference{Position: childPage.position, Page: childPage, Count: childPage.totalCount}

	p.keys = newKeys
	p.children = newChildren
	p.totalCount += childPage.totalCount
	p.memory += p.owner.KeyCodec().MemoryOf(key) + PageChildOverhead
}

// remove drops the entry at index: for leaves, keys[index] and
// values[index]; for internal pages, children[index] and its count, with
// the key index adjusted when removing the last child.
func (p *Page) remove(index int) {
	keyIndex := index
	if index == len(p.keys) {
		keyIndex = index - 1
	}

	newKeys := make([]interface{}, len(p.keys)-1)
	copy(newKeys[:keyIndex], p.keys[:keyIndex])
	copy(newKeys[keyIndex:], p.keys[keyIndex+1:])
	removedKey := p.keys[keyIndex]
	p.keys = newKeys
	p.memory -= p.owner.KeyCodec().MemoryOf(removedKey)

	if p.IsLeaf() {
		removedValue := p.values[index]
		newValues := make([]interface{}, len(p.values)-1)
		copy(newValues[:index], p.values[:index])
		copy(newValues[index:], p.values[index+1:])
		p.values = newValues
		p.memory -= p.owner.ValueCodec().MemoryOf(removedValue)
		p.totalCount--
		return
	}

	removedChild := p.children[index]
	newChildren := make([]PageReference, len(p.children)-1)
	copy(newChildren[:index], p.children[:index])
	copy(newChildren[index:], p.children[index+1:])
	p.children = newChildren
	p.memory -= PageChildOverhead
	p.totalCount -= removedChild.Count
}

// splitLeaf is destructive on p (which keeps [0,at)) and returns a new
// right page owning [at,n), sharing p's version. The caller promotes
// right.keys[0] into the parent.
func (p *Page) splitLeaf(at int) *Page {
	rightKeys := append([]interface{}{}, p.keys[at:]...)
	rightValues := append([]interface{}{}, p.values[at:]...)
	right := createLeaf(p.owner, p.version, rightKeys, rightValues)

	p.keys = append([]interface{}{}, p.keys[:at]...)
	p.values = append([]interface{}{}, p.values[:at]...)
	p.totalCount = len(p.keys)
	p.memory = p.recalculateMemory()

	return right
}

// splitInternal is destructive on p (which keeps keys[0,at) and
// children[0,at+1)) and returns a new right page owning keys[at+1,n) and
// children[at+1,n+1). The caller promotes keys[at] into the parent.
func (p *Page) splitInternal(at int) *Page {
	rightKeys := append([]interface{}{}, p.keys[at+1:]...)
	rightChildren := append([]PageReference{}, p.children[at+1:]...)
	right := createInternal(p.owner, p.version, rightKeys, rightChildren)

	p.keys = append([]interface{}{}, p.keys[:at]...)
	p.children = append([]PageReference{}, p.children[:at+1]...)
	p.totalCount = 0
	for _, c := range p.children {
		p.totalCount += c.Count
	}
	p.memory = p.recalculateMemory()

	return right
}

// setKey clones the key array before overwriting index i, per the
// copy-on-write contract: arrays are always replaced, never mutated.
func (p *Page) setKey(i int, key interface{}) {
	old := p.keys[i]
	newKeys := append([]interface{}{}, p.keys...)
	newKeys[i] = key
	p.keys = newKeys
	p.memory += p.owner.KeyCodec().MemoryOf(key) - p.owner.KeyCodec().MemoryOf(old)
}

// setValue clones the value array before overwriting index i.
func (p *Page) setValue(i int, value interface{}) {
	old := p.values[i]
	newValues := append([]interface{}{}, p.values...)
	newValues[i] = value
	p.values = newValues
	p.memory += p.owner.ValueCodec().MemoryOf(value) - p.owner.ValueCodec().MemoryOf(old)
}

// setChild clones the children array before overwriting index i. A no-op
// when the incoming child is identical by page identity and position,
// since nothing downstream would observe a difference.
func (p *Page) setChild(i int, child *Page) {
	old := p.children[i]
	if old.Page == child && old.Position == child.position {
		return
	}

	newChildren := append([]PageReference{}, p.children...)
	newChildren[i] = PageReference{Position: child.position, Page: child, Count: child.totalCount}
	p.children = newChildren
	p.totalCount += child.totalCount - old.Count
}

// recalculateMemory rebuilds the memory estimate from scratch, the ground
// truth that the assertion mode checks the incremental value against.
func (p *Page) recalculateMemory() int {
	total := PageBaseOverhead
	for _, k := range p.keys {
		total += p.owner.KeyCodec().MemoryOf(k)
	}
	if p.IsLeaf() {
		for _, v := range p.values {
			total += p.owner.ValueCodec().MemoryOf(v)
		}
	} else {
		total += len(p.children) * PageChildOverhead
	}
	return total
}

// getMemory returns the tracked memory estimate, verifying it against a
// fresh recalculation when the store's assertion mode is enabled.
func (p *Page) getMemory() (int, error) {
	if p.owner != nil {
		if store := p.owner.Store(); store != nil && store.assertOnWrite {
			if recalced := p.recalculateMemory(); recalced != p.memory {
				return 0, ErrInternal
			}
		}
	}
	return p.memory, nil
}

// assertTotalCount verifies totalCount against a fresh recomputation when
// assertion mode is enabled; a no-op otherwise.
func (p *Page) assertTotalCount() error {
	store := p.owner.Store()
	if store == nil || !store.assertOnWrite {
		return nil
	}

	var want int
	if p.IsLeaf() {
		want = len(p.keys)
	} else {
		for _, c := range p.children {
			want += c.Count
		}
	}
	if want != p.totalCount {
		return ErrInternal
	}
	return nil
}

// removeAllRecursive walks the subtree rooted at p, informing the store of
// live-byte accounting for every reachable leaf, then removes p itself.
func (p *Page) removeAllRecursive() error {
	if !p.IsLeaf() {
		for _, ref := range p.children {
			child := ref.Page
			if child == nil {
				if !ref.Position.IsInternal() {
					if store := p.owner.Store(); store != nil {
						store.reportRemovedLeaf(ref.Position)
					}
					continue
				}
				loaded, err := p.owner.ReadPage(ref.Position)
				if err != nil {
					return err
				}
				child = loaded
			}
			if err := child.removeAllRecursive(); err != nil {
				return err
			}
		}
	}
	p.removePage()
	return nil
}
