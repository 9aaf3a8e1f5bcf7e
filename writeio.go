package cowtree

// writeUnsavedRecursive implements the first phase of a two-phase
// write-out: depth-first position assignment (each parent is written and
// positioned before its children) with forward-reference patching. If p already has a position it is a no-op.
// Otherwise p is serialized with a zero-filled child-position table for
// any in-memory child still unserialized, each such child is then
// recursively written, and the table entry is patched once the child's
// position is known.
func writeUnsavedRecursive(p *Page, wc *writeCycle) error {
	if !p.position.IsZero() {
		return nil
	}

	childTableOffset, err := p.write(wc)
	if err != nil {
		return err
	}

	if p.IsLeaf() {
		return nil
	}

	for i := range p.children {
		child := p.children[i].Page
		if child == nil {
			continue
		}
		if err := writeUnsavedRecursive(child, wc); err != nil {
			return err
		}
		p.children[i].Position = child.position
		p.children[i].Count = child.totalCount
		wc.buf.PutInt64At(childTableOffset+i*8, int64(child.position))
	}

	return nil
}

// writeEnd implements the second phase of the write-out: once the chunk
// holding wc's buffer has been persisted, walk internal pages and drop
// in-memory child handles whose positions are now assigned, retaining
// position-only references. A child with no assigned position at this
// point is a programming error.
func writeEnd(p *Page) error {
	if p.IsLeaf() {
		return nil
	}

	for i := range p.children {
		child := p.children[i].Page
		if child == nil {
			continue
		}
		if child.position.IsZero() {
			return ErrInternal
		}
		if err := writeEnd(child); err != nil {
			return err
		}
		p.children[i] = PageReference{Position: child.position, Count: child.totalCount}
	}

	return nil
}

// writeTree runs a full two-phase write-out of p (and any unsaved
// descendants) against store, committing the resulting chunk bytes and
// dropping in-memory child handles once persisted.
func writeTree(p *Page, store *Store) error {
	wc, err := store.beginWriteCycle()
	if err != nil {
		return err
	}

	if err := writeUnsavedRecursive(p, wc); err != nil {
		return err
	}

	if err := store.commitWriteCycle(wc); err != nil {
		return err
	}

	if err := writeEnd(p); err != nil {
		return err
	}

	if store.assertOnWrite && store.UnsavedBytes() != 0 {
		return ErrInternal
	}
	return nil
}
