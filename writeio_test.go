package cowtree

import "testing"

func TestWriteThenPatchAssignsChildPositions(t *testing.T) {
	store := newTestStore(t)
	m := &testMap{id: 5, store: store}

	leftLeaf := createEmptyPage(m, 0)
	leftLeaf.insertLeaf(0, bk("a"), bk("1"))

	rightLeaf := createEmptyPage(m, 0)
	rightLeaf.insertLeaf(0, bk("b"), bk("2"))

	root := createInternal(m, 0, []interface{}{bk("b")}, []PageReference{
		{Page: leftLeaf, Count: leftLeaf.totalCount},
		{Page: rightLeaf, Count: rightLeaf.totalCount},
	})

	wc, err := store.beginWriteCycle()
	if err != nil {
		t.Fatalf("beginWriteCycle: %v", err)
	}
	if err := writeUnsavedRecursive(root, wc); err != nil {
		t.Fatalf("writeUnsavedRecursive: %v", err)
	}

	if root.position.IsZero() {
		t.Fatalf("root.position still zero after write-out")
	}
	if leftLeaf.position.IsZero() || rightLeaf.position.IsZero() {
		t.Fatalf("children still have zero position after write-out")
	}

	if root.children[0].Position != leftLeaf.position {
		t.Fatalf("children[0].Position = %v, want %v", root.children[0].Position, leftLeaf.position)
	}
	if root.children[1].Position != rightLeaf.position {
		t.Fatalf("children[1].Position = %v, want %v", root.children[1].Position, rightLeaf.position)
	}

	if err := store.commitWriteCycle(wc); err != nil {
		t.Fatalf("commitWriteCycle: %v", err)
	}
	if err := writeEnd(root); err != nil {
		t.Fatalf("writeEnd: %v", err)
	}
	if root.children[0].Page != nil || root.children[1].Page != nil {
		t.Fatalf("writeEnd did not drop in-memory child handles")
	}

	fs := store.fileStoreFor(root.position)
	read, err := ReadPage(fs, root.position, m)
	if err != nil {
		t.Fatalf("ReadPage(root): %v", err)
	}
	if read.children[0].Position != leftLeaf.position || read.children[1].Position != rightLeaf.position {
		t.Fatalf("on-disk child table = %v, want positions %v/%v", read.children, leftLeaf.position, rightLeaf.position)
	}
}

func TestWriteOnAlreadyStoredPageIsInternalError(t *testing.T) {
	store := newTestStore(t)
	m := &testMap{id: 1, store: store}
	p := createEmptyPage(m, 0)

	wc, err := store.beginWriteCycle()
	if err != nil {
		t.Fatalf("beginWriteCycle: %v", err)
	}
	if _, err := p.write(wc); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if _, err := p.write(wc); err != ErrInternal {
		t.Fatalf("second write on same page = %v, want ErrInternal", err)
	}
}

func TestWriteEndOnUnassignedChildIsInternalError(t *testing.T) {
	m := &testMap{id: 1}
	child := createEmptyPage(m, 0)
	root := createInternal(m, 0, []interface{}{}, []PageReference{{Page: child}})

	if err := writeEnd(root); err != ErrInternal {
		t.Fatalf("writeEnd with unassigned child = %v, want ErrInternal", err)
	}
}
