package cowtree

import (
	"fmt"
	"testing"
)

func newTestTree(t *testing.T) *BTree {
	t.Helper()
	store := newTestStore(t)
	m := NewKVMap(1, CompareBytes, BytesCodec{}, BytesCodec{}, store)
	return NewBTree(m)
}

func TestBTreePutGetRoundTrip(t *testing.T) {
	tree := newTestTree(t)

	if err := tree.Put(bk("a"), bk("1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := tree.Put(bk("b"), bk("2")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	v, ok, err := tree.Get(bk("a"))
	if err != nil || !ok || string(v.([]byte)) != "1" {
		t.Fatalf("Get(a) = %v,%v,%v want 1,true,nil", v, ok, err)
	}

	v, ok, err = tree.Get(bk("b"))
	if err != nil || !ok || string(v.([]byte)) != "2" {
		t.Fatalf("Get(b) = %v,%v,%v want 2,true,nil", v, ok, err)
	}

	_, ok, err = tree.Get(bk("missing"))
	if err != nil || ok {
		t.Fatalf("Get(missing) = ok=%v err=%v, want ok=false err=nil", ok, err)
	}
}

func TestBTreePutOverwritesExistingKey(t *testing.T) {
	tree := newTestTree(t)

	if err := tree.Put(bk("a"), bk("1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := tree.Put(bk("a"), bk("updated")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	v, ok, err := tree.Get(bk("a"))
	if err != nil || !ok || string(v.([]byte)) != "updated" {
		t.Fatalf("Get(a) = %v,%v,%v want updated,true,nil", v, ok, err)
	}
}

func TestBTreeDelete(t *testing.T) {
	tree := newTestTree(t)

	if err := tree.Put(bk("a"), bk("1")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	removed, err := tree.Delete(bk("a"))
	if err != nil || !removed {
		t.Fatalf("Delete(a) = %v,%v want true,nil", removed, err)
	}

	_, ok, err := tree.Get(bk("a"))
	if err != nil || ok {
		t.Fatalf("Get(a) after delete = ok=%v err=%v, want ok=false err=nil", ok, err)
	}

	removed, err = tree.Delete(bk("a"))
	if err != nil || removed {
		t.Fatalf("Delete(a) again = %v,%v want false,nil", removed, err)
	}
}

func TestBTreeRootSplitOnOverflow(t *testing.T) {
	tree := newTestTree(t)

	const n = 200
	for i := 0; i < n; i++ {
		key := bk(fmt.Sprintf("key-%04d", i))
		if err := tree.Put(key, bk(fmt.Sprintf("value-%d", i))); err != nil {
			t.Fatalf("Put(%d): %v", i, err)
		}
	}

	if tree.m.root.IsLeaf() {
		t.Fatalf("root still a leaf after %d inserts, expected a split", n)
	}

	for i := 0; i < n; i++ {
		key := bk(fmt.Sprintf("key-%04d", i))
		v, ok, err := tree.Get(key)
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		if !ok {
			t.Fatalf("Get(%d): key missing after split", i)
		}
		if want := fmt.Sprintf("value-%d", i); string(v.([]byte)) != want {
			t.Fatalf("Get(%d) = %q, want %q", i, v, want)
		}
	}
}

func TestBTreeRangeOrderedAndBounded(t *testing.T) {
	tree := newTestTree(t)

	for _, k := range []string{"c", "a", "e", "b", "d"} {
		if err := tree.Put(bk(k), bk(k+"-v")); err != nil {
			t.Fatalf("Put(%s): %v", k, err)
		}
	}

	all, err := tree.Range(nil, nil, nil)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("Range(nil,nil) returned %d entries, want 5", len(all))
	}
	for i, want := range []string{"a", "b", "c", "d", "e"} {
		if got := string(all[i].Key.([]byte)); got != want {
			t.Fatalf("all[%d].Key = %q, want %q", i, got, want)
		}
	}

	bounded, err := tree.Range(bk("b"), bk("d"), nil)
	if err != nil {
		t.Fatalf("Range(b,d): %v", err)
	}
	if len(bounded) != 3 {
		t.Fatalf("Range(b,d) returned %d entries, want 3: %v", len(bounded), bounded)
	}
	for i, want := range []string{"b", "c", "d"} {
		if got := string(bounded[i].Key.([]byte)); got != want {
			t.Fatalf("bounded[%d].Key = %q, want %q", i, got, want)
		}
	}
}

func TestBTreeRangeWithTransformFilters(t *testing.T) {
	tree := newTestTree(t)
	for _, k := range []string{"a", "b", "c"} {
		if err := tree.Put(bk(k), bk(k+"-v")); err != nil {
			t.Fatalf("Put(%s): %v", k, err)
		}
	}

	skipB := func(kv *KeyValuePair) *KeyValuePair {
		if string(kv.Key.([]byte)) == "b" {
			return nil
		}
		return kv
	}

	out, err := tree.Range(nil, nil, &RangeOpts{Transform: skipB})
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("filtered Range returned %d entries, want 2: %v", len(out), out)
	}
	for _, kv := range out {
		if string(kv.Key.([]byte)) == "b" {
			t.Fatalf("filtered key %q survived transform", kv.Key)
		}
	}
}

func TestBTreeRangeAfterRootSplitResolvesChildrenFromDisk(t *testing.T) {
	tree := newTestTree(t)

	const n = 150
	for i := 0; i < n; i++ {
		key := bk(fmt.Sprintf("key-%04d", i))
		if err := tree.Put(key, bk(fmt.Sprintf("value-%d", i))); err != nil {
			t.Fatalf("Put(%d): %v", i, err)
		}
	}

	all, err := tree.Range(nil, nil, nil)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(all) != n {
		t.Fatalf("Range returned %d entries, want %d", len(all), n)
	}
	for i := 1; i < len(all); i++ {
		if CompareBytes(all[i-1].Key, all[i].Key) >= 0 {
			t.Fatalf("Range not ordered at index %d: %v >= %v", i, all[i-1].Key, all[i].Key)
		}
	}
}
