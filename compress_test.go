package cowtree

import (
	"fmt"
	"strings"
	"testing"
)

// repetitiveBytes returns highly compressible filler, long enough to clear
// the >16-byte compression attempt threshold in (*Page).write with room to
// spare.
func repetitiveBytes(tag string, n int) []byte {
	return []byte(strings.Repeat(tag, n))
}

func openCompressedStore(t *testing.T, level int) *Store {
	t.Helper()
	opts := DefaultStoreOptions(t.TempDir())
	opts.CompressionLevel = level
	store, err := OpenStore(opts)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCompressedLeafRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		level int
	}{
		{"fast", 1},
		{"high", 4},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			store := openCompressedStore(t, c.level)
			m := &testMap{id: 1, store: store}

			p := createEmptyPage(m, 0)
			const n = 40
			for i := 0; i < n; i++ {
				key := append([]byte(fmt.Sprintf("key-%04d-", i)), repetitiveBytes("abcdefgh", 20)...)
				value := repetitiveBytes("value-payload-", 20)
				p.insertLeaf(i, key, value)
			}

			payload, err := p.encodePayload()
			if err != nil {
				t.Fatalf("encodePayload: %v", err)
			}
			if _, _, _, ok := tryCompress(store, payload); !ok {
				t.Fatalf("tryCompress rejected a %d-byte repetitive payload, test setup isn't exercising the compressed path", len(payload))
			}

			wc, err := store.beginWriteCycle()
			if err != nil {
				t.Fatalf("beginWriteCycle: %v", err)
			}
			if err := writeUnsavedRecursive(p, wc); err != nil {
				t.Fatalf("writeUnsavedRecursive: %v", err)
			}
			if err := store.commitWriteCycle(wc); err != nil {
				t.Fatalf("commitWriteCycle: %v", err)
			}

			fs := store.fileStoreFor(p.position)
			read, err := ReadPage(fs, p.position, m)
			if err != nil {
				t.Fatalf("ReadPage: %v", err)
			}
			if read.totalCount != n {
				t.Fatalf("totalCount = %d, want %d", read.totalCount, n)
			}
			for i := 0; i < n; i++ {
				wantKey := append([]byte(fmt.Sprintf("key-%04d-", i)), repetitiveBytes("abcdefgh", 20)...)
				if string(read.keys[i].([]byte)) != string(wantKey) {
					t.Fatalf("keys[%d] = %q, want %q", i, read.keys[i], wantKey)
				}
				if string(read.values[i].([]byte)) != string(repetitiveBytes("value-payload-", 20)) {
					t.Fatalf("values[%d] mismatch", i)
				}
			}
		})
	}
}

func TestCompressedInternalRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		level int
	}{
		{"fast", 1},
		{"high", 4},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			store := openCompressedStore(t, c.level)
			m := &testMap{id: 1, store: store}

			leaves := make([]*Page, 4)
			for i := range leaves {
				leaves[i] = createEmptyPage(m, 0)
				leaves[i].insertLeaf(0, bk(fmt.Sprintf("leaf-%d-key", i)), bk(fmt.Sprintf("leaf-%d-value", i)))
			}

			keys := []interface{}{
				repetitiveBytes("separator-key-", 10),
				repetitiveBytes("separator-key-", 10),
				repetitiveBytes("separator-key-", 10),
			}
			children := []PageReference{
				{Page: leaves[0], Count: leaves[0].totalCount},
				{Page: leaves[1], Count: leaves[1].totalCount},
				{Page: leaves[2], Count: leaves[2].totalCount},
				{Page: leaves[3], Count: leaves[3].totalCount},
			}
			root := createInternal(m, 0, keys, children)

			payload, err := root.encodePayload()
			if err != nil {
				t.Fatalf("encodePayload: %v", err)
			}
			if _, _, _, ok := tryCompress(store, payload); !ok {
				t.Fatalf("tryCompress rejected a %d-byte repetitive payload, test setup isn't exercising the compressed path", len(payload))
			}

			wc, err := store.beginWriteCycle()
			if err != nil {
				t.Fatalf("beginWriteCycle: %v", err)
			}
			if err := writeUnsavedRecursive(root, wc); err != nil {
				t.Fatalf("writeUnsavedRecursive: %v", err)
			}
			if err := store.commitWriteCycle(wc); err != nil {
				t.Fatalf("commitWriteCycle: %v", err)
			}

			fs := store.fileStoreFor(root.position)
			read, err := ReadPage(fs, root.position, m)
			if err != nil {
				t.Fatalf("ReadPage: %v", err)
			}

			if len(read.children) != 4 {
				t.Fatalf("children = %d, want 4", len(read.children))
			}
			for i, leaf := range leaves {
				if read.children[i].Position != leaf.position {
					t.Fatalf("children[%d].Position = %v, want %v", i, read.children[i].Position, leaf.position)
				}
			}
			for i, want := range keys {
				if string(read.keys[i].([]byte)) != string(want.([]byte)) {
					t.Fatalf("keys[%d] = %q, want %q", i, read.keys[i], want)
				}
			}
		})
	}
}
