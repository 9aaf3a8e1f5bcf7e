package cowtree

import "testing"

func TestRemoveDuplicateChunkReferences(t *testing.T) {
	owning := NewPagePosition(1, 0, 0, true)
	leafSameChunk1 := NewPagePosition(1, 64, 0, false)
	leafSameChunk2 := NewPagePosition(1, 128, 0, false)
	leafOtherChunk := NewPagePosition(2, 0, 0, false)
	internalOtherChunk := NewPagePosition(3, 0, 0, true)

	pc := &PageChildren{
		Position:       owning,
		ChildPositions: []PagePosition{leafSameChunk1, leafSameChunk2, leafOtherChunk, internalOtherChunk},
	}

	pc.removeDuplicateChunkReferences()

	if len(pc.ChildPositions) != 3 {
		t.Fatalf("got %d child positions, want 3 (one same-chunk leaf dropped): %v", len(pc.ChildPositions), pc.ChildPositions)
	}

	seenLeafChunks := map[uint64]int{}
	for _, p := range pc.ChildPositions {
		if !p.IsInternal() {
			seenLeafChunks[p.ChunkID()]++
		}
	}
	for chunk, count := range seenLeafChunks {
		if count > 1 {
			t.Fatalf("chunk %d has %d leaf references, want at most 1", chunk, count)
		}
	}

	foundInternal := false
	for _, p := range pc.ChildPositions {
		if p == internalOtherChunk {
			foundInternal = true
		}
	}
	if !foundInternal {
		t.Fatalf("internal-page child reference was dropped, it never should be")
	}
}

func TestRemoveDuplicateChunkReferencesCollapsesToEmpty(t *testing.T) {
	owning := NewPagePosition(1, 0, 0, true)
	onlyChild := NewPagePosition(1, 64, 0, false)

	pc := &PageChildren{Position: owning, ChildPositions: []PagePosition{onlyChild}}
	pc.removeDuplicateChunkReferences()

	if len(pc.ChildPositions) != 0 {
		t.Fatalf("got %v, want empty (single same-chunk leaf collapses)", pc.ChildPositions)
	}
}

func TestCollectReferencedChunks(t *testing.T) {
	pc := &PageChildren{
		Position: NewPagePosition(1, 0, 0, true),
		ChildPositions: []PagePosition{
			NewPagePosition(2, 0, 0, false),
			NewPagePosition(3, 0, 0, true),
		},
	}

	into := map[uint64]bool{}
	pc.collectReferencedChunks(into)

	for _, id := range []uint64{1, 2, 3} {
		if !into[id] {
			t.Fatalf("chunk %d missing from collected set %v", id, into)
		}
	}
}
