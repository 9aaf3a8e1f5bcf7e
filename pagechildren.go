package cowtree

// PageChildren is a GC-oriented projection of an internal page: its own
// position plus the positions of its direct children, with duplicate-chunk
// collapsing applied to leaf references. It never carries keys or values,
// since the garbage collector only needs reachability, not content.
type PageChildren struct {
	Position       PagePosition
	ChildPositions []PagePosition
	ChunkList      bool
}

// removeDuplicateChunkReferences drops any leaf child whose chunk id has
// already been seen, seeded with the owning page's own chunk. Internal
// children are always retained since they may transitively reference other
// chunks. When no child survives, ChildPositions becomes nil and ChunkList
// stays unset.
func (pc *PageChildren) removeDuplicateChunkReferences() {
	seen := map[uint64]bool{pc.Position.ChunkID(): true}
	kept := make([]PagePosition, 0, len(pc.ChildPositions))

	for _, child := range pc.ChildPositions {
		if child.IsInternal() {
			kept = append(kept, child)
			continue
		}
		chunkID := child.ChunkID()
		if seen[chunkID] {
			continue
		}
		seen[chunkID] = true
		kept = append(kept, child)
	}

	if len(kept) == 0 {
		pc.ChildPositions = nil
		return
	}
	pc.ChildPositions = kept
	pc.ChunkList = true
}

// collectReferencedChunks unions the owning page's chunk and every child's
// chunk into the caller-provided set.
func (pc *PageChildren) collectReferencedChunks(into map[uint64]bool) {
	into[pc.Position.ChunkID()] = true
	for _, child := range pc.ChildPositions {
		into[child.ChunkID()] = true
	}
}
