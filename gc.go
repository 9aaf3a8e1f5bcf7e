package cowtree

import (
	"os"

	"github.com/rs/zerolog"
)

// GC walks a map's reachable pages to compute the live chunk set, then
// drops chunks that are both unreferenced by the current root and mostly
// dead by byte count.
type GC struct {
	store  *Store
	logger zerolog.Logger
}

func newGC(store *Store) *GC {
	return &GC{store: store, logger: newLogger("gc")}
}

// CollectLiveChunks walks root (and any of its descendants that are
// in-memory but unsaved) and returns the set of chunk ids still reachable.
func (g *GC) CollectLiveChunks(root *Page) (map[uint64]bool, error) {
	live := make(map[uint64]bool)
	if err := g.walkPage(root, live); err != nil {
		return nil, err
	}
	return live, nil
}

func (g *GC) walkPage(p *Page, live map[uint64]bool) error {
	if !p.position.IsZero() {
		return g.walkPosition(p.position, live)
	}
	if p.IsLeaf() {
		return nil
	}
	for _, ref := range p.children {
		switch {
		case ref.Page != nil:
			if err := g.walkPage(ref.Page, live); err != nil {
				return err
			}
		case !ref.Position.IsZero():
			if err := g.walkPosition(ref.Position, live); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *GC) walkPosition(pos PagePosition, live map[uint64]bool) error {
	live[pos.ChunkID()] = true
	if !pos.IsInternal() {
		return nil
	}

	fs := g.store.fileStoreFor(pos)
	if fs == nil {
		return nil
	}

	children, err := ReadPageChildren(fs, pos)
	if err != nil {
		return err
	}
	children.removeDuplicateChunkReferences()
	children.collectReferencedChunks(live)

	for _, child := range children.ChildPositions {
		if child.IsInternal() {
			if err := g.walkPosition(child, live); err != nil {
				return err
			}
		} else {
			live[child.ChunkID()] = true
		}
	}
	return nil
}

// Sweep removes chunks that are absent from live and sufficiently dead by
// the store's GCChunkThreshold, returning the ids it removed. The store's
// current writable chunk is never swept.
func (g *GC) Sweep(live map[uint64]bool) []uint64 {
	g.store.mu.Lock()
	defer g.store.mu.Unlock()

	var removed []uint64
	for id, chunk := range g.store.chunks {
		if chunk == g.store.current {
			continue
		}
		if live[id] {
			continue
		}
		if chunk.liveRatio() >= g.store.options.GCChunkThreshold {
			continue
		}

		if err := chunk.fileStore.Close(); err != nil {
			g.logger.Warn().Err(err).Uint64("chunk", id).Msg("closing chunk during gc")
			continue
		}
		if err := os.Remove(g.store.chunkPath(id)); err != nil {
			g.logger.Warn().Err(err).Uint64("chunk", id).Msg("removing chunk file during gc")
		}
		delete(g.store.chunks, id)
		removed = append(removed, id)
		g.logger.Info().Uint64("chunk", id).Msg("garbage collected chunk")
	}
	return removed
}
