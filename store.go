package cowtree

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Store owns the chunk files, the page cache, the compressor registry, and
// the assertion-mode toggle that checks memory/count accounting on writes.
type Store struct {
	options StoreOptions
	logger  zerolog.Logger

	mu          sync.Mutex
	chunks      map[uint64]*Chunk
	nextChunkID uint64
	current     *Chunk

	cache *pageCache

	compressorFast *fastCompressor
	compressorHigh *highCompressor

	buffers *bufferPool

	assertOnWrite bool

	unsavedBytes int64
}

// writeCycleBufferCap is the initial capacity handed to pooled write-cycle
// buffers; most pages fit without a grow.
const writeCycleBufferCap = 4096

// writeCycleBufferPoolSize bounds how many scratch buffers stay pooled
// between write cycles.
const writeCycleBufferPoolSize = 32

// firstChunkID is the first chunk id a store ever allocates. Chunk ids
// start at 1, not 0: a page's first write can otherwise land at
// chunkID=0, offset=0, lengthClass=0 for a leaf, which packs to
// PagePosition(0), the same sentinel IsZero uses for "never serialized".
const firstChunkID = 1

// OpenStore creates or opens a store rooted at options.Directory, wiring
// the chunk directory, page cache, and compressor registry.
func OpenStore(options StoreOptions) (*Store, error) {
	if err := os.MkdirAll(options.Directory, 0755); err != nil {
		return nil, errors.Wrap(err, "cowtree: creating store directory")
	}

	cache, err := newPageCache(options.CacheCostBudget)
	if err != nil {
		return nil, errors.Wrap(err, "cowtree: initializing page cache")
	}

	high, err := newHighCompressor(options.CompressionLevel)
	if err != nil {
		return nil, errors.Wrap(err, "cowtree: initializing high compressor")
	}

	s := &Store{
		options:        options,
		logger:         newLogger("store"),
		chunks:         make(map[uint64]*Chunk),
		nextChunkID:    firstChunkID,
		cache:          cache,
		compressorFast: newFastCompressor(),
		compressorHigh: high,
		buffers:        newBufferPool(writeCycleBufferPoolSize, writeCycleBufferCap),
		assertOnWrite:  options.AssertOnWrite,
	}

	chunk, err := s.newChunkLocked()
	if err != nil {
		return nil, err
	}
	s.current = chunk

	return s, nil
}

func (s *Store) chunkPath(id uint64) string {
	return filepath.Join(s.options.Directory, fmt.Sprintf("chunk-%08d.dat", id))
}

func (s *Store) newChunkLocked() (*Chunk, error) {
	id := s.nextChunkID
	s.nextChunkID++

	fs, err := OpenFileStore(s.chunkPath(id))
	if err != nil {
		return nil, err
	}

	chunk := newChunk(id, fs)
	s.chunks[id] = chunk
	return chunk, nil
}

// registerUnsavedPage accounts for a page's memory estimate before it has
// been assigned a position.
func (s *Store) registerUnsavedPage(memory int) {
	atomic.AddInt64(&s.unsavedBytes, int64(memory))
}

// unassignUnsavedPage reverses registerUnsavedPage once a page has been
// serialized and assigned a position, so unsavedBytes tracks only pages
// created but not yet written out.
func (s *Store) unassignUnsavedPage(memory int) {
	atomic.AddInt64(&s.unsavedBytes, -int64(memory))
}

// UnsavedBytes returns the total memory estimate of pages that have been
// created (or copy-on-write cloned) but not yet serialized. Under the
// single-writer model this should return to zero once a writeTree call
// completes; a nonzero value afterward means some created page never made
// it into the write-out, which assertOnWrite mode treats as a bug.
func (s *Store) UnsavedBytes() int64 {
	return atomic.LoadInt64(&s.unsavedBytes)
}

// cachePage installs a freshly written or freshly read page into the page
// cache, keyed by its position.
func (s *Store) cachePage(pos PagePosition, p *Page, memory int) {
	s.cache.set(pos, p, memory)
}

// cacheGet returns the cached page at pos, if resident.
func (s *Store) cacheGet(pos PagePosition) (*Page, bool) {
	return s.cache.get(pos)
}

func (s *Store) getCompressorFast() Compressor { return s.compressorFast }
func (s *Store) getCompressorHigh() Compressor { return s.compressorHigh }
func (s *Store) getCompressionLevel() int      { return s.options.CompressionLevel }

// fileStoreFor resolves the FileStore backing the chunk a position names.
func (s *Store) fileStoreFor(pos PagePosition) *FileStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	chunk, ok := s.chunks[pos.ChunkID()]
	if !ok {
		return nil
	}
	return chunk.fileStore
}

// decrementLiveBytes tells the owning chunk that a page at pos is no
// longer reachable. The true serialized length isn't known without a
// read, so the length class's byte ceiling stands in for it; this only
// feeds the GC's liveRatio heuristic, not correctness.
func (s *Store) decrementLiveBytes(pos PagePosition, memory int) {
	s.mu.Lock()
	chunk, ok := s.chunks[pos.ChunkID()]
	s.mu.Unlock()
	if !ok {
		return
	}
	chunk.recordRemoval(maxLengthForClass(pos.LengthClass()))
	s.cache.del(pos)
}

// reportRemovedLeaf is decrementLiveBytes's entry point for leaves whose
// in-memory page handle was never loaded during removeAllRecursive.
func (s *Store) reportRemovedLeaf(pos PagePosition) {
	s.decrementLiveBytes(pos, 0)
}

// currentWritableChunk returns the chunk new write cycles append to,
// rotating to a fresh chunk once the current one exceeds ChunkSize.
func (s *Store) currentWritableChunk() (*Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.MaxLen() >= s.options.ChunkSize {
		chunk, err := s.newChunkLocked()
		if err != nil {
			return nil, err
		}
		s.current = chunk
	}
	return s.current, nil
}

// beginWriteCycle reserves the current chunk's tail as the base offset for
// a new write-out cycle and hands back a scratch buffer to serialize into.
func (s *Store) beginWriteCycle() (*writeCycle, error) {
	chunk, err := s.currentWritableChunk()
	if err != nil {
		return nil, err
	}
	base := chunk.fileStore.tailSnapshot()
	return &writeCycle{chunk: chunk, baseOffset: base, buf: s.buffers.get(), store: s}, nil
}

// commitWriteCycle appends the cycle's buffer to its chunk's file store at
// the reserved base offset and returns the buffer to the pool.
func (s *Store) commitWriteCycle(wc *writeCycle) error {
	offset, err := wc.chunk.fileStore.append(wc.buf.Bytes())
	s.buffers.put(wc.buf)
	if err != nil {
		return err
	}
	if offset != wc.baseOffset {
		return ErrInternal
	}
	return nil
}

// Close flushes and closes every chunk file store and the page cache.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.close()

	var firstErr error
	for _, chunk := range s.chunks {
		if err := chunk.fileStore.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := chunk.fileStore.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
