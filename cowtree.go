package cowtree

import (
	"time"

	"github.com/rs/zerolog"
)

// DB is the top-level handle opened by a caller: one Store, one KVMap
// keyed by an id of 1, and the background flush/GC goroutines that keep
// the chunk files durable and reclaim dead space.
type DB struct {
	store *Store
	m     *KVMap
	tree  *BTree
	gc    *GC

	logger zerolog.Logger

	opened bool

	signalFlush chan struct{}
	signalGC    chan struct{}
	stop        chan struct{}
}

const defaultMapID = 1

// Open creates or opens a store at options.Directory and returns a ready
// DB with its background flush and GC goroutines running.
func Open(options StoreOptions, compare Comparator, keyCodec, valueCodec Codec) (*DB, error) {
	store, err := OpenStore(options)
	if err != nil {
		return nil, err
	}

	m := NewKVMap(defaultMapID, compare, keyCodec, valueCodec, store)

	db := &DB{
		store:       store,
		m:           m,
		tree:        NewBTree(m),
		gc:          newGC(store),
		logger:      newLogger("cowtree"),
		opened:      true,
		signalFlush: make(chan struct{}, 1),
		signalGC:    make(chan struct{}, 1),
		stop:        make(chan struct{}),
	}

	go db.handleFlush()
	go db.handleGC()

	return db, nil
}

// Tree exposes the underlying B-tree operations (Get/Put/Delete/Range).
func (db *DB) Tree() *BTree { return db.tree }

// Map exposes the underlying KVMap, for callers that need CurrentVersion
// snapshots or direct map access.
func (db *DB) Map() *KVMap { return db.m }

// SignalFlush requests an out-of-band flush without blocking the caller;
// a flush already pending absorbs the request.
func (db *DB) SignalFlush() {
	select {
	case db.signalFlush <- struct{}{}:
	default:
	}
}

// SignalGC requests an out-of-band garbage collection pass.
func (db *DB) SignalGC() {
	select {
	case db.signalGC <- struct{}{}:
	default:
	}
}

func (db *DB) handleFlush() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-db.stop:
			return
		case <-db.signalFlush:
		case <-ticker.C:
		}

		db.store.mu.Lock()
		chunks := make([]*Chunk, 0, len(db.store.chunks))
		for _, c := range db.store.chunks {
			chunks = append(chunks, c)
		}
		db.store.mu.Unlock()

		for _, c := range chunks {
			if err := c.fileStore.Flush(); err != nil {
				db.logger.Warn().Err(err).Uint64("chunk", c.ID).Msg("flush failed")
			}
		}
	}
}

func (db *DB) handleGC() {
	for {
		select {
		case <-db.stop:
			return
		case <-db.signalGC:
		}

		live, err := db.gc.CollectLiveChunks(db.m.Root())
		if err != nil {
			db.logger.Warn().Err(err).Msg("gc live-chunk scan failed")
			continue
		}
		removed := db.gc.Sweep(live)
		if len(removed) > 0 {
			db.logger.Info().Int("count", len(removed)).Msg("gc swept chunks")
		}
	}
}

// Close stops the background goroutines and closes the store.
func (db *DB) Close() error {
	if !db.opened {
		return nil
	}
	db.opened = false
	close(db.stop)
	return db.store.Close()
}
