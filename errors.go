package cowtree

import "errors"

// Error taxonomy for the page/codec core. These are raised synchronously
// and are never retried or logged inside the core itself; callers at the
// store/chunk boundary decide whether to wrap, log, or mark a chunk bad.
var (
	// ErrFileCorrupt is raised when a page fails its length, checksum, or
	// map-id check during read.
	ErrFileCorrupt = errors.New("cowtree: file corrupt")

	// ErrInternal is raised on programming errors: totalCount/memory
	// assertion failures, writing an already-stored page, or writeEnd
	// encountering a child with no assigned position.
	ErrInternal = errors.New("cowtree: internal error")
)
