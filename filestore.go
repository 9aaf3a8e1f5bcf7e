package cowtree

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const fileStoreInitialSize = 64 << 20 // 64MB, doubled on each resize

// FileStore memory-maps one chunk file and serves readFully/append against
// it. Resize is an allocate-and-swap: unmap, truncate, remap, guarded by an
// RWMutex so readers never observe a half-resized mapping.
type FileStore struct {
	path string
	file *os.File

	data atomic.Value // []byte

	rw        sync.RWMutex
	isResizing uint32
	tail      uint32
}

// OpenFileStore opens (creating if necessary) the chunk file at path and
// maps it into memory.
func OpenFileStore(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "cowtree: opening chunk file %s", path)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "cowtree: stat chunk file")
	}

	size := stat.Size()
	if size == 0 {
		size = fileStoreInitialSize
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "cowtree: truncate chunk file")
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "cowtree: mmap chunk file")
	}

	fs := &FileStore{path: path, file: f}
	fs.data.Store(data)
	return fs, nil
}

// tailSnapshot returns the file store's current write tail. Valid as a
// write-cycle base offset only under a single-writer-per-version
// assumption: no other append can race between this read and the matching
// append call.
func (fs *FileStore) tailSnapshot() uint32 {
	fs.rw.RLock()
	defer fs.rw.RUnlock()
	return fs.tail
}

// readFully returns a copy of length bytes starting at offset. A copy is
// returned (rather than a slice into the mapping) so callers can hold on
// to it across a later resize.
func (fs *FileStore) readFully(offset uint32, length int) ([]byte, error) {
	fs.rw.RLock()
	defer fs.rw.RUnlock()

	data := fs.data.Load().([]byte)
	if length < 0 || int(offset)+length > len(data) {
		return nil, ErrFileCorrupt
	}

	out := make([]byte, length)
	copy(out, data[offset:int(offset)+length])
	return out, nil
}

// append writes b at the file store's current tail, growing the mapping
// if needed, and returns the offset it was written at.
func (fs *FileStore) append(b []byte) (uint32, error) {
	fs.rw.Lock()
	defer fs.rw.Unlock()

	start := fs.tail
	needed := int(start) + len(b)

	data := fs.data.Load().([]byte)
	if needed > len(data) {
		if err := fs.growLocked(needed); err != nil {
			return 0, err
		}
		data = fs.data.Load().([]byte)
	}

	copy(data[start:needed], b)
	fs.tail = uint32(needed)
	return start, nil
}

func (fs *FileStore) growLocked(minSize int) error {
	atomic.StoreUint32(&fs.isResizing, 1)
	defer atomic.StoreUint32(&fs.isResizing, 0)

	data := fs.data.Load().([]byte)
	newSize := len(data)
	if newSize == 0 {
		newSize = fileStoreInitialSize
	}
	for newSize < minSize {
		newSize *= 2
	}

	if err := fs.file.Sync(); err != nil {
		return errors.Wrap(err, "cowtree: sync before resize")
	}
	if err := unix.Munmap(data); err != nil {
		return errors.Wrap(err, "cowtree: unmap before resize")
	}
	if err := fs.file.Truncate(int64(newSize)); err != nil {
		return errors.Wrap(err, "cowtree: truncate chunk file")
	}

	newData, err := unix.Mmap(int(fs.file.Fd()), 0, newSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return errors.Wrap(err, "cowtree: remap chunk file")
	}
	fs.data.Store(newData)
	return nil
}

// Flush fsyncs the mapping's dirty pages to disk.
func (fs *FileStore) Flush() error {
	fs.rw.RLock()
	defer fs.rw.RUnlock()

	data := fs.data.Load().([]byte)
	if len(data) == 0 {
		return nil
	}
	if err := unix.Msync(data, unix.MS_SYNC); err != nil {
		return errors.Wrap(err, "cowtree: msync chunk file")
	}
	return nil
}

// Close unmaps the chunk file and closes the underlying descriptor.
func (fs *FileStore) Close() error {
	fs.rw.Lock()
	defer fs.rw.Unlock()

	data := fs.data.Load().([]byte)
	if len(data) > 0 {
		if err := unix.Munmap(data); err != nil {
			return errors.Wrap(err, "cowtree: munmap chunk file")
		}
	}
	return fs.file.Close()
}
