package cowtree

import "sync"

// bufferPool recycles scratch WriteBuffers used during write-cycle
// serialization so the write-out path doesn't allocate a fresh buffer for
// every batch of pages.
type bufferPool struct {
	maxSize int64
	size    int64
	pool    *sync.Pool
}

func newBufferPool(maxSize int64, initialCap int) *bufferPool {
	bp := &bufferPool{maxSize: maxSize}
	bp.pool = &sync.Pool{
		New: func() interface{} {
			return NewWriteBuffer(initialCap)
		},
	}
	for i := int64(0); i < maxSize/2; i++ {
		bp.pool.Put(NewWriteBuffer(initialCap))
		bp.size++
	}
	return bp
}

// get borrows a reset WriteBuffer from the pool.
func (bp *bufferPool) get() *WriteBuffer {
	buf := bp.pool.Get().(*WriteBuffer)
	buf.Reset()
	if bp.size > 0 {
		bp.size--
	}
	return buf
}

// put returns a WriteBuffer to the pool, dropping it if the pool is at
// capacity so the garbage collector reclaims it instead.
func (bp *bufferPool) put(buf *WriteBuffer) {
	if bp.size < bp.maxSize {
		bp.pool.Put(buf)
		bp.size++
	}
}
