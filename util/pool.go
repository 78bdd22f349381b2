package util

import "sync"

// BufPool hands out fixed-size byte buffers for the I/O pumps,
// reducing GC pressure on the chunk path between the endpoints and
// the bridge loop.
type BufPool struct {
	pool sync.Pool
	size int
}

// NewBufPool returns a pool of size-byte buffers.
func NewBufPool(size int) *BufPool {
	bp := &BufPool{size: size}
	bp.pool.New = func() interface{} {
		buf := make([]byte, size)
		return &buf
	}
	return bp
}

// Get retrieves a full-length buffer from the pool. Callers must
// return it with [BufPool.Put] when finished.
func (bp *BufPool) Get() []byte {
	return (*bp.pool.Get().(*[]byte))[:bp.size]
}

// Put returns a buffer to the pool. Shortened slices of a pooled
// buffer are accepted; foreign or undersized buffers are dropped.
func (bp *BufPool) Put(buf []byte) {
	if cap(buf) < bp.size {
		return
	}
	buf = buf[:bp.size]
	bp.pool.Put(&buf)
}
