package mmal

import (
	"fmt"
	"sync/atomic"
)

// Pool is a fixed-capacity set of buffer headers bound to one port. The
// total number of buffers in circulation (queued plus in flight at a
// callback) is constant for the pool's lifetime.
type Pool struct {
	queue     *Queue
	count     int
	size      int
	destroyed atomic.Bool

	onDestroy func(*Pool)
}

func newPool(count, size int, onDestroy func(*Pool)) (*Pool, error) {
	if count <= 0 || size <= 0 {
		return nil, fmt.Errorf("invalid pool geometry %dx%d bytes", count, size)
	}
	p := &Pool{
		queue:     NewQueue(),
		count:     count,
		size:      size,
		onDestroy: onDestroy,
	}
	for i := 0; i < count; i++ {
		p.queue.Put(&Buffer{data: make([]byte, 0, size), pool: p})
	}
	return p, nil
}

// Queue returns the pool's buffer queue.
func (p *Pool) Queue() *Queue {
	return p.queue
}

// BufferCount returns the fixed number of buffers owned by the pool.
func (p *Pool) BufferCount() int {
	return p.count
}

// BufferSize returns the payload capacity of each buffer.
func (p *Pool) BufferSize() int {
	return p.size
}

// Destroyed reports whether Destroy has been called.
func (p *Pool) Destroyed() bool {
	return p.destroyed.Load()
}

// Destroy releases the pool's buffer memory. Must only be called once the
// owning port has been disabled; calling it twice is a no-op.
func (p *Pool) Destroy() {
	if p.destroyed.Swap(true) {
		return
	}
	// Drop whatever is still queued so the memory can be collected.
	for b := p.queue.Get(); b != nil; b = p.queue.Get() {
		b.pool = nil
	}
	if p.onDestroy != nil {
		p.onDestroy(p)
	}
}
