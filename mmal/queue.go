package mmal

import "sync"

// Queue is a FIFO of buffer headers safe for concurrent use. It is the one
// structure shared between the control thread (priming) and the runtime's
// callback contexts (recycling), so all access is mutex guarded.
type Queue struct {
	mu   sync.Mutex
	bufs []*Buffer
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Get removes and returns the oldest buffer, or nil when the queue is empty.
func (q *Queue) Get() *Buffer {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.bufs) == 0 {
		return nil
	}
	b := q.bufs[0]
	q.bufs = q.bufs[1:]
	return b
}

// Put appends a buffer to the queue.
func (q *Queue) Put(b *Buffer) {
	if b == nil {
		return
	}
	q.mu.Lock()
	q.bufs = append(q.bufs, b)
	q.mu.Unlock()
}

// Len reports the number of queued buffers.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.bufs)
}
