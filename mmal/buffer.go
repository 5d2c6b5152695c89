package mmal

import (
	"fmt"
	"sync"
	"time"
)

// BufferFlag is a bitmask describing the payload of a delivered buffer.
type BufferFlag uint32

// Buffer flags observed by port callbacks.
const (
	// FlagFrameEnd marks the last buffer of a logical frame.
	FlagFrameEnd BufferFlag = 1 << iota
	// FlagTransmissionFailed marks a frame the hardware failed to deliver
	// completely. It closes the current frame like FlagFrameEnd does.
	FlagTransmissionFailed
	// FlagKeyframe marks an intra-coded frame.
	FlagKeyframe
	// FlagConfig marks codec configuration data rather than image payload.
	FlagConfig
)

// Buffer is a reusable buffer header bound to a pool. The data slice is
// allocated once at pool creation and recirculated between the application
// and the hardware runtime for the lifetime of the pool.
type Buffer struct {
	data   []byte
	Length int
	Flags  BufferFlag
	// PTS is the capture timestamp stamped by the runtime on delivery.
	PTS time.Time

	pool *Pool
	mu   sync.Mutex
}

// Data returns the filled portion of the buffer payload.
func (b *Buffer) Data() []byte {
	return b.data[:b.Length]
}

// Capacity returns the fixed payload capacity.
func (b *Buffer) Capacity() int {
	return cap(b.data)
}

// Lock takes the memory lock the runtime requires while the payload is read.
func (b *Buffer) Lock() {
	b.mu.Lock()
}

// Unlock releases the memory lock.
func (b *Buffer) Unlock() {
	b.mu.Unlock()
}

// Fill overwrites the payload. Used by the runtime when a buffer handed to a
// port comes back filled.
func (b *Buffer) Fill(payload []byte, flags BufferFlag, pts time.Time) error {
	if len(payload) > cap(b.data) {
		return fmt.Errorf("payload %d bytes exceeds buffer capacity %d", len(payload), cap(b.data))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = b.data[:len(payload)]
	copy(b.data, payload)
	b.Length = len(payload)
	b.Flags = flags
	b.PTS = pts
	return nil
}

// Release resets the header and returns the buffer to its owning pool's
// queue. Every buffer delivered to a callback must be released exactly once.
func (b *Buffer) Release() {
	b.mu.Lock()
	b.Length = 0
	b.Flags = 0
	b.PTS = time.Time{}
	b.data = b.data[:0]
	b.mu.Unlock()
	if b.pool != nil {
		b.pool.queue.Put(b)
	}
}
