package mmal

import (
	"sync"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	if q.Get() != nil {
		t.Fatal("empty queue should return nil")
	}

	a := &Buffer{}
	b := &Buffer{}
	q.Put(a)
	q.Put(b)

	if q.Len() != 2 {
		t.Fatalf("expected 2 queued, got %d", q.Len())
	}
	if got := q.Get(); got != a {
		t.Fatal("expected first buffer out first")
	}
	if got := q.Get(); got != b {
		t.Fatal("expected second buffer out second")
	}
	if q.Get() != nil {
		t.Fatal("drained queue should return nil")
	}
}

func TestQueueIgnoresNil(t *testing.T) {
	q := NewQueue()
	q.Put(nil)
	if q.Len() != 0 {
		t.Fatal("nil put should be ignored")
	}
}

func TestQueueConcurrent(t *testing.T) {
	q := NewQueue()
	const n = 100

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Put(&Buffer{})
		}()
	}
	wg.Wait()

	if q.Len() != n {
		t.Fatalf("expected %d queued, got %d", n, q.Len())
	}

	got := make(chan *Buffer, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got <- q.Get()
		}()
	}
	wg.Wait()
	close(got)

	count := 0
	for b := range got {
		if b == nil {
			t.Fatal("concurrent Get returned nil for a full queue")
		}
		count++
	}
	if count != n {
		t.Fatalf("expected %d buffers, got %d", n, count)
	}
}

func TestPoolCirculation(t *testing.T) {
	p, err := newPool(3, 64, nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.BufferCount() != 3 || p.BufferSize() != 64 {
		t.Fatalf("unexpected geometry %dx%d", p.BufferCount(), p.BufferSize())
	}
	if p.Queue().Len() != 3 {
		t.Fatalf("new pool should be fully queued, got %d", p.Queue().Len())
	}

	b := p.Queue().Get()
	if b == nil {
		t.Fatal("expected a buffer")
	}
	if b.Capacity() != 64 {
		t.Fatalf("expected capacity 64, got %d", b.Capacity())
	}

	// Release returns the buffer to its pool with a clean header.
	b.Length = 10
	b.Flags = FlagFrameEnd
	b.Release()
	if p.Queue().Len() != 3 {
		t.Fatalf("release should requeue, got %d queued", p.Queue().Len())
	}
	b2 := p.Queue().Get()
	for b2 != b {
		b2 = p.Queue().Get()
		if b2 == nil {
			t.Fatal("released buffer never came back")
		}
	}
	if b2.Length != 0 || b2.Flags != 0 {
		t.Fatal("released buffer header not reset")
	}
}

func TestPoolInvalidGeometry(t *testing.T) {
	if _, err := newPool(0, 64, nil); err == nil {
		t.Fatal("zero count should fail")
	}
	if _, err := newPool(3, 0, nil); err == nil {
		t.Fatal("zero size should fail")
	}
}

func TestPoolDestroyIdempotent(t *testing.T) {
	calls := 0
	p, err := newPool(2, 16, func(*Pool) { calls++ })
	if err != nil {
		t.Fatal(err)
	}
	p.Destroy()
	p.Destroy()
	if calls != 1 {
		t.Fatalf("expected one destroy callback, got %d", calls)
	}
	if !p.Destroyed() {
		t.Fatal("pool should report destroyed")
	}
	if p.Queue().Len() != 0 {
		t.Fatal("destroy should drain the queue")
	}
}

func TestBufferFillRespectsCapacity(t *testing.T) {
	p, err := newPool(1, 8, nil)
	if err != nil {
		t.Fatal(err)
	}
	b := p.Queue().Get()
	if err := b.Fill(make([]byte, 16), 0, time.Time{}); err == nil {
		t.Fatal("oversized fill should fail")
	}
	if err := b.Fill([]byte{1, 2, 3}, FlagFrameEnd, time.Time{}); err != nil {
		t.Fatal(err)
	}
	if b.Length != 3 || b.Flags != FlagFrameEnd {
		t.Fatal("fill did not record payload metadata")
	}
	if string(b.Data()) != "\x01\x02\x03" {
		t.Fatal("fill did not copy payload")
	}
}
