package router

import (
	"sync"
)

// GrowableBuffer is a thread-safe FIFO ring that doubles its capacity when it
// reaches 70% full. Once capacity would exceed maxCapacity the oldest item is
// overwritten instead, so a stalled consumer costs bounded memory.
type GrowableBuffer[T any] struct {
	mu          sync.Mutex
	cond        *sync.Cond
	buf         []T
	head        int // read position
	tail        int // write position
	count       int
	maxCapacity int
	closed      bool

	sent        int64
	received    int64
	overwritten int64
	resizes     int
}

// BufferStats contains buffer statistics.
type BufferStats struct {
	Count       int
	Capacity    int
	Sent        int64
	Received    int64
	Overwritten int64
	Resizes     int
}

// NewGrowableBuffer creates a buffer with the given initial capacity. A
// maxCapacity of zero or less leaves growth unbounded.
func NewGrowableBuffer[T any](initialCapacity, maxCapacity int) *GrowableBuffer[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	if maxCapacity > 0 && maxCapacity < initialCapacity {
		maxCapacity = initialCapacity
	}
	b := &GrowableBuffer[T]{
		buf:         make([]T, initialCapacity),
		maxCapacity: maxCapacity,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Send appends an item. Returns false if the buffer is closed.
func (b *GrowableBuffer[T]) Send(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	threshold := (len(b.buf) * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold && b.canGrow() {
		b.grow()
	}

	if b.count == len(b.buf) {
		// Full at max capacity: drop the oldest.
		var zero T
		b.buf[b.head] = zero
		b.head = (b.head + 1) % len(b.buf)
		b.count--
		b.overwritten++
	}

	b.buf[b.tail] = item
	b.tail = (b.tail + 1) % len(b.buf)
	b.count++
	b.sent++

	b.cond.Signal()
	return true
}

// Receive blocks until an item is available or the buffer is closed and empty.
func (b *GrowableBuffer[T]) Receive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}
	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.pop(), true
}

// TryReceive returns an item if one is buffered.
func (b *GrowableBuffer[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.pop(), true
}

// DrainTo removes up to max items (all if max <= 0) in FIFO order.
func (b *GrowableBuffer[T]) DrainTo(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	n := b.count
	if max > 0 && max < n {
		n = max
	}
	out := make([]T, n)
	for i := range out {
		out[i] = b.pop()
	}
	return out
}

// Close wakes blocked receivers. Buffered items can still be received.
func (b *GrowableBuffer[T]) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.cond.Broadcast()
}

// Len returns the number of buffered items.
func (b *GrowableBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Stats returns buffer statistics.
func (b *GrowableBuffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Count:       b.count,
		Capacity:    len(b.buf),
		Sent:        b.sent,
		Received:    b.received,
		Overwritten: b.overwritten,
		Resizes:     b.resizes,
	}
}

// pop must be called with the lock held and count > 0.
func (b *GrowableBuffer[T]) pop() T {
	item := b.buf[b.head]
	var zero T
	b.buf[b.head] = zero
	b.head = (b.head + 1) % len(b.buf)
	b.count--
	b.received++
	return item
}

func (b *GrowableBuffer[T]) canGrow() bool {
	return b.maxCapacity <= 0 || len(b.buf)*2 <= b.maxCapacity
}

// grow doubles the ring and unwraps it. Must be called with the lock held.
func (b *GrowableBuffer[T]) grow() {
	next := make([]T, len(b.buf)*2)
	if b.count > 0 {
		if b.head < b.tail {
			copy(next, b.buf[b.head:b.tail])
		} else {
			n := copy(next, b.buf[b.head:])
			copy(next[n:], b.buf[:b.tail])
		}
	}
	b.buf = next
	b.head = 0
	b.tail = b.count
	b.resizes++
}
