package gateway

import (
	"sync"
)

// Outbox is a bounded FIFO of encoded frames for one connection.
// Send never blocks: when full, the oldest frame is dropped.
type Outbox struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      [][]byte
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	closed   bool

	// Stats
	totalReceived int64
	totalSent     int64
	dropped       int64
}

// NewOutbox creates an outbox holding at most capacity frames.
func NewOutbox(capacity int) *Outbox {
	if capacity < 1 {
		capacity = 1
	}
	o := &Outbox{
		buf:      make([][]byte, capacity),
		capacity: capacity,
	}
	o.cond = sync.NewCond(&o.mu)
	return o
}

// Send queues a frame. It returns dropped=true when the oldest frame was
// evicted to make room, and ok=false if the outbox is closed.
func (o *Outbox) Send(frame []byte) (ok, dropped bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return false, false
	}

	if o.count == o.capacity {
		o.buf[o.head] = nil
		o.head = (o.head + 1) % o.capacity
		o.count--
		o.dropped++
		dropped = true
	}

	o.buf[o.tail] = frame
	o.tail = (o.tail + 1) % o.capacity
	o.count++
	o.totalReceived++

	o.cond.Signal()
	return true, dropped
}

// Receive removes and returns the oldest frame.
// Blocks until a frame is available or the outbox is closed.
// Returns nil and false once closed, even if frames remain.
func (o *Outbox) Receive() ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for o.count == 0 && !o.closed {
		o.cond.Wait()
	}

	if o.closed {
		return nil, false
	}

	return o.pop(), true
}

// TryReceive attempts to receive without blocking.
func (o *Outbox) TryReceive() ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.count == 0 {
		return nil, false
	}
	return o.pop(), true
}

// pop must be called with lock held and count > 0.
func (o *Outbox) pop() []byte {
	frame := o.buf[o.head]
	o.buf[o.head] = nil // Clear reference for GC
	o.head = (o.head + 1) % o.capacity
	o.count--
	o.totalSent++
	return frame
}

// Close closes the outbox and wakes any waiting receiver. Pending frames
// are discarded; the connection is going away.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.closed = true
	o.cond.Broadcast()
}

// Len returns the number of queued frames.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.count
}

// Stats returns outbox statistics.
func (o *Outbox) Stats() OutboxStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return OutboxStats{
		Count:         o.count,
		Capacity:      o.capacity,
		TotalReceived: o.totalReceived,
		TotalSent:     o.totalSent,
		Dropped:       o.dropped,
	}
}

// OutboxStats contains outbox statistics.
type OutboxStats struct {
	Count         int
	Capacity      int
	TotalReceived int64
	TotalSent     int64
	Dropped       int64
}
