package session

import "sync"

// chunkQueue is a bounded FIFO of audio chunks. When full, the oldest chunk is
// dropped. Ready has a pending signal whenever the queue is non-empty or
// closed.
type chunkQueue struct {
	mu      sync.Mutex
	items   [][]byte
	limit   int
	closed  bool
	dropped int64
	ready   chan struct{}
}

func newChunkQueue(limit int) *chunkQueue {
	if limit < 1 {
		limit = 1
	}
	return &chunkQueue{
		items: make([][]byte, 0, limit),
		limit: limit,
		ready: make(chan struct{}, 1),
	}
}

// Push appends c and reports whether an older chunk was dropped to make room.
func (q *chunkQueue) Push(c []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	dropped := false
	if len(q.items) >= q.limit {
		q.items[0] = nil
		q.items = q.items[1:]
		q.dropped++
		dropped = true
	}
	q.items = append(q.items, c)
	q.signal()
	return dropped
}

// Unshift puts c back at the head, e.g. after a failed send. It is dropped if
// the queue has since filled up.
func (q *chunkQueue) Unshift(c []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.limit {
		q.dropped++
		return
	}
	q.items = append([][]byte{c}, q.items...)
	q.signal()
}

func (q *chunkQueue) TryPop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	c := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) > 0 {
		q.signal()
	}
	return c, true
}

// Close marks the end of input. Queued chunks can still be popped.
func (q *chunkQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.signal()
}

// Exhausted reports whether the queue is closed and empty.
func (q *chunkQueue) Exhausted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.items) == 0
}

func (q *chunkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *chunkQueue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *chunkQueue) Ready() <-chan struct{} {
	return q.ready
}

// signal must be called with mu held.
func (q *chunkQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
