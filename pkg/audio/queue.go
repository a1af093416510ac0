package audio

import "sync"

// FrameQueue is a bounded FIFO of frames between the capture path and the
// orchestrator. Push never blocks: when the queue is full the oldest frame is
// discarded to keep capture real-time.
//
// FrameQueue is safe for one producer and one consumer running concurrently.
type FrameQueue struct {
	mu      sync.Mutex
	buf     []AudioFrame
	head    int
	size    int
	closed  bool
	dropped uint64
	onDrop  func()

	// ready holds a token while frames are available.
	ready chan struct{}
}

// QueueOption configures a [FrameQueue].
type QueueOption func(*FrameQueue)

// WithDropHook registers fn to be called (outside the lock) for every frame
// discarded because the queue was full.
func WithDropHook(fn func()) QueueOption {
	return func(q *FrameQueue) { q.onDrop = fn }
}

// NewFrameQueue returns a queue holding at most capacity frames.
// A capacity below 1 is treated as 1.
func NewFrameQueue(capacity int, opts ...QueueOption) *FrameQueue {
	if capacity < 1 {
		capacity = 1
	}
	q := &FrameQueue{
		buf:   make([]AudioFrame, capacity),
		ready: make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Push appends f, evicting the oldest frame when full. It reports whether a
// frame was dropped. Pushing to a closed queue is a no-op.
func (q *FrameQueue) Push(f AudioFrame) (dropped bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if q.size == len(q.buf) {
		q.buf[q.head] = AudioFrame{}
		q.head = (q.head + 1) % len(q.buf)
		q.size--
		q.dropped++
		dropped = true
	}
	q.buf[(q.head+q.size)%len(q.buf)] = f
	q.size++
	q.mu.Unlock()

	q.signal()
	if dropped && q.onDrop != nil {
		q.onDrop()
	}
	return dropped
}

// Ready returns a channel that receives a token when frames may be available.
// Consumers that multiplex the queue with other events select on it and then
// call [FrameQueue.TryPop] until it reports false.
func (q *FrameQueue) Ready() <-chan struct{} {
	return q.ready
}

// TryPop removes the oldest frame without waiting.
func (q *FrameQueue) TryPop() (AudioFrame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return AudioFrame{}, false
	}
	f := q.buf[q.head]
	q.buf[q.head] = AudioFrame{}
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return f, true
}

// Len returns the number of queued frames.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Dropped returns the total number of frames evicted since creation.
func (q *FrameQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close marks the queue closed. Frames already queued can still be popped.
func (q *FrameQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// Closed reports whether Close has been called.
func (q *FrameQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *FrameQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
