package ingest

import (
	"sync"
	"time"
)

// frameQueue is a fixed-capacity frame buffer with evict-oldest-on-full
// semantics. A mutex-serialized slice with a wakeup channel for blocked
// consumers; a buffered channel cannot drop its oldest element atomically.
type frameQueue struct {
	mu       sync.Mutex
	frames   []*Frame
	capacity int
	notify   chan struct{}
}

func newFrameQueue(capacity int) *frameQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &frameQueue{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Push inserts a frame, evicting the oldest buffered frame if the queue is
// at capacity. Returns true if an eviction happened.
func (q *frameQueue) Push(f *Frame) bool {
	q.mu.Lock()
	evicted := false
	if len(q.frames) >= q.capacity {
		q.frames = q.frames[1:]
		evicted = true
	}
	q.frames = append(q.frames, f)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return evicted
}

// Pop removes and returns the oldest frame, or nil when empty.
func (q *frameQueue) Pop() *Frame {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.frames) == 0 {
		return nil
	}
	f := q.frames[0]
	q.frames = q.frames[1:]
	return f
}

// PopWait blocks until a frame is available, the timeout elapses, or stop
// closes. It never blocks longer than timeout.
func (q *frameQueue) PopWait(timeout time.Duration, stop <-chan struct{}) *Frame {
	if f := q.Pop(); f != nil {
		return f
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-q.notify:
			if f := q.Pop(); f != nil {
				return f
			}
		case <-timer.C:
			return nil
		case <-stop:
			return nil
		}
	}
}

// Len returns the number of buffered frames.
func (q *frameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Trim discards oldest frames until at most max remain, returning how many
// were dropped.
func (q *frameQueue) Trim(max int) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	dropped := 0
	for len(q.frames) > max {
		q.frames = q.frames[1:]
		dropped++
	}
	return dropped
}
