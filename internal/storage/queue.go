package storage

import "sync"

// FIFO is a mutual-exclusion queue. Unlike sync.Mutex, waiters are resumed
// strictly in arrival order: ownership is handed directly to the oldest
// waiter on Release. The zero value is ready to use.
type FIFO struct {
	mu      sync.Mutex
	busy    bool
	waiters []chan struct{}
}

// NewFIFO creates an idle queue.
func NewFIFO() *FIFO {
	return &FIFO{}
}

// Acquire blocks until the caller owns the queue.
func (q *FIFO) Acquire() {
	q.mu.Lock()
	if !q.busy {
		q.busy = true
		q.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	q.waiters = append(q.waiters, ch)
	q.mu.Unlock()
	<-ch
}

// Release hands ownership to the oldest waiter, or marks the queue idle.
func (q *FIFO) Release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.busy {
		panic("storage: release of idle FIFO")
	}
	if len(q.waiters) == 0 {
		q.busy = false
		return
	}
	next := q.waiters[0]
	q.waiters[0] = nil
	q.waiters = q.waiters[1:]
	close(next)
}

// Do runs fn while owning the queue. The queue is released whether fn fails
// or not.
func (q *FIFO) Do(fn func() error) error {
	q.Acquire()
	defer q.Release()
	return fn()
}

func (q *FIFO) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}
