package application

import (
	"context"
	"sync"
)

const priorityRanks = 4

// prioritySemaphore bounds fleet-wide delivery concurrency. Freed slots go
// to the highest-ranked waiter first, FIFO within a rank, so critical
// deliveries jump the queue without reordering their own class.
type prioritySemaphore struct {
	mu     sync.Mutex
	slots  int
	queues [priorityRanks][]chan struct{}
}

func newPrioritySemaphore(slots int) *prioritySemaphore {
	if slots < 1 {
		slots = 1
	}
	return &prioritySemaphore{slots: slots}
}

// Acquire blocks until a slot frees up or ctx ends. rank outside the known
// range is clamped.
func (s *prioritySemaphore) Acquire(ctx context.Context, rank int) error {
	if rank < 0 {
		rank = 0
	}
	if rank >= priorityRanks {
		rank = priorityRanks - 1
	}

	s.mu.Lock()
	if s.slots > 0 {
		s.slots--
		s.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	s.queues[rank] = append(s.queues[rank], ready)
	s.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for i, ch := range s.queues[rank] {
			if ch == ready {
				s.queues[rank] = append(s.queues[rank][:i], s.queues[rank][i+1:]...)
				s.mu.Unlock()
				return ctx.Err()
			}
		}
		s.mu.Unlock()
		// The slot was granted concurrently with the cancellation;
		// hand it on so it is not lost.
		s.Release()
		return ctx.Err()
	}
}

// Release hands the slot to the best waiter, or returns it to the pool.
func (s *prioritySemaphore) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for rank := priorityRanks - 1; rank >= 0; rank-- {
		if len(s.queues[rank]) == 0 {
			continue
		}
		ready := s.queues[rank][0]
		s.queues[rank] = s.queues[rank][1:]
		close(ready)
		return
	}
	s.slots++
}
