package queue

import (
	"context"
	"sync"
)

// Queue is an in-memory FIFO of job IDs. Durability lives in the jobs
// table, not here: on startup the queue is rebuilt from resumable rows,
// so losing its contents on crash costs nothing.
type Queue struct {
	mu     sync.Mutex
	items  []string
	notify chan struct{}
}

func New() *Queue {
	return &Queue{
		notify: make(chan struct{}, 1),
	}
}

// Enqueue appends a job ID and wakes one blocked Dequeue, if any.
func (q *Queue) Enqueue(jobID string) {
	q.mu.Lock()
	q.items = append(q.items, jobID)
	q.mu.Unlock()

	q.signal()
}

// Dequeue blocks until a job ID is available or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (string, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			jobID := q.items[0]
			q.items = q.items[1:]
			remaining := len(q.items)
			q.mu.Unlock()

			// Multiple waiters can race for one signal; pass it on
			// when there is still work so nobody sleeps through it.
			if remaining > 0 {
				q.signal()
			}
			return jobID, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Len reports the number of queued job IDs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
