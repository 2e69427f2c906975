// Package queue implements the single in-memory submission queue (spec.md
// §3.4/§4.3): one producer pattern per feeder task, exactly one consumer
// (the Submitter), with FIFO ordering preserved across restarts via
// persisted queued_at.
package queue

import (
	"context"
	"sync"

	"github.com/stellar-anchor/depositsd/internal/txn"
)

// Queue is a FIFO of transaction references ready for submission.
// Producers enqueue after persisting queue/queued_at/submission_status on
// the row (spec.md §4.3); the Submitter is the sole consumer.
type Queue struct {
	mu      sync.Mutex
	items   []*txn.Transaction
	notify  chan struct{}
}

// New constructs an empty queue.
func New() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Enqueue appends tx to the tail of the queue.
func (q *Queue) Enqueue(tx *txn.Transaction) {
	q.mu.Lock()
	q.items = append(q.items, tx)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Dequeue blocks until an item is available or ctx is canceled.
func (q *Queue) Dequeue(ctx context.Context) (*txn.Transaction, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

// Len reports the current queue depth; used by metrics and tests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Rehydrate seeds the queue from rows persistence already ordered by
// ascending queued_at (spec.md §4.3), preserving fairness across restarts.
func (q *Queue) Rehydrate(rows []*txn.Transaction) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, rows...)
	if len(rows) > 0 {
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
}
