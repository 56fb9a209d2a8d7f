// Package memory provides the bounded in-process queue that feeds a sink writer.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/crawlkit/internal/crawler"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory queue with context-aware operations. Enqueue blocks while
// the queue is full.
type Queue struct {
	ch      chan crawler.Entry
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ch: make(chan crawler.Entry, capacity),
	}
}

// Enqueue pushes an entry into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, entry crawler.Entry) error {
	q.closeMu.Lock()
	closed := q.closed
	q.closeMu.Unlock()
	if closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- entry:
		return nil
	}
}

// Dequeue pops the next entry, respecting context cancellation. Entries buffered before
// Close are still delivered.
func (q *Queue) Dequeue(ctx context.Context) (crawler.Entry, error) {
	select {
	case <-ctx.Done():
		return crawler.Entry{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case entry, ok := <-q.ch:
		if !ok {
			return crawler.Entry{}, ErrClosed
		}
		return entry, nil
	}
}

// Len returns the number of buffered entries.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown. It must not race with Enqueue.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
