// Package queue implements the durable double-buffer event queue.
package queue

import (
	"github.com/okian/funnel/pkg/logger"
)

// Option applies a configuration option to the DurableQueue.
type Option func(*DurableQueue)

// WithCapacity sets the capacity ceiling of the active buffer.
func WithCapacity(capacity int) Option {
	return func(q *DurableQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithStore attaches a persistence backend. Without one the queue runs
// memory-only and events do not survive a restart.
func WithStore(store Store) Option {
	return func(q *DurableQueue) {
		if store != nil {
			q.store = store
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(q *DurableQueue) {
		if l != nil {
			q.logger = l
		}
	}
}
