// Package queue implements the durable double-buffer event queue.
//
// Two buffers share one capacity ceiling: the active buffer accepts appends
// while the inactive buffer drains into an upload. Swap is the only operation
// that exchanges roles, and it is refused while an upload is in flight, so an
// upload cycle never observes events appended after its swap.
package queue

import (
	"context"
	"sync"

	"github.com/okian/funnel/internal/adapters/storage"
	"github.com/okian/funnel/pkg/logger"
	"github.com/okian/funnel/pkg/metrics"
)

// Default queue configuration constants.
const defaultCapacity = 400

// Store is the slice of the storage layer the queue needs. Nil disables
// persistence and the queue runs memory-only.
type Store interface {
	AppendEvent(ctx context.Context, buffer string, seq int64, payload []byte) error
	LoadEvents(ctx context.Context, buffer string) ([][]byte, error)
	MoveBuffer(ctx context.Context, from, to string) error
	MaxSeq(ctx context.Context) (int64, error)
	ClearBuffer(ctx context.Context, buffer string) error
	ClearAllEvents(ctx context.Context) error
	Checkpoint(ctx context.Context) error
}

// DurableQueue is the concrete double-buffer queue.
type DurableQueue struct {
	mu       sync.Mutex
	active   [][]byte
	inactive [][]byte
	capacity int
	seq      int64

	// uploading guards Swap and ClearInactive while a drain is running.
	// It doubles as the host-observable "upload in progress" flag.
	uploading bool

	store          Store
	storeDegraded  bool
	capacityWarned bool

	logger logger.Logger
}

// New creates a durable queue with configuration options. When a store is
// configured, both buffers and the sequence counter are restored from it, so
// events recorded before a crash are uploaded after restart.
func New(ctx context.Context, opts ...Option) *DurableQueue {
	q := &DurableQueue{
		capacity: defaultCapacity,
		logger:   logger.Get().Named("queue"),
	}
	for _, opt := range opts {
		opt(q)
	}

	if q.store != nil {
		q.restore(ctx)
	}

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(len(q.active))
	return q
}

func (q *DurableQueue) restore(ctx context.Context) {
	active, err := q.store.LoadEvents(ctx, storage.BufferActive)
	if err != nil {
		q.degrade(ctx, err)
		return
	}
	inactive, err := q.store.LoadEvents(ctx, storage.BufferInactive)
	if err != nil {
		q.degrade(ctx, err)
		return
	}
	seq, err := q.store.MaxSeq(ctx)
	if err != nil {
		q.degrade(ctx, err)
		return
	}
	q.active = active
	q.inactive = inactive
	q.seq = seq
	if len(active)+len(inactive) > 0 {
		q.logger.Info(ctx, "restored queued events from storage",
			logger.Int("active", len(active)),
			logger.Int("inactive", len(inactive)))
	}
}

// degrade switches the queue to memory-only mode. Warned once.
func (q *DurableQueue) degrade(ctx context.Context, err error) {
	if q.storeDegraded {
		return
	}
	q.storeDegraded = true
	q.store = nil
	metrics.RecordErrorByComponent("queue", "storage")
	q.logger.Warn(ctx, "event storage unavailable, queue degraded to memory-only",
		logger.Error(err))
}

// Append durably adds one serialized event to the active buffer. It returns
// false when the buffer is at capacity; the event is not stored and the
// caller is expected to drop it. Safe to call while an upload is in flight.
func (q *DurableQueue) Append(ctx context.Context, payload []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.active) >= q.capacity {
		if !q.capacityWarned {
			q.capacityWarned = true
			q.logger.Warn(ctx, "event queue at capacity, rejecting appends",
				logger.Int("capacity", q.capacity))
		}
		metrics.RecordQueueReject()
		return false
	}

	q.seq++
	if q.store != nil {
		if err := q.store.AppendEvent(ctx, storage.BufferActive, q.seq, payload); err != nil {
			q.degrade(ctx, err)
		}
	}
	q.active = append(q.active, payload)
	q.capacityWarned = false

	metrics.RecordQueueAppend()
	metrics.UpdateQueueSize(len(q.active))
	return true
}

// Swap moves the active buffer's contents onto the tail of the inactive
// buffer and empties the active one. When the inactive buffer is empty this
// is a plain role exchange; when a retry-exhausted batch is parked there, the
// batch is merged with the newer events and drains as one envelope. Swap is a
// no-op while an upload is in flight, and idempotent otherwise.
func (q *DurableQueue) Swap(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.uploading {
		return
	}
	if len(q.active) == 0 {
		return
	}

	if q.store != nil {
		if err := q.store.MoveBuffer(ctx, storage.BufferActive, storage.BufferInactive); err != nil {
			q.degrade(ctx, err)
		}
	}
	q.inactive = append(q.inactive, q.active...)
	q.active = nil

	metrics.RecordQueueSwap()
	metrics.UpdateQueueSize(0)
}

// Read returns a copy of the inactive buffer in append order, for batch
// construction. It does not mutate the buffer.
func (q *DurableQueue) Read(ctx context.Context) [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([][]byte, len(q.inactive))
	copy(out, q.inactive)
	return out
}

// ClearInactive discards the inactive buffer after a confirmed upload or a
// confirmed permanent rejection.
func (q *DurableQueue) ClearInactive(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.store != nil {
		if err := q.store.ClearBuffer(ctx, storage.BufferInactive); err != nil {
			q.degrade(ctx, err)
		}
	}
	q.inactive = nil
}

// ClearAll wipes both buffers. Used on full data reset.
func (q *DurableQueue) ClearAll(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.store != nil {
		if err := q.store.ClearAllEvents(ctx); err != nil {
			q.degrade(ctx, err)
		}
	}
	q.active = nil
	q.inactive = nil
	q.seq = 0
	metrics.UpdateQueueSize(0)
}

// Flush forces buffered writes to stable storage. Called on backgrounding
// and shutdown.
func (q *DurableQueue) Flush(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.store == nil {
		return
	}
	if err := q.store.Checkpoint(ctx); err != nil {
		q.degrade(ctx, err)
	}
}

// TryBeginUpload acquires the single-flight upload lock. It returns false
// when another upload cycle is already in flight. While held, Swap and the
// capacity accounting of the parked batch are frozen.
func (q *DurableQueue) TryBeginUpload() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.uploading {
		return false
	}
	q.uploading = true
	metrics.UpdateUploadInFlight(true)
	return true
}

// EndUpload releases the single-flight upload lock.
func (q *DurableQueue) EndUpload() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.uploading = false
	metrics.UpdateUploadInFlight(false)
}

// Uploading reports whether an upload cycle is in flight.
func (q *DurableQueue) Uploading() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.uploading
}

// Len returns the number of events in the active buffer.
func (q *DurableQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

// Cap returns the active buffer's capacity ceiling.
func (q *DurableQueue) Cap() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity
}

// InactiveLen returns the number of events parked in the inactive buffer.
func (q *DurableQueue) InactiveLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inactive)
}

// Degraded reports whether the queue fell back to memory-only mode.
func (q *DurableQueue) Degraded() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.storeDegraded
}
