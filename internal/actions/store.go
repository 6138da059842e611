// Package actions persists trigger payloads flagged persistent, so the host
// can replay an action after the session that defined it has ended.
package actions

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/okian/funnel/pkg/logger"
	"github.com/okian/funnel/pkg/metrics"
)

// Backend is the slice of the storage layer the action store persists
// through. Nil keeps the store memory-only.
type Backend interface {
	PutAction(ctx context.Context, triggerID string, payload []byte) error
	LoadActions(ctx context.Context) (map[string][]byte, error)
	ClearActions(ctx context.Context) error
}

// Store maps trigger identity to a persisted action payload.
type Store struct {
	mu      sync.RWMutex
	entries map[string][]byte

	backend  Backend
	degraded bool

	logger logger.Logger
}

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithBackend attaches a persistence backend.
func WithBackend(b Backend) Option {
	return func(s *Store) {
		if b != nil {
			s.backend = b
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates the action store, restoring persisted payloads when a backend
// is configured.
func New(ctx context.Context, opts ...Option) *Store {
	s := &Store{
		entries: make(map[string][]byte),
		logger:  logger.Get().Named("actions"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.backend != nil {
		entries, err := s.backend.LoadActions(ctx)
		if err != nil {
			s.degrade(ctx, err)
		} else if len(entries) > 0 {
			s.entries = entries
		}
	}
	return s
}

func (s *Store) degrade(ctx context.Context, err error) {
	if s.degraded {
		return
	}
	s.degraded = true
	s.backend = nil
	metrics.RecordErrorByComponent("actions", "storage")
	s.logger.Warn(ctx, "action storage unavailable, store degraded to memory-only",
		logger.Error(err))
}

// Put persists a payload keyed by trigger identity. Called at
// configuration-load time for persistent triggers.
func (s *Store) Put(ctx context.Context, triggerID string, payload json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[triggerID] = payload
	metrics.RecordActionWrite()
	if s.backend != nil {
		if err := s.backend.PutAction(ctx, triggerID, payload); err != nil {
			s.degrade(ctx, err)
		}
	}
}

// Get returns the persisted payload for a trigger, ok=false when absent.
func (s *Store) Get(ctx context.Context, triggerID string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payload, ok := s.entries[triggerID]
	if ok {
		metrics.RecordActionRead()
	}
	return payload, ok
}

// Clear wipes the store in memory and storage. Used on full data reset.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string][]byte)
	if s.backend != nil {
		if err := s.backend.ClearActions(ctx); err != nil {
			s.degrade(ctx, err)
		}
	}
}

// Len returns the number of persisted actions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
