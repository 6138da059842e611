// Package app wires the telemetry core together and exposes the host-facing
// service surface.
package app

import (
	"context"
	"sync"
)

// KeyValueStore persists small scalars (session timestamps, identity keys).
// Durability is best effort: values should survive a process restart.
type KeyValueStore interface {
	GetString(ctx context.Context, key string) (string, error)
	SetString(ctx context.Context, key, value string) error
}

// MetadataProvider supplies a read-only snapshot of device/locale/platform
// facts, merged into the default events the SDK emits on its own.
type MetadataProvider interface {
	Snapshot() map[string]interface{}
}

// NotificationSink receives one-way notifications from the core. Calls are
// fire-and-forget; implementations must not block.
type NotificationSink interface {
	SessionConfigured(cached bool)
	SessionConfigurationFailed(err error)
	ImageCachePopulated()
	ImageCacheFailed(err error)
}

// ImagePrefetcher downloads and caches the asset URLs named by the session
// configuration. Asset handling stays outside the core.
type ImagePrefetcher interface {
	Prefetch(ctx context.Context, urls []string) error
}

// noopSink is the default sink when the host does not register one.
type noopSink struct{}

func (noopSink) SessionConfigured(bool)           {}
func (noopSink) SessionConfigurationFailed(error) {}
func (noopSink) ImageCachePopulated()             {}
func (noopSink) ImageCacheFailed(error)           {}

// memoryKV is the fallback key-value store used when persistence is
// unavailable. Values do not survive a restart.
type memoryKV struct {
	mu     sync.RWMutex
	values map[string]string
}

func newMemoryKV() *memoryKV {
	return &memoryKV{values: make(map[string]string)}
}

func (m *memoryKV) GetString(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[key], nil
}

func (m *memoryKV) SetString(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memoryKV) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[string]string)
	return nil
}
