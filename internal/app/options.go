package app

import (
	"time"

	"github.com/okian/funnel/internal/adapters/transport"
	"github.com/okian/funnel/internal/config"
	"github.com/okian/funnel/internal/uploader"
	"github.com/okian/funnel/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithTransport sets the wire transport for collector and engage traffic.
func WithTransport(t transport.Transport) Option {
	return func(s *Service) {
		if t != nil {
			s.transport = t
		}
	}
}

// WithKeyValueStore overrides the persistence-backed key-value store.
func WithKeyValueStore(kv KeyValueStore) Option {
	return func(s *Service) {
		if kv != nil {
			s.kv = kv
		}
	}
}

// WithMetadataProvider registers the client metadata source for default
// events.
func WithMetadataProvider(p MetadataProvider) Option {
	return func(s *Service) {
		if p != nil {
			s.metadata = p
		}
	}
}

// WithNotificationSink registers the host's notification receiver.
func WithNotificationSink(n NotificationSink) Option {
	return func(s *Service) {
		if n != nil {
			s.sink = n
		}
	}
}

// WithImagePrefetcher registers the asset prefetcher driven by the session
// configuration's image list.
func WithImagePrefetcher(p ImagePrefetcher) Option {
	return func(s *Service) {
		if p != nil {
			s.prefetch = p
		}
	}
}

// WithClock overrides the retry-wait clock.
func WithClock(c uploader.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithNow overrides the timestamp source.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
