package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/funnel/internal/actions"
	"github.com/okian/funnel/internal/adapters/queue"
	"github.com/okian/funnel/internal/adapters/storage"
	"github.com/okian/funnel/internal/adapters/transport"
	"github.com/okian/funnel/internal/config"
	"github.com/okian/funnel/internal/domain/model"
	"github.com/okian/funnel/internal/domain/trigger"
	"github.com/okian/funnel/internal/engage"
	"github.com/okian/funnel/internal/uploader"
	"github.com/okian/funnel/pkg/logger"
	"github.com/okian/funnel/pkg/metrics"
)

// Key-value keys for identity and session bookkeeping.
const (
	kvUserID       = "user_id"
	kvFirstSession = "first_session_at"
	kvLastSession  = "last_session_at"
	kvPausedAt     = "paused_at"
)

// Decision point and flavour used for session-configuration fetches.
const (
	configDecisionPoint = "config"
	configFlavour       = "internal"
	defaultFlavour      = "engagement"
)

// Service is the telemetry core facade the host application drives. All
// methods are safe for concurrent use once Start has returned.
type Service struct {
	mu      sync.RWMutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	cfg       *config.Config
	transport transport.Transport
	kv        KeyValueStore
	metadata  MetadataProvider
	sink      NotificationSink
	prefetch  ImagePrefetcher
	clock     uploader.Clock
	now       func() time.Time
	logger    logger.Logger

	store     *storage.Store
	queue     *queue.DurableQueue
	uploader  *uploader.Uploader
	cache     *engage.Cache
	actions   *actions.Store
	evaluator *trigger.Evaluator

	// snapMu serializes snapshot replacement; readers load lock-free.
	snapMu   sync.Mutex
	snapshot atomic.Pointer[model.Snapshot]
}

// New creates a Service with configuration options. Call Start before
// recording events.
func New(opts ...Option) *Service {
	s := &Service{
		cfg:       config.New(),
		transport: transport.NewHTTP(),
		sink:      noopSink{},
		now:       time.Now,
		logger:    logger.Get().Named("app"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens persistence, restores buffered state, establishes the user and
// session identity, and begins the scheduled upload loop. A failed session
// configuration fetch is reported through the notification sink but does not
// fail Start.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	if s.cfg.CollectURL == "" {
		s.mu.Unlock()
		return ErrMissingCollectURL
	}

	if s.cfg.StoragePath != "" {
		store, err := storage.Open(ctx, s.cfg.StoragePath)
		if err != nil {
			s.logger.Warn(ctx, "persistence unavailable, running in memory",
				logger.String("path", s.cfg.StoragePath),
				logger.Error(err))
			metrics.RecordErrorByComponent("app", "storage_open")
		} else {
			s.store = store
		}
	}
	if s.kv == nil {
		if s.store != nil {
			s.kv = s.store
		} else {
			s.kv = newMemoryKV()
		}
	}

	queueOpts := []queue.Option{
		queue.WithCapacity(s.cfg.QueueCapacity),
		queue.WithLogger(s.logger.Named("queue")),
	}
	cacheOpts := []engage.Option{engage.WithLogger(s.logger.Named("engage"))}
	actionOpts := []actions.Option{actions.WithLogger(s.logger.Named("actions"))}
	if s.store != nil {
		queueOpts = append(queueOpts, queue.WithStore(s.store))
		cacheOpts = append(cacheOpts, engage.WithStore(s.store))
		actionOpts = append(actionOpts, actions.WithBackend(s.store))
	}
	s.queue = queue.New(ctx, queueOpts...)
	s.cache = engage.New(ctx, cacheOpts...)
	s.actions = actions.New(ctx, actionOpts...)
	s.evaluator = trigger.NewEvaluator(
		trigger.WithResolver(s.actions),
		trigger.WithLogger(s.logger.Named("trigger")),
	)

	uploadOpts := []uploader.Option{
		uploader.WithRetryDelay(time.Duration(s.cfg.RetryDelayMS) * time.Millisecond),
		uploader.WithMaxAttempts(s.cfg.MaxRetryAttempts),
		uploader.WithHashSecret(s.cfg.HashSecret),
		uploader.WithLogger(s.logger.Named("uploader")),
	}
	if s.clock != nil {
		uploadOpts = append(uploadOpts, uploader.WithClock(s.clock))
	}
	s.uploader = uploader.New(s.queue, s.transport, s.cfg.CollectURL, uploadOpts...)

	firstRun, err := s.establishIdentity(ctx)
	if err != nil {
		if s.store != nil {
			_ = s.store.Close()
			s.store = nil
		}
		s.mu.Unlock()
		return fmt.Errorf("establish identity: %w", err)
	}

	s.started = true
	s.stopCh = make(chan struct{})
	if s.cfg.UploadIntervalS > 0 {
		s.wg.Add(1)
		go s.uploadLoop(time.Duration(s.cfg.UploadIntervalS) * time.Second)
	}
	s.logger.Info(ctx, "service started",
		logger.String("user_id", s.snap().UserID),
		logger.String("session_id", s.snap().SessionID),
		logger.Int("queue_capacity", s.cfg.QueueCapacity),
		logger.Bool("persistent", s.store != nil))
	s.mu.Unlock()

	if s.cfg.EngageURL != "" {
		if err := s.RequestSessionConfiguration(ctx); err != nil {
			s.logger.Warn(ctx, "initial session configuration failed", logger.Error(err))
		}
	}
	s.recordDefaultEvents(ctx, firstRun)
	return nil
}

// Stop halts the upload loop, flushes buffered state to disk, and closes
// persistence. Stop on a stopped service is a no-op.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.wg.Wait()

	s.queue.Flush(ctx)
	s.cache.Save(ctx)
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(ctx, "closing persistence failed", logger.Error(err))
		}
	}
	s.started = false
	s.logger.Info(ctx, "service stopped")
	return nil
}

// RecordEvent enriches the event with identity and timestamp, appends it to
// the queue, and evaluates triggers against it. A matched trigger's action
// is returned synchronously. Events outside the whitelist yield a nil action
// and no error.
func (s *Service) RecordEvent(ctx context.Context, name string, params model.Params) (*trigger.Action, error) {
	if !s.running() {
		return nil, ErrNotStarted
	}
	snap := s.snap()
	if !snap.WhitelistsEvent(name) {
		metrics.RecordEventDropped("not_whitelisted")
		s.logger.Debug(ctx, "event not whitelisted", logger.String("event", name))
		return nil, nil
	}

	ts := s.now().UTC()
	ev := model.NewEvent(name, params, snap.UserID, snap.SessionID, &ts)
	payload, err := ev.Serialize()
	if err != nil {
		metrics.RecordEventDropped("serialize")
		s.logger.Warn(ctx, "dropping unserializable event",
			logger.String("event", name), logger.Error(err))
		return nil, nil
	}
	if !s.queue.Append(ctx, payload) {
		metrics.RecordEventDropped("queue_full")
		return nil, ErrQueueFull
	}
	metrics.RecordEventRecorded()

	if action, ok := s.evaluator.Evaluate(ctx, ev, snap.TriggersByEvent); ok {
		return &action, nil
	}
	return nil, nil
}

// Upload runs one upload cycle immediately. It returns ErrBusy when a cycle
// is already in flight.
func (s *Service) Upload(ctx context.Context) error {
	if !s.running() {
		return ErrNotStarted
	}
	_, err := s.uploader.RunCycle(ctx)
	return err
}

// RequestEngagement asks the decision-point endpoint for a response. On
// success the response is cached under its request fingerprint. On failure a
// cached response is returned, marked with isCachedResponse, when the
// decision point is whitelisted for offline use and a cached copy exists.
func (s *Service) RequestEngagement(ctx context.Context, decisionPoint, flavour string, params model.Params) (json.RawMessage, error) {
	if !s.running() {
		return nil, ErrNotStarted
	}
	if s.cfg.EngageURL == "" {
		return nil, ErrMissingEngageURL
	}
	if flavour == "" {
		flavour = defaultFlavour
	}
	snap := s.snap()
	fp := engage.Fingerprint(decisionPoint, flavour, params)

	body, err := s.engageBody(decisionPoint, flavour, params, snap)
	if err != nil {
		return nil, fmt.Errorf("encode engagement request: %w", err)
	}
	status, resp, err := s.transport.Submit(ctx, s.cfg.EngageURL, http.MethodPost, body, nil)
	if err == nil && status >= 200 && status < 300 {
		s.cache.Store(ctx, fp, resp)
		metrics.RecordEngageRequest("network")
		return resp, nil
	}
	s.logger.Warn(ctx, "engagement request failed",
		logger.String("decision_point", decisionPoint),
		logger.Int("status", status),
		logger.Error(err))

	if snap.WhitelistsDecisionPoint(decisionPoint) {
		if cached, ok := s.cache.Lookup(fp); ok {
			metrics.RecordEngageRequest("cached")
			return markCachedResponse(cached), nil
		}
	}
	metrics.RecordEngageRequest("failed")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngagementFailed, err)
	}
	return nil, fmt.Errorf("%w: status %d", ErrEngagementFailed, status)
}

// RequestSessionConfiguration fetches the session configuration and applies
// it to the active snapshot. On network failure a cached configuration is
// applied when available; otherwise the previous snapshot stays in force and
// the sink is notified of the failure.
func (s *Service) RequestSessionConfiguration(ctx context.Context) error {
	if !s.running() {
		return ErrNotStarted
	}
	if s.cfg.EngageURL == "" {
		err := ErrMissingEngageURL
		s.sink.SessionConfigurationFailed(err)
		return err
	}
	snap := s.snap()
	params := s.sessionConfigParams(ctx)
	fp := engage.Fingerprint(configDecisionPoint, configFlavour, nil)

	body, err := s.engageBody(configDecisionPoint, configFlavour, params, snap)
	if err != nil {
		s.sink.SessionConfigurationFailed(err)
		return fmt.Errorf("encode configuration request: %w", err)
	}
	status, resp, err := s.transport.Submit(ctx, s.cfg.EngageURL, http.MethodPost, body, nil)
	if err == nil && status >= 200 && status < 300 {
		p, decodeErr := model.DecodeSessionResponse(resp)
		if decodeErr != nil {
			s.sink.SessionConfigurationFailed(decodeErr)
			return fmt.Errorf("decode session configuration: %w", decodeErr)
		}
		s.cache.Store(ctx, fp, resp)
		s.applyParams(ctx, p)
		return nil
	}
	s.logger.Warn(ctx, "session configuration fetch failed",
		logger.Int("status", status), logger.Error(err))

	if cached, ok := s.cache.Lookup(fp); ok {
		if p, decodeErr := model.DecodeSessionResponse(cached); decodeErr == nil {
			p.IsCachedResponse = true
			s.applyParams(ctx, p)
			return nil
		}
	}
	if err == nil {
		err = fmt.Errorf("%w: status %d", ErrEngagementFailed, status)
	}
	s.sink.SessionConfigurationFailed(err)
	return err
}

// NewSession rotates the session identity and returns the new session ID.
// The configuration snapshot carries over until the next fetch.
func (s *Service) NewSession(ctx context.Context) (string, error) {
	if !s.running() {
		return "", ErrNotStarted
	}
	id := uuid.NewString()
	s.snapMu.Lock()
	next := *s.snap()
	next.SessionID = id
	s.snapshot.Store(&next)
	s.snapMu.Unlock()
	s.touchSessionTimestamps(ctx)
	s.logger.Info(ctx, "session rotated", logger.String("session_id", id))
	return id, nil
}

// ClearPersistentData wipes buffered events, cached engagements, persisted
// actions, and stored identity keys. The in-flight session keeps running.
func (s *Service) ClearPersistentData(ctx context.Context) error {
	if !s.running() {
		return ErrNotStarted
	}
	s.queue.ClearAll(ctx)
	s.cache.Clear(ctx)
	s.actions.Clear(ctx)
	switch kv := s.kv.(type) {
	case interface{ ClearKV(context.Context) error }:
		if err := kv.ClearKV(ctx); err != nil {
			s.logger.Warn(ctx, "clearing key-value store failed", logger.Error(err))
		}
	case interface{ Clear(context.Context) error }:
		if err := kv.Clear(ctx); err != nil {
			s.logger.Warn(ctx, "clearing key-value store failed", logger.Error(err))
		}
	}
	s.logger.Info(ctx, "persistent data cleared")
	return nil
}

// OnPause flushes buffered state so a process kill while backgrounded loses
// nothing, and records the pause time for session-timeout checks.
func (s *Service) OnPause(ctx context.Context) error {
	if !s.running() {
		return ErrNotStarted
	}
	s.queue.Flush(ctx)
	s.cache.Save(ctx)
	s.setKV(ctx, kvPausedAt, millisString(s.now()))
	return nil
}

// OnResume rotates the session when the pause outlasted the session timeout,
// then refreshes the session configuration for the new session.
func (s *Service) OnResume(ctx context.Context) error {
	if !s.running() {
		return ErrNotStarted
	}
	pausedAt := s.getKVMillis(ctx, kvPausedAt)
	timeout := time.Duration(s.cfg.SessionTimeoutS) * time.Second
	if pausedAt.IsZero() || timeout <= 0 || s.now().Sub(pausedAt) < timeout {
		return nil
	}
	if _, err := s.NewSession(ctx); err != nil {
		return err
	}
	// Consume the pause timestamp so a repeated resume does not rotate
	// again off the same pause.
	s.setKV(ctx, kvPausedAt, "")
	if s.cfg.EngageURL != "" {
		if err := s.RequestSessionConfiguration(ctx); err != nil {
			s.logger.Warn(ctx, "session configuration refresh failed", logger.Error(err))
		}
	}
	return nil
}

// Uploading reports whether an upload cycle is in flight.
func (s *Service) Uploading() bool {
	if !s.running() {
		return false
	}
	return s.queue.Uploading()
}

// QueueLen returns the number of events awaiting upload in the active buffer.
func (s *Service) QueueLen() int {
	if !s.running() {
		return 0
	}
	return s.queue.Len()
}

// UserID returns the stable user identity.
func (s *Service) UserID() string { return s.snap().UserID }

// SessionID returns the current session identity.
func (s *Service) SessionID() string { return s.snap().SessionID }

func (s *Service) running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// snap returns the current snapshot, never nil.
func (s *Service) snap() *model.Snapshot {
	if snap := s.snapshot.Load(); snap != nil {
		return snap
	}
	return &model.Snapshot{}
}

// establishIdentity loads or mints the user ID and opens the first session.
// It reports whether this is the first run on this installation.
func (s *Service) establishIdentity(ctx context.Context) (bool, error) {
	userID, err := s.kv.GetString(ctx, kvUserID)
	if err != nil {
		return false, fmt.Errorf("load user id: %w", err)
	}
	firstRun := userID == ""
	if firstRun {
		userID = uuid.NewString()
		if err := s.kv.SetString(ctx, kvUserID, userID); err != nil {
			s.logger.Warn(ctx, "persisting user id failed", logger.Error(err))
		}
	}
	s.snapshot.Store(&model.Snapshot{
		UserID:    userID,
		SessionID: uuid.NewString(),
	})
	s.touchSessionTimestamps(ctx)
	return firstRun, nil
}

// touchSessionTimestamps sets first-session on first use and always advances
// last-session.
func (s *Service) touchSessionTimestamps(ctx context.Context) {
	now := millisString(s.now())
	if first, err := s.kv.GetString(ctx, kvFirstSession); err == nil && first == "" {
		s.setKV(ctx, kvFirstSession, now)
	}
	s.setKV(ctx, kvLastSession, now)
}

// recordDefaultEvents emits the lifecycle events the core owns: newPlayer on
// the first run and gameStarted with client metadata on every start.
func (s *Service) recordDefaultEvents(ctx context.Context, firstRun bool) {
	if firstRun {
		if _, err := s.RecordEvent(ctx, "newPlayer", nil); err != nil {
			s.logger.Warn(ctx, "recording newPlayer failed", logger.Error(err))
		}
	}
	var params model.Params
	if s.metadata != nil {
		params = s.metadata.Snapshot()
	}
	if _, err := s.RecordEvent(ctx, "gameStarted", params); err != nil {
		s.logger.Warn(ctx, "recording gameStarted failed", logger.Error(err))
	}
}

// sessionConfigParams carries installation age hints to the backend.
func (s *Service) sessionConfigParams(ctx context.Context) model.Params {
	params := model.Params{}
	now := s.now()
	if first := s.getKVMillis(ctx, kvFirstSession); !first.IsZero() {
		params["timeSinceFirstSession"] = now.Sub(first).Milliseconds()
	}
	if last := s.getKVMillis(ctx, kvLastSession); !last.IsZero() {
		params["timeSinceLastSession"] = now.Sub(last).Milliseconds()
	}
	return params
}

// applyParams installs a decoded configuration: snapshot replacement,
// persistent-action storage, sink notification, and image prefetch.
func (s *Service) applyParams(ctx context.Context, p *model.SessionParams) {
	s.snapMu.Lock()
	next := s.snap().Apply(p)
	s.snapshot.Store(next)
	s.snapMu.Unlock()

	if p.Triggers != nil {
		for _, dto := range *p.Triggers {
			if dto.Persistent && dto.TriggerID != "" {
				s.actions.Put(ctx, dto.TriggerID, dto.Response)
			}
		}
	}
	s.sink.SessionConfigured(p.IsCachedResponse)
	s.logger.Info(ctx, "session configuration applied",
		logger.Bool("cached", p.IsCachedResponse),
		logger.Int("images", len(next.ImageCache)))

	if s.prefetch != nil && len(next.ImageCache) > 0 {
		if err := s.prefetch.Prefetch(ctx, next.ImageCache); err != nil {
			s.sink.ImageCacheFailed(err)
		} else {
			s.sink.ImageCachePopulated()
		}
	}
}

// engageBody builds the engagement request payload.
func (s *Service) engageBody(decisionPoint, flavour string, params model.Params, snap *model.Snapshot) ([]byte, error) {
	req := map[string]interface{}{
		"decisionPoint": decisionPoint,
		"flavour":       flavour,
		"userID":        snap.UserID,
		"sessionID":     snap.SessionID,
	}
	if s.cfg.EnvironmentKey != "" {
		req["environmentKey"] = s.cfg.EnvironmentKey
	}
	if len(params) > 0 {
		req["parameters"] = params
	}
	return json.Marshal(req)
}

func (s *Service) uploadLoop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			ctx := context.Background()
			if _, err := s.uploader.RunCycle(ctx); err != nil && !errors.Is(err, uploader.ErrBusy) {
				s.logger.Warn(ctx, "scheduled upload failed", logger.Error(err))
			}
		}
	}
}

func (s *Service) setKV(ctx context.Context, key, value string) {
	if err := s.kv.SetString(ctx, key, value); err != nil {
		s.logger.Warn(ctx, "key-value write failed",
			logger.String("key", key), logger.Error(err))
	}
}

func (s *Service) getKVMillis(ctx context.Context, key string) time.Time {
	raw, err := s.kv.GetString(ctx, key)
	if err != nil || raw == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func millisString(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// markCachedResponse injects isCachedResponse into a cached engagement body
// so the host can tell replayed responses from live ones. A body that fails
// to parse is returned unchanged.
func markCachedResponse(body []byte) json.RawMessage {
	var obj map[string]interface{}
	if err := json.Unmarshal(body, &obj); err != nil {
		return body
	}
	obj["isCachedResponse"] = true
	marked, err := json.Marshal(obj)
	if err != nil {
		return body
	}
	return marked
}
