// Package uploader drives the batch upload cycle: swap the queue, build the
// envelope, submit it, classify the response, and dispose of the batch.
//
// At most one cycle runs system-wide; the queue's upload lock is the
// single-flight guard shared by scheduled and manual triggers.
package uploader

import (
	"context"
	"crypto/md5" //nolint:gosec // collector wire format, not a security boundary
	"encoding/hex"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/okian/funnel/internal/adapters/transport"
	"github.com/okian/funnel/internal/domain/model"
	"github.com/okian/funnel/pkg/logger"
	"github.com/okian/funnel/pkg/metrics"
)

// Default upload configuration constants.
const (
	defaultRetryDelay  = 2 * time.Second
	defaultMaxAttempts = 5
)

// Outcome summarizes how an upload cycle ended.
type Outcome string

const (
	// OutcomeSuccess: the collector confirmed receipt, batch cleared.
	OutcomeSuccess Outcome = "success"
	// OutcomePermanentReject: HTTP 400, batch discarded as corrupt.
	OutcomePermanentReject Outcome = "permanent_reject"
	// OutcomeRetriesExhausted: batch preserved for a future cycle.
	OutcomeRetriesExhausted Outcome = "retries_exhausted"
	// OutcomeEmpty: nothing to send.
	OutcomeEmpty Outcome = "empty"
	// OutcomeBusy: another cycle was already in flight.
	OutcomeBusy Outcome = "busy"
)

// Queue is the slice of the event queue the uploader drives.
type Queue interface {
	Swap(ctx context.Context)
	Read(ctx context.Context) [][]byte
	ClearInactive(ctx context.Context)
	TryBeginUpload() bool
	EndUpload()
}

// Uploader runs upload cycles against the collector.
type Uploader struct {
	queue       Queue
	transport   transport.Transport
	collectURL  string
	hashSecret  string
	retryDelay  time.Duration
	maxAttempts int
	clock       Clock
	logger      logger.Logger
}

// New creates an uploader with configuration options. Queue, transport, and
// collect URL are required for RunCycle to do anything useful.
func New(queue Queue, tr transport.Transport, collectURL string, opts ...Option) *Uploader {
	u := &Uploader{
		queue:       queue,
		transport:   tr,
		collectURL:  collectURL,
		retryDelay:  defaultRetryDelay,
		maxAttempts: defaultMaxAttempts,
		clock:       realClock{},
		logger:      logger.Get().Named("uploader"),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// RunCycle executes one upload cycle. It returns ErrBusy when another cycle
// holds the single-flight lock, otherwise the cycle's outcome. The same
// envelope is resubmitted on every retry; the batch is only cleared on
// confirmed receipt or permanent rejection.
func (u *Uploader) RunCycle(ctx context.Context) (Outcome, error) {
	// Swap before taking the lock: the queue refuses a swap while an
	// upload is in flight, so a competing cycle's buffers stay intact and
	// this cycle then fails the acquire below.
	u.queue.Swap(ctx)
	if !u.queue.TryBeginUpload() {
		return OutcomeBusy, ErrBusy
	}
	defer u.queue.EndUpload()

	batch := u.queue.Read(ctx)
	if len(batch) == 0 {
		return OutcomeEmpty, nil
	}

	envelope := model.BuildEnvelope(batch)
	url := u.submissionURL(envelope)
	batchID := ulid.Make().String()

	metrics.RecordUploadBatchSize(len(batch))
	u.logger.Debug(ctx, "starting upload cycle",
		logger.String("batch_id", batchID),
		logger.Int("events", len(batch)))

	for attempt := 1; attempt <= u.maxAttempts; attempt++ {
		start := time.Now()
		status, _, err := u.transport.Submit(ctx, url, http.MethodPost, envelope, nil)
		metrics.RecordUploadAttempt()
		metrics.RecordUploadLatency(float64(time.Since(start).Milliseconds()))

		switch classify(status, err) {
		case dispositionSuccess:
			u.queue.ClearInactive(ctx)
			metrics.RecordUploadCycle(string(OutcomeSuccess))
			u.logger.Info(ctx, "batch uploaded",
				logger.String("batch_id", batchID),
				logger.Int("events", len(batch)),
				logger.Int("attempt", attempt))
			return OutcomeSuccess, nil

		case dispositionPermanent:
			u.queue.ClearInactive(ctx)
			metrics.RecordUploadCycle(string(OutcomePermanentReject))
			metrics.RecordErrorByComponent("uploader", "permanent_reject")
			u.logger.Warn(ctx, "collector rejected batch as malformed, dropping it",
				logger.String("batch_id", batchID),
				logger.Int("events", len(batch)))
			return OutcomePermanentReject, nil

		case dispositionRetry:
			metrics.RecordErrorByComponent("uploader", "retryable")
			u.logger.Warn(ctx, "upload attempt failed",
				logger.String("batch_id", batchID),
				logger.Int("attempt", attempt),
				logger.Int("status", status),
				logger.Error(err))
			if attempt == u.maxAttempts {
				break
			}
			select {
			case <-u.clock.After(u.retryDelay):
			case <-ctx.Done():
				metrics.RecordUploadCycle(string(OutcomeRetriesExhausted))
				return OutcomeRetriesExhausted, ctx.Err()
			}
		}
	}

	// Batch stays parked in the inactive buffer; the next cycle merges it
	// with newer events and tries again.
	metrics.RecordUploadCycle(string(OutcomeRetriesExhausted))
	u.logger.Warn(ctx, "upload retries exhausted, batch preserved",
		logger.String("batch_id", batchID),
		logger.Int("events", len(batch)),
		logger.Int("attempts", u.maxAttempts))
	return OutcomeRetriesExhausted, nil
}

type disposition int

const (
	dispositionSuccess disposition = iota
	dispositionPermanent
	dispositionRetry
)

// classify maps a submission result onto a disposition: 1-399 is success,
// exactly 400 is unrecoverable corruption, everything else (5xx, network
// error, no response) is retryable.
func classify(status int, err error) disposition {
	if err != nil {
		return dispositionRetry
	}
	switch {
	case status >= 1 && status < http.StatusBadRequest:
		return dispositionSuccess
	case status == http.StatusBadRequest:
		return dispositionPermanent
	default:
		return dispositionRetry
	}
}

// submissionURL returns the collect URL, hash-augmented when a secret is
// configured: the MD5 hex of body+secret is appended as a path component.
func (u *Uploader) submissionURL(body []byte) string {
	if u.hashSecret == "" {
		return u.collectURL
	}
	sum := md5.Sum(append(append([]byte{}, body...), []byte(u.hashSecret)...)) //nolint:gosec // wire format
	return u.collectURL + "/hash/" + hex.EncodeToString(sum[:])
}
