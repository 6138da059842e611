// Package trigger evaluates server-supplied rules against recorded events.
//
// Evaluation is deterministic: trigger groups arrive pre-sorted by
// (priority desc, sequence asc) and the first matching trigger wins.
package trigger

import (
	"context"
	"encoding/json"

	"github.com/okian/funnel/internal/domain/model"
	"github.com/okian/funnel/pkg/logger"
	"github.com/okian/funnel/pkg/metrics"
)

// Action is the payload returned to the host when a trigger fires.
type Action struct {
	TriggerID  string
	Response   json.RawMessage
	Persistent bool
}

// ActionResolver looks up persisted payloads for persistent triggers.
type ActionResolver interface {
	Get(ctx context.Context, triggerID string) (json.RawMessage, bool)
}

// Evaluator matches fired events against the current trigger mapping.
type Evaluator struct {
	resolver ActionResolver
	logger   logger.Logger
}

// Option applies a configuration option to the Evaluator.
type Option func(*Evaluator)

// WithResolver sets the persistent-action resolver.
func WithResolver(r ActionResolver) Option {
	return func(e *Evaluator) {
		if r != nil {
			e.resolver = r
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEvaluator creates an evaluator with configuration options.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		logger: logger.Get().Named("trigger"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate returns the action of the first trigger whose condition holds for
// the event, or ok=false when nothing matches. An unknown event name is not
// an error; it simply yields no action.
func (e *Evaluator) Evaluate(ctx context.Context, ev model.Event, groups map[string][]model.Trigger) (Action, bool) {
	metrics.RecordTriggerEvaluation()

	for _, t := range groups[ev.Name] {
		if !Matches(t.Condition, ev.Params) {
			continue
		}

		action := Action{
			TriggerID:  t.ID,
			Response:   t.Response,
			Persistent: t.Persistent,
		}
		if t.Persistent && e.resolver != nil {
			if payload, ok := e.resolver.Get(ctx, t.ID); ok {
				action.Response = payload
			} else {
				e.logger.Warn(ctx, "persistent trigger has no stored action",
					logger.String("trigger_id", t.ID))
			}
		}

		metrics.RecordTriggerMatch()
		e.logger.Debug(ctx, "trigger matched",
			logger.String("trigger_id", t.ID),
			logger.String("event", ev.Name),
			logger.Int("priority", t.Priority))
		return action, true
	}

	return Action{}, false
}
