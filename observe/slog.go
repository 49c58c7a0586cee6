package observe

import (
	"context"
	"log/slog"

	"github.com/aponysus/regone/policy"
)

// SlogObserver logs retry decisions and terminal outcomes.
//
// Retries and successes are logged at debug, terminal failures at warn.
type SlogObserver struct {
	Logger *slog.Logger
}

// NewSlogObserver returns an observer writing to logger, or slog.Default when nil.
func NewSlogObserver(logger *slog.Logger) *SlogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogObserver{Logger: logger.With("component", "regone")}
}

func (o *SlogObserver) OnStart(ctx context.Context, key policy.PolicyKey, pol policy.RetryPolicy) {
	o.logger().DebugContext(ctx, "request started",
		"key", key.String(),
		"total_budget", pol.TotalBudget,
		"policy_source", string(pol.Meta.Source),
	)
}

func (o *SlogObserver) OnAttempt(ctx context.Context, key policy.PolicyKey, rec AttemptRecord) {
	if rec.Err == nil {
		return
	}
	attrs := []any{
		"key", key.String(),
		"activity_id", rec.ActivityID,
		"attempt", rec.Attempt,
		"category", rec.Category.String(),
		"error", rec.Err,
	}
	if !rec.Retry {
		o.logger().DebugContext(ctx, "attempt failed, not retrying", attrs...)
		return
	}
	attrs = append(attrs,
		"backoff", rec.Backoff,
		"next_timeout", rec.NextTimeout,
		"refresh", rec.Intents.String(),
	)
	o.logger().DebugContext(ctx, "attempt failed, retrying", attrs...)
}

func (o *SlogObserver) OnSuccess(ctx context.Context, key policy.PolicyKey, tl Timeline) {
	o.logger().DebugContext(ctx, "request succeeded",
		"key", key.String(),
		"activity_id", tl.ActivityID,
		"attempts", len(tl.Attempts),
		"duration", tl.End.Sub(tl.Start),
	)
}

func (o *SlogObserver) OnFailure(ctx context.Context, key policy.PolicyKey, tl Timeline) {
	o.logger().WarnContext(ctx, "request failed",
		"key", key.String(),
		"activity_id", tl.ActivityID,
		"attempts", len(tl.Attempts),
		"duration", tl.End.Sub(tl.Start),
		"state", tl.Attributes[AttrFinalState],
		"error", tl.FinalErr,
	)
}

func (o *SlogObserver) logger() *slog.Logger {
	if o == nil || o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}
