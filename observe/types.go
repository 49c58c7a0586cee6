// Package observe defines the lifecycle hooks the invoker reports to, plus logging,
// metrics and tracing observers built on them.
package observe

import (
	"context"
	"time"

	"github.com/aponysus/regone/classify"
	"github.com/aponysus/regone/policy"
	"github.com/aponysus/regone/request"
)

// AttemptRecord describes one failed or successful attempt of a logical request.
type AttemptRecord struct {
	ActivityID string
	Attempt    int
	StartTime  time.Time
	EndTime    time.Time

	// Timeout is the deadline the attempt ran under.
	Timeout time.Duration

	Err      error
	Category classify.Category

	// Retry is true when the policy scheduled another attempt.
	Retry       bool
	Backoff     time.Duration
	NextTimeout time.Duration

	// Intents are the refresh intents pending after the policy mutated the request.
	Intents request.Intents
}

// Timeline is the structured record of one logical request and all of its attempts.
type Timeline struct {
	Key        policy.PolicyKey
	ActivityID string
	Start      time.Time
	End        time.Time

	// Attributes holds request-level metadata (policy source, final state, etc.).
	Attributes map[string]string

	Attempts []AttemptRecord
	FinalErr error
}

// Observer receives lifecycle callbacks for a single logical request.
type Observer interface {
	OnStart(ctx context.Context, key policy.PolicyKey, pol policy.RetryPolicy)
	OnAttempt(ctx context.Context, key policy.PolicyKey, rec AttemptRecord)
	OnSuccess(ctx context.Context, key policy.PolicyKey, tl Timeline)
	OnFailure(ctx context.Context, key policy.PolicyKey, tl Timeline)
}

// ContextDeriver is an optional Observer extension. After OnStart the invoker runs every
// attempt of the request under the context DeriveContext returns, so state created in
// OnStart (a trace span, for example) is visible to the operation.
type ContextDeriver interface {
	DeriveContext(ctx context.Context) context.Context
}
