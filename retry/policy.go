package retry

import (
	"errors"
	"fmt"
	"time"

	"github.com/aponysus/regone/budget"
	"github.com/aponysus/regone/classify"
	"github.com/aponysus/regone/policy"
	"github.com/aponysus/regone/request"
)

// ErrPolicyClosed is returned for failures reported after the policy reached a terminal state.
var ErrPolicyClosed = errors.New("regone: retry policy is closed")

// State is the lifecycle state of a Policy.
type State int

const (
	StateActive State = iota
	StateRetrying
	StateExhausted
	StateFailed
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateRetrying:
		return "retrying"
	case StateExhausted:
		return "exhausted"
	case StateFailed:
		return "failed"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state accepts no further failures.
func (s State) Terminal() bool {
	return s == StateExhausted || s == StateFailed || s == StateCompleted
}

// Decision is the outcome of reporting one failed attempt.
//
// When Retry is true the caller sleeps After, re-resolves routing from Context and issues
// the next attempt with NextTimeout as its deadline. Otherwise Err is surfaced unchanged.
type Decision struct {
	Retry       bool
	After       time.Duration
	NextTimeout time.Duration
	Context     *request.Context

	Err error
}

// Policy is the gone-and-retry-with state machine for one logical request.
//
// A Policy is created with the request and discarded with it. OnFailure must not be called
// concurrently; only the elapsed timer is safe to touch from another goroutine.
type Policy struct {
	pol   policy.RetryPolicy
	timer *budget.Timeout

	state State

	attemptCount                 int
	attemptCountInvalidPartition int
	currentBackoff               time.Duration

	lastRetryWith error
	lastCategory  classify.Category
	finalErr      error
}

type policyConfig struct {
	clock func() time.Time
}

// PolicyOption configures a Policy.
type PolicyOption func(*policyConfig)

// WithPolicyClock sets the clock used by the elapsed timer.
func WithPolicyClock(f func() time.Time) PolicyOption {
	return func(c *policyConfig) {
		c.clock = f
	}
}

// NewPolicy starts the elapsed timer and returns a policy in StateActive.
// An invalid pol is replaced by the defaults.
func NewPolicy(pol policy.RetryPolicy, opts ...PolicyOption) *Policy {
	cfg := &policyConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	normalized, err := pol.Normalize()
	if err != nil {
		normalized, _ = policy.DefaultRetryPolicy().Normalize()
	}

	return &Policy{
		pol:                          normalized,
		timer:                        budget.NewTimeout(normalized.TotalBudget, cfg.clock),
		state:                        StateActive,
		attemptCount:                 1,
		attemptCountInvalidPartition: 1,
		currentBackoff:               normalized.InitialBackoff,
	}
}

// OnFailure classifies err, updates the retry bookkeeping, applies the category's
// mutation to rc and decides whether the request is retried.
func (p *Policy) OnFailure(err error, rc *request.Context) Decision {
	if p.state.Terminal() {
		if p.finalErr == nil {
			return Decision{Err: ErrPolicyClosed}
		}
		return Decision{Err: fmt.Errorf("%w: %w", ErrPolicyClosed, p.finalErr)}
	}

	cat := classify.Classify(err, rc)
	p.lastCategory = cat
	if !cat.Retryable() {
		return p.fail(StateFailed, err)
	}

	if cat == classify.CategoryRetryWith {
		p.lastRetryWith = err
	}

	remaining := p.timer.Remaining()
	first := p.attemptCount == 1

	// The first retry is always attempted; the budget only gates later ones.
	if !first && remaining <= 0 {
		return p.fail(StateExhausted, p.exhaustedError(err))
	}

	p.attemptCount++
	if cat.CountsInvalidPartition() {
		p.attemptCountInvalidPartition++
		if p.attemptCountInvalidPartition > p.pol.MaxInvalidPartitionRetries {
			return p.fail(StateFailed, &classify.ServiceUnavailableError{Cause: err})
		}
	}

	var delay time.Duration
	if !first {
		delay = minDuration(p.currentBackoff, remaining, p.pol.MaxBackoff)
		p.currentBackoff = nextBackoff(p.currentBackoff, p.pol.BackoffMultiplier, p.pol.MaxBackoff)
	}

	cat.Apply(rc)

	next := remaining - delay
	if next <= 0 {
		next = p.pol.MaxBackoff
	}

	p.state = StateRetrying
	return Decision{
		Retry:       true,
		After:       delay,
		NextTimeout: next,
		Context:     rc,
	}
}

// Complete records that the request succeeded and stops the timer.
func (p *Policy) Complete() {
	if p.state.Terminal() {
		return
	}
	p.timer.Stop()
	p.state = StateCompleted
}

// Cancel abandons the request because the caller's context ended while an attempt or a
// retry delay was pending. It stops the timer and returns the error to surface.
func (p *Policy) Cancel(cause error) error {
	if p.state.Terminal() {
		return p.finalErr
	}
	if cause == nil {
		cause = p.exhaustedError(nil)
	}
	p.timer.Stop()
	p.state = StateExhausted
	p.finalErr = cause
	return cause
}

func (p *Policy) State() State {
	return p.state
}

// AttemptCount starts at 1 and grows with every retryable failure.
func (p *Policy) AttemptCount() int {
	return p.attemptCount
}

// InvalidPartitionAttemptCount starts at 1 and grows with every invalid-partition failure.
func (p *Policy) InvalidPartitionAttemptCount() int {
	return p.attemptCountInvalidPartition
}

// CurrentBackoff is the delay the next non-first retry will start from.
func (p *Policy) CurrentBackoff() time.Duration {
	return p.currentBackoff
}

// LastRetryWith returns the most recent retry-with failure, if any.
func (p *Policy) LastRetryWith() error {
	return p.lastRetryWith
}

// LastCategory returns the classification of the most recent failure.
func (p *Policy) LastCategory() classify.Category {
	return p.lastCategory
}

func (p *Policy) Elapsed() time.Duration {
	return p.timer.Elapsed()
}

func (p *Policy) TimerStopped() bool {
	return p.timer.Stopped()
}

// Config returns the normalized policy in use.
func (p *Policy) Config() policy.RetryPolicy {
	return p.pol
}

func (p *Policy) fail(state State, err error) Decision {
	p.timer.Stop()
	p.state = state
	p.finalErr = err
	return Decision{Err: err}
}

// exhaustedError prefers the remembered retry-with signal over a generic unavailable error.
func (p *Policy) exhaustedError(cause error) error {
	if p.lastRetryWith != nil {
		return p.lastRetryWith
	}
	return &classify.ServiceUnavailableError{Cause: cause}
}

func minDuration(first time.Duration, rest ...time.Duration) time.Duration {
	m := first
	for _, d := range rest {
		if d < m {
			m = d
		}
	}
	if m < 0 {
		return 0
	}
	return m
}

func nextBackoff(current time.Duration, multiplier float64, max time.Duration) time.Duration {
	next := time.Duration(float64(current) * multiplier)
	if next < 0 {
		next = 0
	}
	if max > 0 && next > max {
		return max
	}
	return next
}
