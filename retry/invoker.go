package retry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/aponysus/regone/controlplane"
	"github.com/aponysus/regone/observe"
	"github.com/aponysus/regone/policy"
	"github.com/aponysus/regone/request"
	"github.com/aponysus/regone/routing"
)

// ErrNilRequestContext is returned when an operation is started without a request context.
var ErrNilRequestContext = errors.New("regone: nil request context")

// StoreOperation issues one attempt of a store request against the replicas resolved in rc.
type StoreOperation[T any] func(ctx context.Context, rc *request.Context) (T, error)

type Operation func(ctx context.Context, rc *request.Context) error

// Invoker runs store operations under a gone-and-retry-with Policy.
//
// Each call creates a fresh Policy; an Invoker itself is safe for concurrent use.
type Invoker struct {
	provider      controlplane.PolicyProvider
	resolver      routing.Resolver
	observer      observe.Observer
	clock         func() time.Time
	sleep         func(context.Context, time.Duration) error
	recoverPanics bool
}

type invokerConfig struct {
	opts           InvokerOptions
	staticPolicies map[policy.PolicyKey]policy.RetryPolicy
	defaultPolicy  policy.RetryPolicy
}

// InvokerOptions configures an Invoker.
type InvokerOptions struct {
	Provider      controlplane.PolicyProvider
	Resolver      routing.Resolver
	Observer      observe.Observer
	Clock         func() time.Time
	RecoverPanics bool
}

// InvokerOption configures an Invoker.
type InvokerOption func(*invokerConfig)

// NewInvoker creates an Invoker. Without a provider option it serves the static policies
// registered with WithPolicy, falling back to the defaults.
func NewInvoker(opts ...InvokerOption) *Invoker {
	cfg := &invokerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.opts.Provider == nil && (len(cfg.staticPolicies) > 0 || !cfg.defaultPolicy.IsZero()) {
		cfg.opts.Provider = &controlplane.StaticProvider{
			Policies: cfg.staticPolicies,
			Default:  cfg.defaultPolicy,
		}
	}

	return NewInvokerFromOptions(cfg.opts)
}

// NewInvokerFromOptions creates an Invoker from a config struct.
func NewInvokerFromOptions(opts InvokerOptions) *Invoker {
	inv := &Invoker{
		provider:      opts.Provider,
		resolver:      opts.Resolver,
		observer:      opts.Observer,
		clock:         opts.Clock,
		recoverPanics: opts.RecoverPanics,
	}

	if inv.provider == nil {
		inv.provider = &controlplane.StaticProvider{}
	}
	if inv.observer == nil {
		inv.observer = observe.NoopObserver{}
	}
	if inv.clock == nil {
		inv.clock = time.Now
	}
	if inv.sleep == nil {
		inv.sleep = sleepWithContext
	}

	return inv
}

// WithProvider sets the policy provider.
func WithProvider(p controlplane.PolicyProvider) InvokerOption {
	return func(c *invokerConfig) {
		c.opts.Provider = p
	}
}

// WithResolver sets the routing resolver run before every attempt.
func WithResolver(r routing.Resolver) InvokerOption {
	return func(c *invokerConfig) {
		c.opts.Resolver = r
	}
}

// WithObserver sets the observer.
func WithObserver(o observe.Observer) InvokerOption {
	return func(c *invokerConfig) {
		c.opts.Observer = o
	}
}

// WithClock sets the clock function.
func WithClock(f func() time.Time) InvokerOption {
	return func(c *invokerConfig) {
		c.opts.Clock = f
	}
}

// WithRecoverPanics sets whether panics in operations are returned as *PanicError.
func WithRecoverPanics(recover bool) InvokerOption {
	return func(c *invokerConfig) {
		c.opts.RecoverPanics = recover
	}
}

// WithPolicy adds a static policy for a string key (e.g. "docs.read").
func WithPolicy(key string, opts ...policy.Option) InvokerOption {
	return func(c *invokerConfig) {
		if c.staticPolicies == nil {
			c.staticPolicies = make(map[policy.PolicyKey]policy.RetryPolicy)
		}
		c.staticPolicies[policy.ParseKey(key)] = policy.New(opts...)
	}
}

// WithDefaultPolicy sets the static policy used for keys without their own.
func WithDefaultPolicy(opts ...policy.Option) InvokerOption {
	return func(c *invokerConfig) {
		c.defaultPolicy = policy.New(opts...)
	}
}

// PanicError reports a panic recovered from user code.
type PanicError struct {
	Component string
	Key       policy.PolicyKey
	Value     any
	Stack     []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("regone: panic in %s for %s: %v", e.Component, e.Key, e.Value)
}

// Do runs op until it succeeds or the policy gives up.
func (inv *Invoker) Do(ctx context.Context, key policy.PolicyKey, rc *request.Context, op Operation) error {
	_, err := DoValue[struct{}](ctx, inv, key, rc, func(ctx context.Context, rc *request.Context) (struct{}, error) {
		return struct{}{}, op(ctx, rc)
	})
	return err
}

// DoValue runs op until it succeeds or the policy gives up and returns the last value.
//
// Before every attempt the resolver consumes rc's refresh intents and re-resolves routing.
// Each attempt runs under its own deadline: the total budget for the first, then the
// next timeout chosen by the policy. Terminal errors are returned unchanged.
func DoValue[T any](ctx context.Context, inv *Invoker, key policy.PolicyKey, rc *request.Context, op StoreOperation[T]) (T, error) {
	val, _, err := DoValueWithTimeline(ctx, inv, key, rc, op)
	return val, err
}

// DoValueWithTimeline is DoValue that also returns the request's timeline.
func DoValueWithTimeline[T any](ctx context.Context, inv *Invoker, key policy.PolicyKey, rc *request.Context, op StoreOperation[T]) (T, observe.Timeline, error) {
	var zero T
	if ctx == nil {
		ctx = context.Background()
	}
	if rc == nil {
		return zero, observe.Timeline{}, ErrNilRequestContext
	}

	if inv == nil {
		inv = DefaultInvoker()
	} else if inv.provider == nil || inv.observer == nil || inv.clock == nil || inv.sleep == nil {
		sleep := inv.sleep
		inv = NewInvokerFromOptions(InvokerOptions{
			Provider:      inv.provider,
			Resolver:      inv.resolver,
			Observer:      inv.observer,
			Clock:         inv.clock,
			RecoverPanics: inv.recoverPanics,
		})
		if sleep != nil {
			inv.sleep = sleep
		}
	}

	capture, _ := observe.TimelineCaptureFromContext(ctx)

	val, tl, err := runValue(ctx, inv, key, rc, func(c context.Context, rc *request.Context) (T, error) {
		return op(observe.WithoutTimelineCapture(c), rc)
	})
	if capture != nil {
		observe.StoreTimelineCapture(capture, &tl)
	}
	return val, tl, err
}

func runValue[T any](ctx context.Context, inv *Invoker, key policy.PolicyKey, rc *request.Context, op StoreOperation[T]) (T, observe.Timeline, error) {
	activityID := rc.ActivityID.String()
	ctx = observe.WithActivityID(ctx, activityID)

	tl := observe.Timeline{
		Key:        key,
		ActivityID: activityID,
		Start:      inv.clock(),
		Attributes: make(map[string]string),
	}

	pol := inv.resolvePolicy(ctx, key, tl.Attributes)
	inv.observer.OnStart(ctx, key, pol)
	if d, ok := inv.observer.(observe.ContextDeriver); ok {
		ctx = d.DeriveContext(ctx)
	}

	// An unrecovered panic still closes the request for the observer before it unwinds.
	defer func() {
		if r := recover(); r != nil {
			tl.End = inv.clock()
			tl.FinalErr = &PanicError{Component: "operation", Key: key, Value: r}
			tl.Attributes[observe.AttrFinalState] = "panic"
			inv.observer.OnFailure(ctx, key, tl)
			panic(r)
		}
	}()

	p := NewPolicy(pol, WithPolicyClock(inv.clock))
	timeout := p.Config().TotalBudget

	var (
		last     T
		finalErr error
	)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			finalErr = p.Cancel(err)
			break
		}

		rec := observe.AttemptRecord{
			ActivityID: activityID,
			Attempt:    attempt,
			StartTime:  inv.clock(),
			Timeout:    timeout,
		}

		var (
			val T
			err error
		)
		if rerr := inv.resolve(ctx, rc); rerr != nil {
			tl.Attributes[observe.AttrResolveError] = rerr.Error()
			err = rerr
		} else {
			val, err = attemptOnce(ctx, inv, key, rc, op, observe.AttemptInfo{
				ActivityID: activityID,
				Attempt:    attempt,
				Timeout:    timeout,
			})
			last = val
		}
		rec.EndTime = inv.clock()

		if err == nil {
			p.Complete()
			tl.Attempts = append(tl.Attempts, rec)
			inv.observer.OnAttempt(ctx, key, rec)
			break
		}
		rec.Err = err

		if cerr := ctx.Err(); cerr != nil {
			finalErr = p.Cancel(cerr)
			tl.Attempts = append(tl.Attempts, rec)
			inv.observer.OnAttempt(ctx, key, rec)
			break
		}

		d := p.OnFailure(err, rc)
		rec.Category = p.LastCategory()
		rec.Retry = d.Retry
		rec.Backoff = d.After
		rec.NextTimeout = d.NextTimeout
		rec.Intents = rc.RefreshIntents()
		tl.Attempts = append(tl.Attempts, rec)
		inv.observer.OnAttempt(ctx, key, rec)

		if !d.Retry {
			finalErr = d.Err
			break
		}

		if err := inv.sleep(ctx, d.After); err != nil {
			finalErr = p.Cancel(err)
			break
		}
		rc = d.Context
		timeout = d.NextTimeout
	}

	tl.End = inv.clock()
	tl.FinalErr = finalErr
	tl.Attributes[observe.AttrFinalState] = p.State().String()

	if finalErr == nil {
		inv.observer.OnSuccess(ctx, key, tl)
		return last, tl, nil
	}
	inv.observer.OnFailure(ctx, key, tl)
	return last, tl, finalErr
}

type attemptCancelKey struct{}

type attemptCancel struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	taken  bool
}

// TakeAttemptCancel hands the cancel func of the attempt context to the operation. If the
// attempt then succeeds the invoker leaves the context alive and the caller must call the
// returned func once the value is no longer in use, typically when a response body is
// closed. A failed attempt is cancelled as usual. Outside an attempt it returns nil.
func TakeAttemptCancel(ctx context.Context) context.CancelFunc {
	h, ok := ctx.Value(attemptCancelKey{}).(*attemptCancel)
	if !ok || h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.taken = true
	return h.cancel
}

func (h *attemptCancel) isTaken() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.taken
}

func attemptOnce[T any](ctx context.Context, inv *Invoker, key policy.PolicyKey, rc *request.Context, op StoreOperation[T], info observe.AttemptInfo) (val T, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, info.Timeout)
	holder := &attemptCancel{cancel: cancel}
	returned := false
	defer func() {
		if !returned || err != nil || !holder.isTaken() {
			cancel()
		}
	}()
	attemptCtx = context.WithValue(attemptCtx, attemptCancelKey{}, holder)
	attemptCtx = observe.WithAttemptInfo(attemptCtx, info)

	if inv.recoverPanics {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				val = zero
				err = &PanicError{
					Component: "operation",
					Key:       key,
					Value:     r,
					Stack:     debug.Stack(),
				}
			}
		}()
	}

	val, err = op(attemptCtx, rc)
	returned = true
	return val, err
}

func (inv *Invoker) resolve(ctx context.Context, rc *request.Context) error {
	if inv.resolver == nil {
		return nil
	}
	return inv.resolver.Resolve(ctx, rc)
}

// resolvePolicy never fails: provider errors fall back to the default policy and are
// recorded on the timeline.
func (inv *Invoker) resolvePolicy(ctx context.Context, key policy.PolicyKey, attrs map[string]string) (pol policy.RetryPolicy) {
	defer func() {
		attrs[observe.AttrPolicySource] = string(pol.Meta.Source)
	}()

	var err error
	func() {
		if inv.recoverPanics {
			defer func() {
				if r := recover(); r != nil {
					err = &PanicError{Component: "policy_provider", Key: key, Value: r, Stack: debug.Stack()}
				}
			}()
		}
		pol, err = inv.provider.GetPolicy(ctx, key)
	}()
	if err == nil {
		return pol
	}

	attrs[observe.AttrPolicyError] = policyErrorKind(err)
	pol, _ = policy.DefaultRetryPolicy().Normalize()
	return pol
}

func policyErrorKind(err error) string {
	var nerr *policy.NormalizeError
	var perr *PanicError
	switch {
	case errors.Is(err, controlplane.ErrPolicyNotFound):
		return "not_found"
	case errors.Is(err, controlplane.ErrProviderUnavailable):
		return "unavailable"
	case errors.As(err, &nerr):
		return "invalid"
	case errors.As(err, &perr):
		return "panic"
	default:
		return "provider_error"
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
