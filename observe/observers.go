package observe

import (
	"context"

	"github.com/aponysus/regone/policy"
)

// BaseObserver implements Observer with no-op methods.
//
// Users can embed BaseObserver to implement only the callbacks they need.
type BaseObserver struct{}

func (BaseObserver) OnStart(context.Context, policy.PolicyKey, policy.RetryPolicy) {}
func (BaseObserver) OnAttempt(context.Context, policy.PolicyKey, AttemptRecord)    {}
func (BaseObserver) OnSuccess(context.Context, policy.PolicyKey, Timeline)         {}
func (BaseObserver) OnFailure(context.Context, policy.PolicyKey, Timeline)         {}

// MultiObserver fans out events to multiple observers.
type MultiObserver struct {
	Observers []Observer
}

func (m MultiObserver) OnStart(ctx context.Context, key policy.PolicyKey, pol policy.RetryPolicy) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnStart(ctx, key, pol)
		}
	}
}

func (m MultiObserver) OnAttempt(ctx context.Context, key policy.PolicyKey, rec AttemptRecord) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnAttempt(ctx, key, rec)
		}
	}
}

func (m MultiObserver) OnSuccess(ctx context.Context, key policy.PolicyKey, tl Timeline) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnSuccess(ctx, key, tl)
		}
	}
}

func (m MultiObserver) OnFailure(ctx context.Context, key policy.PolicyKey, tl Timeline) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnFailure(ctx, key, tl)
		}
	}
}

// DeriveContext chains the observers that implement ContextDeriver in order.
func (m MultiObserver) DeriveContext(ctx context.Context) context.Context {
	for _, o := range m.Observers {
		if d, ok := o.(ContextDeriver); ok && d != nil {
			ctx = d.DeriveContext(ctx)
		}
	}
	return ctx
}
