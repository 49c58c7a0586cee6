package observe

import (
	"context"

	"github.com/aponysus/regone/policy"
)

// NoopObserver implements Observer with no-op methods.
type NoopObserver struct{}

func (NoopObserver) OnStart(context.Context, policy.PolicyKey, policy.RetryPolicy) {}
func (NoopObserver) OnAttempt(context.Context, policy.PolicyKey, AttemptRecord)    {}
func (NoopObserver) OnSuccess(context.Context, policy.PolicyKey, Timeline)         {}
func (NoopObserver) OnFailure(context.Context, policy.PolicyKey, Timeline)         {}

// IsNoop reports whether obs is nil or a NoopObserver.
func IsNoop(obs Observer) bool {
	switch obs.(type) {
	case nil, NoopObserver, *NoopObserver:
		return true
	default:
		return false
	}
}
