// Package regone is the short form of the retry package for callers that use one
// process-wide invoker.
package regone

import (
	"context"

	"github.com/aponysus/regone/policy"
	"github.com/aponysus/regone/request"
	"github.com/aponysus/regone/retry"
)

// Key is the structured form of a policy key.
type Key = policy.PolicyKey

// ParseKey parses "namespace.name" into a Key.
func ParseKey(s string) Key { return policy.ParseKey(s) }

// Init sets the global invoker.
// It must be called before Do/DoValue are used.
func Init(inv *retry.Invoker) {
	retry.SetGlobal(inv)
}

// NewRequest starts the state of a logical request against a collection.
func NewRequest(resourceAddress, partitionKey string, opts ...request.Option) *request.Context {
	return request.New(resourceAddress, partitionKey, opts...)
}

// Do executes op using the global invoker and the policy for key.
func Do(ctx context.Context, key string, rc *request.Context, op retry.Operation) error {
	return retry.DefaultInvoker().Do(ctx, policy.ParseKey(key), rc, op)
}

// DoValue executes op using the global invoker and the policy for key.
func DoValue[T any](ctx context.Context, key string, rc *request.Context, op retry.StoreOperation[T]) (T, error) {
	return retry.DoValue(ctx, retry.DefaultInvoker(), policy.ParseKey(key), rc, op)
}
