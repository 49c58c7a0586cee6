// Package controlplane supplies the retry policy for each logical store operation.
package controlplane

import (
	"context"

	"github.com/aponysus/regone/policy"
)

// PolicyProvider supplies a RetryPolicy for a PolicyKey.
type PolicyProvider interface {
	// GetPolicy returns the normalized policy for key.
	GetPolicy(ctx context.Context, key policy.PolicyKey) (policy.RetryPolicy, error)
}

// StaticProvider is an in-process PolicyProvider backed by a map and an optional default.
type StaticProvider struct {
	Policies map[policy.PolicyKey]policy.RetryPolicy
	Default  policy.RetryPolicy
}

func (p *StaticProvider) GetPolicy(_ context.Context, key policy.PolicyKey) (policy.RetryPolicy, error) {
	if p != nil && p.Policies != nil {
		if pol, ok := p.Policies[key]; ok {
			return withSource(pol, policy.PolicySourceStatic).Normalize()
		}
	}

	if p != nil && !p.Default.IsZero() {
		return withSource(p.Default, policy.PolicySourceStatic).Normalize()
	}

	return policy.DefaultRetryPolicy().Normalize()
}

// ConfigProvider serves policies from a loaded configuration file.
type ConfigProvider struct {
	Config *policy.Config
}

func (p *ConfigProvider) GetPolicy(_ context.Context, key policy.PolicyKey) (policy.RetryPolicy, error) {
	if p == nil || p.Config == nil {
		return policy.RetryPolicy{}, ErrProviderUnavailable
	}
	return p.Config.PolicyFor(key), nil
}

func withSource(pol policy.RetryPolicy, src policy.PolicySource) policy.RetryPolicy {
	if pol.Meta.Source == "" || pol.Meta.Source == policy.PolicySourceUnknown {
		pol.Meta.Source = src
	}
	return pol
}
