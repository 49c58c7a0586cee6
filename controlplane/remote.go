package controlplane

import (
	"context"
	"errors"
	"time"

	"github.com/aponysus/regone/policy"
)

// Source fetches raw policies, e.g. from a configuration service.
type Source interface {
	// GetPolicy returns the policy for key, or ErrPolicyNotFound.
	GetPolicy(ctx context.Context, key policy.PolicyKey) (policy.RetryPolicy, error)
}

// RemoteProvider fetches policies from a Source and caches them, including misses.
type RemoteProvider struct {
	source           Source
	cache            *PolicyCache
	cacheTTL         time.Duration
	negativeCacheTTL time.Duration
}

// RemoteProviderOption configures a RemoteProvider.
type RemoteProviderOption func(*RemoteProvider)

// WithCacheTTL sets the TTL for successful lookups. Default is 1 minute.
func WithCacheTTL(ttl time.Duration) RemoteProviderOption {
	return func(p *RemoteProvider) {
		p.cacheTTL = ttl
	}
}

// WithNegativeCacheTTL sets the TTL for missing lookups. Default is 10 seconds.
func WithNegativeCacheTTL(ttl time.Duration) RemoteProviderOption {
	return func(p *RemoteProvider) {
		p.negativeCacheTTL = ttl
	}
}

func NewRemoteProvider(source Source, opts ...RemoteProviderOption) *RemoteProvider {
	p := &RemoteProvider{
		source:           source,
		cache:            NewPolicyCache(),
		cacheTTL:         time.Minute,
		negativeCacheTTL: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *RemoteProvider) GetPolicy(ctx context.Context, key policy.PolicyKey) (policy.RetryPolicy, error) {
	if p == nil || p.source == nil {
		return policy.RetryPolicy{}, ErrProviderUnavailable
	}

	if pol, ok, missing := p.cache.Get(key); ok {
		if missing {
			return policy.RetryPolicy{}, ErrPolicyNotFound
		}
		return pol, nil
	}

	pol, err := p.source.GetPolicy(ctx, key)
	if err != nil {
		if errors.Is(err, ErrPolicyNotFound) {
			p.cache.SetMissing(key, p.negativeCacheTTL)
			return policy.RetryPolicy{}, ErrPolicyNotFound
		}
		return policy.RetryPolicy{}, err
	}

	normalized, err := withSource(pol, policy.PolicySourceRemote).Normalize()
	if err != nil {
		// Corrupt policies are not cached.
		return policy.RetryPolicy{}, err
	}
	p.cache.Set(key, normalized, p.cacheTTL)
	return normalized, nil
}
