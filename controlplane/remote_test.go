package controlplane

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aponysus/regone/policy"
)

type countingSource struct {
	calls int
	pol   policy.RetryPolicy
	err   error
}

func (s *countingSource) GetPolicy(context.Context, policy.PolicyKey) (policy.RetryPolicy, error) {
	s.calls++
	return s.pol, s.err
}

func TestRemoteProvider_CachesHits(t *testing.T) {
	src := &countingSource{pol: policy.RetryPolicy{TotalBudget: 9 * time.Second}}
	p := NewRemoteProvider(src, WithCacheTTL(time.Hour))
	key := policy.ParseKey("docs.read")

	for i := 0; i < 3; i++ {
		pol, err := p.GetPolicy(context.Background(), key)
		require.NoError(t, err)
		assert.Equal(t, 9*time.Second, pol.TotalBudget)
		assert.Equal(t, policy.PolicySourceRemote, pol.Meta.Source)
	}
	assert.Equal(t, 1, src.calls)
}

func TestRemoteProvider_CachesMisses(t *testing.T) {
	src := &countingSource{err: ErrPolicyNotFound}
	p := NewRemoteProvider(src, WithNegativeCacheTTL(time.Hour))
	key := policy.ParseKey("docs.read")

	for i := 0; i < 2; i++ {
		_, err := p.GetPolicy(context.Background(), key)
		assert.ErrorIs(t, err, ErrPolicyNotFound)
	}
	assert.Equal(t, 1, src.calls)
}

func TestRemoteProvider_Errors(t *testing.T) {
	boom := errors.New("boom")
	src := &countingSource{err: boom}
	p := NewRemoteProvider(src)
	_, err := p.GetPolicy(context.Background(), policy.ParseKey("x"))
	assert.ErrorIs(t, err, boom)

	_, err = p.GetPolicy(context.Background(), policy.ParseKey("x"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, src.calls, "errors are not cached")

	bad := NewRemoteProvider(&countingSource{pol: policy.RetryPolicy{TotalBudget: -1}})
	_, err = bad.GetPolicy(context.Background(), policy.ParseKey("x"))
	var nerr *policy.NormalizeError
	assert.ErrorAs(t, err, &nerr)

	var nilProvider *RemoteProvider
	_, err = nilProvider.GetPolicy(context.Background(), policy.ParseKey("x"))
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}
