package controlplane

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/aponysus/regone/policy"
)

// DefaultRedisPrefix namespaces policy keys in Redis.
const DefaultRedisPrefix = "regone:policy:"

// RedisGetter is the subset of a Redis client the source needs. *redis.Client and
// *redis.ClusterClient implement it.
type RedisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisSource is a Source reading policies stored as YAML or JSON documents under
// prefix + "namespace.name".
type RedisSource struct {
	client RedisGetter
	prefix string
}

func NewRedisSource(client RedisGetter, prefix string) *RedisSource {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisSource{client: client, prefix: prefix}
}

func (s *RedisSource) GetPolicy(ctx context.Context, key policy.PolicyKey) (policy.RetryPolicy, error) {
	raw, err := s.client.Get(ctx, s.prefix+key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return policy.RetryPolicy{}, ErrPolicyNotFound
	}
	if err != nil {
		return policy.RetryPolicy{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	var pol policy.RetryPolicy
	if err := yaml.Unmarshal(raw, &pol); err != nil {
		return policy.RetryPolicy{}, fmt.Errorf("decode policy %s: %w", key, err)
	}
	return pol, nil
}
