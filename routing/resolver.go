// Package routing is an in-process reference implementation of the caches that consume
// a request's refresh intents: collection names, routing maps and replica addresses.
package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/aponysus/regone/classify"
	"github.com/aponysus/regone/request"
)

// ErrNoOwningRange is returned when no range of the routing map contains the partition key.
var ErrNoOwningRange = errors.New("regone: no partition key range owns the partition key")

// Resolver prepares a request for its next attempt: it consumes the pending refresh
// intents and fills in the partition resolution.
type Resolver interface {
	Resolve(ctx context.Context, rc *request.Context) error
}

// Source is the authoritative metadata the caches are filled from.
type Source interface {
	// ResolveCollection maps a name-based resource address to the collection RID.
	ResolveCollection(ctx context.Context, resourceAddress string) (string, error)
	// PartitionKeyRanges lists the current ranges of a collection.
	PartitionKeyRanges(ctx context.Context, collectionRID string) ([]request.PartitionKeyRange, error)
	// Addresses lists the replicas serving one range.
	Addresses(ctx context.Context, id request.PartitionKeyRangeIdentity) ([]string, error)
}

// CacheResolver resolves requests through TTL caches over a Source.
type CacheResolver struct {
	source  Source
	limiter *rate.Limiter

	names     *Cache[string]
	rangeMaps *Cache[*RangeMap]
	addresses *Cache[[]string]
}

type resolverConfig struct {
	ttl     time.Duration
	clock   func() time.Time
	limiter *rate.Limiter
}

// ResolverOption configures a CacheResolver.
type ResolverOption func(*resolverConfig)

// WithTTL bounds how long cached metadata is trusted without a refresh intent.
func WithTTL(ttl time.Duration) ResolverOption {
	return func(c *resolverConfig) {
		c.ttl = ttl
	}
}

// WithClock sets the clock used for cache expiry.
func WithClock(f func() time.Time) ResolverOption {
	return func(c *resolverConfig) {
		c.clock = f
	}
}

// WithSourceRateLimit caps the rate of metadata reads from the Source. Resolve blocks on
// the limiter before every Source call.
func WithSourceRateLimit(limit rate.Limit, burst int) ResolverOption {
	return func(c *resolverConfig) {
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

func NewCacheResolver(source Source, opts ...ResolverOption) *CacheResolver {
	cfg := &resolverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	r := &CacheResolver{
		source:    source,
		limiter:   cfg.limiter,
		names:     NewCache[string](cfg.ttl),
		rangeMaps: NewCache[*RangeMap](cfg.ttl),
		addresses: NewCache[[]string](cfg.ttl),
	}
	r.names.nowFn = cfg.clock
	r.rangeMaps.nowFn = cfg.clock
	r.addresses.nowFn = cfg.clock
	return r
}

// Resolve drains rc's refresh intents, invalidates the matching cache entries and resolves
// the range and replicas for rc.
//
// A pinned request whose range id is no longer in the routing map gets a
// *classify.PartitionKeyRangeIsSplittingError, which the retry policy recovers from by
// falling back to name-based resolution.
func (r *CacheResolver) Resolve(ctx context.Context, rc *request.Context) error {
	if rc == nil {
		return errors.New("regone: nil request context")
	}
	intents := rc.DrainRefreshIntents()

	if intents.NameCache {
		r.names.Invalidate(rc.ResourceAddress)
	}

	rid, err := r.collectionRID(ctx, rc)
	if err != nil {
		return err
	}

	if intents.CollectionRoutingMap || intents.PartitionKeyRange {
		r.rangeMaps.Invalidate(rid)
	}
	rm, err := r.rangeMaps.GetOrLoad(ctx, rid, func(ctx context.Context) (*RangeMap, error) {
		if err := r.wait(ctx); err != nil {
			return nil, err
		}
		ranges, err := r.source.PartitionKeyRanges(ctx, rid)
		if err != nil {
			return nil, err
		}
		return NewRangeMap(ranges)
	})
	if err != nil {
		return fmt.Errorf("load routing map for %s: %w", rid, err)
	}

	pkr, err := lookupRange(rm, rc)
	if err != nil {
		return err
	}
	rc.ResolvedPartitionKeyRange = &pkr

	id := request.PartitionKeyRangeIdentity{CollectionRID: rid, PartitionKeyRangeID: pkr.ID}
	if intents.AddressCache {
		r.addresses.Invalidate(id.String())
	}
	addrs, err := r.addresses.GetOrLoad(ctx, id.String(), func(ctx context.Context) ([]string, error) {
		if err := r.wait(ctx); err != nil {
			return nil, err
		}
		return r.source.Addresses(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("load addresses for %s: %w", id, err)
	}
	rc.Addresses = append(rc.Addresses[:0], addrs...)
	return nil
}

func (r *CacheResolver) collectionRID(ctx context.Context, rc *request.Context) (string, error) {
	if id := rc.PartitionKeyRangeIdentity; id != nil && id.CollectionRID != "" {
		return id.CollectionRID, nil
	}
	rid, err := r.names.GetOrLoad(ctx, rc.ResourceAddress, func(ctx context.Context) (string, error) {
		if err := r.wait(ctx); err != nil {
			return "", err
		}
		return r.source.ResolveCollection(ctx, rc.ResourceAddress)
	})
	if err != nil {
		return "", fmt.Errorf("resolve collection %q: %w", rc.ResourceAddress, err)
	}
	return rid, nil
}

func lookupRange(rm *RangeMap, rc *request.Context) (request.PartitionKeyRange, error) {
	if id := rc.PartitionKeyRangeIdentity; id != nil && id.PartitionKeyRangeID != "" {
		pkr, ok := rm.ByID(id.PartitionKeyRangeID)
		if !ok {
			return request.PartitionKeyRange{}, &classify.PartitionKeyRangeIsSplittingError{
				Message:           fmt.Sprintf("range %s is no longer in the routing map", id.PartitionKeyRangeID),
				PartitionKeyRange: id.PartitionKeyRangeID,
			}
		}
		return pkr, nil
	}

	pkr, ok := rm.Lookup(rc.PartitionKey)
	if !ok {
		return request.PartitionKeyRange{}, fmt.Errorf("%w: %q", ErrNoOwningRange, rc.PartitionKey)
	}
	return pkr, nil
}

func (r *CacheResolver) wait(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}
