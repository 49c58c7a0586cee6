// Package request holds the mutable state shared by every attempt of one logical
// store request: partition resolution, quorum bookkeeping and the refresh intents that
// the routing caches drain before the next attempt.
package request

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// UnknownLSN marks a quorum watermark that must not be reused.
const UnknownLSN int64 = -1

// PartitionKeyRangeIdentity names the partition believed to own a request's key range.
type PartitionKeyRangeIdentity struct {
	CollectionRID       string
	PartitionKeyRangeID string
}

func (id PartitionKeyRangeIdentity) String() string {
	return id.CollectionRID + "," + id.PartitionKeyRangeID
}

// PartitionKeyRange is the [MinInclusive, MaxExclusive) slice of the effective
// partition key space owned by one physical partition.
type PartitionKeyRange struct {
	ID           string
	MinInclusive string
	MaxExclusive string
}

// Contains reports whether the effective partition key falls inside the range.
// An empty MaxExclusive is unbounded.
func (r PartitionKeyRange) Contains(epk string) bool {
	if epk < r.MinInclusive {
		return false
	}
	return r.MaxExclusive == "" || epk < r.MaxExclusive
}

func (r PartitionKeyRange) String() string {
	return fmt.Sprintf("%s[%q,%q)", r.ID, r.MinInclusive, r.MaxExclusive)
}

// StoreResponse is a candidate replica response retained for quorum consensus.
type StoreResponse struct {
	LSN                 int64
	GlobalCommittedLSN  int64
	PartitionKeyRangeID string
	Replica             string
}

// Context is the per-request state. It is created when a logical request starts and
// passed by pointer to the executor, the retry policy and the caches; it is never shared
// between logical requests.
type Context struct {
	ActivityID uuid.UUID

	// ResourceAddress is the name-based link of the owning collection, e.g. "dbs/db/colls/c".
	ResourceAddress string
	// PartitionKey is the effective partition key of the request.
	PartitionKey string

	PartitionKeyRangeIdentity *PartitionKeyRangeIdentity
	ResolvedPartitionKeyRange *PartitionKeyRange

	QuorumSelectedLSN           int64
	GlobalCommittedSelectedLSN  int64
	QuorumSelectedStoreResponse *StoreResponse

	// Addresses is filled by the resolver with the replicas serving the resolved range.
	Addresses []string

	intents Intents
}

// Option configures a new Context.
type Option func(*Context)

// WithActivityID overrides the generated activity id.
func WithActivityID(id uuid.UUID) Option {
	return func(c *Context) { c.ActivityID = id }
}

// WithPartitionKeyRangeIdentity starts the request pinned to a known partition.
func WithPartitionKeyRangeIdentity(collectionRID, rangeID string) Option {
	return func(c *Context) {
		c.PartitionKeyRangeIdentity = &PartitionKeyRangeIdentity{
			CollectionRID:       collectionRID,
			PartitionKeyRangeID: rangeID,
		}
	}
}

// New creates the state for a logical request.
func New(resourceAddress, partitionKey string, opts ...Option) *Context {
	c := &Context{
		ActivityID:                 uuid.New(),
		ResourceAddress:            resourceAddress,
		PartitionKey:               partitionKey,
		QuorumSelectedLSN:          UnknownLSN,
		GlobalCommittedSelectedLSN: UnknownLSN,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// IsNameBased reports whether the request still addresses its collection by name,
// i.e. it has no partition identity or no owning-collection RID.
func (c *Context) IsNameBased() bool {
	return c.PartitionKeyRangeIdentity == nil || c.PartitionKeyRangeIdentity.CollectionRID == ""
}

// ResetResolution discards the resolved range and every quorum watermark derived from it.
// Watermarks are set to UnknownLSN exactly so repeated resets are idempotent.
func (c *Context) ResetResolution() {
	c.QuorumSelectedLSN = UnknownLSN
	c.GlobalCommittedSelectedLSN = UnknownLSN
	c.QuorumSelectedStoreResponse = nil
	c.ResolvedPartitionKeyRange = nil
}

// ClearPartitionKeyRangeIdentity forgets which partition owns the request.
func (c *Context) ClearPartitionKeyRangeIdentity() {
	c.PartitionKeyRangeIdentity = nil
}

// SelectQuorum records the response chosen by quorum reads.
func (c *Context) SelectQuorum(resp *StoreResponse) {
	if resp == nil {
		return
	}
	c.QuorumSelectedStoreResponse = resp
	c.QuorumSelectedLSN = resp.LSN
	c.GlobalCommittedSelectedLSN = resp.GlobalCommittedLSN
}

func (c *Context) RequestNameCacheRefresh()         { c.intents.NameCache = true }
func (c *Context) RequestRoutingMapRefresh()        { c.intents.CollectionRoutingMap = true }
func (c *Context) RequestPartitionKeyRangeRefresh() { c.intents.PartitionKeyRange = true }
func (c *Context) RequestAddressRefresh()           { c.intents.AddressCache = true }

// RefreshIntents returns the pending intents without clearing them.
func (c *Context) RefreshIntents() Intents {
	return c.intents
}

// DrainRefreshIntents returns the pending intents and clears them. Caches call this once
// per attempt before resolving routing.
func (c *Context) DrainRefreshIntents() Intents {
	out := c.intents
	c.intents = Intents{}
	return out
}

func (c *Context) String() string {
	rng := "<none>"
	if c.ResolvedPartitionKeyRange != nil {
		rng = c.ResolvedPartitionKeyRange.String()
	}
	return "activity=" + c.ActivityID.String() +
		" resource=" + c.ResourceAddress +
		" range=" + rng +
		" lsn=" + strconv.FormatInt(c.QuorumSelectedLSN, 10)
}
