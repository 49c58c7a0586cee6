package classify

import "github.com/aponysus/regone/request"

// Category is the closed set of recovery classes a store failure can fall into.
type Category int

const (
	// CategoryNone marks a failure that is not retried.
	CategoryNone Category = iota
	CategoryGone
	CategoryRetryWith
	CategoryPartitionIsMigrating
	CategoryInvalidPartition
	CategoryPartitionKeyRangeIsSplitting
)

func (c Category) String() string {
	switch c {
	case CategoryGone:
		return "gone"
	case CategoryRetryWith:
		return "retry_with"
	case CategoryPartitionIsMigrating:
		return "partition_is_migrating"
	case CategoryInvalidPartition:
		return "invalid_partition"
	case CategoryPartitionKeyRangeIsSplitting:
		return "partition_key_range_is_splitting"
	default:
		return "none"
	}
}

// Retryable reports whether the category may be retried at all.
func (c Category) Retryable() bool {
	return c != CategoryNone
}

// CountsInvalidPartition reports whether the category draws on the invalid-partition cap.
func (c Category) CountsInvalidPartition() bool {
	return c == CategoryInvalidPartition
}

// Apply performs the context mutation the category requires. It only raises refresh
// intents and resets derived state; applying it twice leaves rc as applying it once.
func (c Category) Apply(rc *request.Context) {
	if rc == nil {
		return
	}
	switch c {
	case CategoryGone:
		rc.RequestAddressRefresh()
	case CategoryPartitionIsMigrating:
		rc.RequestRoutingMapRefresh()
	case CategoryInvalidPartition:
		rc.ResetResolution()
		rc.RequestNameCacheRefresh()
	case CategoryPartitionKeyRangeIsSplitting:
		rc.ResetResolution()
		rc.ClearPartitionKeyRangeIdentity()
		rc.RequestPartitionKeyRangeRefresh()
	}
}
