// Package classify maps store failures onto the recovery categories understood by the
// retry policy.
package classify

import (
	"errors"

	"github.com/aponysus/regone/request"
)

// Classify returns the recovery category for err.
//
// Invalid-partition failures are only recoverable for name-based requests: a request
// pinned to a collection RID cannot be fixed by refreshing the name cache. A nil rc is
// treated as name-based.
func Classify(err error, rc *request.Context) Category {
	if err == nil {
		return CategoryNone
	}

	var (
		gone      *GoneError
		retryWith *RetryWithError
		migrating *PartitionIsMigratingError
		invalid   *InvalidPartitionError
		splitting *PartitionKeyRangeIsSplittingError
	)

	switch {
	case errors.As(err, &gone):
		return CategoryGone
	case errors.As(err, &retryWith):
		return CategoryRetryWith
	case errors.As(err, &migrating):
		return CategoryPartitionIsMigrating
	case errors.As(err, &invalid):
		if rc == nil || rc.IsNameBased() {
			return CategoryInvalidPartition
		}
		return CategoryNone
	case errors.As(err, &splitting):
		return CategoryPartitionKeyRangeIsSplitting
	default:
		return CategoryNone
	}
}
