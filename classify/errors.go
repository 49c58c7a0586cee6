package classify

import (
	"fmt"
	"strconv"
)

// Store sub-status codes that accompany 410 Gone.
const (
	SubStatusNone                         = 0
	SubStatusNameCacheIsStale             = 1000
	SubStatusPartitionKeyRangeGone        = 1002
	SubStatusCompletingSplit              = 1007
	SubStatusCompletingPartitionMigration = 1008
)

// Store status codes recognized by FromStatus.
const (
	StatusGone               = 410
	StatusRetryWith          = 449
	StatusServiceUnavailable = 503
)

// GoneError reports that the previously resolved physical endpoint no longer serves
// the requested range.
type GoneError struct {
	Message string
}

func (e *GoneError) Error() string { return storeMessage("gone", e.Message) }

// RetryWithError is a server request to retry the same operation unchanged.
type RetryWithError struct {
	Message string
}

func (e *RetryWithError) Error() string { return storeMessage("retry with", e.Message) }

// PartitionIsMigratingError reports that the partition is moving between hosts.
type PartitionIsMigratingError struct {
	Message string
}

func (e *PartitionIsMigratingError) Error() string {
	return storeMessage("partition is migrating", e.Message)
}

// InvalidPartitionError reports that the collection a name resolved to no longer exists,
// typically because it was deleted and recreated under the same name.
type InvalidPartitionError struct {
	Message string
}

func (e *InvalidPartitionError) Error() string {
	return storeMessage("invalid partition", e.Message)
}

// PartitionKeyRangeIsSplittingError reports that the owning range is being split.
type PartitionKeyRangeIsSplittingError struct {
	Message           string
	PartitionKeyRange string
}

func (e *PartitionKeyRangeIsSplittingError) Error() string {
	if e.PartitionKeyRange != "" {
		return storeMessage("partition key range "+e.PartitionKeyRange+" is splitting", e.Message)
	}
	return storeMessage("partition key range is splitting", e.Message)
}

// ServiceUnavailableError is the synthesized terminal error returned when recovery is
// abandoned. Cause carries the failure that triggered the final decision.
type ServiceUnavailableError struct {
	Cause error
}

func (e *ServiceUnavailableError) Error() string {
	if e.Cause == nil {
		return "regone: service unavailable"
	}
	return "regone: service unavailable: " + e.Cause.Error()
}

func (e *ServiceUnavailableError) Unwrap() error { return e.Cause }

// StatusError is a store failure whose status is outside the recovery taxonomy.
type StatusError struct {
	StatusCode    int
	SubStatusCode int
	Message       string
}

func (e *StatusError) Error() string {
	s := "status " + strconv.Itoa(e.StatusCode)
	if e.SubStatusCode != 0 {
		s += "/" + strconv.Itoa(e.SubStatusCode)
	}
	return storeMessage(s, e.Message)
}

func storeMessage(kind, msg string) string {
	if msg == "" {
		return "regone: " + kind
	}
	return fmt.Sprintf("regone: %s: %s", kind, msg)
}
