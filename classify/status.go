package classify

// StatusCoder is implemented by transport errors that carry a store status and sub-status.
type StatusCoder interface {
	StatusCode() int
	SubStatusCode() int
}

// FromStatus converts a store status/sub-status pair into a typed error.
//
// 410 is split by sub-status into gone, invalid partition, splitting and migrating;
// 449 is retry-with. Anything else becomes a *StatusError.
func FromStatus(status, subStatus int, msg string) error {
	switch status {
	case StatusGone:
		switch subStatus {
		case SubStatusNameCacheIsStale:
			return &InvalidPartitionError{Message: msg}
		case SubStatusPartitionKeyRangeGone, SubStatusCompletingSplit:
			return &PartitionKeyRangeIsSplittingError{Message: msg}
		case SubStatusCompletingPartitionMigration:
			return &PartitionIsMigratingError{Message: msg}
		default:
			return &GoneError{Message: msg}
		}
	case StatusRetryWith:
		return &RetryWithError{Message: msg}
	default:
		return &StatusError{StatusCode: status, SubStatusCode: subStatus, Message: msg}
	}
}

// FromStatusCoder converts err when it implements StatusCoder; other errors are returned as is.
func FromStatusCoder(err error, msg string) error {
	sc, ok := err.(StatusCoder)
	if !ok {
		return err
	}
	if msg == "" {
		msg = err.Error()
	}
	return FromStatus(sc.StatusCode(), sc.SubStatusCode(), msg)
}
