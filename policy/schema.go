package policy

import (
	"math"
	"strconv"
	"time"
)

// RetryPolicy configures the gone-and-retry-with recovery of one logical request.
type RetryPolicy struct {
	InitialBackoff    time.Duration `json:"initial_backoff"    yaml:"initial_backoff"`
	BackoffMultiplier float64       `json:"backoff_multiplier" yaml:"backoff_multiplier"`
	MaxBackoff        time.Duration `json:"max_backoff"        yaml:"max_backoff"`

	// TotalBudget is the ceiling on wall-clock time spent across all attempts.
	TotalBudget time.Duration `json:"total_budget" yaml:"total_budget"`

	// MaxInvalidPartitionRetries caps invalid-partition recovery independently of TotalBudget.
	MaxInvalidPartitionRetries int `json:"max_invalid_partition_retries" yaml:"max_invalid_partition_retries"`

	Meta Metadata `json:"-" yaml:"-"`
}

type PolicySource string

const (
	PolicySourceUnknown PolicySource = "unknown"
	PolicySourceStatic  PolicySource = "static"
	PolicySourceFile    PolicySource = "file"
	PolicySourceRemote  PolicySource = "remote"
	PolicySourceDefault PolicySource = "default"
)

type NormalizationInfo struct {
	Changed       bool
	ChangedFields []string
}

type Metadata struct {
	Source        PolicySource
	Normalization NormalizationInfo
}

const (
	DefaultInitialBackoff             = 1 * time.Second
	DefaultBackoffMultiplier          = 2.0
	DefaultMaxBackoff                 = 15 * time.Second
	DefaultTotalBudget                = 30 * time.Second
	DefaultMaxInvalidPartitionRetries = 2

	maxBackoffMultiplier = 10.0
	maxBackoffCeiling    = 5 * time.Minute
	minBudgetFloor       = 1 * time.Millisecond
)

// DefaultRetryPolicy returns the stock policy: 1s initial backoff doubling up to 15s
// per attempt within a 30s total budget.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialBackoff:             DefaultInitialBackoff,
		BackoffMultiplier:          DefaultBackoffMultiplier,
		MaxBackoff:                 DefaultMaxBackoff,
		TotalBudget:                DefaultTotalBudget,
		MaxInvalidPartitionRetries: DefaultMaxInvalidPartitionRetries,
		Meta: Metadata{
			Source: PolicySourceDefault,
		},
	}
}

// IsZero reports whether no tunable field is set.
func (p RetryPolicy) IsZero() bool {
	return p.InitialBackoff == 0 &&
		p.BackoffMultiplier == 0 &&
		p.MaxBackoff == 0 &&
		p.TotalBudget == 0 &&
		p.MaxInvalidPartitionRetries == 0
}

// Normalize fills unset fields with defaults and clamps out-of-range values.
//
// A negative total budget is rejected rather than clamped since it usually means a
// misparsed duration.
func (p RetryPolicy) Normalize() (RetryPolicy, error) {
	normalized := p
	norm := &normalized.Meta.Normalization

	markChanged := func(field string) {
		norm.Changed = true
		for _, f := range norm.ChangedFields {
			if f == field {
				return
			}
		}
		norm.ChangedFields = append(norm.ChangedFields, field)
	}

	if normalized.TotalBudget < 0 {
		return RetryPolicy{}, &NormalizeError{Field: "retry.total_budget", Value: normalized.TotalBudget.String()}
	}
	if normalized.TotalBudget == 0 {
		normalized.TotalBudget = DefaultTotalBudget
		markChanged("retry.total_budget")
	}
	if normalized.TotalBudget < minBudgetFloor {
		normalized.TotalBudget = minBudgetFloor
		markChanged("retry.total_budget")
	}

	if normalized.InitialBackoff <= 0 {
		normalized.InitialBackoff = DefaultInitialBackoff
		markChanged("retry.initial_backoff")
	}

	if normalized.MaxBackoff <= 0 {
		normalized.MaxBackoff = DefaultMaxBackoff
		markChanged("retry.max_backoff")
	}
	if normalized.MaxBackoff > maxBackoffCeiling {
		normalized.MaxBackoff = maxBackoffCeiling
		markChanged("retry.max_backoff")
	}
	if normalized.MaxBackoff < normalized.InitialBackoff {
		normalized.MaxBackoff = normalized.InitialBackoff
		markChanged("retry.max_backoff")
	}

	if math.IsNaN(normalized.BackoffMultiplier) || math.IsInf(normalized.BackoffMultiplier, 0) {
		return RetryPolicy{}, &NormalizeError{
			Field: "retry.backoff_multiplier",
			Value: strconv.FormatFloat(normalized.BackoffMultiplier, 'g', -1, 64),
		}
	}
	if normalized.BackoffMultiplier == 0 {
		normalized.BackoffMultiplier = DefaultBackoffMultiplier
		markChanged("retry.backoff_multiplier")
	}
	if normalized.BackoffMultiplier < 1 {
		normalized.BackoffMultiplier = 1
		markChanged("retry.backoff_multiplier")
	} else if normalized.BackoffMultiplier > maxBackoffMultiplier {
		normalized.BackoffMultiplier = maxBackoffMultiplier
		markChanged("retry.backoff_multiplier")
	}

	if normalized.MaxInvalidPartitionRetries <= 0 {
		normalized.MaxInvalidPartitionRetries = DefaultMaxInvalidPartitionRetries
		markChanged("retry.max_invalid_partition_retries")
	}

	if normalized.Meta.Source == "" {
		normalized.Meta.Source = PolicySourceUnknown
	}

	return normalized, nil
}
