package policy

import "time"

// Option mutates a RetryPolicy before normalization.
type Option func(*RetryPolicy)

// New builds a normalized RetryPolicy from the defaults plus opts.
//
// If the options produce an invalid policy, the defaults are returned instead.
func New(opts ...Option) RetryPolicy {
	p := DefaultRetryPolicy()
	p.Meta.Source = PolicySourceStatic
	for _, opt := range opts {
		if opt != nil {
			opt(&p)
		}
	}
	normalized, err := p.Normalize()
	if err != nil {
		fallback, _ := DefaultRetryPolicy().Normalize()
		return fallback
	}
	return normalized
}

// TotalBudget sets the overall retry time ceiling.
func TotalBudget(d time.Duration) Option {
	return func(p *RetryPolicy) { p.TotalBudget = d }
}

func InitialBackoff(d time.Duration) Option {
	return func(p *RetryPolicy) { p.InitialBackoff = d }
}

func MaxBackoff(d time.Duration) Option {
	return func(p *RetryPolicy) { p.MaxBackoff = d }
}

func BackoffMultiplier(m float64) Option {
	return func(p *RetryPolicy) { p.BackoffMultiplier = m }
}

// MaxInvalidPartitionRetries sets how many invalid-partition failures may be absorbed.
func MaxInvalidPartitionRetries(n int) Option {
	return func(p *RetryPolicy) { p.MaxInvalidPartitionRetries = n }
}
