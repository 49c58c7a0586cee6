package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew_AppliesOptions(t *testing.T) {
	p := New(
		TotalBudget(5*time.Second),
		InitialBackoff(100*time.Millisecond),
		MaxBackoff(time.Second),
		BackoffMultiplier(3),
		MaxInvalidPartitionRetries(4),
	)

	assert.Equal(t, 5*time.Second, p.TotalBudget)
	assert.Equal(t, 100*time.Millisecond, p.InitialBackoff)
	assert.Equal(t, time.Second, p.MaxBackoff)
	assert.Equal(t, 3.0, p.BackoffMultiplier)
	assert.Equal(t, 4, p.MaxInvalidPartitionRetries)
	assert.Equal(t, PolicySourceStatic, p.Meta.Source)
}

func TestNew_NormalizationFallback(t *testing.T) {
	p := New(TotalBudget(-time.Second))

	assert.Equal(t, DefaultTotalBudget, p.TotalBudget)
	assert.Equal(t, PolicySourceDefault, p.Meta.Source)
}

func TestNew_IgnoresNilOption(t *testing.T) {
	p := New(nil)
	assert.Equal(t, DefaultTotalBudget, p.TotalBudget)
}
