package policy

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, time.Second, p.InitialBackoff)
	assert.Equal(t, 2.0, p.BackoffMultiplier)
	assert.Equal(t, 15*time.Second, p.MaxBackoff)
	assert.Equal(t, 30*time.Second, p.TotalBudget)
	assert.Equal(t, 2, p.MaxInvalidPartitionRetries)
	assert.Equal(t, PolicySourceDefault, p.Meta.Source)
}

func TestNormalize_FillsZeroFields(t *testing.T) {
	p, err := RetryPolicy{}.Normalize()
	require.NoError(t, err)

	assert.Equal(t, DefaultInitialBackoff, p.InitialBackoff)
	assert.Equal(t, DefaultBackoffMultiplier, p.BackoffMultiplier)
	assert.Equal(t, DefaultMaxBackoff, p.MaxBackoff)
	assert.Equal(t, DefaultTotalBudget, p.TotalBudget)
	assert.Equal(t, DefaultMaxInvalidPartitionRetries, p.MaxInvalidPartitionRetries)
	assert.True(t, p.Meta.Normalization.Changed)
	assert.Contains(t, p.Meta.Normalization.ChangedFields, "retry.total_budget")
	assert.Equal(t, PolicySourceUnknown, p.Meta.Source)
}

func TestNormalize_Clamps(t *testing.T) {
	p, err := RetryPolicy{
		InitialBackoff:    2 * time.Second,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 0.5,
		TotalBudget:       time.Microsecond,
	}.Normalize()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, p.MaxBackoff, "max backoff raised to initial")
	assert.Equal(t, 1.0, p.BackoffMultiplier)
	assert.Equal(t, time.Millisecond, p.TotalBudget)

	p, err = RetryPolicy{BackoffMultiplier: 50, MaxBackoff: time.Hour}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, maxBackoffMultiplier, p.BackoffMultiplier)
	assert.Equal(t, maxBackoffCeiling, p.MaxBackoff)
}

func TestNormalize_Rejects(t *testing.T) {
	_, err := RetryPolicy{TotalBudget: -time.Second}.Normalize()
	var nerr *NormalizeError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "retry.total_budget", nerr.Field)

	_, err = RetryPolicy{BackoffMultiplier: math.NaN()}.Normalize()
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "retry.backoff_multiplier", nerr.Field)
}

func TestNormalize_UnchangedPolicyIsNotMarked(t *testing.T) {
	p, err := DefaultRetryPolicy().Normalize()
	require.NoError(t, err)
	assert.False(t, p.Meta.Normalization.Changed)
}
