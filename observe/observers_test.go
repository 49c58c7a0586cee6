package observe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aponysus/regone/policy"
)

type countingObserver struct {
	BaseObserver
	starts, attempts, successes, failures int
}

func (c *countingObserver) OnStart(context.Context, policy.PolicyKey, policy.RetryPolicy) { c.starts++ }
func (c *countingObserver) OnAttempt(context.Context, policy.PolicyKey, AttemptRecord)    { c.attempts++ }
func (c *countingObserver) OnSuccess(context.Context, policy.PolicyKey, Timeline)         { c.successes++ }
func (c *countingObserver) OnFailure(context.Context, policy.PolicyKey, Timeline)         { c.failures++ }

func TestMultiObserver_FansOut(t *testing.T) {
	a, b := &countingObserver{}, &countingObserver{}
	m := MultiObserver{Observers: []Observer{a, nil, b}}

	ctx := context.Background()
	key := policy.ParseKey("docs.read")
	m.OnStart(ctx, key, policy.DefaultRetryPolicy())
	m.OnAttempt(ctx, key, AttemptRecord{})
	m.OnAttempt(ctx, key, AttemptRecord{})
	m.OnSuccess(ctx, key, Timeline{})
	m.OnFailure(ctx, key, Timeline{})

	for _, o := range []*countingObserver{a, b} {
		assert.Equal(t, 1, o.starts)
		assert.Equal(t, 2, o.attempts)
		assert.Equal(t, 1, o.successes)
		assert.Equal(t, 1, o.failures)
	}
}

func TestIsNoop(t *testing.T) {
	assert.True(t, IsNoop(nil))
	assert.True(t, IsNoop(NoopObserver{}))
	assert.True(t, IsNoop(&NoopObserver{}))
	assert.False(t, IsNoop(BaseObserver{}))
	assert.False(t, IsNoop(MultiObserver{}))
}

func TestAttemptInfoContext(t *testing.T) {
	_, ok := AttemptFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithAttemptInfo(context.Background(), AttemptInfo{ActivityID: "a", Attempt: 2})
	info, ok := AttemptFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, 2, info.Attempt)

	_, ok = ActivityIDFromContext(WithActivityID(context.Background(), ""))
	assert.False(t, ok)
	id, ok := ActivityIDFromContext(WithActivityID(context.Background(), "abc"))
	assert.True(t, ok)
	assert.Equal(t, "abc", id)
}

func TestTimelineCapture(t *testing.T) {
	ctx, capture := RecordTimeline(context.Background())
	assert.Nil(t, capture.Timeline())

	got, ok := TimelineCaptureFromContext(ctx)
	assert.True(t, ok)
	assert.Same(t, capture, got)

	_, ok = TimelineCaptureFromContext(WithoutTimelineCapture(ctx))
	assert.False(t, ok)

	StoreTimelineCapture(capture, &Timeline{ActivityID: "abc"})
	assert.Equal(t, "abc", capture.Timeline().ActivityID)

	var nilCapture *TimelineCapture
	assert.Nil(t, nilCapture.Timeline())
}
