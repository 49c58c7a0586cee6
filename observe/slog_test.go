package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aponysus/regone/classify"
	"github.com/aponysus/regone/policy"
	"github.com/aponysus/regone/request"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("loud"))
}

func TestSlogObserver(t *testing.T) {
	var buf bytes.Buffer
	obs := NewSlogObserver(NewLogger(&buf, slog.LevelDebug, true))
	ctx := context.Background()
	key := policy.ParseKey("docs.read")

	obs.OnStart(ctx, key, policy.DefaultRetryPolicy())
	obs.OnAttempt(ctx, key, AttemptRecord{
		ActivityID: "act-1",
		Attempt:    1,
		Err:        &classify.GoneError{},
		Category:   classify.CategoryGone,
		Retry:      true,
		Backoff:    time.Second,
		Intents:    request.Intents{AddressCache: true},
	})
	obs.OnAttempt(ctx, key, AttemptRecord{Attempt: 2})
	obs.OnFailure(ctx, key, Timeline{
		ActivityID: "act-1",
		Attributes: map[string]string{AttrFinalState: "exhausted"},
		FinalErr:   errors.New("unavailable"),
	})

	out := buf.String()
	assert.Contains(t, out, "request started")
	assert.Contains(t, out, "attempt failed, retrying")
	assert.Contains(t, out, "category=gone")
	assert.Contains(t, out, "refresh=address")
	assert.Contains(t, out, "request failed")
	assert.Contains(t, out, "state=exhausted")
	assert.Contains(t, out, "component=regone")
	assert.NotContains(t, out, "attempt=2")
}

func TestSlogObserver_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	obs := NewSlogObserver(NewLogger(&buf, slog.LevelInfo, true))
	ctx := context.Background()
	key := policy.ParseKey("docs.read")

	obs.OnSuccess(ctx, key, Timeline{ActivityID: "act-1"})
	assert.Empty(t, buf.String())

	obs.OnFailure(ctx, key, Timeline{ActivityID: "act-1", FinalErr: errors.New("boom")})
	assert.Contains(t, buf.String(), "WRN")
}
