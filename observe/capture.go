package observe

import (
	"context"
	"sync/atomic"
)

// TimelineCapture receives the finished Timeline of the next request run under its context.
type TimelineCapture struct {
	tl atomic.Pointer[Timeline]
}

// Timeline returns the captured timeline, or nil until the request has finished.
func (c *TimelineCapture) Timeline() *Timeline {
	if c == nil {
		return nil
	}
	return c.tl.Load()
}

type timelineCaptureKey struct{}

type captureDisabled struct{}

// RecordTimeline returns a derived context that asks the invoker to publish its timeline,
// plus the holder the timeline is published into.
func RecordTimeline(ctx context.Context) (context.Context, *TimelineCapture) {
	if ctx == nil {
		ctx = context.Background()
	}
	capture := &TimelineCapture{}
	return context.WithValue(ctx, timelineCaptureKey{}, capture), capture
}

// TimelineCaptureFromContext returns the capture requested on ctx, if any.
func TimelineCaptureFromContext(ctx context.Context) (*TimelineCapture, bool) {
	if ctx == nil {
		return nil, false
	}
	c, ok := ctx.Value(timelineCaptureKey{}).(*TimelineCapture)
	return c, ok && c != nil
}

// WithoutTimelineCapture hides any capture from ctx so nested requests made inside an
// operation do not overwrite the outer request's timeline.
func WithoutTimelineCapture(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, timelineCaptureKey{}, captureDisabled{})
}

// StoreTimelineCapture publishes tl into capture.
func StoreTimelineCapture(capture *TimelineCapture, tl *Timeline) {
	if capture == nil || tl == nil {
		return
	}
	capture.tl.Store(tl)
}
