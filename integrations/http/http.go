// Package http issues store requests over HTTP through a retry.Invoker, translating
// store status codes into the errors the retry policy classifies.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/aponysus/regone/classify"
	"github.com/aponysus/regone/observe"
	"github.com/aponysus/regone/policy"
	"github.com/aponysus/regone/request"
	"github.com/aponysus/regone/retry"
)

const (
	// HeaderSubStatus carries the store sub-status that refines a 410 response.
	HeaderSubStatus = "x-ms-substatus"
	// HeaderActivityID correlates every attempt of one logical request.
	HeaderActivityID = "x-ms-activity-id"

	maxErrorBody = 4096
)

// RequestBuilder builds the HTTP request for one attempt from the current resolution in rc.
// It is called again for every attempt, so replicas picked from rc.Addresses stay current.
type RequestBuilder func(ctx context.Context, rc *request.Context) (*http.Request, error)

// DoStore executes a store request with gone-and-retry-with recovery.
//
// Non-2xx bodies are drained and closed before the error is returned. The caller owns the
// body of the successful response; it stays readable until closed and closing it releases
// the attempt's context.
func DoStore(ctx context.Context, inv *retry.Invoker, key policy.PolicyKey, rc *request.Context, client *http.Client, build RequestBuilder) (*http.Response, observe.Timeline, error) {
	if build == nil {
		return nil, observe.Timeline{}, errors.New("regone: nil request builder")
	}
	if client == nil {
		client = http.DefaultClient
	}

	op := func(ctx context.Context, rc *request.Context) (*http.Response, error) {
		req, err := build(ctx, rc)
		if err != nil {
			return nil, err
		}
		req = req.WithContext(ctx)
		req.Header.Set(HeaderActivityID, rc.ActivityID.String())

		resp, err := client.Do(req)
		if err != nil {
			return nil, &StatusError{Method: req.Method, Err: err}
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if cancel := retry.TakeAttemptCancel(ctx); cancel != nil {
				resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
			}
			return resp, nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()

		return nil, NewStatusError(req.Method, resp.StatusCode, resp.Header, strings.TrimSpace(string(body)))
	}

	ctx, capture := observe.RecordTimeline(ctx)
	val, err := retry.DoValue(ctx, inv, key, rc, op)

	var tl observe.Timeline
	if t := capture.Timeline(); t != nil {
		tl = *t
	}
	return val, tl, err
}

// cancelOnClose ends the attempt context once the caller is done with the body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// StatusError is a non-2xx store response or a transport failure.
//
// For the statuses the retry policy understands, Err holds the typed store error so
// errors.As finds it through the StatusError.
type StatusError struct {
	Code      int
	SubStatus int
	Method    string
	Header    http.Header
	Err       error
}

// NewStatusError builds the error for a store response.
func NewStatusError(method string, code int, header http.Header, msg string) *StatusError {
	e := &StatusError{
		Code:      code,
		SubStatus: subStatus(header),
		Method:    method,
		Header:    header,
	}
	if code == classify.StatusGone || code == classify.StatusRetryWith {
		e.Err = classify.FromStatus(code, e.SubStatus, msg)
	}
	return e
}

func (e *StatusError) Error() string {
	if e.Code == 0 && e.Err != nil {
		return e.Err.Error()
	}
	s := "http status " + strconv.Itoa(e.Code)
	if e.SubStatus != 0 {
		s += fmt.Sprintf(" (sub-status %d)", e.SubStatus)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *StatusError) Unwrap() error { return e.Err }

func (e *StatusError) StatusCode() int    { return e.Code }
func (e *StatusError) SubStatusCode() int { return e.SubStatus }

func subStatus(h http.Header) int {
	if h == nil {
		return 0
	}
	v := h.Get(HeaderSubStatus)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	return n
}
