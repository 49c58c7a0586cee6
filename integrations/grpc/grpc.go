// Package grpc retries unary store calls made over gRPC. Store status codes travel in
// the response trailer and are turned into the errors the retry policy classifies.
package grpc

import (
	"context"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/aponysus/regone/classify"
	"github.com/aponysus/regone/policy"
	"github.com/aponysus/regone/request"
	"github.com/aponysus/regone/retry"
)

// Trailer keys carrying the store status of a failed call.
const (
	MetadataStatusCode = "x-ms-status-code"
	MetadataSubStatus  = "x-ms-substatus"
)

// DefaultKeyFunc maps methods to policy keys.
// "/Service/Method" -> {Namespace: "Service", Name: "Method"}
func DefaultKeyFunc(method string) policy.PolicyKey {
	method = strings.TrimPrefix(method, "/")
	parts := strings.Split(method, "/")
	if len(parts) == 2 {
		return policy.PolicyKey{Namespace: parts[0], Name: parts[1]}
	}
	return policy.PolicyKey{Name: method}
}

type requestContextKey struct{}

// WithRequestContext attaches the request state the interceptor should retry under.
func WithRequestContext(ctx context.Context, rc *request.Context) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

func RequestContextFromContext(ctx context.Context) (*request.Context, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*request.Context)
	return rc, ok && rc != nil
}

// UnaryClientInterceptor returns a gRPC interceptor that runs calls through inv.
//
// Calls without a request context from WithRequestContext get a fresh one addressed by
// the method name.
func UnaryClientInterceptor(inv *retry.Invoker, keyFunc func(method string) policy.PolicyKey) grpc.UnaryClientInterceptor {
	if keyFunc == nil {
		keyFunc = DefaultKeyFunc
	}
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		key := keyFunc(method)
		rc, ok := RequestContextFromContext(ctx)
		if !ok {
			rc = request.New(method, "")
		}

		return inv.Do(ctx, key, rc, func(ctx context.Context, _ *request.Context) error {
			var trailer metadata.MD
			callOpts := make([]grpc.CallOption, 0, len(opts)+1)
			callOpts = append(callOpts, opts...)
			callOpts = append(callOpts, grpc.Trailer(&trailer))

			err := invoker(ctx, method, req, reply, cc, callOpts...)
			return StoreError(err, trailer)
		})
	}
}

// StoreError converts a failed call whose trailer reports gone or retry-with into a
// *StatusError. Other errors are returned unchanged.
func StoreError(err error, trailer metadata.MD) error {
	if err == nil {
		return nil
	}
	code, ok := trailerInt(trailer, MetadataStatusCode)
	if !ok || (code != classify.StatusGone && code != classify.StatusRetryWith) {
		return err
	}
	sub, _ := trailerInt(trailer, MetadataSubStatus)

	st := status.Convert(err)
	return &StatusError{
		Status:    st,
		Code:      code,
		SubStatus: sub,
		Err:       classify.FromStatus(code, sub, st.Message()),
	}
}

// StatusError keeps the gRPC status of a call alongside the store error it carried.
type StatusError struct {
	Status    *status.Status
	Code      int
	SubStatus int
	Err       error
}

func (e *StatusError) Error() string {
	return e.Err.Error() + " (grpc " + e.Status.Code().String() + ")"
}

func (e *StatusError) Unwrap() error { return e.Err }

func (e *StatusError) GRPCStatus() *status.Status { return e.Status }

func (e *StatusError) StatusCode() int    { return e.Code }
func (e *StatusError) SubStatusCode() int { return e.SubStatus }

func trailerInt(md metadata.MD, key string) (int, bool) {
	vals := md.Get(key)
	if len(vals) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(vals[0]))
	if err != nil {
		return 0, false
	}
	return n, true
}
