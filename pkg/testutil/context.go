package testutil

import (
	"context"
	"net/http"
	"time"

	"padron/pkg/requestcontext"
)

// WithRequestTime pins the request-scoped clock, the way the RequestTime
// middleware does in production, so timestamp assertions stay deterministic.
func WithRequestTime(req *http.Request, at time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), at))
}

// WithRequestID tags the request context with a request ID.
func WithRequestID(req *http.Request, id string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), id))
}

// Context returns a context with a pinned clock for service-level tests.
func Context(at time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), at)
}
