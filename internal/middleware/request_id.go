package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// ContextKey namespaces this package's context keys so they can't collide
// with keys another package stashes on the same request context.
type ContextKey string

// RequestIDKey is the context key RequestID stores the request's ID under.
const RequestIDKey ContextKey = "request_id"

// RequestID assigns every request a stable ID: reused from an inbound
// X-Request-ID header when a load balancer or gateway already set one,
// otherwise a fresh UUID. It is echoed in the X-Request-ID response header,
// and Logger and LogFailedRequestBodies attach it to the log lines they
// write; the cache and query engine log without it.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request ID stashed by RequestID, or "" if the
// middleware never ran on this request's context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetRequestIDOrGenerate returns the context's request ID, falling back to
// a freshly generated one for code paths (background jobs, CLI commands)
// that never go through the RequestID middleware.
func GetRequestIDOrGenerate(ctx context.Context) string {
	if requestID := GetRequestID(ctx); requestID != "" {
		return requestID
	}
	return uuid.New().String()
}

// ParseRequestID validates that a client-supplied request ID (e.g. echoed
// back in a support ticket) is a well-formed UUID before it's used to look
// anything up.
func ParseRequestID(requestID string) (uuid.UUID, error) {
	return uuid.Parse(requestID)
}
