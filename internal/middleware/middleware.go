// Package middleware holds the chi middleware chain the server wraps every
// route in: request logging, panic recovery, timeouts, and a small set of
// response headers. None of it knows about elevation queries or datasets —
// it only sees an http.Handler.
package middleware

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// DefaultSlowRequestThreshold is the Logger threshold used when the server
// isn't given one explicitly (tests, small tools). The running service
// wires cfg.SlowRequestLog (env SLOW_REQUEST_THRESHOLD) instead.
const DefaultSlowRequestThreshold = 500 * time.Millisecond

// maxLoggedBodyBytes bounds how much of a failed request's body
// LogFailedRequestBodies writes to the log.
const maxLoggedBodyBytes = 1000

// Logger logs each request at DefaultSlowRequestThreshold. Most callers
// should use NewLogger with the configured threshold instead.
func Logger(next http.Handler) http.Handler {
	return NewLogger(DefaultSlowRequestThreshold)(next)
}

// NewLogger builds a logging middleware that emits a WARN-level "slow
// request" line for anything over threshold and an INFO line otherwise, so
// operators can grep one level to find requests worth investigating.
func NewLogger(threshold time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			duration := time.Since(start)
			requestID := GetRequestID(r.Context())

			if duration > threshold {
				slog.Warn("slow request",
					"request_id", requestID,
					"method", r.Method,
					"path", r.URL.Path,
					"query", r.URL.RawQuery,
					"status", ww.Status(),
					"duration_ms", duration.Milliseconds(),
					"threshold_ms", threshold.Milliseconds(),
					"remote_addr", r.RemoteAddr,
				)
				return
			}

			slog.Info("request handled",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", duration.Milliseconds(),
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}

// Recoverer turns a panic inside a handler into a 500 instead of killing the
// process mid-request; a malformed raster or an out-of-range pixel index in
// a raster decoder shouldn't take the whole server down.
func Recoverer(next http.Handler) http.Handler {
	return middleware.Recoverer(next)
}

// RealIP rewrites r.RemoteAddr from X-Forwarded-For/X-Real-IP when the
// service sits behind a load balancer, so Logger and LogFailedRequestBodies
// record the client's address rather than the proxy's.
func RealIP(next http.Handler) http.Handler {
	return middleware.RealIP(next)
}

// Timeout attaches a deadline to the request context. Only context-aware
// work (the Redis response-cache calls) observes it; the query engine's
// raster reads do not check the context, so a handler stuck in one keeps
// running past the deadline.
func Timeout(timeout time.Duration) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ContentType sets the response Content-Type unconditionally; every route
// this service exposes returns JSON.
func ContentType(contentType string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", contentType)
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders sets the baseline headers for a JSON API with no browser
// rendering surface: no sniffing, no framing, HSTS for any client that
// talks to it over TLS.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}

// LogFailedRequestBodies buffers a POST/PUT/PATCH body and logs it,
// truncated, when the handler answers with a 4xx/5xx. For this service
// that's almost always a malformed POST /v1/{dataset} payload, and the body is the
// fastest way to see which field tripped validation without reproducing
// the request.
func LogFailedRequestBodies(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" && r.Method != "PUT" && r.Method != "PATCH" {
			next.ServeHTTP(w, r)
			return
		}

		var bodyBytes []byte
		if r.Body != nil {
			bodyBytes, _ = io.ReadAll(r.Body)
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status < 400 {
			return
		}

		bodyStr := string(bodyBytes)
		if len(bodyStr) > maxLoggedBodyBytes {
			bodyStr = bodyStr[:maxLoggedBodyBytes] + "... (truncated)"
		}
		slog.Error("request failed",
			"request_id", GetRequestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"body", bodyStr,
			"content_type", r.Header.Get("Content-Type"),
		)
	})
}
