// Package middleware provides HTTP middleware for the Ajeyam API server.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// responseWriter records the status and body size of a response.
type responseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.status = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.status = http.StatusOK
		rw.written = true
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// requestLog carries fields that inner middleware learns about a request
// back out to Logger.
type requestLog struct {
	userID string
}

const requestLogKey contextKey = "request_log"

// noteUser attaches the authenticated user to the request's log line.
func noteUser(ctx context.Context, id string) {
	if rl, ok := ctx.Value(requestLogKey).(*requestLog); ok {
		rl.userID = id
	}
}

// Logger writes one structured line per request. It echoes the chi request
// id as X-Request-Id and includes the user id once Authenticate has run.
// Server errors log at error level, client errors at warn.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		info := &requestLog{}
		ctx := context.WithValue(r.Context(), requestLogKey, info)

		reqID := chimw.GetReqID(ctx)
		if reqID != "" {
			w.Header().Set("X-Request-Id", reqID)
		}

		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r.WithContext(ctx))

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"bytes", wrapped.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote", clientIP(r),
		}
		if reqID != "" {
			attrs = append(attrs, "request_id", reqID)
		}
		if info.userID != "" {
			attrs = append(attrs, "user_id", info.userID)
		}

		level := slog.LevelInfo
		switch {
		case wrapped.status >= http.StatusInternalServerError:
			level = slog.LevelError
		case wrapped.status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "http request", attrs...)
	})
}
