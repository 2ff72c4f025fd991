package httphandler

import (
	"log/slog"
	"net/http"
	"time"
)

// usagePath is the relay endpoint; its callers expect RelayErrorResponse bodies.
const usagePath = "/api/v1/usage"

// responseRecorder remembers the status and body size written by a handler.
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rr *responseRecorder) WriteHeader(status int) {
	rr.status = status
	rr.ResponseWriter.WriteHeader(status)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	n, err := rr.ResponseWriter.Write(b)
	rr.bytes += n
	return n, err
}

// ApplyMiddleware wraps the dashboard and relay routes with panic recovery
// and request logging. Recovery sits inside logging so a recovered panic is
// logged as a 500.
func ApplyMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	return requestLogger(logger, recoverPanics(logger, next))
}

// requestLogger logs one line per request. The matched route pattern is
// logged next to the path so per-key routes group together; query strings
// are never logged. Server errors are logged at warn.
func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rr := &responseRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rr, r)

		level := slog.LevelInfo
		if rr.status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.LogAttrs(r.Context(), level, "request served",
			slog.String("method", r.Method),
			slog.String("route", r.Pattern),
			slog.String("path", r.URL.Path),
			slog.Int("status", rr.status),
			slog.Int("bytes", rr.bytes),
			slog.Duration("elapsed", time.Since(start).Round(time.Microsecond)),
		)
	})
}

// recoverPanics turns a handler panic into a 500. Relay callers get the
// relay error shape so the failure shows next to the key being checked.
func recoverPanics(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger.Error("handler panicked", "panic", v, "route", r.Pattern, "path", r.URL.Path)
				if r.URL.Path == usagePath {
					writeRelayError(w, http.StatusInternalServerError, "Relay failed", "")
					return
				}
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
