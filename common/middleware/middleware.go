// Package middleware holds the net/http wrappers both services put in front of
// their ServeMux.
package middleware

import (
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/JoseSOto27/WNGL/common/metrics"
)

// Metrics wraps HTTP handlers to record Prometheus metrics
func Metrics(m *metrics.HTTPMetrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Don't record metrics for /metrics endpoint itself
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		recorder := &responseRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(recorder, r)

		// ServeMux fills r.Pattern; labelling by pattern keeps ids out of the label set.
		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(r.Method, path, strconv.Itoa(recorder.statusCode), time.Since(start))
	})
}

// responseRecorder wraps http.ResponseWriter to capture status code
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *responseRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

// CORS adds CORS headers for the storefront origins. An origin list containing
// "*" allows any origin.
func CORS(allowedOrigins []string, next http.Handler) http.Handler {
	allowAll := slices.Contains(allowedOrigins, "*")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowAll || slices.Contains(allowedOrigins, origin)) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Recover turns a handler panic into the given status code. The webhook route
// passes 200 so that a crash never makes the provider redeliver.
func Recover(log *slog.Logger, status int, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("handler panic recovered",
					slog.String("path", r.URL.Path),
					slog.Any("panic", rec),
				)
				w.WriteHeader(status)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
