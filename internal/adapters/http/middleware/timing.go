package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"gymroster/internal/adapters/http/perf"
)

// DefaultSlowRequest is the threshold above which a request logs at WARN.
const DefaultSlowRequest = 200 * time.Millisecond

var slowRequestNanos atomic.Int64

func init() {
	slowRequestNanos.Store(int64(DefaultSlowRequest))
}

// SetSlowRequestThreshold changes the slow-request threshold of every
// Timing middleware. Non-positive values restore DefaultSlowRequest.
func SetSlowRequestThreshold(d time.Duration) {
	if d <= 0 {
		d = DefaultSlowRequest
	}
	slowRequestNanos.Store(int64(d))
}

// untimedPaths are probe endpoints that would drown the perf ring.
var untimedPaths = map[string]bool{
	"/healthz": true,
	"/metrics": true,
}

var requestIDCounter atomic.Uint64

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

var statusWriterPool = sync.Pool{
	New: func() any {
		return &statusWriter{}
	},
}

// routeLabel names a request by the mux pattern that served it, so
// "/courses/Yoga" and "/courses/Pilates" share one series.
// The pattern is only known after the mux has run.
func routeLabel(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return r.Method + " " + r.URL.Path
}

// Timing returns middleware that logs request duration and, when collector
// is non-nil, records it under the route label.
// Timing must wrap the mux directly for the route label to be the pattern.
// PRE: none
// POST: probe paths pass through untimed; every other request yields one log line
func Timing(collector *perf.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if untimedPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			reqID := requestIDCounter.Add(1)

			sw := statusWriterPool.Get().(*statusWriter)
			sw.ResponseWriter = w
			sw.status = http.StatusOK
			defer func() {
				elapsed := time.Since(start)
				durationMs := float64(elapsed.Microseconds()) / 1000.0
				route := routeLabel(r)

				level := slog.LevelDebug
				msg := "request"
				if elapsed >= time.Duration(slowRequestNanos.Load()) {
					level, msg = slog.LevelWarn, "slow_request"
				}
				slog.Log(r.Context(), level, msg,
					"request_id", reqID,
					"route", route,
					"path", r.URL.Path,
					"status", sw.status,
					"duration_ms", durationMs,
				)

				if collector != nil {
					collector.Record(perf.Entry{
						Kind:       perf.KindRequest,
						Path:       route,
						StatusCode: sw.status,
						DurationMs: durationMs,
						Timestamp:  start,
					})
				}

				sw.ResponseWriter = nil
				statusWriterPool.Put(sw)
			}()

			next.ServeHTTP(sw, r)
		})
	}
}
