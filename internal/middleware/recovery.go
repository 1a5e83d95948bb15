package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/chiwei-platform/phost/internal/metrics"
)

// Recovery turns a panicking proxied request into a 500. http.ErrAbortHandler
// is re-raised: ReverseProxy uses it to abort a half-written response.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}
			metrics.ProxyRequests.WithLabelValues("panic").Inc()
			slog.Error("proxy handler panicked",
				"panic", rec,
				"host", r.Host,
				"path", r.URL.Path,
				"request_id", r.Header.Get(requestIDHeader),
				"stack", string(debug.Stack()),
			)
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}
