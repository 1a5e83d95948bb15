package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/chiwei-platform/phost/internal/domain"
	"github.com/chiwei-platform/phost/internal/port"
	"github.com/go-chi/chi/v5/middleware"
)

func authMiddleware(authn port.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authn.Authenticated(r) {
				writeError(w, domain.ErrUnauthenticated)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// loggingMiddleware 记录每个 API 请求；上传体积较大，因此同时记录请求与响应字节数。
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(r.Context(), level, "api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"request_bytes", r.ContentLength,
			"response_bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// bodySizeLimitMiddleware 限制请求体；超限时 readUpload 把 MaxBytesError 转成 ErrInvalidInput。
func bodySizeLimitMiddleware(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
