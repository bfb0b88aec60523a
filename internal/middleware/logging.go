// Package middleware 提供最小访问日志（结构化），不记录请求体、查询串与任何明文凭据。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

func (w *statusWriter) Flush() {
	if fl, ok := w.ResponseWriter.(http.Flusher); ok {
		fl.Flush()
	}
}

const accessUserKey ctxKey = 2

// SetAccessUser 由内层鉴权写入当前用户，访问日志在请求结束时读取。
func SetAccessUser(ctx context.Context, userID int64) {
	if v, ok := ctx.Value(accessUserKey).(*atomic.Int64); ok && v != nil {
		v.Store(userID)
	}
}

func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}
		uid := new(atomic.Int64)
		r = r.WithContext(context.WithValue(r.Context(), accessUserKey, uid))

		start := time.Now()
		next.ServeHTTP(sw, r)
		lat := time.Since(start)

		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}
		var userID any
		if id := uid.Load(); id > 0 {
			userID = id
		}
		slog.Info("access",
			"request_id", GetRequestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", sw.bytes,
			"latency_ms", lat.Milliseconds(),
			"user_id", userID,
		)
	})
}
