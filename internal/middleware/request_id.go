// Package middleware 提供 net/http 层的请求链路中间件：request_id、访问日志、请求体与超时限制。
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type ctxKey int

const requestIDKey ctxKey = 1

const RequestIDHeader = "X-Request-Id"

// maxRequestIDLen 限制透传的上游 request_id，超长或含非法字符时重新生成。
const maxRequestIDLen = 64

var newUUID = uuid.NewRandom

var requestIDSeq atomic.Uint64

// RequestID 透传合法的 X-Request-Id，否则生成新的，并回写到响应头。
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(RequestIDHeader)
		if !validRequestID(rid) {
			rid = newRequestID()
		}
		w.Header().Set(RequestIDHeader, rid)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, rid)))
	})
}

func GetRequestID(ctx context.Context) string {
	s, _ := ctx.Value(requestIDKey).(string)
	return s
}

func validRequestID(s string) bool {
	if s == "" || len(s) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == ':':
		default:
			return false
		}
	}
	return true
}

func newRequestID() string {
	if id, err := newUUID(); err == nil {
		return id.String()
	}
	// 随机源不可用时退化为 时间戳-序号，保证进程内不重复。
	return "gl-" + strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + strconv.FormatUint(requestIDSeq.Add(1), 36)
}
