package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(old) })
	return &buf
}

func TestAccessLog_DoesNotLogSecrets(t *testing.T) {
	buf := captureLogs(t)

	secret := "gitee_code_should_not_appear"
	req := httptest.NewRequest(http.MethodGet, "http://example.com/auth?code="+secret+"&state=s", nil)
	req.Header.Set("Authorization", "Bearer "+secret)

	rr := httptest.NewRecorder()
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusFound)
	}), RequestID, AccessLog)
	h.ServeHTTP(rr, req)

	out := buf.String()
	if strings.Contains(out, secret) {
		t.Fatalf("log contains secret: %s", out)
	}
	if !strings.Contains(out, `"status":302`) {
		t.Fatalf("expected status in log: %s", out)
	}
}

func TestAccessLog_RecordsUserFromInnerHandler(t *testing.T) {
	buf := captureLogs(t)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/api/gitee/status", nil)
	rr := httptest.NewRecorder()
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetAccessUser(r.Context(), 42)
		_, _ = w.Write([]byte("ok"))
	}), RequestID, AccessLog)
	h.ServeHTTP(rr, req)

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log: %v (%s)", err, buf.String())
	}
	if line["user_id"] != float64(42) || line["request_id"] == "" || line["bytes"] != float64(2) {
		t.Fatalf("unexpected log line: %v", line)
	}
	if rr.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("missing %s header", RequestIDHeader)
	}
}
