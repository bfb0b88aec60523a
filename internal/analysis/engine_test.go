package analysis

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tidwall/gjson"

	"giteelink/internal/gitee"
)

func newTestEngine(t *testing.T, h http.HandlerFunc) *Engine {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewEngine(EngineConfig{Endpoint: srv.URL, APIKey: "k-123", AssistantID: "asst"})
}

func TestEngineEvaluate_RequestShapeAndStringContent(t *testing.T) {
	var body []byte
	var auth string
	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"{\"totalScore\":\"86.6\",\"totalLevel\":\"A\",\"techScore\":70,\"highlights\":[\"活跃\"]}"}}]}`)
	})

	res, err := e.Evaluate(context.Background(), 42, []byte(`{"profile":{}}`))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if auth != "Bearer k-123" {
		t.Fatalf("Authorization=%q", auth)
	}
	if gjson.GetBytes(body, "assistant_id").String() != "asst" || gjson.GetBytes(body, "user_id").String() != "gitee-42" {
		t.Fatalf("unexpected body: %s", body)
	}
	if gjson.GetBytes(body, "stream").Bool() || gjson.GetBytes(body, "messages.0.role").String() != "user" {
		t.Fatalf("unexpected body: %s", body)
	}
	text := gjson.GetBytes(body, "messages.0.content.0.text").String()
	if gjson.GetBytes(body, "messages.0.content.0.type").String() != "text" || len(text) == 0 || text[len(text)-len(`{"profile":{}}`):] != `{"profile":{}}` {
		t.Fatalf("unexpected prompt: %q", text)
	}

	if res.TotalScore == nil || *res.TotalScore != 86 || res.TotalLevel != "A" {
		t.Fatalf("unexpected total: %+v", res)
	}
	if res.TechScore == nil || *res.TechScore != 70 || res.ProfileScore != nil {
		t.Fatalf("unexpected scores: %+v", res)
	}
	if len(res.Highlights) != 1 || res.Highlights[0] != "活跃" {
		t.Fatalf("highlights=%v", res.Highlights)
	}
}

func TestEngineEvaluate_PartsContentWithFence(t *testing.T) {
	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":[{"type":"text","text":"`+"```json\\n"+`{\"totalScore\":"},{"type":"image","text":"x"},{"type":"text","text":"91}\n`+"```"+`"}]}}]}`)
	})

	res, err := e.Evaluate(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.TotalScore == nil || *res.TotalScore != 91 {
		t.Fatalf("unexpected result: %+v raw=%s", res, res.Raw)
	}
}

func TestEngineEvaluate_Failures(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{name: "client error", status: http.StatusBadRequest, body: `bad assistant`, wantMsg: "评测智能体请求参数有误: bad assistant"},
		{name: "server error", status: http.StatusBadGateway, body: ``, wantMsg: "评测智能体调用失败，状态码: 502"},
		{name: "empty body", status: http.StatusOK, body: ``, wantMsg: "评测智能体返回空响应"},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`, wantMsg: "评测智能体响应未包含有效内容"},
		{name: "not json", status: http.StatusOK, body: `{"choices":[{"message":{"content":"无法评测"}}]}`, wantMsg: "解析评测结果失败，请检查智能体输出格式"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := e.Evaluate(context.Background(), 1, nil)
			if !gitee.Is(err, gitee.ErrAnalysisUpstream) {
				t.Fatalf("expected analysis upstream error, got %v", err)
			}
			if msg := gitee.UserMessage(err); msg != tc.wantMsg {
				t.Fatalf("message=%q want %q", msg, tc.wantMsg)
			}
		})
	}
}

func TestEngineEvaluate_RequiresConfig(t *testing.T) {
	e := NewEngine(EngineConfig{APIKey: "k"})
	if _, err := e.Evaluate(context.Background(), 1, nil); !gitee.Is(err, gitee.ErrAnalysisUpstream) {
		t.Fatalf("expected analysis upstream error, got %v", err)
	}
}

func TestExtractJSON(t *testing.T) {
	cases := map[string]string{
		`{"a":1}`:                         `{"a":1}`,
		"```json\n{\"a\":1}\n```":         `{"a":1}`,
		`结果如下：{"a":{"b":2}} 以上。`: `{"a":{"b":2}}`,
		`no json`:                         `no json`,
	}
	for in, want := range cases {
		if got := extractJSON(in); got != want {
			t.Fatalf("extractJSON(%q)=%q want %q", in, got, want)
		}
	}
}
