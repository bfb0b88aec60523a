package analysis

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"giteelink/internal/gitee"
)

const DefaultEndpoint = "https://yuanqi.tencent.com/openapi/v1/agent/chat/completions"

const maxResponseBytes = 4 << 20

const promptPrefix = "你是资深研发能力评测专家。请基于输入的Gitee摘要数据进行分析，输出JSON，" +
	"不要使用Markdown或代码块。评分0-100，等级A/B/C/D。JSON字段必须包含：" +
	"profileScore, profileLevel, communityScore, communityLevel, techScore, techLevel, " +
	"totalScore, totalLevel, highlights, risks, suggestions。" +
	"其中 highlights/risks/suggestions 为字符串数组。" +
	"输入数据如下："

type EngineConfig struct {
	Endpoint    string
	APIKey      string
	AssistantID string

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Engine 调用兼容 chat-completions 的评测智能体。
type Engine struct {
	cfg  EngineConfig
	http *http.Client
}

func NewEngine(cfg EngineConfig) *Engine {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 180 * time.Second
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}).DialContext
	t.ResponseHeaderTimeout = cfg.ReadTimeout
	return &Engine{cfg: cfg, http: &http.Client{Transport: t, Timeout: cfg.ConnectTimeout + cfg.ReadTimeout}}
}

func (e *Engine) Configured() bool {
	return strings.TrimSpace(e.cfg.APIKey) != "" && strings.TrimSpace(e.cfg.AssistantID) != ""
}

func (e *Engine) Evaluate(ctx context.Context, userID int64, summary []byte) (Result, error) {
	if !e.Configured() {
		return Result{}, gitee.NewError(gitee.ErrAnalysisUpstream, "评测智能体配置不完整，请检查智能体ID与API密钥")
	}
	body, err := e.requestBody(userID, summary)
	if err != nil {
		return Result{}, gitee.WrapMessage(gitee.ErrAnalysisUpstream, "构造评测请求失败", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, gitee.WrapMessage(gitee.ErrAnalysisUpstream, "构造评测请求失败", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(e.cfg.APIKey))

	slog.Info("调用评测智能体", "assistant_id", e.cfg.AssistantID, "user_id", userID, "endpoint", e.cfg.Endpoint)
	resp, err := e.http.Do(req)
	if err != nil {
		return Result{}, gitee.WrapMessage(gitee.ErrAnalysisUpstream, "评测智能体调用失败", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, gitee.WrapMessage(gitee.ErrAnalysisUpstream, "读取评测响应失败", err)
	}

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		snippet := strings.TrimSpace(string(respBody))
		slog.Error("评测智能体请求参数错误", "status", resp.StatusCode, "body", snippet)
		return Result{}, gitee.Errorf(gitee.ErrAnalysisUpstream, "评测智能体请求参数有误: %s", snippet)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return Result{}, gitee.NewError(gitee.ErrAnalysisUpstream, "评测智能体调用失败，状态码: "+strconv.Itoa(resp.StatusCode))
	}
	return parseCompletion(respBody)
}

func (e *Engine) requestBody(userID int64, summary []byte) ([]byte, error) {
	if len(bytes.TrimSpace(summary)) == 0 {
		summary = []byte(`{}`)
	}
	doc := []byte(`{}`)
	var err error
	for _, kv := range []struct {
		path string
		v    any
	}{
		{"assistant_id", strings.TrimSpace(e.cfg.AssistantID)},
		{"user_id", "gitee-" + strconv.FormatInt(userID, 10)},
		{"stream", false},
		{"messages.0.role", "user"},
		{"messages.0.content.0.type", "text"},
		{"messages.0.content.0.text", promptPrefix + string(summary)},
	} {
		if doc, err = sjson.SetBytes(doc, kv.path, kv.v); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func parseCompletion(body []byte) (Result, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Result{}, gitee.NewError(gitee.ErrAnalysisUpstream, "评测智能体返回空响应")
	}
	content := messageContent(body)
	if strings.TrimSpace(content) == "" {
		return Result{}, gitee.NewError(gitee.ErrAnalysisUpstream, "评测智能体响应未包含有效内容")
	}
	r, ok := ParseResult([]byte(extractJSON(content)))
	if !ok {
		slog.Error("解析评测结果 JSON 失败", "content", content)
		return Result{}, gitee.NewError(gitee.ErrAnalysisUpstream, "解析评测结果失败，请检查智能体输出格式")
	}
	return r, nil
}

// messageContent 读取 choices[0].message.content，兼容字符串与 text 分片数组两种形式。
func messageContent(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	c := gjson.GetBytes(body, "choices.0.message.content")
	if c.Type == gjson.String {
		return c.Str
	}
	if !c.IsArray() {
		return ""
	}
	var sb strings.Builder
	for _, part := range c.Array() {
		if part.Get("type").String() == "text" {
			sb.WriteString(part.Get("text").String())
		}
	}
	return sb.String()
}

// extractJSON 从可能带代码块或说明文字的内容中截取最外层 JSON 对象。
func extractJSON(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return s
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
