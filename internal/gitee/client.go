// Package gitee 封装 Gitee OAuth 与 REST API 的访问细节：换取 token、拉取用户信息与资源列表，
// 并把上游 JSON 归一成稳定的内部结构。
package gitee

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	DefaultAuthorizeURL = "https://gitee.com/oauth/authorize"
	DefaultTokenURL     = "https://gitee.com/oauth/token"
	DefaultAPIBaseURL   = "https://gitee.com/api/v5"
)

const (
	ResourceUser          = "user"
	ResourceRepos         = "user/repos"
	ResourceIssues        = "user/issues"
	ResourceNotifications = "notifications/threads"
)

type Config struct {
	AuthorizeURL string
	TokenURL     string
	APIBaseURL   string

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

func DefaultConfig() Config {
	return Config{
		AuthorizeURL:   DefaultAuthorizeURL,
		TokenURL:       DefaultTokenURL,
		APIBaseURL:     DefaultAPIBaseURL,
		ConnectTimeout: 3 * time.Second,
		ReadTimeout:    8 * time.Second,
	}
}

type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	def := DefaultConfig()
	if strings.TrimSpace(cfg.AuthorizeURL) == "" {
		cfg.AuthorizeURL = def.AuthorizeURL
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		cfg.TokenURL = def.TokenURL
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		cfg.APIBaseURL = def.APIBaseURL
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	return &Client{cfg: cfg, http: newHTTPClient(cfg)}
}

type OAuthToken struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	// ExpiresIn 为 0 表示上游未返回有效期。
	ExpiresIn int64
	Scope     string
	CreatedAt int64
}

func (t OAuthToken) TTL(fallback time.Duration) time.Duration {
	if t.ExpiresIn > 0 {
		return time.Duration(t.ExpiresIn) * time.Second
	}
	return fallback
}

type Profile struct {
	ID        string
	Login     string
	Name      string
	AvatarURL string
	Email     string
}

// BuildAuthorizeURL 生成授权地址；state 为空时不携带 state 参数。
func (c *Client) BuildAuthorizeURL(clientID string, callbackURL string, state string) string {
	var b strings.Builder
	b.WriteString(c.cfg.AuthorizeURL)
	if strings.Contains(c.cfg.AuthorizeURL, "?") {
		b.WriteString("&")
	} else {
		b.WriteString("?")
	}
	b.WriteString("response_type=code&client_id=")
	b.WriteString(url.QueryEscape(clientID))
	b.WriteString("&redirect_uri=")
	b.WriteString(url.QueryEscape(callbackURL))
	if state != "" {
		b.WriteString("&state=")
		b.WriteString(url.QueryEscape(state))
	}
	return b.String()
}

func (c *Client) ExchangeCode(ctx context.Context, clientID string, clientSecret string, callbackURL string, code string) (OAuthToken, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("redirect_uri", callbackURL)
	encoded := form.Encode()

	resp, err := c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return OAuthToken{}, err
	}

	body := bytes.TrimSpace(resp.body)
	if len(body) == 0 {
		return OAuthToken{}, NewError(ErrUpstreamEmpty, "gitee token响应为空")
	}
	if !gjson.ValidBytes(body) {
		if !resp.ok() {
			return OAuthToken{}, statusError(resp, "")
		}
		return OAuthToken{}, NewError(ErrMalformedResponse, "gitee token响应格式错误")
	}
	root := gjson.ParseBytes(body)
	accessToken := strings.TrimSpace(root.Get("access_token").String())
	if accessToken == "" {
		upstreamErr := strings.TrimSpace(root.Get("error").String())
		desc := strings.TrimSpace(root.Get("error_description").String())
		msg := "gitee获取token失败: " + upstreamErr
		if desc != "" {
			msg += ": " + desc
		}
		var cause error
		if !resp.ok() {
			cause = &StatusError{StatusCode: resp.status, Message: upstreamErr}
		}
		return OAuthToken{}, &Error{Code: ErrUpstreamAuth, Message: msg, Cause: cause}
	}
	return OAuthToken{
		AccessToken:  accessToken,
		TokenType:    root.Get("token_type").String(),
		RefreshToken: root.Get("refresh_token").String(),
		ExpiresIn:    root.Get("expires_in").Int(),
		Scope:        root.Get("scope").String(),
		CreatedAt:    root.Get("created_at").Int(),
	}, nil
}

func (c *Client) FetchUserProfile(ctx context.Context, accessToken string) (Profile, error) {
	resp, err := c.get(ctx, ResourceUser, accessToken, nil)
	if err != nil {
		return Profile{}, err
	}
	if !resp.ok() {
		return Profile{}, statusError(resp, "gitee获取用户信息失败: ")
	}
	body := bytes.TrimSpace(resp.body)
	if len(body) == 0 {
		return Profile{}, NewError(ErrUpstreamEmpty, "gitee用户信息响应为空")
	}
	if !gjson.ValidBytes(body) {
		return Profile{}, NewError(ErrMalformedResponse, "gitee用户信息响应格式错误")
	}
	root := gjson.ParseBytes(body)
	id := root.Get("id")
	if !id.Exists() || id.Type == gjson.Null || strings.TrimSpace(id.String()) == "" {
		return Profile{}, NewError(ErrUpstreamAuth, "gitee获取用户信息失败: "+root.Get("message").String())
	}
	return Profile{
		ID:        strings.TrimSpace(id.String()),
		Login:     root.Get("login").String(),
		Name:      root.Get("name").String(),
		AvatarURL: root.Get("avatar_url").String(),
		Email:     root.Get("email").String(),
	}, nil
}

// FetchPaged 拉取任意资源并原样返回 JSON；params 中的 access_token 会被忽略。
func (c *Client) FetchPaged(ctx context.Context, resource string, accessToken string, params map[string]string) ([]byte, error) {
	resp, err := c.get(ctx, resource, accessToken, params)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, statusError(resp, "")
	}
	body := bytes.TrimSpace(resp.body)
	if len(body) == 0 {
		return nil, NewError(ErrUpstreamEmpty, "gitee响应为空")
	}
	if !gjson.ValidBytes(body) {
		return nil, NewError(ErrMalformedResponse, "gitee响应格式错误")
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, resource string, accessToken string, params map[string]string) (response, error) {
	target := c.resourceURL(resource, accessToken, params)
	return c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
}

func (c *Client) resourceURL(resource string, accessToken string, params map[string]string) string {
	q := url.Values{}
	for k, v := range params {
		key := strings.TrimSpace(k)
		if key == "" || strings.EqualFold(key, "access_token") {
			continue
		}
		q.Set(key, v)
	}
	q.Set("access_token", accessToken)
	return c.cfg.APIBaseURL + "/" + strings.TrimLeft(resource, "/") + "?" + q.Encode()
}

func statusError(resp response, prefix string) error {
	root := gjson.ParseBytes(resp.body)
	msg := strings.TrimSpace(root.Get("message").String())
	if msg == "" {
		msg = strings.TrimSpace(root.Get("error_description").String())
	}
	if msg == "" {
		msg = strings.TrimSpace(root.Get("error").String())
	}
	snippet := strings.TrimSpace(string(resp.body))
	if len(snippet) > 200 {
		snippet = snippet[:200] + "..."
	}
	se := &StatusError{StatusCode: resp.status, Message: msg, BodySnippet: snippet}
	code := ErrUpstreamStatus
	if resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden {
		code = ErrUpstreamAuth
	}
	userMsg := ""
	if prefix != "" && msg != "" {
		userMsg = prefix + msg
	}
	return &Error{Code: code, Message: userMsg, Cause: se}
}
