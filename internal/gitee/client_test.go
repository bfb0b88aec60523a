package gitee

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(r *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    r,
	}
}

func dialError() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
}

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		AuthorizeURL: baseURL + "/oauth/authorize",
		TokenURL:     baseURL + "/oauth/token",
		APIBaseURL:   baseURL + "/api/v5",
	})
}

func TestBuildAuthorizeURL(t *testing.T) {
	c := NewClient(DefaultConfig())

	got := c.BuildAuthorizeURL("abc", "https://x/y", "")
	if !strings.HasPrefix(got, DefaultAuthorizeURL+"?") {
		t.Fatalf("unexpected prefix: %s", got)
	}
	if !strings.Contains(got, "response_type=code&client_id=abc&redirect_uri=https%3A%2F%2Fx%2Fy") {
		t.Fatalf("unexpected query: %s", got)
	}
	if strings.Contains(got, "state=") {
		t.Fatalf("expected no state param: %s", got)
	}

	withState := c.BuildAuthorizeURL("abc", "https://x/y", "st-1")
	if !strings.HasSuffix(withState, "response_type=code&client_id=abc&redirect_uri=https%3A%2F%2Fx%2Fy&state=st-1") {
		t.Fatalf("unexpected url with state: %s", withState)
	}
}

func TestExchangeCode_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/oauth/token" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if r.PostForm.Get("grant_type") != "authorization_code" || r.PostForm.Get("code") != "c1" {
			t.Errorf("unexpected form: %v", r.PostForm)
		}
		if r.PostForm.Get("client_secret") != "sec" || r.PostForm.Get("redirect_uri") != "https://app/auth" {
			t.Errorf("unexpected form: %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"at","token_type":"bearer","refresh_token":"rt","expires_in":86400,"scope":"user_info","created_at":1700000000}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	tok, err := c.ExchangeCode(context.Background(), "cid", "sec", "https://app/auth", "c1")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if tok.AccessToken != "at" || tok.RefreshToken != "rt" || tok.ExpiresIn != 86400 || tok.CreatedAt != 1700000000 {
		t.Fatalf("unexpected token: %+v", tok)
	}
	if got := tok.TTL(0); got.Seconds() != 86400 {
		t.Fatalf("unexpected ttl: %v", got)
	}
}

func TestExchangeCode_MissingAccessTokenIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"invalid_grant","error_description":"授权码无效"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ExchangeCode(context.Background(), "cid", "sec", "https://app/auth", "bad")
	if !Is(err, ErrUpstreamAuth) {
		t.Fatalf("expected upstream auth error, got %v", err)
	}
	if got := UserMessage(err); got != "gitee获取token失败: invalid_grant: 授权码无效" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestExchangeCode_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ExchangeCode(context.Background(), "cid", "sec", "https://app/auth", "c")
	if !Is(err, ErrUpstreamEmpty) {
		t.Fatalf("expected empty response error, got %v", err)
	}
}

func TestFetchUserProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v5/user" || r.URL.Query().Get("access_token") != "at" {
			t.Errorf("unexpected request: %s", r.URL.String())
		}
		_, _ = io.WriteString(w, `{"id":9007199254,"login":"octo","name":"Octo","avatar_url":"https://a/b.png","email":null}`)
	}))
	defer srv.Close()

	p, err := newTestClient(srv.URL).FetchUserProfile(context.Background(), "at")
	if err != nil {
		t.Fatalf("FetchUserProfile: %v", err)
	}
	if p.ID != "9007199254" || p.Login != "octo" || p.Name != "Octo" || p.AvatarURL != "https://a/b.png" || p.Email != "" {
		t.Fatalf("unexpected profile: %+v", p)
	}
}

func TestFetchUserProfile_MissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"message":"token 已失效"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchUserProfile(context.Background(), "at")
	if !Is(err, ErrUpstreamAuth) {
		t.Fatalf("expected upstream auth error, got %v", err)
	}
	if got := UserMessage(err); got != "gitee获取用户信息失败: token 已失效" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestFetchPaged_StripsCallerAccessToken(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchPaged(context.Background(), ResourceRepos, "real", map[string]string{
		"ACCESS_TOKEN": "spoofed",
		"per_page":     "20",
		"  ":           "blank",
	})
	if err != nil {
		t.Fatalf("FetchPaged: %v", err)
	}
	if v := gotQuery["access_token"]; len(v) != 1 || v[0] != "real" {
		t.Fatalf("unexpected access_token: %v", v)
	}
	if _, ok := gotQuery["ACCESS_TOKEN"]; ok {
		t.Fatalf("caller access_token should be stripped: %v", gotQuery)
	}
	if gotQuery.Get("per_page") != "20" {
		t.Fatalf("expected per_page forwarded: %v", gotQuery)
	}
}

func TestFetchPaged_MalformedJSONNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := NewClient(DefaultConfig())
	c.http = &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		return jsonResponse(r, http.StatusOK, `{"broken"`), nil
	})}

	_, err := c.FetchPaged(context.Background(), ResourceRepos, "at", nil)
	if !Is(err, ErrMalformedResponse) {
		t.Fatalf("expected malformed response error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls.Load())
	}
}

func TestRetry_TransientThenSuccess(t *testing.T) {
	var calls atomic.Int32
	c := NewClient(DefaultConfig())
	c.http = &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if calls.Add(1) == 1 {
			return nil, dialError()
		}
		return jsonResponse(r, http.StatusOK, `[{"id":1}]`), nil
	})}

	body, err := c.FetchPaged(context.Background(), ResourceRepos, "at", nil)
	if err != nil {
		t.Fatalf("FetchPaged: %v", err)
	}
	if string(body) != `[{"id":1}]` {
		t.Fatalf("unexpected body: %s", body)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestRetry_TwoTransientFailuresSurfaceUnavailable(t *testing.T) {
	var calls atomic.Int32
	c := NewClient(DefaultConfig())
	c.http = &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, dialError()
	})}

	_, err := c.ExchangeCode(context.Background(), "cid", "sec", "https://app/auth", "code")
	if !Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestRetry_RequestBuildFailureIsNotUpstream(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient("http://bad host")
	c.http = &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		return jsonResponse(r, http.StatusOK, `[]`), nil
	})}

	_, err := c.FetchPaged(context.Background(), ResourceRepos, "at", nil)
	if !Is(err, ErrInvalidParams) || Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected invalid params, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no round trip, got %d", calls.Load())
	}
}

func TestRetry_HTTPStatusNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := NewClient(DefaultConfig())
	c.http = &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		return jsonResponse(r, http.StatusBadGateway, `{"message":"bad gateway"}`), nil
	})}

	_, err := c.FetchPaged(context.Background(), ResourceNotifications, "at", nil)
	if !Is(err, ErrUpstreamStatus) {
		t.Fatalf("expected upstream status error, got %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected StatusError 502, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls.Load())
	}
}

func TestRetry_CanceledContextNotRetried(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(DefaultConfig())
	c.http = &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		cancel()
		return nil, dialError()
	})}

	_, err := c.FetchUserProfile(ctx, "at")
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls.Load())
	}
}
