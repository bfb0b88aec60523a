package gitee

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// maxAttempts 为网络层失败的总尝试次数（首次 + 重试一次）。
const maxAttempts = 2

const maxBodyBytes = 4 << 20

type response struct {
	status int
	body   []byte
}

func (r response) ok() bool {
	return r.status >= 200 && r.status < 300
}

func cloneDefaultTransport() *http.Transport {
	if t, ok := http.DefaultTransport.(*http.Transport); ok && t != nil {
		return t.Clone()
	}
	return &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		ForceAttemptHTTP2: true,
		MaxIdleConns:      100,
		IdleConnTimeout:   90 * time.Second,
	}
}

func newHTTPClient(cfg Config) *http.Client {
	t := cloneDefaultTransport()
	t.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}).DialContext
	t.TLSHandshakeTimeout = cfg.ConnectTimeout
	t.ResponseHeaderTimeout = cfg.ReadTimeout
	return &http.Client{
		Transport: t,
		Timeout:   cfg.ConnectTimeout + cfg.ReadTimeout,
	}
}

// do 发送请求；仅在网络层瞬时失败时重试一次，HTTP 状态码错误与解析错误不重试。
// 请求无法构造（例如地址非法）属于参数问题，不归为上游不可用。
func (c *Client) do(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error)) (response, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := newReq(ctx)
		if err != nil {
			return response{}, Wrap(ErrInvalidParams, err)
		}
		resp, err := c.once(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil || !isTransientNetworkError(err) {
			return response{}, Wrap(ErrUpstreamUnavailable, err)
		}
	}
	return response{}, Wrap(ErrUpstreamUnavailable, lastErr)
}

func (c *Client) once(req *http.Request) (response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return response{}, err
	}
	return response{status: resp.StatusCode, body: body}, nil
}

func isTransientNetworkError(err error) bool {
	if err == nil {
		return false
	}
	// 调用方超时/取消由 do 中的 ctx.Err() 判断；这里的 DeadlineExceeded 来自拨号或读超时。
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	if strings.Contains(err.Error(), "TLS handshake timeout") {
		return true
	}
	var oe *net.OpError
	if errors.As(err, &oe) && oe != nil {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}
