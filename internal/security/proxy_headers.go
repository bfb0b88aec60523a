// Package security 根据请求推断对外地址，并限制对代理头的信任范围。
package security

import (
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
)

// CallbackPath 为 Gitee OAuth 回调路由。
const CallbackPath = "/auth"

type ProxyTrust struct {
	// Enabled=false 时忽略 X-Forwarded-Host。
	Enabled  bool
	Prefixes []netip.Prefix
}

// DeriveBaseURL 推断请求的对外 Base URL。
//
// X-Forwarded-Proto 只取 http/https；X-Forwarded-Host 仅在来源命中受信代理网段时采用，
// 且必须是纯 host[:port]。
func DeriveBaseURL(r *http.Request, trust ProxyTrust) string {
	if r == nil {
		return ""
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto, ok := forwardedProto(r.Header.Get("X-Forwarded-Proto")); ok {
		scheme = proto
	}

	host := strings.TrimSpace(r.Host)
	if host == "" && r.URL != nil {
		host = strings.TrimSpace(r.URL.Host)
	}
	if trust.Enabled && isTrustedProxyRequest(r, trust.Prefixes) {
		if h, ok := forwardedHost(r.Header.Get("X-Forwarded-Host")); ok {
			host = h
		}
	}

	if host == "" {
		return ""
	}
	return scheme + "://" + host
}

// CallbackURL 优先使用配置值，否则由请求推断 <base>/auth。
func CallbackURL(configured string, r *http.Request, trust ProxyTrust) string {
	if v := strings.TrimSpace(configured); v != "" {
		return v
	}
	base := DeriveBaseURL(r, trust)
	if base == "" {
		return ""
	}
	return base + CallbackPath
}

func isTrustedProxyRequest(r *http.Request, trustedProxies []netip.Prefix) bool {
	if len(trustedProxies) == 0 {
		return false
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		host = strings.TrimSpace(r.RemoteAddr)
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	ip = ip.Unmap()
	for _, pfx := range trustedProxies {
		if pfx.Contains(ip) {
			return true
		}
	}
	return false
}

func forwardedProto(raw string) (string, bool) {
	v := strings.ToLower(firstForwardedToken(raw))
	switch v {
	case "http", "https":
		return v, true
	default:
		return "", false
	}
}

func forwardedHost(raw string) (string, bool) {
	v := firstForwardedToken(raw)
	if v == "" || strings.ContainsAny(v, " \t\r\n/\\") {
		return "", false
	}
	u, err := url.Parse("http://" + v)
	if err != nil {
		return "", false
	}
	if u.Host == "" || u.User != nil || u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		return "", false
	}
	if !strings.EqualFold(u.Host, v) {
		return "", false
	}
	return v, true
}

func firstForwardedToken(raw string) string {
	v := strings.TrimSpace(raw)
	if idx := strings.IndexByte(v, ','); idx >= 0 {
		v = v[:idx]
	}
	return strings.TrimSpace(v)
}
