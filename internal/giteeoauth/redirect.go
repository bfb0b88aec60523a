package giteeoauth

import (
	"net/url"
	"strings"
)

// NormalizeRedirect 只允许站内相对路径，外链与协议相对地址回落到默认页。
func NormalizeRedirect(redirect string, fallback string) string {
	redirect = strings.TrimSpace(redirect)
	if redirect == "" || strings.HasPrefix(redirect, "http") || strings.HasPrefix(redirect, "//") {
		return fallback
	}
	if !strings.HasPrefix(redirect, "/") {
		return "/" + redirect
	}
	return redirect
}

func (f *Flow) loginRedirect(key string, value string) string {
	return f.cfg.FrontendURL + "/login?redirect=/index&" + key + "=" + url.QueryEscape(value)
}

func (f *Flow) oauthLoginRedirect(token string) string {
	return f.loginRedirect("oauthToken", token)
}

func (f *Flow) bindTokenRedirect(bindToken string) string {
	return f.loginRedirect("giteeBindToken", bindToken)
}

func (f *Flow) loginErrorRedirect(message string) string {
	return f.loginRedirect("giteeError", message)
}

// profileRedirect 为空 message 时表示授权成功。
func (f *Flow) profileRedirect(path string, message string) string {
	if strings.TrimSpace(path) == "" {
		path = f.cfg.ProfileRedirect
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	if message == "" {
		return f.cfg.FrontendURL + path + sep + "giteeAuth=success"
	}
	return f.cfg.FrontendURL + path + sep + "giteeError=" + url.QueryEscape(message)
}
