package router

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"giteelink/internal/gitee"
	"giteelink/internal/giteeoauth"
	"giteelink/internal/obs"
	"giteelink/internal/security"
)

func setGiteeOAuthRoutes(r gin.IRoutes, opts Options) {
	r.GET("/gitlogin", giteeLoginHandler(opts))
	r.GET("/auth", giteeCallbackHandler(opts))
}

func callbackURL(opts Options, r *http.Request) string {
	return security.CallbackURL(opts.CallbackURL, r, opts.ProxyTrust)
}

func giteeLoginHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := opts.Flow.LoginURL(callbackURL(opts, c.Request))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": gitee.UserMessage(err)})
			return
		}
		c.Redirect(http.StatusFound, u)
	}
}

// giteeCallbackHandler 的失败一律通过重定向带回前端；跳转地址不合法时才返回纯文本。
func giteeCallbackHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		out := opts.Flow.HandleCallback(c.Request.Context(), giteeoauth.CallbackParams{
			Code:        c.Query("code"),
			State:       c.Query("state"),
			Error:       c.Query("error"),
			CallbackURL: callbackURL(opts, c.Request),
			ClientIP:    c.ClientIP(),
		})
		obs.RecordOAuthCallback(out.State.String())
		target, ok := callbackRedirect(out.RedirectURL)
		if !ok {
			msg := out.Message
			if msg == "" {
				msg = "gitee授权失败"
			}
			c.Data(http.StatusBadRequest, "text/plain; charset=utf-8", []byte(msg))
			return
		}
		c.Redirect(http.StatusFound, target)
	}
}

// callbackRedirect 只接受带主机名的 http(s) 绝对地址或站内路径。
func callbackRedirect(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.IsAbs() {
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "", false
		}
		return raw, true
	}
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
		return "", false
	}
	return raw, true
}
