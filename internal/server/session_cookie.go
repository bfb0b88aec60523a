package server

import (
	"net/http"

	"github.com/gin-contrib/sessions"

	"giteelink/internal/config"
)

const SessionCookieName = "giteelink_session"

const sessionMaxAgeSeconds = 7 * 24 * 3600

// sessionOptions 在 dev 环境或显式关闭时允许非 HTTPS cookie。
// SameSite 取 Lax：从 Gitee 授权页跳回前端属于跨站导航。
func sessionOptions(cfg config.Config) sessions.Options {
	return sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAgeSeconds,
		HttpOnly: true,
		Secure:   cfg.Env != "dev" && !cfg.Security.DisableSecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}
