package router

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gin-gonic/gin"

	"giteelink/internal/giteeoauth"
)

func setGiteeAPIRoutes(r gin.IRoutes, opts Options) {
	userSession := requireUserSession(opts)

	r.POST("/gitee/bind", giteeBindHandler(opts))
	r.POST("/gitee/create", giteeCreateHandler(opts))

	r.GET("/gitee/status", userSession, giteeStatusHandler(opts))
	r.GET("/gitee/authorize", userSession, giteeAuthorizeHandler(opts))
	r.GET("/gitee/profile", userSession, giteeProfileHandler(opts))
	r.GET("/gitee/repos", userSession, giteeProxyHandler(opts.Flow.Repos))
	r.GET("/gitee/issues", userSession, giteeProxyHandler(opts.Flow.Issues))
	r.GET("/gitee/notifications", userSession, giteeProxyHandler(opts.Flow.Notifications))
	r.POST("/gitee/unbind", userSession, giteeUnbindHandler(opts))
}

type createBindRequest struct {
	BindToken string `json:"bindToken"`
}

func giteeBindHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req giteeoauth.BindRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondMessage(c, "参数错误")
			return
		}
		if err := opts.Flow.BindExisting(c.Request.Context(), req); err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, nil)
	}
}

func giteeCreateHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createBindRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondMessage(c, "参数错误")
			return
		}
		creds, err := opts.Flow.CreateAndBind(c.Request.Context(), req.BindToken)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, creds)
	}
}

func giteeStatusHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, _ := principalFromContext(c)
		st, err := opts.Flow.Status(c.Request.Context(), p.UserID)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, st)
	}
}

func giteeAuthorizeHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, _ := principalFromContext(c)
		u, err := opts.Flow.ProfileAuthorizeURL(c.Request.Context(), p.UserID, c.Query("redirect"), callbackURL(opts, c.Request))
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, gin.H{"url": u})
	}
}

func giteeProfileHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, _ := principalFromContext(c)
		raw, err := opts.Flow.Profile(c.Request.Context(), p.UserID)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, json.RawMessage(raw))
	}
}

type proxyFunc func(ctx context.Context, userID int64, params map[string]string) ([]byte, error)

// giteeProxyHandler 透传查询参数到 Gitee 列表接口，响应体原样放入 data。
func giteeProxyHandler(fetch proxyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, _ := principalFromContext(c)
		raw, err := fetch(c.Request.Context(), p.UserID, queryParams(c))
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, json.RawMessage(raw))
	}
}

func giteeUnbindHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, _ := principalFromContext(c)
		if err := opts.Flow.Unbind(c.Request.Context(), p.UserID); err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, nil)
	}
}

func queryParams(c *gin.Context) map[string]string {
	q := c.Request.URL.Query()
	out := make(map[string]string, len(q))
	for k, vs := range q {
		k = strings.TrimSpace(k)
		if k == "" || k == "access_token" || len(vs) == 0 {
			continue
		}
		if v := strings.TrimSpace(vs[0]); v != "" {
			out[k] = v
		}
	}
	return out
}
