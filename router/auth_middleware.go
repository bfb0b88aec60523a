package router

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"giteelink/internal/auth"
	"giteelink/internal/middleware"
	"giteelink/internal/store"
)

// UserHeader 由前端随 JSON 请求携带当前用户 id，跨站请求难以伪造自定义 header。
const UserHeader = "Giteelink-User"

const ctxPrincipalKey = "giteelink_principal"

func requireUserSession(opts Options) gin.HandlerFunc {
	return requireSession(opts, false)
}

func requireRootSession(opts Options) gin.HandlerFunc {
	return requireSession(opts, true)
}

func requireSession(opts Options, root bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := sessionUserID(c)
		if !ok {
			clearSession(c)
			abortMessage(c, "未登录")
			return
		}

		headerID, err := strconv.ParseInt(strings.TrimSpace(c.GetHeader(UserHeader)), 10, 64)
		if err != nil || headerID != userID {
			abortMessage(c, "无权进行此操作，"+UserHeader+" 无效")
			return
		}

		u, err := opts.Store.GetUserByID(c.Request.Context(), userID)
		if err != nil || !u.Usable() {
			clearSession(c)
			abortMessage(c, "未登录")
			return
		}
		if staleSession(c, u) {
			clearSession(c)
			abortMessage(c, "会话已失效，请重新登录")
			return
		}
		if root && strings.TrimSpace(u.Role) != store.UserRoleRoot {
			abortMessage(c, "权限不足")
			return
		}

		p := auth.Principal{UserID: u.ID, Username: u.Username, Role: strings.TrimSpace(u.Role)}
		c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), p))
		middleware.SetAccessUser(c.Request.Context(), u.ID)
		c.Set(ctxPrincipalKey, p)
		c.Next()
	}
}

func abortMessage(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusOK, gin.H{"success": false, "message": msg})
}

func principalFromContext(c *gin.Context) (auth.Principal, bool) {
	v, ok := c.Get(ctxPrincipalKey)
	if !ok {
		return auth.Principal{}, false
	}
	p, ok := v.(auth.Principal)
	return p, ok && p.UserID > 0
}
