package router

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	"giteelink/internal/auth"
	"giteelink/internal/middleware"
	"giteelink/internal/store"
)

type userLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type oauthLoginRequest struct {
	Token string `json:"token"`
}

func setUserAPIRoutes(r gin.IRoutes, opts Options) {
	r.POST("/user/login", userLoginHandler(opts))
	r.POST("/user/oauth-login", userOAuthLoginHandler(opts))
	r.GET("/user/logout", userLogoutHandler())
	r.GET("/user/self", userSelfHandler(opts))
}

func userView(u store.User) gin.H {
	return gin.H{
		"id":       u.ID,
		"username": u.Username,
		"nickname": u.Nickname,
		"email":    u.Email,
		"role":     u.Role,
		"status":   u.Status,
	}
}

func userLoginHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req userLoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondMessage(c, "无效的参数")
			return
		}
		username := strings.TrimSpace(req.Username)
		if username == "" || req.Password == "" {
			respondMessage(c, "无效的参数")
			return
		}
		u, err := opts.Store.GetUserByUsername(c.Request.Context(), username)
		if err != nil || !u.Usable() || !auth.CheckPassword(u.PasswordHash, req.Password) {
			respondMessage(c, "账号或密码错误")
			return
		}
		finishLogin(c, opts, u)
	}
}

// userOAuthLoginHandler 把 /auth 回调下发的一次性登录凭证兑换为会话。
func userOAuthLoginHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req oauthLoginRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Token) == "" {
			respondMessage(c, "无效的参数")
			return
		}
		sess, err := opts.LoginTokens.Redeem(c.Request.Context(), req.Token)
		if err != nil {
			if !errors.Is(err, auth.ErrLoginTokenInvalid) {
				slog.Error("兑换登录凭证失败", "err", err)
			}
			respondMessage(c, auth.ErrLoginTokenInvalid.Error())
			return
		}
		u, err := opts.Store.GetUserByID(c.Request.Context(), sess.UserID)
		if err != nil || !u.Usable() {
			respondMessage(c, "账号不可用，请联系管理员")
			return
		}
		finishLogin(c, opts, u)
	}
}

func finishLogin(c *gin.Context, opts Options, u store.User) {
	if err := startSession(c, u); err != nil {
		respondMessage(c, "无法保存会话信息，请重试")
		return
	}
	middleware.SetAccessUser(c.Request.Context(), u.ID)
	if err := opts.Store.UpdateUserLoginInfo(context.WithoutCancel(c.Request.Context()), u.ID, c.ClientIP(), timeNow()); err != nil {
		slog.Warn("更新登录信息失败", "user_id", u.ID, "err", err)
	}
	respondOK(c, userView(u))
}

func userLogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clearSession(c)
		respondOK(c, nil)
	}
}

func userSelfHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := sessionUserID(c)
		if !ok {
			respondMessage(c, "未登录")
			return
		}
		u, err := opts.Store.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				slog.Error("查询当前用户失败", "user_id", userID, "err", err)
			}
			clearSession(c)
			respondMessage(c, "未登录")
			return
		}
		if !u.Usable() || staleSession(c, u) {
			clearSession(c)
			respondMessage(c, "未登录")
			return
		}
		respondOK(c, userView(u))
	}
}
