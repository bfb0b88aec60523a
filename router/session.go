package router

import (
	"strconv"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"giteelink/internal/store"
)

const (
	sessionUserIDKey        = "id"
	sessionUsernameKey      = "username"
	sessionRoleKey          = "role"
	sessionUserUpdatedAtKey = "user_updated_at_unix"
)

func sessionUserID(c *gin.Context) (int64, bool) {
	return sessionInt64(c, sessionUserIDKey)
}

func sessionInt64(c *gin.Context, key string) (int64, bool) {
	if c == nil {
		return 0, false
	}
	v := sessions.Default(c).Get(key)
	switch x := v.(type) {
	case int64:
		return x, x > 0
	case int:
		return int64(x), x > 0
	case float64:
		return int64(x), x > 0
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil || n <= 0 {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// startSession 登录成功后写入会话；用户关键字段更新后旧会话按 updated_at 失效。
func startSession(c *gin.Context, u store.User) error {
	sess := sessions.Default(c)
	sess.Clear()
	sess.Set(sessionUserIDKey, u.ID)
	sess.Set(sessionUsernameKey, u.Username)
	sess.Set(sessionRoleKey, u.Role)
	sess.Set(sessionUserUpdatedAtKey, u.UpdatedAt.UTC().Unix())
	return sess.Save()
}

func clearSession(c *gin.Context) {
	if c == nil {
		return
	}
	sess := sessions.Default(c)
	sess.Clear()
	_ = sess.Save()
}

func staleSession(c *gin.Context, u store.User) bool {
	unix, ok := sessionInt64(c, sessionUserUpdatedAtKey)
	if !ok {
		return false
	}
	return u.UpdatedAt.UTC().Unix() > unix
}
