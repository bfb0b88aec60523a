// Package auth 提供会话主体、密码工具与 OAuth 登录凭证。
package auth

import (
	"context"
)

type Principal struct {
	UserID   int64
	Username string
	Role     string
}

func (p Principal) IsRoot() bool {
	return p.Role == "root"
}

type ctxKey int

const principalKey ctxKey = 1

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	v := ctx.Value(principalKey)
	if v == nil {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}
