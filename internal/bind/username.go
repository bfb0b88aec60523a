package bind

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"

	"giteelink/internal/gitee"
)

const (
	fallbackUsername = "gitee_user"
	maxUsernameBase  = 48
	shortSuffixTries = 5
	shortSuffixBytes = 2
	finalSuffixBytes = 3
)

// TakenFunc 判断账号名是否已被占用。
type TakenFunc func(ctx context.Context, username string) (bool, error)

var randomHex = func(nBytes int) string {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

// UniqueUsername 基于 Gitee 登录名生成本地账号名，最多查询 6 次。
// 最后一次带 6 位十六进制后缀的候选不再校验，由唯一约束兜底。
func UniqueUsername(ctx context.Context, taken TakenFunc, login string) (string, error) {
	base := usernameBase(login)

	candidate := base
	for i := 0; i <= shortSuffixTries; i++ {
		if i > 0 {
			candidate = base + "_" + randomHex(shortSuffixBytes)
		}
		exists, err := taken(ctx, candidate)
		if err != nil {
			return "", gitee.Wrap(gitee.ErrStoreFailed, err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return base + "_" + randomHex(finalSuffixBytes), nil
}

func usernameBase(login string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(login) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	base := strings.Trim(b.String(), "_")
	if base == "" {
		base = fallbackUsername
	}
	if len(base) > maxUsernameBase {
		base = base[:maxUsernameBase]
	}
	return base
}
