package store

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxUsernameLen 与 users.username 列宽一致。
const MaxUsernameLen = 64

var usernameRE = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

func NormalizeUsername(raw string) (string, error) {
	u := strings.TrimSpace(raw)
	if u == "" {
		return "", fmt.Errorf("账号名不能为空")
	}
	if len(u) > MaxUsernameLen {
		return "", fmt.Errorf("账号名长度不能超过 %d 位", MaxUsernameLen)
	}
	if !usernameRE.MatchString(u) {
		return "", fmt.Errorf("账号名仅支持字母/数字/下划线/点/中划线，不允许空格或其他字符")
	}
	return u, nil
}
