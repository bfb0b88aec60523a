package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"giteelink/internal/ephemeral"
)

const defaultLoginTokenMinutes = 30

var ErrLoginTokenInvalid = errors.New("登录凭证无效或已过期")

type LoginTokenConfig struct {
	Secret        string
	ExpireMinutes int
}

// LoginSession 是登录键在临时存储中的内容。
type LoginSession struct {
	UserID    int64  `json:"userId"`
	Username  string `json:"username"`
	LoginTime int64  `json:"loginTime"`
}

type loginClaims struct {
	LoginUserKey string `json:"login_user_key"`
	Username     string `json:"username"`
	jwt.RegisteredClaims
}

// LoginTokens 签发一次性的登录凭证：JWT 只携带登录键，用户信息保存在临时存储中。
type LoginTokens struct {
	secret []byte
	ttl    time.Duration
	store  ephemeral.Store
	now    func() time.Time
}

func NewLoginTokens(cfg LoginTokenConfig, st ephemeral.Store) (*LoginTokens, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("login token secret 不能为空")
	}
	if st == nil {
		return nil, errors.New("ephemeral store 为空")
	}
	minutes := cfg.ExpireMinutes
	if minutes <= 0 {
		minutes = defaultLoginTokenMinutes
	}
	return &LoginTokens{
		secret: []byte(secret),
		ttl:    time.Duration(minutes) * time.Minute,
		store:  st,
		now:    time.Now,
	}, nil
}

func (t *LoginTokens) Issue(ctx context.Context, userID int64, username string) (string, error) {
	if userID <= 0 {
		return "", errors.New("user id 不能为空")
	}
	now := t.now()
	key := uuid.NewString()
	sess := LoginSession{UserID: userID, Username: username, LoginTime: now.Unix()}
	if err := ephemeral.PutJSON(ctx, t.store, ephemeral.LoginTokenKey(key), sess, t.ttl); err != nil {
		return "", fmt.Errorf("保存登录凭证失败: %w", err)
	}

	claims := loginClaims{
		LoginUserKey: key,
		Username:     username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("签发登录凭证失败: %w", err)
	}
	return signed, nil
}

// Redeem 校验签名与有效期后消费登录键；同一凭证只能兑换一次。
func (t *LoginTokens) Redeem(ctx context.Context, token string) (LoginSession, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return LoginSession{}, ErrLoginTokenInvalid
	}
	parsed, err := jwt.ParseWithClaims(token, &loginClaims{}, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return LoginSession{}, fmt.Errorf("%w: %v", ErrLoginTokenInvalid, err)
	}
	claims, ok := parsed.Claims.(*loginClaims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.LoginUserKey) == "" {
		return LoginSession{}, ErrLoginTokenInvalid
	}

	var sess LoginSession
	found, err := ephemeral.TakeJSON(ctx, t.store, ephemeral.LoginTokenKey(claims.LoginUserKey), &sess)
	if err != nil {
		return LoginSession{}, fmt.Errorf("读取登录凭证失败: %w", err)
	}
	if !found || sess.UserID <= 0 {
		return LoginSession{}, ErrLoginTokenInvalid
	}
	if claims.Subject != strconv.FormatInt(sess.UserID, 10) {
		return LoginSession{}, ErrLoginTokenInvalid
	}
	return sess, nil
}
