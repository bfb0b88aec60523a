// Package giteeoauth 实现 Gitee OAuth 登录/绑定流程：授权跳转、回调状态机、待绑定令牌的兑换。
package giteeoauth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"giteelink/internal/bind"
	"giteelink/internal/ephemeral"
	"giteelink/internal/gitee"
	"giteelink/internal/store"
)

// API 是流程依赖的 Gitee 接口，*gitee.Client 满足该接口。
type API interface {
	BuildAuthorizeURL(clientID string, callbackURL string, state string) string
	ExchangeCode(ctx context.Context, clientID string, clientSecret string, callbackURL string, code string) (gitee.OAuthToken, error)
	FetchUserProfile(ctx context.Context, accessToken string) (gitee.Profile, error)
	FetchPaged(ctx context.Context, resource string, accessToken string, params map[string]string) ([]byte, error)
	FetchIssues(ctx context.Context, accessToken string, params map[string]string) ([]byte, error)
}

// Repository 聚合账号与绑定表的读写，*store.Store 满足该接口。
type Repository interface {
	bind.Repository

	GetUserByID(ctx context.Context, userID int64) (store.User, error)
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	CreateUser(ctx context.Context, in store.NewUser) (int64, error)
	SoftDeleteUser(ctx context.Context, userID int64) error
	UpdateUserLoginInfo(ctx context.Context, userID int64, ip string, at time.Time) error
	DeleteGiteeBindByUserID(ctx context.Context, userID int64) error
}

// TokenIssuer 为已绑定账号签发平台登录凭证。
type TokenIssuer interface {
	Issue(ctx context.Context, userID int64, username string) (string, error)
}

type authState struct {
	UserID   int64  `json:"userId"`
	Redirect string `json:"redirect"`
}

type pendingBind struct {
	GiteeID     string `json:"giteeId"`
	Login       string `json:"login"`
	Name        string `json:"name"`
	AvatarURL   string `json:"avatarUrl"`
	Email       string `json:"email"`
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	CreatedAt   int64  `json:"createdAt"`
}

type Flow struct {
	cfg    Config
	api    API
	repo   Repository
	binds  *bind.Reconciler
	kv     ephemeral.Store
	tokens TokenIssuer
	now    func() time.Time
}

func NewFlow(cfg Config, api API, repo Repository, kv ephemeral.Store, tokens TokenIssuer) *Flow {
	return &Flow{
		cfg:    cfg.withDefaults(),
		api:    api,
		repo:   repo,
		binds:  bind.NewReconciler(repo),
		kv:     kv,
		tokens: tokens,
		now:    time.Now,
	}
}

func (f *Flow) Config() Config {
	return f.cfg
}

// LoginURL 返回匿名登录入口的授权地址（不带 state）。
func (f *Flow) LoginURL(callbackURL string) (string, error) {
	if f.cfg.ClientID == "" {
		return "", gitee.NewError(gitee.ErrConfigurationMissing, "gitee clientId未配置")
	}
	return f.api.BuildAuthorizeURL(f.cfg.ClientID, f.callbackURL(callbackURL), ""), nil
}

// ProfileAuthorizeURL 为已登录用户生成带 state 的授权地址，回调时据此走个人中心绑定分支。
func (f *Flow) ProfileAuthorizeURL(ctx context.Context, userID int64, redirect string, callbackURL string) (string, error) {
	if f.cfg.ClientID == "" {
		return "", gitee.NewError(gitee.ErrConfigurationMissing, "gitee clientId未配置")
	}
	state := uuid.NewString()
	st := authState{UserID: userID, Redirect: NormalizeRedirect(redirect, f.cfg.ProfileRedirect)}
	if err := ephemeral.PutJSON(ctx, f.kv, ephemeral.AuthStateKey(state), st, f.cfg.StateTTL); err != nil {
		return "", gitee.Wrap(gitee.ErrStoreFailed, err)
	}
	return f.api.BuildAuthorizeURL(f.cfg.ClientID, f.callbackURL(callbackURL), state), nil
}

// callbackURL 优先使用配置值，其次使用请求推导出的地址。
func (f *Flow) callbackURL(derived string) string {
	if f.cfg.CallbackURL != "" {
		return f.cfg.CallbackURL
	}
	return strings.TrimSpace(derived)
}

func (f *Flow) saveAccessToken(ctx context.Context, userID int64, accessToken string, ttl time.Duration) error {
	if userID <= 0 || strings.TrimSpace(accessToken) == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = f.cfg.AccessTokenFallbackTTL
	}
	if err := f.kv.Put(ctx, ephemeral.AccessTokenKey(userID), []byte(accessToken), ttl); err != nil {
		return gitee.Wrap(gitee.ErrStoreFailed, err)
	}
	return nil
}

func displayUsername(login, name, id string) string {
	if s := strings.TrimSpace(login); s != "" {
		return s
	}
	if s := strings.TrimSpace(name); s != "" {
		return s
	}
	return id
}
