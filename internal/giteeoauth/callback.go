package giteeoauth

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	"giteelink/internal/auth"
	"giteelink/internal/ephemeral"
	"giteelink/internal/gitee"
)

// State 是一次回调处理的终态。
type State int

const (
	StateErrored State = iota
	StateProfileLinked
	StateLoggedIn
	StatePendingBind
)

func (s State) String() string {
	switch s {
	case StateProfileLinked:
		return "profile_linked"
	case StateLoggedIn:
		return "logged_in"
	case StatePendingBind:
		return "pending_bind"
	default:
		return "errored"
	}
}

type CallbackParams struct {
	Code  string
	State string
	Error string
	// CallbackURL 为请求推导出的回调地址，配置了固定地址时忽略。
	CallbackURL string
	ClientIP    string
}

// Outcome 描述回调结果；Message 在重定向失败时作为纯文本响应内容。
type Outcome struct {
	State       State
	RedirectURL string
	Message     string
	Err         error
}

// HandleCallback 处理授权回调。任何失败都转化为带错误提示的重定向，不向调用方返回 error。
func (f *Flow) HandleCallback(ctx context.Context, p CallbackParams) Outcome {
	st, err := f.takeAuthState(ctx, p.State)
	if err != nil {
		slog.Error("读取 Gitee 授权 state 失败", "err", err)
		return f.loginError(gitee.Wrap(gitee.ErrStoreFailed, err))
	}

	if e := strings.TrimSpace(p.Error); e != "" {
		return f.fail(st, gitee.NewError(gitee.ErrUpstreamAuth, "gitee授权失败: "+e))
	}
	code := strings.TrimSpace(p.Code)
	if code == "" {
		return f.fail(st, gitee.NewError(gitee.ErrInvalidParams, "缺少授权码"))
	}
	if f.cfg.ClientID == "" {
		return f.loginError(gitee.NewError(gitee.ErrConfigurationMissing, "gitee clientId未配置"))
	}
	if f.cfg.ClientSecret == "" {
		return f.loginError(gitee.NewError(gitee.ErrConfigurationMissing, "gitee clientSecret未配置"))
	}

	token, err := f.api.ExchangeCode(ctx, f.cfg.ClientID, f.cfg.ClientSecret, f.callbackURL(p.CallbackURL), code)
	if err != nil {
		return f.fail(st, err)
	}
	profile, err := f.api.FetchUserProfile(ctx, token.AccessToken)
	if err != nil {
		return f.fail(st, err)
	}
	if strings.TrimSpace(profile.ID) == "" {
		return f.fail(st, gitee.NewError(gitee.ErrUpstreamAuth, "gitee用户信息不完整"))
	}

	if st != nil {
		return f.linkProfile(ctx, *st, profile, token)
	}
	return f.loginOrPend(ctx, p, profile, token)
}

// takeAuthState 读取并删除 state；state 为空或已失效时返回 nil，走匿名分支。
func (f *Flow) takeAuthState(ctx context.Context, state string) (*authState, error) {
	state = strings.TrimSpace(state)
	if state == "" {
		return nil, nil
	}
	var st authState
	ok, err := ephemeral.TakeJSON(ctx, f.kv, ephemeral.AuthStateKey(state), &st)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (f *Flow) linkProfile(ctx context.Context, st authState, profile gitee.Profile, token gitee.OAuthToken) Outcome {
	if st.UserID <= 0 {
		return f.profileError(st.Redirect, gitee.NewError(gitee.ErrInvalidParams, "授权用户信息失效"))
	}
	user, err := f.repo.GetUserByID(ctx, st.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return f.profileError(st.Redirect, gitee.NewError(gitee.ErrNotFound, "用户不存在"))
		}
		return f.profileError(st.Redirect, gitee.Wrap(gitee.ErrStoreFailed, err))
	}
	if err := f.binds.Upsert(ctx, user.ID, profile.ID, displayUsername(profile.Login, profile.Name, profile.ID), profile.AvatarURL); err != nil {
		return f.profileError(st.Redirect, err)
	}
	if err := f.saveAccessToken(ctx, user.ID, token.AccessToken, token.TTL(f.cfg.AccessTokenFallbackTTL)); err != nil {
		return f.profileError(st.Redirect, err)
	}
	slog.Info("Gitee 个人中心授权完成", "user_id", user.ID, "gitee_user_id", profile.ID)
	return Outcome{State: StateProfileLinked, RedirectURL: f.profileRedirect(st.Redirect, "")}
}

func (f *Flow) loginOrPend(ctx context.Context, p CallbackParams, profile gitee.Profile, token gitee.OAuthToken) Outcome {
	existing, ok, err := f.repo.GetGiteeBindByGiteeUserID(ctx, profile.ID)
	if err != nil {
		return f.loginError(gitee.Wrap(gitee.ErrStoreFailed, err))
	}
	if ok {
		return f.loginBound(ctx, p, existing.UserID, profile, token)
	}

	bindToken := auth.NewCompactUUID()
	name := profile.Name
	if strings.TrimSpace(name) == "" {
		name = profile.Login
	}
	pending := pendingBind{
		GiteeID:     profile.ID,
		Login:       profile.Login,
		Name:        name,
		AvatarURL:   profile.AvatarURL,
		Email:       profile.Email,
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		CreatedAt:   token.CreatedAt,
	}
	if err := ephemeral.PutJSON(ctx, f.kv, ephemeral.BindTokenKey(bindToken), pending, f.cfg.BindTokenTTL); err != nil {
		return f.loginError(gitee.Wrap(gitee.ErrStoreFailed, err))
	}
	slog.Info("Gitee 账号未绑定，已生成绑定令牌", "gitee_user_id", profile.ID)
	return Outcome{State: StatePendingBind, RedirectURL: f.bindTokenRedirect(bindToken)}
}

func (f *Flow) loginBound(ctx context.Context, p CallbackParams, userID int64, profile gitee.Profile, token gitee.OAuthToken) Outcome {
	user, err := f.repo.GetUserByID(ctx, userID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return f.loginError(gitee.Wrap(gitee.ErrStoreFailed, err))
	}
	if err != nil || !user.Usable() {
		return f.loginError(gitee.NewError(gitee.ErrAccountUnusable, "绑定账号已不可用，请联系管理员"))
	}

	if err := f.binds.Upsert(ctx, user.ID, profile.ID, displayUsername(profile.Login, profile.Name, profile.ID), profile.AvatarURL); err != nil {
		return f.loginError(err)
	}
	loginToken, err := f.tokens.Issue(ctx, user.ID, user.Username)
	if err != nil {
		return f.loginError(gitee.Wrap(gitee.ErrStoreFailed, err))
	}
	if err := f.repo.UpdateUserLoginInfo(ctx, user.ID, p.ClientIP, f.now()); err != nil {
		slog.Warn("更新登录信息失败", "user_id", user.ID, "err", err)
	}
	if err := f.saveAccessToken(ctx, user.ID, token.AccessToken, token.TTL(f.cfg.AccessTokenFallbackTTL)); err != nil {
		return f.loginError(err)
	}
	slog.Info("Gitee 登录成功", "user_id", user.ID)
	return Outcome{State: StateLoggedIn, RedirectURL: f.oauthLoginRedirect(loginToken)}
}

func (f *Flow) fail(st *authState, err error) Outcome {
	if st != nil {
		return f.profileError(st.Redirect, err)
	}
	return f.loginError(err)
}

func (f *Flow) loginError(err error) Outcome {
	msg := gitee.UserMessage(err)
	slog.Warn("Gitee OAuth 失败", "err", err)
	return Outcome{State: StateErrored, RedirectURL: f.loginErrorRedirect(msg), Message: msg, Err: err}
}

func (f *Flow) profileError(redirect string, err error) Outcome {
	msg := gitee.UserMessage(err)
	slog.Warn("Gitee 个人中心授权失败", "err", err)
	return Outcome{State: StateErrored, RedirectURL: f.profileRedirect(redirect, msg), Message: msg, Err: err}
}
