package giteeoauth

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	"giteelink/internal/auth"
	"giteelink/internal/bind"
	"giteelink/internal/ephemeral"
	"giteelink/internal/gitee"
	"giteelink/internal/store"
)

const tempPasswordLen = 12

type BindRequest struct {
	BindToken string `json:"bindToken"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

// Credentials 为新建账号的临时凭证，只在创建时返回一次。
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// BindExisting 校验账号密码后把待绑定的 Gitee 账号绑定到已有账号。
// 校验失败不会消耗绑定令牌，允许用户重试。
func (f *Flow) BindExisting(ctx context.Context, req BindRequest) error {
	bindToken := strings.TrimSpace(req.BindToken)
	if bindToken == "" {
		return gitee.NewError(gitee.ErrInvalidParams, "缺少绑定信息")
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return gitee.NewError(gitee.ErrInvalidParams, "请输入账号和密码")
	}

	var pending pendingBind
	ok, err := ephemeral.GetJSON(ctx, f.kv, ephemeral.BindTokenKey(bindToken), &pending)
	if err != nil {
		return gitee.Wrap(gitee.ErrStoreFailed, err)
	}
	if !ok {
		return gitee.NewError(gitee.ErrTokenExpired, "绑定信息已过期，请重新授权")
	}
	if strings.TrimSpace(pending.GiteeID) == "" {
		return gitee.NewError(gitee.ErrInvalidParams, "gitee用户信息不完整")
	}

	user, err := f.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return gitee.NewError(gitee.ErrNotFound, "账号不存在")
		}
		return gitee.Wrap(gitee.ErrStoreFailed, err)
	}
	if user.Deleted {
		return gitee.NewError(gitee.ErrAccountUnusable, "账号已被删除")
	}
	if user.Status != store.UserStatusEnabled {
		return gitee.NewError(gitee.ErrAccountUnusable, "账号已被停用")
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		return gitee.NewError(gitee.ErrInvalidParams, "账号或密码错误")
	}

	if err := f.binds.Upsert(ctx, user.ID, pending.GiteeID, displayUsername(pending.Login, pending.Name, pending.GiteeID), pending.AvatarURL); err != nil {
		return err
	}
	if err := f.kv.Delete(ctx, ephemeral.BindTokenKey(bindToken)); err != nil {
		slog.Warn("删除绑定令牌失败", "err", err)
	}
	if err := f.saveAccessToken(ctx, user.ID, pending.AccessToken, f.cfg.AccessTokenFallbackTTL); err != nil {
		return err
	}
	slog.Info("Gitee 账号已绑定到已有账号", "user_id", user.ID, "gitee_user_id", pending.GiteeID)
	return nil
}

// CreateAndBind 以待绑定的 Gitee 信息创建新账号并绑定。
// 令牌被原子取出，同一令牌的并发请求只有一个能进入建号；绑定完成前的失败会放回令牌，已建的账号被软删除。
func (f *Flow) CreateAndBind(ctx context.Context, bindToken string) (Credentials, error) {
	bindToken = strings.TrimSpace(bindToken)
	if bindToken == "" {
		return Credentials{}, gitee.NewError(gitee.ErrInvalidParams, "缺少绑定信息")
	}
	key := ephemeral.BindTokenKey(bindToken)

	var pending pendingBind
	ok, err := ephemeral.TakeJSON(ctx, f.kv, key, &pending)
	if err != nil {
		return Credentials{}, gitee.Wrap(gitee.ErrStoreFailed, err)
	}
	if !ok {
		return Credentials{}, gitee.NewError(gitee.ErrTokenExpired, "绑定信息已过期，请重新授权")
	}
	if strings.TrimSpace(pending.GiteeID) == "" {
		return Credentials{}, gitee.NewError(gitee.ErrInvalidParams, "gitee用户信息不完整")
	}

	restore := func() {
		if err := ephemeral.PutJSON(ctx, f.kv, key, pending, f.cfg.BindTokenTTL); err != nil {
			slog.Warn("恢复绑定令牌失败", "err", err)
		}
	}

	if _, exists, err := f.repo.GetGiteeBindByGiteeUserID(ctx, pending.GiteeID); err != nil {
		restore()
		return Credentials{}, gitee.Wrap(gitee.ErrStoreFailed, err)
	} else if exists {
		restore()
		return Credentials{}, gitee.NewError(gitee.ErrBindConflict, "该Gitee账号已绑定其他用户")
	}

	base := pending.Login
	if strings.TrimSpace(base) == "" {
		base = "gitee_user"
	}
	username, err := bind.UniqueUsername(ctx, f.repo.UsernameExists, base)
	if err != nil {
		restore()
		return Credentials{}, err
	}
	password, err := auth.NewTempPassword(tempPasswordLen)
	if err != nil {
		restore()
		return Credentials{}, gitee.WrapMessage(gitee.ErrStoreFailed, "创建用户失败", err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		restore()
		return Credentials{}, gitee.WrapMessage(gitee.ErrStoreFailed, "创建用户失败", err)
	}
	nickname := strings.TrimSpace(pending.Name)
	if nickname == "" {
		nickname = username
	}
	userID, err := f.repo.CreateUser(ctx, store.NewUser{
		Username:     username,
		Nickname:     nickname,
		Email:        pending.Email,
		PasswordHash: hash,
		Role:         store.UserRoleUser,
		Remark:       "gitee:" + pending.GiteeID,
	})
	if err != nil {
		restore()
		return Credentials{}, gitee.WrapMessage(gitee.ErrStoreFailed, "创建用户失败", err)
	}

	if err := f.binds.Upsert(ctx, userID, pending.GiteeID, displayUsername(pending.Login, pending.Name, pending.GiteeID), pending.AvatarURL); err != nil {
		// 绑定失败时新账号的临时密码无人知晓，不能留下可登录的孤儿账号。
		if delErr := f.repo.SoftDeleteUser(ctx, userID); delErr != nil {
			slog.Warn("回收未绑定的新账号失败", "user_id", userID, "err", delErr)
		}
		restore()
		return Credentials{}, err
	}
	if err := f.saveAccessToken(ctx, userID, pending.AccessToken, f.cfg.AccessTokenFallbackTTL); err != nil {
		slog.Warn("缓存 Gitee access token 失败", "user_id", userID, "err", err)
	}
	slog.Info("已基于 Gitee 账号创建新用户", "user_id", userID, "gitee_user_id", pending.GiteeID)
	return Credentials{Username: username, Password: password}, nil
}
