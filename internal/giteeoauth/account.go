package giteeoauth

import (
	"context"
	"strings"
	"time"

	"giteelink/internal/ephemeral"
	"giteelink/internal/gitee"
)

type Status struct {
	Authorized    bool       `json:"authorized"`
	Bound         bool       `json:"bound"`
	GiteeUsername string     `json:"giteeUsername,omitempty"`
	GiteeAvatar   string     `json:"giteeAvatar,omitempty"`
	BindTime      *time.Time `json:"bindTime,omitempty"`
}

// Status 中 Authorized 仅表示缓存中存在可用的 access token。
func (f *Flow) Status(ctx context.Context, userID int64) (Status, error) {
	var out Status
	tok, ok, err := f.kv.Get(ctx, ephemeral.AccessTokenKey(userID))
	if err != nil {
		return Status{}, gitee.Wrap(gitee.ErrStoreFailed, err)
	}
	out.Authorized = ok && strings.TrimSpace(string(tok)) != ""

	b, bound, err := f.repo.GetGiteeBindByUserID(ctx, userID)
	if err != nil {
		return Status{}, gitee.Wrap(gitee.ErrStoreFailed, err)
	}
	if bound {
		out.Bound = true
		out.GiteeUsername = b.GiteeUsername
		out.GiteeAvatar = b.GiteeAvatar
		bt := b.BindTime
		out.BindTime = &bt
	}
	return out, nil
}

// Unbind 同时清理缓存的 access token 与绑定关系。
func (f *Flow) Unbind(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return gitee.NewError(gitee.ErrInvalidParams, "未获取到用户信息")
	}
	if err := f.kv.Delete(ctx, ephemeral.AccessTokenKey(userID)); err != nil {
		return gitee.Wrap(gitee.ErrStoreFailed, err)
	}
	if err := f.repo.DeleteGiteeBindByUserID(ctx, userID); err != nil {
		return gitee.Wrap(gitee.ErrStoreFailed, err)
	}
	return nil
}

func (f *Flow) AccessToken(ctx context.Context, userID int64) (string, error) {
	tok, ok, err := f.kv.Get(ctx, ephemeral.AccessTokenKey(userID))
	if err != nil {
		return "", gitee.Wrap(gitee.ErrStoreFailed, err)
	}
	s := strings.TrimSpace(string(tok))
	if !ok || s == "" {
		return "", gitee.NewError(gitee.ErrTokenExpired, "请先完成Gitee授权")
	}
	return s, nil
}

func (f *Flow) Profile(ctx context.Context, userID int64) ([]byte, error) {
	return f.proxy(ctx, userID, gitee.ResourceUser, nil)
}

func (f *Flow) Repos(ctx context.Context, userID int64, params map[string]string) ([]byte, error) {
	return f.proxy(ctx, userID, gitee.ResourceRepos, params)
}

func (f *Flow) Notifications(ctx context.Context, userID int64, params map[string]string) ([]byte, error) {
	return f.proxy(ctx, userID, gitee.ResourceNotifications, params)
}

// Issues 走合并流水线：filter=all 时合并 assigned 与 created 两次查询。
func (f *Flow) Issues(ctx context.Context, userID int64, params map[string]string) ([]byte, error) {
	tok, err := f.AccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	return f.api.FetchIssues(ctx, tok, params)
}

func (f *Flow) proxy(ctx context.Context, userID int64, resource string, params map[string]string) ([]byte, error) {
	tok, err := f.AccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	return f.api.FetchPaged(ctx, resource, tok, params)
}
