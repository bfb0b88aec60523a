// Package bind 维护本地账号与 Gitee 账号之间的一对一绑定。
package bind

import (
	"context"
	"errors"
	"strings"
	"time"

	"giteelink/internal/gitee"
	"giteelink/internal/store"
)

const (
	msgGiteeBoundToOther = "该Gitee账号已绑定其他用户"
	msgUserBoundToOther  = "该账号已绑定其他Gitee账号"
)

// Repository 是绑定表的读写依赖；InsertGiteeBind/UpdateGiteeBind 在唯一约束冲突时返回 store.ErrDuplicateKey。
type Repository interface {
	GetGiteeBindByGiteeUserID(ctx context.Context, giteeUserID string) (store.GiteeBind, bool, error)
	GetGiteeBindByUserID(ctx context.Context, userID int64) (store.GiteeBind, bool, error)
	InsertGiteeBind(ctx context.Context, b store.GiteeBind) (int64, error)
	UpdateGiteeBind(ctx context.Context, b store.GiteeBind) error
}

type Reconciler struct {
	repo Repository
	now  func() time.Time
}

func NewReconciler(repo Repository) *Reconciler {
	return &Reconciler{repo: repo, now: time.Now}
}

// Upsert 保证 user_id 与 gitee_user_id 两侧都只出现一次。
// 同一对 (userID, giteeUserID) 重复调用只刷新展示字段与绑定时间。
func (r *Reconciler) Upsert(ctx context.Context, userID int64, giteeUserID, giteeUsername, giteeAvatar string) error {
	giteeUserID = strings.TrimSpace(giteeUserID)
	if userID <= 0 || giteeUserID == "" {
		return nil
	}

	byGitee, ok, err := r.repo.GetGiteeBindByGiteeUserID(ctx, giteeUserID)
	if err != nil {
		return gitee.Wrap(gitee.ErrStoreFailed, err)
	}
	if ok && byGitee.UserID != userID {
		return gitee.NewError(gitee.ErrBindConflict, msgGiteeBoundToOther)
	}

	byUser, ok, err := r.repo.GetGiteeBindByUserID(ctx, userID)
	if err != nil {
		return gitee.Wrap(gitee.ErrStoreFailed, err)
	}
	if ok && byUser.GiteeUserID != giteeUserID {
		return gitee.NewError(gitee.ErrBindConflict, msgUserBoundToOther)
	}

	now := r.now()
	if ok {
		byUser.GiteeUsername = giteeUsername
		byUser.GiteeAvatar = giteeAvatar
		byUser.BindTime = now
		return r.conflictOrStoreError(ctx, userID, giteeUserID, r.repo.UpdateGiteeBind(ctx, byUser))
	}
	_, err = r.repo.InsertGiteeBind(ctx, store.GiteeBind{
		UserID:        userID,
		GiteeUserID:   giteeUserID,
		GiteeUsername: giteeUsername,
		GiteeAvatar:   giteeAvatar,
		BindTime:      now,
	})
	return r.conflictOrStoreError(ctx, userID, giteeUserID, err)
}

// conflictOrStoreError 处理并发写入：检查通过后仍可能撞上唯一约束。
// 冲突后重读 gitee_user_id 一侧，按与前置检查相同的顺序给出提示。
func (r *Reconciler) conflictOrStoreError(ctx context.Context, userID int64, giteeUserID string, err error) error {
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrDuplicateKey) {
		return gitee.Wrap(gitee.ErrStoreFailed, err)
	}
	msg := msgUserBoundToOther
	if b, ok, lookupErr := r.repo.GetGiteeBindByGiteeUserID(ctx, giteeUserID); lookupErr != nil || (ok && b.UserID != userID) {
		msg = msgGiteeBoundToOther
	}
	return gitee.WrapMessage(gitee.ErrBindConflict, msg, err)
}
