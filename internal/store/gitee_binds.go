package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const giteeBindColumns = `bind_id, user_id, gitee_user_id, gitee_username, gitee_avatar, bind_time, created_at, updated_at`

func scanGiteeBind(row interface{ Scan(dest ...any) error }) (GiteeBind, error) {
	var b GiteeBind
	err := row.Scan(&b.ID, &b.UserID, &b.GiteeUserID, &b.GiteeUsername, &b.GiteeAvatar, &b.BindTime, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func (s *Store) GetGiteeBindByGiteeUserID(ctx context.Context, giteeUserID string) (GiteeBind, bool, error) {
	giteeUserID = strings.TrimSpace(giteeUserID)
	if giteeUserID == "" {
		return GiteeBind{}, false, nil
	}
	b, err := scanGiteeBind(s.db.QueryRowContext(ctx, `SELECT `+giteeBindColumns+` FROM gitee_binds WHERE gitee_user_id=?`, giteeUserID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return GiteeBind{}, false, nil
		}
		return GiteeBind{}, false, fmt.Errorf("查询 Gitee 绑定失败: %w", err)
	}
	return b, true, nil
}

func (s *Store) GetGiteeBindByUserID(ctx context.Context, userID int64) (GiteeBind, bool, error) {
	if userID <= 0 {
		return GiteeBind{}, false, nil
	}
	b, err := scanGiteeBind(s.db.QueryRowContext(ctx, `SELECT `+giteeBindColumns+` FROM gitee_binds WHERE user_id=?`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return GiteeBind{}, false, nil
		}
		return GiteeBind{}, false, fmt.Errorf("查询 Gitee 绑定失败: %w", err)
	}
	return b, true, nil
}

func (s *Store) ListGiteeBindsByUserIDs(ctx context.Context, userIDs []int64) ([]GiteeBind, error) {
	ids := uniquePositiveIDs(userIDs)
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+giteeBindColumns+` FROM gitee_binds WHERE user_id IN (`+placeholders(len(ids))+`)`, int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("批量查询 Gitee 绑定失败: %w", err)
	}
	defer rows.Close()

	var out []GiteeBind
	for rows.Next() {
		b, err := scanGiteeBind(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描 Gitee 绑定失败: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历 Gitee 绑定失败: %w", err)
	}
	return out, nil
}

// InsertGiteeBind 违反 user_id / gitee_user_id 唯一约束时返回 ErrDuplicateKey。
func (s *Store) InsertGiteeBind(ctx context.Context, b GiteeBind) (int64, error) {
	now := s.timestamp()
	bindTime := now
	if !b.BindTime.IsZero() {
		bindTime = dbTime(b.BindTime)
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO gitee_binds(user_id, gitee_user_id, gitee_username, gitee_avatar, bind_time, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?)
`, b.UserID, strings.TrimSpace(b.GiteeUserID), b.GiteeUsername, b.GiteeAvatar, bindTime, now, now)
	if err != nil {
		if isDuplicateKeyError(err) {
			return 0, fmt.Errorf("写入 Gitee 绑定失败: %w", ErrDuplicateKey)
		}
		return 0, fmt.Errorf("写入 Gitee 绑定失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("获取绑定 id 失败: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateGiteeBind(ctx context.Context, b GiteeBind) error {
	if b.ID <= 0 {
		return errors.New("bind_id 不能为空")
	}
	bindTime := s.timestamp()
	if !b.BindTime.IsZero() {
		bindTime = dbTime(b.BindTime)
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE gitee_binds
SET user_id=?, gitee_user_id=?, gitee_username=?, gitee_avatar=?, bind_time=?, updated_at=?
WHERE bind_id=?
`, b.UserID, strings.TrimSpace(b.GiteeUserID), b.GiteeUsername, b.GiteeAvatar, bindTime, s.timestamp(), b.ID)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("更新 Gitee 绑定失败: %w", ErrDuplicateKey)
		}
		return fmt.Errorf("更新 Gitee 绑定失败: %w", err)
	}
	return nil
}

func (s *Store) DeleteGiteeBindByUserID(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM gitee_binds WHERE user_id=?`, userID); err != nil {
		return fmt.Errorf("删除 Gitee 绑定失败: %w", err)
	}
	return nil
}

func (s *Store) CountGiteeBinds(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM gitee_binds`).Scan(&n); err != nil {
		return 0, fmt.Errorf("统计 Gitee 绑定失败: %w", err)
	}
	return n, nil
}

// CountGiteeBindsCreatedBetween 统计 [start, end) 内新建的绑定。
func (s *Store) CountGiteeBindsCreatedBetween(ctx context.Context, start time.Time, end time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(1) FROM gitee_binds WHERE created_at >= ? AND created_at < ?
`, dbTime(start), dbTime(end)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("统计新增 Gitee 绑定失败: %w", err)
	}
	return n, nil
}
