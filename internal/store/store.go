// Package store 提供数据库读写的封装与基础约束，保证业务层只处理领域语义而不是 SQL 细节。
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	UserRoleRoot = "root"
	UserRoleUser = "user"
)

type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{
		db:      db,
		dialect: DialectMySQL,
		now:     time.Now,
	}
}

func (s *Store) SetDialect(d Dialect) {
	if strings.TrimSpace(string(d)) == "" {
		return
	}
	s.dialect = d
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

// timestamp 统一以 UTC 秒精度写入，保证 SQLite 文本时间的字典序与时间序一致。
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

const userColumns = `id, username, nickname, email, password_hash, role, status, deleted, remark, login_ip, login_at, created_at, updated_at`

func scanUser(row interface{ Scan(dest ...any) error }) (User, error) {
	var u User
	var deleted int
	var loginAt sql.NullTime
	if err := row.Scan(&u.ID, &u.Username, &u.Nickname, &u.Email, &u.PasswordHash, &u.Role, &u.Status, &deleted, &u.Remark, &u.LoginIP, &loginAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return User{}, err
	}
	u.Deleted = deleted != 0
	if loginAt.Valid {
		t := loginAt.Time
		u.LoginAt = &t
	}
	return u, nil
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("统计用户失败: %w", err)
	}
	return n, nil
}

func (s *Store) CreateUser(ctx context.Context, in NewUser) (int64, error) {
	username, err := NormalizeUsername(in.Username)
	if err != nil {
		return 0, err
	}
	role := strings.TrimSpace(in.Role)
	if role == "" {
		role = UserRoleUser
	}
	now := s.timestamp()
	res, err := s.db.ExecContext(ctx, `
INSERT INTO users(username, nickname, email, password_hash, role, status, deleted, remark, login_ip, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, 1, 0, ?, '', ?, ?)
`, username, in.Nickname, strings.TrimSpace(in.Email), in.PasswordHash, role, in.Remark, now, now)
	if err != nil {
		if isDuplicateKeyError(err) {
			return 0, fmt.Errorf("创建用户失败: %w", ErrDuplicateKey)
		}
		return 0, fmt.Errorf("创建用户失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("获取用户 id 失败: %w", err)
	}
	return id, nil
}

func (s *Store) GetUserByID(ctx context.Context, userID int64) (User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, sql.ErrNoRows
		}
		return User{}, fmt.Errorf("查询用户失败: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=?`, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, sql.ErrNoRows
		}
		return User{}, fmt.Errorf("查询用户失败: %w", err)
	}
	return u, nil
}

func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE username=? LIMIT 1`, username).Scan(&n)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("查询账号名失败: %w", err)
	}
	return true, nil
}

func (s *Store) UpdateUserLoginInfo(ctx context.Context, userID int64, ip string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE users
SET login_ip=?, login_at=?
WHERE id=?
`, ip, dbTime(at), userID)
	if err != nil {
		return fmt.Errorf("更新登录信息失败: %w", err)
	}
	return nil
}

func (s *Store) UpdateUserStatus(ctx context.Context, userID int64, status int) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE users
SET status=?, updated_at=?
WHERE id=?
`, status, s.timestamp(), userID)
	if err != nil {
		return fmt.Errorf("更新用户状态失败: %w", err)
	}
	return nil
}

func (s *Store) SoftDeleteUser(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE users
SET deleted=1, updated_at=?
WHERE id=?
`, s.timestamp(), userID)
	if err != nil {
		return fmt.Errorf("删除用户失败: %w", err)
	}
	return nil
}
