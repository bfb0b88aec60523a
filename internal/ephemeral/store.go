// Package ephemeral 提供带 TTL 的短期键值存储（OAuth state、待绑定信息、access token 缓存），
// 生产环境使用 Redis，单机/测试使用进程内实现。
package ephemeral

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

type Store interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	// Take 读取并删除；同一个 key 至多被一个调用方取到。
	Take(ctx context.Context, key string) ([]byte, bool, error)
}

const (
	accessTokenPrefix = "gitee:access:token:"
	authStatePrefix   = "gitee:auth:state:"
	bindTokenPrefix   = "gitee:bind:token:"
	loginTokenPrefix  = "login_tokens:"
)

func AccessTokenKey(userID int64) string {
	return accessTokenPrefix + strconv.FormatInt(userID, 10)
}

func AuthStateKey(state string) string {
	return authStatePrefix + state
}

func BindTokenKey(token string) string {
	return bindTokenPrefix + token
}

func LoginTokenKey(key string) string {
	return loginTokenPrefix + key
}

func PutJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("序列化缓存值失败: %w", err)
	}
	return s.Put(ctx, key, b, ttl)
}

func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	b, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("解析缓存值失败: %w", err)
	}
	return true, nil
}

func TakeJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	b, ok, err := s.Take(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("解析缓存值失败: %w", err)
	}
	return true, nil
}
