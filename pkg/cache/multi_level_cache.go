package cache

import (
	"context"
	"errors"
	"time"
)

// MultiLevelCache 本地缓存 + 远程缓存
// 本地层只保存 localTTL，多实例之间最多看到 localTTL 的旧值
type MultiLevelCache struct {
	local    CacheService
	remote   CacheService
	localTTL time.Duration
}

// NewMultiLevelCache localTTL <= 0 时本地层与远程层过期时间一致
func NewMultiLevelCache(local, remote CacheService, localTTL time.Duration) *MultiLevelCache {
	return &MultiLevelCache{
		local:    local,
		remote:   remote,
		localTTL: localTTL,
	}
}

func (c *MultiLevelCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := c.local.Get(ctx, key, dest); err == nil {
		return nil
	}

	if err := c.remote.Get(ctx, key, dest); err != nil {
		return err
	}
	// 回填本地层，失败不影响本次读取
	_ = c.local.Set(ctx, key, dest, c.localExpiration(c.localTTL))
	return nil
}

func (c *MultiLevelCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := c.remote.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	return c.local.Set(ctx, key, value, c.localExpiration(expiration))
}

func (c *MultiLevelCache) Delete(ctx context.Context, key string) error {
	return errors.Join(c.local.Delete(ctx, key), c.remote.Delete(ctx, key))
}

func (c *MultiLevelCache) localExpiration(expiration time.Duration) time.Duration {
	if c.localTTL > 0 && (expiration <= 0 || expiration > c.localTTL) {
		return c.localTTL
	}
	return expiration
}
