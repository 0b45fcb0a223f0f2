package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheGenKey = "pressehub:gen"
	// 读接口缓存 1 分钟；有新文章写入时通过递增 generation 让旧 key 自然失效
	queryCacheTTL = time.Minute
)

// cacheGeneration 读取当前缓存代数，Redis 不可用时返回 -1 表示跳过缓存
func (s *Store) cacheGeneration(ctx context.Context) int64 {
	if s.Redis == nil {
		return -1
	}
	gen, err := s.Redis.Get(ctx, cacheGenKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0
	}
	if err != nil {
		return -1
	}
	return gen
}

func (s *Store) bumpCacheGeneration(ctx context.Context) {
	if s.Redis == nil {
		return
	}
	if err := s.Redis.Incr(ctx, cacheGenKey).Err(); err != nil {
		// 不影响写入，旧缓存最多存活 queryCacheTTL
		return
	}
}

// cachedQuery 读穿缓存：命中则直接返回，否则执行 load 并回写；Redis 故障时退化为直接查库
func cachedQuery[T any](ctx context.Context, s *Store, key string, load func() (T, error)) (T, error) {
	gen := s.cacheGeneration(ctx)
	if gen < 0 {
		return load()
	}
	fullKey := fmt.Sprintf("pressehub:%d:%s", gen, key)

	if bs, err := s.Redis.Get(ctx, fullKey).Bytes(); err == nil {
		var cached T
		if err := json.Unmarshal(bs, &cached); err == nil {
			return cached, nil
		}
	}

	v, err := load()
	if err != nil {
		return v, err
	}
	if bs, err := json.Marshal(v); err == nil {
		_ = s.Redis.Set(ctx, fullKey, bs, queryCacheTTL).Err()
	}
	return v, nil
}
