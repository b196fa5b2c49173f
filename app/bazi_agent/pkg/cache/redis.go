package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/config"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/model"
)

// RedisStore 基于 Redis 的共享存储，多实例部署时共用缓存
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisClient 按配置创建 Redis 客户端
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

// NewRedisStore 创建 Redis 存储，ttl 为 0 表示不过期
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Ping 检查连接
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Get 读取条目
func (s *RedisStore) Get(ctx context.Context, key string) (model.FortuneDataset, bool, error) {
	b, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.FortuneDataset{}, false, nil
	}
	if err != nil {
		return model.FortuneDataset{}, false, fmt.Errorf("redis get failed: %w", err)
	}
	return model.NewFortuneDataset(b), true, nil
}

// Set 写入条目
func (s *RedisStore) Set(ctx context.Context, key string, ds model.FortuneDataset) error {
	if err := s.client.Set(ctx, s.prefix+key, ds.Bytes(), s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Keys 扫描前缀下的全部 key（去掉前缀）
func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan failed: %w", err)
	}
	return keys, nil
}

// Close 关闭连接
func (s *RedisStore) Close() error {
	return s.client.Close()
}
