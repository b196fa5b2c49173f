package cache

import (
	"context"
	"fmt"

	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/config"
)

// NewStore 根据配置创建存储后端，返回清理函数
func NewStore(ctx context.Context, cfg config.CacheConfig) (Store, func(), error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(cfg.TTL), func() {}, nil
	case "redis":
		s := NewRedisStore(NewRedisClient(cfg.Redis), cfg.Redis.Prefix, cfg.TTL)
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}
