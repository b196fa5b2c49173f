package server

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/iWorld-y/bazi_agent/app/bazi_agent/internal/conf"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/config"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/engine"
	baziLogger "github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/logger"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/observe"
)

// ToConfig 将 internal/conf.Agent 转换为 pkg/config.Config，并应用环境变量与默认值
func ToConfig(c *conf.Agent) *config.Config {
	cfg := &config.Config{}
	if c == nil {
		cfg.ApplyEnv()
		cfg.ApplyDefaults()
		return cfg
	}

	if l := c.Llm; l != nil {
		cfg.LLM = config.LLMConfig{
			BaseURL:     l.BaseUrl,
			APIKey:      l.ApiKey,
			Model:       l.Model,
			Temperature: l.Temperature,
			MaxTokens:   int(l.MaxTokens),
			TopP:        l.TopP,
			Timeout:     duration(l.Timeout),
		}
	}
	if y := c.Yuanfenju; y != nil {
		cfg.Yuanfenju = config.YuanfenjuConfig{
			BaseURL:    y.BaseUrl,
			APIKey:     y.ApiKey,
			Timeout:    duration(y.Timeout),
			MaxRetries: int(y.MaxRetries),
			RetryDelay: duration(y.RetryDelay),
		}
	}
	if a := c.Agents; a != nil {
		cfg.Agents = config.AgentsConfig{Enabled: a.Enabled, PromptDir: a.PromptDir}
	}
	if ca := c.Cache; ca != nil {
		cfg.Cache = config.CacheConfig{Backend: ca.Backend, TTL: duration(ca.Ttl)}
		if r := ca.Redis; r != nil {
			cfg.Cache.Redis = config.RedisConfig{
				Addr:     r.Addr,
				Password: r.Password,
				DB:       int(r.Db),
				Prefix:   r.Prefix,
			}
		}
	}
	if lg := c.Log; lg != nil {
		cfg.Log = config.LogConfig{Level: lg.Level, File: lg.File}
	}
	if cc := c.Concurrency; cc != nil {
		cfg.Concurrency = config.ConcurrencyConfig{QPS: int(cc.Qps), RPM: int(cc.Rpm)}
	}
	if d := c.Db; d != nil {
		cfg.DB = config.DBConfig{
			Host:     d.Host,
			Port:     int(d.Port),
			User:     d.User,
			Password: d.Password,
			Name:     d.Name,
		}
	}

	cfg.ApplyEnv()
	cfg.ApplyDefaults()
	return cfg
}

func duration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// NewBaziEngine 初始化命理引擎及其依赖
func NewBaziEngine(c *conf.Agent, reg prometheus.Registerer, logger log.Logger) (*engine.Components, func(), error) {
	helper := log.NewHelper(logger)
	cfg := ToConfig(c)
	if err := cfg.Validate(); err != nil {
		helper.Errorf("Invalid agent config: %v", err)
		return nil, nil, err
	}

	// 初始化日志
	if err := baziLogger.InitLogger(cfg.Log.Level, cfg.Log.File); err != nil {
		helper.Errorf("Failed to init bazi logger: %v", err)
		_ = baziLogger.InitLogger("info", "") // 降级处理
	}

	rec := observe.Multi(
		observe.NewLogRecorder(baziLogger.Log),
		observe.NewMetricsRecorder(reg),
	)

	comps, cleanup, err := engine.NewEngine(context.Background(), cfg, rec)
	if err != nil {
		helper.Errorf("Failed to init engine: %v", err)
		return nil, nil, err
	}

	return comps, func() {
		helper.Info("Cleaning up bazi engine")
		cleanup()
	}, nil
}
