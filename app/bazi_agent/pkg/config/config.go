package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 项目配置结构体
type Config struct {
	LLM         LLMConfig         `yaml:"llm"`
	Yuanfenju   YuanfenjuConfig   `yaml:"yuanfenju"`
	Agents      AgentsConfig      `yaml:"agents"`
	Cache       CacheConfig       `yaml:"cache"`
	Log         LogConfig         `yaml:"log"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	DB          DBConfig          `yaml:"db"`
}

// LLMConfig LLM 相关配置
type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	TopP        float32       `yaml:"top_p"`
	Timeout     time.Duration `yaml:"timeout"`
}

// YuanfenjuConfig 缘分居数据接口配置
type YuanfenjuConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// AgentsConfig 智能体配置
type AgentsConfig struct {
	// Enabled 启用的智能体 ID，为空时启用全部
	Enabled []string `yaml:"enabled"`
	// PromptDir 提示词目录，目录中的同名文件覆盖内置模板
	PromptDir string `yaml:"prompt_dir"`
}

// CacheConfig 运势数据缓存配置
type CacheConfig struct {
	Backend string        `yaml:"backend"` // memory 或 redis
	TTL     time.Duration `yaml:"ttl"`     // 0 表示进程生命周期内有效
	Redis   RedisConfig   `yaml:"redis"`
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// DBConfig 数据库相关配置
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// DSN PostgreSQL 连接串
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Name)
}

// LogConfig 日志相关配置
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ConcurrencyConfig 并发控制配置
type ConcurrencyConfig struct {
	QPS int `yaml:"qps"`
	RPM int `yaml:"rpm"`
}

// LoadConfig 从指定路径加载配置
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyEnv()
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyEnv 使用环境变量覆盖密钥
func (c *Config) ApplyEnv() {
	if v := os.Getenv("YUANFENJU_API_KEY"); v != "" {
		c.Yuanfenju.APIKey = v
	}
	if v := os.Getenv("YUANFENJU_API_URL"); v != "" {
		c.Yuanfenju.BaseURL = v
	}
	if v := os.Getenv("DEEPSEEK_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
}

// ApplyDefaults 填充默认值
func (c *Config) ApplyDefaults() {
	if c.Yuanfenju.BaseURL == "" {
		c.Yuanfenju.BaseURL = "https://api.yuanfenju.com"
	}
	if c.Yuanfenju.Timeout <= 0 {
		c.Yuanfenju.Timeout = 30 * time.Second
	}
	if c.Yuanfenju.MaxRetries < 0 {
		c.Yuanfenju.MaxRetries = 0
	} else if c.Yuanfenju.MaxRetries == 0 {
		c.Yuanfenju.MaxRetries = 3
	}
	if c.Yuanfenju.RetryDelay <= 0 {
		c.Yuanfenju.RetryDelay = time.Second
	}

	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.deepseek.com"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "deepseek-chat"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.7
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 2000
	}
	if c.LLM.TopP == 0 {
		c.LLM.TopP = 0.9
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 120 * time.Second
	}

	if c.Concurrency.RPM <= 0 {
		c.Concurrency.RPM = 600
	}
	if c.Concurrency.QPS <= 0 {
		c.Concurrency.QPS = 6
	}

	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "bazi:fortune:"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate 检查必要配置项
func (c *Config) Validate() error {
	var missing []string
	if c.LLM.APIKey == "" {
		missing = append(missing, "llm.api_key")
	}
	if c.Yuanfenju.APIKey == "" {
		missing = append(missing, "yuanfenju.api_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("缺少必要的配置项: %s", strings.Join(missing, ", "))
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required for redis backend")
		}
	default:
		return fmt.Errorf("unknown cache backend: %s", c.Cache.Backend)
	}
	return nil
}
