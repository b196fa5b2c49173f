package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"YUANFENJU_API_KEY", "YUANFENJU_API_URL", "DEEPSEEK_API_KEY", "LLM_API_KEY"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
llm:
  api_key: sk-test
  model: deepseek-reasoner
  temperature: 0.3
yuanfenju:
  api_key: yfj-key
  max_retries: 2
  retry_delay: 2s
agents:
  enabled: [foundation, consultation]
cache:
  backend: redis
  ttl: 24h
  redis:
    addr: 127.0.0.1:6379
concurrency:
  rpm: 120
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "deepseek-reasoner", cfg.LLM.Model)
	assert.InDelta(t, 0.3, cfg.LLM.Temperature, 1e-6)
	assert.Equal(t, 2000, cfg.LLM.MaxTokens)
	assert.Equal(t, 2, cfg.Yuanfenju.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Yuanfenju.RetryDelay)
	assert.Equal(t, 30*time.Second, cfg.Yuanfenju.Timeout)
	assert.Equal(t, []string{"foundation", "consultation"}, cfg.Agents.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 120, cfg.Concurrency.RPM)
	assert.Equal(t, 6, cfg.Concurrency.QPS)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "https://api.yuanfenju.com", cfg.Yuanfenju.BaseURL)
	assert.Equal(t, 3, cfg.Yuanfenju.MaxRetries)
	assert.Equal(t, time.Second, cfg.Yuanfenju.RetryDelay)
	assert.Equal(t, "https://api.deepseek.com", cfg.LLM.BaseURL)
	assert.Equal(t, "deepseek-chat", cfg.LLM.Model)
	assert.InDelta(t, 0.9, cfg.LLM.TopP, 1e-6)
	assert.Equal(t, 600, cfg.Concurrency.RPM)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Zero(t, cfg.Cache.TTL)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "缺少必要的配置项")
	assert.Contains(t, err.Error(), "llm.api_key")
	assert.Contains(t, err.Error(), "yuanfenju.api_key")
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("YUANFENJU_API_KEY", "from-env")
	t.Setenv("DEEPSEEK_API_KEY", "ds-env")

	cfg, err := LoadConfig(writeConfig(t, "yuanfenju:\n  api_key: from-file\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Yuanfenju.APIKey)
	assert.Equal(t, "ds-env", cfg.LLM.APIKey)
	assert.NoError(t, cfg.Validate())
}

func TestApplyDefaults_NegativeRetries(t *testing.T) {
	cfg := &Config{Yuanfenju: YuanfenjuConfig{MaxRetries: -1}}
	cfg.ApplyDefaults()
	assert.Equal(t, 0, cfg.Yuanfenju.MaxRetries)
}

func TestValidate_CacheBackend(t *testing.T) {
	cfg := &Config{LLM: LLMConfig{APIKey: "a"}, Yuanfenju: YuanfenjuConfig{APIKey: "b"}}
	cfg.Cache.Backend = "redis"
	assert.Error(t, cfg.Validate())
	cfg.Cache.Backend = "memcached"
	assert.Error(t, cfg.Validate())
	cfg.Cache.Backend = "memory"
	assert.NoError(t, cfg.Validate())
}

func TestDSN(t *testing.T) {
	c := DBConfig{Host: "localhost", Port: 5432, User: "bazi", Password: "pw", Name: "bazi"}
	assert.Equal(t, "host=localhost port=5432 user=bazi password=pw dbname=bazi sslmode=disable", c.DSN())
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
