package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/bazi_agent/app/bazi_agent/internal/conf"
)

func TestRun_MissingConfig(t *testing.T) {
	old := flagconf
	t.Cleanup(func() { flagconf = old })
	flagconf = filepath.Join(t.TempDir(), "absent.yaml")

	err := run(log.DefaultLogger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRun_InvalidAgentConfig(t *testing.T) {
	t.Setenv("YUANFENJU_API_KEY", "")
	t.Setenv("DEEPSEEK_API_KEY", "")
	t.Setenv("LLM_API_KEY", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http:\n    addr: 127.0.0.1:0\nagent:\n  llm:\n    api_key: \"\"\n"), 0o644))

	oldConf, oldEnv := flagconf, flagenv
	t.Cleanup(func() { flagconf, flagenv = oldConf, oldEnv })
	flagconf, flagenv = path, filepath.Join(dir, "absent.env")

	assert.Error(t, run(log.DefaultLogger))
}

func TestInitApp(t *testing.T) {
	t.Setenv("YUANFENJU_API_KEY", "")
	t.Setenv("DEEPSEEK_API_KEY", "")
	t.Setenv("LLM_API_KEY", "")

	app, cleanup, err := initApp(
		&conf.Server{Http: &conf.HTTP{Addr: "127.0.0.1:0", Timeout: "10s"}},
		&conf.Agent{
			Llm:       &conf.LLM{ApiKey: "sk-test"},
			Yuanfenju: &conf.Yuanfenju{ApiKey: "yfj"},
			Log:       &conf.Log{Level: "error", File: filepath.Join(t.TempDir(), "server.log")},
		},
		log.DefaultLogger,
	)
	require.NoError(t, err)
	require.NotNil(t, app)
	assert.Equal(t, Name, app.Name())
	cleanup()
}
