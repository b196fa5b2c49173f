package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/joho/godotenv"

	"github.com/iWorld-y/bazi_agent/app/bazi_agent/internal/conf"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name 命理报告 HTTP 服务名
	Name = "bazi_agent"
	// Version 构建时注入
	Version string

	flagconf string
	flagenv  string

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "app/bazi_agent/configs/server.yaml", "config path, eg: -conf server.yaml")
	flag.StringVar(&flagenv, "env", ".env", "dotenv file holding LLM_API_KEY / YUANFENJU_API_KEY")
}

func main() {
	flag.Parse()

	logger := log.With(log.NewStdLogger(os.Stdout),
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
	)

	if err := run(logger); err != nil {
		log.NewHelper(logger).Errorf("bazi_agent server exited: %v", err)
		os.Exit(1)
	}
}

// run 加载 .env 与 kratos 配置，装配并运行服务
func run(logger log.Logger) error {
	// .env 缺失时只使用进程环境变量
	_ = godotenv.Load(flagenv)

	c := config.New(config.WithSource(file.NewSource(flagconf)))
	defer c.Close()

	if err := c.Load(); err != nil {
		return fmt.Errorf("load config %s: %w", flagconf, err)
	}
	var bc conf.Bootstrap
	if err := c.Scan(&bc); err != nil {
		return fmt.Errorf("scan config: %w", err)
	}

	app, cleanup, err := initApp(bc.Server, bc.Agent, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	return app.Run()
}
