package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/config"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/engine"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/logger"
	dm "github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/model"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/observe"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/report"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/storage"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/validator"
)

type options struct {
	configPath string
	reportType string
	jsonOut    string
	htmlOut    string
	diagnose   bool
	status     bool
	ping       bool
	user       dm.UserInfo
	gender     string
}

func parseFlags() *options {
	o := &options{}
	flag.StringVar(&o.configPath, "config", "app/bazi_agent/configs/config.yaml", "配置文件路径")
	flag.StringVar(&o.reportType, "type", "comprehensive", "报告类型: comprehensive|career|relationship")
	flag.StringVar(&o.jsonOut, "out", "", "JSON 报告输出路径，默认输出到标准输出")
	flag.StringVar(&o.htmlOut, "html", "", "HTML 报告输出路径")
	flag.BoolVar(&o.diagnose, "diagnose", false, "逐个运行智能体并输出诊断结果")
	flag.BoolVar(&o.status, "status", false, "输出智能体状态")
	flag.BoolVar(&o.ping, "ping", false, "测试缘分居接口连通性")

	flag.StringVar(&o.user.Name, "name", "", "姓名")
	flag.StringVar(&o.gender, "gender", "男", "性别: 男|女")
	flag.IntVar(&o.user.BirthYear, "year", 0, "出生年")
	flag.IntVar(&o.user.BirthMonth, "month", 0, "出生月")
	flag.IntVar(&o.user.BirthDay, "day", 0, "出生日")
	flag.IntVar(&o.user.BirthHour, "hour", 0, "出生时 (0-23)")
	flag.IntVar(&o.user.BirthMinute, "minute", 0, "出生分 (0-59)")
	flag.StringVar(&o.user.BirthProvince, "province", "", "出生省份")
	flag.StringVar(&o.user.BirthCity, "city", "", "出生城市")
	flag.StringVar(&o.user.Question, "question", "", "咨询问题")
	flag.Parse()

	o.user.Gender = dm.Gender(o.gender)
	return o
}

func main() {
	o := parseFlags()
	_ = godotenv.Load()

	// 1. 加载配置
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		log.Fatalf("无法加载配置文件: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("配置错误: %v", err)
	}

	// 2. 初始化日志
	if err = logger.InitLogger(cfg.Log.Level, cfg.Log.File); err != nil {
		log.Fatalf("无法初始化日志: %v", err)
	}
	logger.Log.Info("启动玄学AI智能体...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. 初始化引擎
	comps, cleanup, err := engine.NewEngine(ctx, cfg, observe.NewLogRecorder(logger.Log))
	if err != nil {
		logger.Log.Fatalf("引擎初始化失败: %v", err)
	}
	defer cleanup()
	eng := comps.Engine

	switch {
	case o.status:
		writeJSON(eng.AgentStatus(), o.jsonOut)
		return
	case o.ping:
		ok, err := comps.Client.Ping(ctx)
		if err != nil {
			logger.Log.Errorf("缘分居接口连接失败: %v", err)
		}
		fmt.Printf("缘分居接口连通: %v\n", ok)
		return
	}

	// 4. 校验用户输入
	if msgs := validator.ValidateUserInfo(o.user, time.Now()); len(msgs) > 0 {
		logger.Log.Fatalf("用户信息校验失败: %s", strings.Join(msgs, "; "))
	}

	if o.diagnose {
		results, err := eng.Diagnose(ctx, o.user)
		if err != nil {
			logger.Log.Fatalf("诊断失败: %v", err)
		}
		writeJSON(results, o.jsonOut)
		return
	}

	rt, err := dm.ParseReportType(o.reportType)
	if err != nil {
		logger.Log.Fatalf("报告类型错误: %v", err)
	}

	// 5. 生成报告
	r, err := eng.Produce(ctx, o.user, rt)
	if err != nil {
		logger.Log.Fatalf("报告生成失败: %v", err)
	}

	// 6. 保存到数据库
	if cfg.DB.Host != "" {
		store, err := storage.NewStorage(cfg.DB)
		if err != nil {
			logger.Log.Errorf("无法连接数据库: %v. 将仅输出文件。", err)
		} else {
			defer store.Close()
			if id, err := store.SaveReport(ctx, r); err != nil {
				logger.Log.Errorf("保存报告失败: %v", err)
			} else {
				logger.Log.Infof("报告已保存到数据库: %s", id)
			}
		}
	}

	// 7. 输出
	writeJSON(r, o.jsonOut)
	if o.htmlOut != "" {
		if err := writeHTML(r, o.htmlOut); err != nil {
			logger.Log.Fatalf("生成 HTML 失败: %v", err)
		}
		logger.Log.Infof("✅ HTML 报告已生成: %s", o.htmlOut)
	}
	logger.Log.Infof("报告生成完毕，共 %d 个分析部分，%d 字", r.Summary.SectionsCount, r.Summary.TotalContentLength)
}

func writeJSON(v any, path string) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Log.Fatalf("序列化失败: %v", err)
	}
	if path == "" {
		fmt.Println(string(b))
		return
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		logger.Log.Fatalf("写入 %s 失败: %v", path, err)
	}
}

func writeHTML(r *dm.PredictionReport, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return report.RenderHTML(f, r)
}
