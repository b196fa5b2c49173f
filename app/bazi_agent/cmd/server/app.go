package main

import (
	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/iWorld-y/bazi_agent/app/bazi_agent/internal/biz"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/internal/conf"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/internal/data"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/internal/server"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/internal/service"
)

// initApp 组装 kratos 应用
func initApp(cs *conf.Server, ca *conf.Agent, logger log.Logger) (*kratos.App, func(), error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	comps, cleanupEngine, err := server.NewBaziEngine(ca, reg, logger)
	if err != nil {
		return nil, nil, err
	}

	repo, cleanupRepo, err := data.NewReportRepo(server.ToConfig(ca).DB, logger)
	if err != nil {
		cleanupEngine()
		return nil, nil, err
	}

	uc := biz.NewPredictionUseCase(comps.Engine, comps.Engine.Cache(), comps.Client, repo, logger)
	svc := service.NewBaziService(uc, logger)
	hs := server.NewHTTPServer(cs, svc, reg, logger)

	app := newApp(logger, hs)
	return app, func() {
		cleanupRepo()
		cleanupEngine()
	}, nil
}

func newApp(logger log.Logger, hs *http.Server) *kratos.App {
	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(hs),
	)
}
