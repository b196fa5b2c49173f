package service

import (
	"bytes"
	"context"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"

	"github.com/iWorld-y/bazi_agent/app/bazi_agent/internal/biz"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/model"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/report"
)

// PredictRequest 报告生成请求
type PredictRequest struct {
	model.UserInfo
	ReportType string `json:"report_type"`
}

// PredictReply 报告生成结果，未开启持久化时 id 为空
type PredictReply struct {
	ID     string                  `json:"id,omitempty"`
	Report *model.PredictionReport `json:"report"`
}

// ProviderHealthReply 数据接口连通性
type ProviderHealthReply struct {
	Connected bool `json:"connected"`
}

type BaziService struct {
	uc  *biz.PredictionUseCase
	log *log.Helper
}

func NewBaziService(uc *biz.PredictionUseCase, logger log.Logger) *BaziService {
	return &BaziService{
		uc:  uc,
		log: log.NewHelper(logger),
	}
}

// RegisterHTTP 注册路由
func (s *BaziService) RegisterHTTP(srv *http.Server) {
	r := srv.Route("/v1")
	r.POST("/predictions", s.predict)
	r.POST("/diagnose", s.diagnose)
	r.GET("/agents", s.agents)
	r.GET("/cache", s.cache)
	r.GET("/reports/{id}", s.getReport)
	r.GET("/health/provider", s.providerHealth)
}

func (s *BaziService) Predict(ctx context.Context, req *PredictRequest) (*PredictReply, error) {
	id, r, err := s.uc.Predict(ctx, req.UserInfo, req.ReportType)
	if err != nil {
		return nil, err
	}
	return &PredictReply{ID: id, Report: r}, nil
}

func (s *BaziService) predict(ctx http.Context) error {
	var in PredictRequest
	if err := ctx.Bind(&in); err != nil {
		return errors.BadRequest("INVALID_BODY", err.Error())
	}
	h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
		return s.Predict(ctx, req.(*PredictRequest))
	})
	out, err := h(ctx, &in)
	if err != nil {
		return err
	}
	return ctx.Result(200, out)
}

func (s *BaziService) diagnose(ctx http.Context) error {
	var in model.UserInfo
	if err := ctx.Bind(&in); err != nil {
		return errors.BadRequest("INVALID_BODY", err.Error())
	}
	h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
		return s.uc.Diagnose(ctx, *req.(*model.UserInfo))
	})
	out, err := h(ctx, &in)
	if err != nil {
		return err
	}
	return ctx.Result(200, out)
}

func (s *BaziService) agents(ctx http.Context) error {
	return ctx.Result(200, s.uc.AgentStatus())
}

func (s *BaziService) cache(ctx http.Context) error {
	return ctx.Result(200, s.uc.CacheInfo(ctx))
}

// getReport 读取报告，?format=html 时返回渲染后的页面
func (s *BaziService) getReport(ctx http.Context) error {
	r, err := s.uc.Get(ctx, ctx.Vars().Get("id"))
	if err != nil {
		return err
	}
	if ctx.Query().Get("format") != "html" {
		return ctx.Result(200, r)
	}
	var buf bytes.Buffer
	if err := report.RenderHTML(&buf, r); err != nil {
		s.log.WithContext(ctx).Errorf("render report: %v", err)
		return errors.InternalServer("RENDER_FAILED", err.Error())
	}
	return ctx.Blob(200, "text/html; charset=utf-8", buf.Bytes())
}

func (s *BaziService) providerHealth(ctx http.Context) error {
	ok, err := s.uc.ProviderHealth(ctx)
	if err != nil {
		return err
	}
	return ctx.Result(200, &ProviderHealthReply{Connected: ok})
}
