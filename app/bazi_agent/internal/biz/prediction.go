package biz

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/engine"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/model"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/validator"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/yuanfenju"
)

var (
	// ErrReportNotFound 报告不存在或未开启持久化
	ErrReportNotFound = errors.NotFound("REPORT_NOT_FOUND", "report not found")
)

// Engine 报告生成引擎
type Engine interface {
	Produce(ctx context.Context, u model.UserInfo, rt model.ReportType) (*model.PredictionReport, error)
	AgentStatus() engine.Status
	Diagnose(ctx context.Context, u model.UserInfo) ([]engine.Diagnosis, error)
}

// CacheInspector 查看运势数据缓存
type CacheInspector interface {
	Keys(ctx context.Context) []string
}

// Pinger 数据接口连通性
type Pinger interface {
	Ping(ctx context.Context) (bool, error)
}

// ReportRepo 报告持久化
type ReportRepo interface {
	SaveReport(ctx context.Context, r *model.PredictionReport) (string, error)
	GetReport(ctx context.Context, id string) (*model.PredictionReport, error)
}

// CacheInfo 缓存概况
type CacheInfo struct {
	Entries int      `json:"entries"`
	Keys    []string `json:"keys"`
}

type PredictionUseCase struct {
	engine Engine
	cache  CacheInspector
	pinger Pinger
	repo   ReportRepo // 可为 nil，表示不持久化
	now    func() time.Time
	log    *log.Helper
}

func NewPredictionUseCase(e Engine, cache CacheInspector, pinger Pinger, repo ReportRepo, logger log.Logger) *PredictionUseCase {
	return &PredictionUseCase{
		engine: e,
		cache:  cache,
		pinger: pinger,
		repo:   repo,
		now:    time.Now,
		log:    log.NewHelper(logger),
	}
}

// Predict 校验输入、生成报告，开启持久化时保存并返回报告 ID
func (uc *PredictionUseCase) Predict(ctx context.Context, u model.UserInfo, reportType string) (string, *model.PredictionReport, error) {
	rt, err := model.ParseReportType(reportType)
	if err != nil {
		return "", nil, errors.BadRequest("INVALID_REPORT_TYPE", err.Error())
	}
	if msgs := validator.ValidateUserInfo(u, uc.now()); len(msgs) > 0 {
		return "", nil, errors.BadRequest("INVALID_USER_INFO", strings.Join(msgs, "; "))
	}

	r, err := uc.engine.Produce(ctx, u, rt)
	if err != nil {
		return "", nil, mapProduceError(err)
	}

	if uc.repo == nil {
		return "", r, nil
	}
	id, err := uc.repo.SaveReport(ctx, r)
	if err != nil {
		// 报告已生成，保存失败不影响返回
		uc.log.WithContext(ctx).Errorf("save report failed: %v", err)
		return "", r, nil
	}
	return id, r, nil
}

func mapProduceError(err error) error {
	var fe *yuanfenju.DataFetchError
	if stderrors.As(err, &fe) {
		return errors.ServiceUnavailable("DATA_FETCH_FAILED", fe.Error()).WithCause(err)
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.GatewayTimeout("PRODUCE_TIMEOUT", err.Error()).WithCause(err)
	}
	return errors.InternalServer("PRODUCE_FAILED", err.Error()).WithCause(err)
}

// Get 读取已保存的报告
func (uc *PredictionUseCase) Get(ctx context.Context, id string) (*model.PredictionReport, error) {
	if uc.repo == nil {
		return nil, ErrReportNotFound
	}
	return uc.repo.GetReport(ctx, id)
}

func (uc *PredictionUseCase) AgentStatus() engine.Status {
	return uc.engine.AgentStatus()
}

// Diagnose 逐个运行智能体
func (uc *PredictionUseCase) Diagnose(ctx context.Context, u model.UserInfo) ([]engine.Diagnosis, error) {
	if msgs := validator.ValidateUserInfo(u, uc.now()); len(msgs) > 0 {
		return nil, errors.BadRequest("INVALID_USER_INFO", strings.Join(msgs, "; "))
	}
	ds, err := uc.engine.Diagnose(ctx, u)
	if err != nil {
		return nil, mapProduceError(err)
	}
	return ds, nil
}

func (uc *PredictionUseCase) CacheInfo(ctx context.Context) CacheInfo {
	keys := uc.cache.Keys(ctx)
	if keys == nil {
		keys = []string{}
	}
	return CacheInfo{Entries: len(keys), Keys: keys}
}

// ProviderHealth 测试缘分居接口连通性
func (uc *PredictionUseCase) ProviderHealth(ctx context.Context) (bool, error) {
	ok, err := uc.pinger.Ping(ctx)
	if err != nil {
		uc.log.WithContext(ctx).Warnf("provider ping failed: %v", err)
		return false, nil
	}
	return ok, nil
}
