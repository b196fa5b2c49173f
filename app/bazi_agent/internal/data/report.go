package data

import (
	"context"
	"errors"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/bazi_agent/app/bazi_agent/internal/biz"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/config"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/model"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/storage"
)

// Store 报告存储
type Store interface {
	SaveReport(ctx context.Context, r *model.PredictionReport) (string, error)
	GetReport(ctx context.Context, id string) (*model.PredictionReport, error)
}

type reportRepo struct {
	store Store
	log   *log.Helper
}

// NewReportRepo 未配置数据库时返回 nil，报告不持久化
func NewReportRepo(cfg config.DBConfig, logger log.Logger) (biz.ReportRepo, func(), error) {
	helper := log.NewHelper(logger)
	if cfg.Host == "" {
		helper.Info("未配置数据库信息，报告不持久化")
		return nil, func() {}, nil
	}

	s, err := storage.NewStorage(cfg)
	if err != nil {
		helper.Errorf("无法连接数据库: %v", err)
		return nil, nil, err
	}
	helper.Info("已成功连接到数据库")

	cleanup := func() {
		if err := s.Close(); err != nil {
			helper.Errorf("close database: %v", err)
		}
	}
	return NewReportRepoWithStore(s, logger), cleanup, nil
}

func NewReportRepoWithStore(s Store, logger log.Logger) biz.ReportRepo {
	return &reportRepo{store: s, log: log.NewHelper(logger)}
}

func (r *reportRepo) SaveReport(ctx context.Context, rep *model.PredictionReport) (string, error) {
	id, err := r.store.SaveReport(ctx, rep)
	if err != nil {
		return "", err
	}
	r.log.WithContext(ctx).Infof("report saved: %s", id)
	return id, nil
}

func (r *reportRepo) GetReport(ctx context.Context, id string) (*model.PredictionReport, error) {
	rep, err := r.store.GetReport(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, biz.ErrReportNotFound
	}
	if err != nil {
		return nil, err
	}
	return rep, nil
}
