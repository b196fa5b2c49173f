package data

import (
	"context"
	"testing"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/config"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/model"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/storage"
)

type fakeStore struct {
	reports map[string]*model.PredictionReport
}

func (f *fakeStore) SaveReport(ctx context.Context, r *model.PredictionReport) (string, error) {
	f.reports["r1"] = r
	return "r1", nil
}

func (f *fakeStore) GetReport(ctx context.Context, id string) (*model.PredictionReport, error) {
	r, ok := f.reports[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return r, nil
}

func TestReportRepo(t *testing.T) {
	repo := NewReportRepoWithStore(&fakeStore{reports: map[string]*model.PredictionReport{}}, log.DefaultLogger)
	ctx := context.Background()

	id, err := repo.SaveReport(ctx, &model.PredictionReport{Info: model.ReportInfo{Title: "t"}})
	require.NoError(t, err)

	r, err := repo.GetReport(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "t", r.Info.Title)

	_, err = repo.GetReport(ctx, "nope")
	assert.True(t, errors.IsNotFound(err))
}

func TestNewReportRepo_NoDatabase(t *testing.T) {
	repo, cleanup, err := NewReportRepo(config.DBConfig{}, log.DefaultLogger)
	require.NoError(t, err)
	assert.Nil(t, repo)
	cleanup()
}
