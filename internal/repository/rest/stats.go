package rest

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sakif/marathon-client/internal/model"
	"github.com/sakif/marathon-client/internal/repository"
)

const statsPath = "/api/stats/dashboard-stats"

// StatsRepository reads the dashboard summary. Any failure other than a
// cancelled context yields zero-valued stats.
type StatsRepository struct {
	api    Caller
	logger *slog.Logger
}

var _ repository.StatsRepository = (*StatsRepository)(nil)

func NewStatsRepository(api Caller, logger *slog.Logger) *StatsRepository {
	return &StatsRepository{api: api, logger: logger}
}

func (r *StatsRepository) Dashboard(ctx context.Context) (model.DashboardStats, error) {
	var stats model.DashboardStats
	err := r.api.Do(ctx, statsPath, readOptions(), &stats)
	if err == nil {
		return stats, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return model.DashboardStats{}, err
	}
	r.logger.Warn("dashboard stats unavailable, using zero values", slog.String("error", err.Error()))
	return model.DashboardStats{}, nil
}
