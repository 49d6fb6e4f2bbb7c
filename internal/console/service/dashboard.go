package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/ownership-console/internal/domain"
	"github.com/xela07ax/ownership-console/internal/infra"
)

// DashboardProvider описывает, что нам нужно от хранилища для сводки
type DashboardProvider interface {
	GetTransferDashboard(ctx context.Context) (*domain.TransferDashboard, error)
}

// DashboardService отдает сводку консоли. Агрегаты — тяжелые запросы,
// поэтому результат коротко живет в Redis: сводке не нужна строгая
// свежесть, очередью согласования она не управляет.
type DashboardService struct {
	repo   DashboardProvider
	rdb    *redis.Client
	logger *zap.Logger
}

const dashboardCacheTTL = 10 * time.Second

func NewDashboardService(repo DashboardProvider, rdb *redis.Client, logger *zap.Logger) *DashboardService {
	return &DashboardService{
		repo:   repo,
		rdb:    rdb,
		logger: logger.Named("dashboard-service"),
	}
}

func (s *DashboardService) GetStats(ctx context.Context) (*domain.TransferDashboard, error) {
	if s.rdb != nil {
		if raw, err := s.rdb.Get(ctx, infra.RedisKeyDashboardStats).Bytes(); err == nil {
			var cached domain.TransferDashboard
			if jerr := json.Unmarshal(raw, &cached); jerr == nil {
				return &cached, nil
			}
			s.rdb.Del(ctx, infra.RedisKeyDashboardStats)
		}
	}

	stats, err := s.repo.GetTransferDashboard(ctx)
	if err != nil {
		return nil, err
	}

	if s.rdb != nil {
		if raw, jerr := json.Marshal(stats); jerr == nil {
			if serr := s.rdb.Set(ctx, infra.RedisKeyDashboardStats, raw, dashboardCacheTTL).Err(); serr != nil {
				s.logger.Debug("stats cache write failed", zap.Error(serr))
			}
		}
	}
	return stats, nil
}
