package service

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/ownership-console/internal/infra"
)

// RedisInvalidator реализует workflow.Invalidator: сброс кэша заявки после
// перехода плюс широковещательный сигнал для остальных инстансов консоли.
// Все операции fire-and-forget — корректность на кэше не держится.
type RedisInvalidator struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisInvalidator(rdb *redis.Client, logger *zap.Logger) *RedisInvalidator {
	return &RedisInvalidator{
		rdb:    rdb,
		logger: logger.Named("cache-invalidator"),
	}
}

func (i *RedisInvalidator) Evict(ctx context.Context, requestID string) {
	if err := i.rdb.Del(ctx, infra.GetTransferKey(requestID)).Err(); err != nil {
		i.logger.Debug("cache eviction failed", zap.String("request_id", requestID), zap.Error(err))
	}
	if err := i.rdb.Publish(ctx, infra.RedisChanTransferResolved, requestID).Err(); err != nil {
		i.logger.Debug("resolve signal failed", zap.String("request_id", requestID), zap.Error(err))
	}
}
