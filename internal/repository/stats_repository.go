package repository

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const totalQueriesKey = "stats:total_queries"

// StatsRepository 定义了运行统计计数器的操作接口。
type StatsRepository interface {
	IncrementQueryCount(ctx context.Context) error
	GetQueryCount(ctx context.Context) (int64, error)
}

type redisStatsRepository struct {
	redisClient *redis.Client
}

// NewStatsRepository 创建一个新的 StatsRepository 实例。
func NewStatsRepository(redisClient *redis.Client) StatsRepository {
	return &redisStatsRepository{redisClient: redisClient}
}

// IncrementQueryCount 把查询总数加一。
func (r *redisStatsRepository) IncrementQueryCount(ctx context.Context) error {
	if err := r.redisClient.Incr(ctx, totalQueriesKey).Err(); err != nil {
		return fmt.Errorf("failed to increment query count: %w", err)
	}
	return nil
}

// GetQueryCount 返回累计的查询总数。
func (r *redisStatsRepository) GetQueryCount(ctx context.Context) (int64, error) {
	count, err := r.redisClient.Get(ctx, totalQueriesKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get query count: %w", err)
	}
	return count, nil
}
