package health

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
)

// DepsChecker probes the Postgres pool and Redis client backing the service.
type DepsChecker struct {
	DB    *pgxpool.Pool
	Redis *redis.Client
}

// PingDB probes the database within the given timeout.
func (c DepsChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.DB.Ping(ctx)
}

// PingRedis probes Redis within the given timeout.
func (c DepsChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Redis.Ping(ctx).Err()
}
