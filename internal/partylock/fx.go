package partylock

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/billbook/internal/config"
	obsmetrics "github.com/smallbiznis/billbook/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("partylock",
	fx.Provide(NewRedisClient),
	fx.Provide(NewLocker),
)

// NewRedisClient returns nil when no redis address is configured.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	if !cfg.DistributedLocking() {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.RedisAddr),
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Engine  *config.EngineConfigHolder
	Redis   *redis.Client             `optional:"true"`
	Metrics *obsmetrics.LedgerMetrics `optional:"true"`
}

// NewLocker always serializes in-process and adds the redis lock when available.
func NewLocker(p Params) Locker {
	local := Instrument(NewKeyedMutex(), obsmetrics.LockBackendLocal, p.Metrics)
	if p.Redis == nil {
		p.Log.Info("party lock uses in-process mutex only")
		return local
	}
	p.Log.Info("party lock uses in-process mutex and redis")
	return Chain(local, Instrument(NewRedisLocker(p.Redis, p.Engine), obsmetrics.LockBackendRedis, p.Metrics))
}
