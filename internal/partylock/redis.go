package partylock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/billbook/internal/config"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker is a SET NX lock shared by every instance using the same redis.
type RedisLocker struct {
	client *redis.Client
	script *redis.Script
	engine *config.EngineConfigHolder
	prefix string
}

func NewRedisLocker(client *redis.Client, engine *config.EngineConfigHolder) *RedisLocker {
	if client == nil {
		return nil
	}
	return &RedisLocker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
		engine: engine,
		prefix: "billbook:party-lock:",
	}
}

// TryLock makes a single acquisition attempt.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil || key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{l.prefix + key}, token).Err()
}

// Lock polls until the lock is acquired, the wait budget is spent or ctx ends.
func (l *RedisLocker) Lock(ctx context.Context, key string) (Release, error) {
	cfg := l.engine.Get().Ledger
	deadline := time.Now().Add(cfg.LockWait)

	ticker := time.NewTicker(cfg.LockPollInterval)
	defer ticker.Stop()

	for {
		token, ok, err := l.TryLock(ctx, key, cfg.LockTTL)
		if err != nil {
			return nil, err
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
					defer cancel()
					_ = l.Unlock(releaseCtx, key, token)
				})
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
