package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when the lock stays taken for the whole wait window.
var ErrLockHeld = errors.New("platform/cache: lock held")

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// LockerConfig tunes lock behaviour.
type LockerConfig struct {
	TTL      time.Duration
	Wait     time.Duration
	Retry    time.Duration
	FailOpen bool
	Logger   *slog.Logger
}

// Locker is a single-instance Redis mutex (SET NX PX plus token release).
type Locker struct {
	client *redis.Client
	cfg    LockerConfig
}

// NewLocker builds a Locker with sane defaults for zero values.
func NewLocker(client *redis.Client, cfg LockerConfig) *Locker {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.Retry <= 0 {
		cfg.Retry = 50 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Locker{client: client, cfg: cfg}
}

// Lock acquires key, waiting up to the configured window. With FailOpen set,
// Redis errors are logged and a no-op unlock is returned so callers fall back
// to database row locks.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.cfg.Wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.cfg.TTL).Result()
		if err != nil {
			if l.cfg.FailOpen && ctx.Err() == nil {
				l.cfg.Logger.Warn("redis lock unavailable, continuing without it", slog.String("key", key), slog.Any("error", err))
				return func() {}, nil
			}
			return nil, err
		}
		if ok {
			return func() { l.release(key, token) }, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrLockHeld
		}
		timer := time.NewTimer(l.cfg.Retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *Locker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		l.cfg.Logger.Warn("redis lock release", slog.String("key", key), slog.Any("error", err))
	}
}
