package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/httpx"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/logger"
)

var ErrLockTimeout = errors.New("redis lock: timed out waiting for lock")

// releaseScript deletes the key only while it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type LockConfig struct {
	Prefix string
	TTL    time.Duration
	Poll   time.Duration
}

// KeyLock is a best-effort mutual exclusion keyed by string, shared across processes.
type KeyLock struct {
	log    *logger.Logger
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
	poll   time.Duration
}

func NewKeyLock(log *logger.Logger, rdb goredis.UniversalClient, cfg LockConfig) *KeyLock {
	if strings.TrimSpace(cfg.Prefix) == "" {
		cfg.Prefix = "medi:lock:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 60 * time.Second
	}
	if cfg.Poll <= 0 {
		cfg.Poll = 50 * time.Millisecond
	}
	return &KeyLock{
		log:    log.With("client", "RedisKeyLock"),
		rdb:    rdb,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
		poll:   cfg.Poll,
	}
}

// Acquire blocks until the lock for key is held or ctx is done.
// The returned release func is safe to call once the lock has expired.
func (l *KeyLock) Acquire(ctx context.Context, key string) (func(), error) {
	if l == nil || l.rdb == nil {
		return nil, fmt.Errorf("redis lock unavailable")
	}
	full := l.prefix + key
	token := uuid.NewString()
	for {
		ok, err := l.rdb.SetNX(ctx, full, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
			}
			return nil, fmt.Errorf("redis lock acquire: %w", err)
		}
		if ok {
			break
		}
		if err := httpx.Sleep(ctx, l.poll); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLockTimeout, err)
		}
	}
	return func() {
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.rdb, []string{full}, token).Err(); err != nil && !errors.Is(err, goredis.Nil) {
			l.log.Warn("redis lock release failed", "key", full, "error", err)
		}
	}, nil
}
