package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker hands out short-lived named locks. release is a no-op when ok is
// false.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// unlockScript deletes the key only while it still holds our token, so an
// expired lock taken over by another worker is left alone.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client *redis.Client
	log    *slog.Logger
	// unlock reports whether the key still held tok and was deleted.
	unlock func(ctx context.Context, key, tok string) (bool, error)
}

func NewRedisLocker(client *redis.Client, log *slog.Logger) *RedisLocker {
	l := &RedisLocker{client: client, log: log}
	l.unlock = func(ctx context.Context, key, tok string) (bool, error) {
		n, err := unlockScript.Run(ctx, client, []string{key}, tok).Int()
		return n == 1, err
	}
	return l
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	tok := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, tok, ttl).Result()
	if err != nil {
		return func() {}, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return func() {}, false, nil
	}
	return func() { l.release(key, tok) }, true, nil
}

// release uses a fresh context: the request context may already be cancelled.
func (l *RedisLocker) release(key, tok string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	released, err := l.unlock(ctx, key, tok)
	if err != nil {
		l.log.Error("release lock", "key", key, "error", err)
		return
	}
	if !released {
		l.log.Warn("lock expired before release", "key", key)
	}
}
