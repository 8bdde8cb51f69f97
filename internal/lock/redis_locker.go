package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the key only when it still holds our token.
const unlockScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`

// RedisLocker implements Locker with SET NX PX and a compare-and-delete
// script, which gives lease expiry independent of client liveness.
type RedisLocker struct {
	rdb    redis.Cmdable
	prefix string
}

// NewRedisLocker namespaces every lock key under prefix.
func NewRedisLocker(rdb redis.Cmdable, prefix string) *RedisLocker {
	return &RedisLocker{rdb: rdb, prefix: prefix}
}

func (l *RedisLocker) key(k string) string { return l.prefix + k }

// TryLock sets the key if absent with the given lease.
func (l *RedisLocker) TryLock(ctx context.Context, key, token string, lease time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, l.key(key), token, lease).Result()
}

// Unlock removes the key if token still owns it.
func (l *RedisLocker) Unlock(ctx context.Context, key, token string) (bool, error) {
	n, err := l.rdb.Eval(ctx, unlockScript, []string{l.key(key)}, token).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
