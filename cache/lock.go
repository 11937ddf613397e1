package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// releaseScript deletes the lock only while it still holds our token.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// Locker is a single-instance Redis lock built on SET NX with a TTL.
type Locker struct {
	client RedisClientInterface
	log    *zap.Logger
	token  func() string
}

func NewLocker(client RedisClientInterface, log *zap.Logger) *Locker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Locker{client: client, log: log, token: uuid.NewString}
}

func lockKey(name string) string {
	return "lock:" + name
}

// Acquire takes the lock for at most ttl. ok is false when another holder
// has it.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	key := lockKey(name)
	token := l.token()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("locking %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
			l.log.Warn("releasing lock", zap.String("key", key), zap.Error(err))
		}
	}
	return release, true, nil
}
