package locks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// unlockLua deletes a lock key only if its value matches the caller's unique
// token, so one holder can never release another holder's lock.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// Redis is a lock manager backed by Redis SETNX with a TTL and a Lua-based
// conditional unlock. It gives the same per-asset serialization guarantee as
// Keyed when several engine instances share one Redis.
type Redis struct {
	rdb       *redis.Client
	unlockSc  *redis.Script
	ttl       time.Duration
	retryWait time.Duration
}

// NewRedis creates a Redis lock manager. ttl bounds how long a crashed holder
// can wedge a key; it must comfortably exceed the longest settlement.
func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{
		rdb:       rdb,
		unlockSc:  redis.NewScript(unlockLua),
		ttl:       ttl,
		retryWait: 25 * time.Millisecond,
	}
}

func lockKey(key string) string {
	return "marketlock:" + key
}

// Acquire polls SETNX until the lock is obtained or ctx is done. The returned
// release function is safe to call more than once.
func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.New().String()
	lk := lockKey(key)

	for {
		ok, err := r.rdb.SetNX(ctx, lk, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("locks: acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-time.After(r.retryWait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// Unlock runs on a background context so a cancelled caller
			// still releases the lock rather than waiting out the TTL.
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = r.unlockSc.Run(rctx, r.rdb, []string{lk}, token).Err()
		})
	}
	return release, nil
}

var _ domain.LockManager = (*Redis)(nil)
