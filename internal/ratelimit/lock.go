// Package ratelimit provides redis-backed coordination: short mutual
// exclusion locks and a token bucket for public endpoints. All of it is
// optional; without redis the callers degrade to unguarded behavior.
package ratelimit

import (
	"context"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

type Locker struct {
	client *redis.Client
	script *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
	}
}

// TryLock acquires key for at most ttl. The returned release function only
// deletes the key while our token still owns it, so an expired lock can
// never release a successor's.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool) {
	if l == nil || l.client == nil || key == "" || ttl <= 0 {
		return nil, false
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false
	}

	release := func() {
		_ = l.script.Run(ctx, l.client, []string{key}, token).Err()
	}
	return release, true
}
