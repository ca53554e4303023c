// Package distlock is a best-effort distributed mutex on Redis (SET NX
// with TTL). The retention sweeper uses it so only one server replica
// sweeps per interval; losing the lock costs nothing but a duplicate
// DELETE, so best-effort is enough.
package distlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only when we still own it, so an expired
// lock re-acquired by another process is never released from here.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Mutex is a single-holder lock. One instance per goroutine; the random
// token identifies ownership.
type Mutex struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

func New(client *redis.Client, key string, ttl time.Duration) *Mutex {
	buf := make([]byte, 16)
	rand.Read(buf)
	return &Mutex{
		client: client,
		key:    "lock:" + key,
		token:  hex.EncodeToString(buf),
		ttl:    ttl,
	}
}

// TryAcquire attempts the lock without blocking. Reports whether this
// instance now holds it.
func (m *Mutex) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := m.client.SetNX(ctx, m.key, m.token, m.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", m.key, err)
	}
	return ok, nil
}

// Release drops the lock if this instance still owns it.
func (m *Mutex) Release(ctx context.Context) error {
	if _, err := releaseScript.Run(ctx, m.client, []string{m.key}, m.token).Result(); err != nil {
		return fmt.Errorf("release %s: %w", m.key, err)
	}
	return nil
}
