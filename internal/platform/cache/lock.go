package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockStore hands out short-lived exclusive locks keyed by name.
type LockStore struct {
	client *redis.Client
}

func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

func lockKey(scope, id string) string {
	return fmt.Sprintf("lock:%s:%s", scope, id)
}

// Acquire returns a token when the lock was taken and "" when someone else
// holds it.
func (s *LockStore) Acquire(ctx context.Context, scope, id string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, lockKey(scope, id), token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

func (s *LockStore) Release(ctx context.Context, scope, id, token string) error {
	return releaseScript.Run(ctx, s.client, []string{lockKey(scope, id)}, token).Err()
}
