package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sessionLockPrefix = "alers:lock:session:"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SessionLockRepository serialises turns on a chat session across replicas.
type SessionLockRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionLockRepository builds a Redis backed lock. ttl bounds how long a
// crashed holder can block a session.
func NewSessionLockRepository(client *redis.Client, ttl time.Duration) *SessionLockRepository {
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	return &SessionLockRepository{client: client, ttl: ttl}
}

// Acquire tries to take the lock for sessionID. It returns the holder token
// and false when another holder owns the lock.
func (r *SessionLockRepository) Acquire(ctx context.Context, sessionID string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, sessionLockPrefix+sessionID, token, r.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire session lock: %w", err)
	}
	return token, ok, nil
}

// Release frees the lock if token still owns it.
func (r *SessionLockRepository) Release(ctx context.Context, sessionID, token string) error {
	if err := releaseScript.Run(ctx, r.client, []string{sessionLockPrefix + sessionID}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release session lock: %w", err)
	}
	return nil
}
