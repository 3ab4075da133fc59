package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/alers-api/pkg/errors"
)

// SessionLocker serialises turns per chat session. Acquire fails with
// SESSION_BUSY when another turn holds the session.
type SessionLocker interface {
	Acquire(ctx context.Context, sessionID string) (release func(), err error)
}

// MemorySessionLocker is a process-local SessionLocker.
type MemorySessionLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemorySessionLocker constructs an in-process locker.
func NewMemorySessionLocker() *MemorySessionLocker {
	return &MemorySessionLocker{held: make(map[string]struct{})}
}

// Acquire implements SessionLocker.
func (l *MemorySessionLocker) Acquire(_ context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[sessionID]; busy {
		return nil, appErrors.ErrSessionBusy
	}
	l.held[sessionID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, sessionID)
			l.mu.Unlock()
		})
	}, nil
}

type lockStore interface {
	Acquire(ctx context.Context, sessionID string) (string, bool, error)
	Release(ctx context.Context, sessionID, token string) error
}

// RedisSessionLocker shares session locks between replicas.
type RedisSessionLocker struct {
	store  lockStore
	logger *zap.Logger
}

// NewRedisSessionLocker wraps a token based lock store.
func NewRedisSessionLocker(store lockStore, logger *zap.Logger) *RedisSessionLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSessionLocker{store: store, logger: logger}
}

// Acquire implements SessionLocker.
func (l *RedisSessionLocker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	token, ok, err := l.store.Acquire(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock chat session")
	}
	if !ok {
		return nil, appErrors.ErrSessionBusy
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := l.store.Release(context.WithoutCancel(ctx), sessionID, token); err != nil {
				l.logger.Warn("release session lock failed", zap.String("session_id", sessionID), zap.Error(err))
			}
		})
	}, nil
}
