package clarification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/seanankenbruck/analytics-sql-ai/internal/observability"
)

const lockPrefix = "conversation-lock:"

// ErrLockTimeout is returned when a session lock could not be acquired in time
var ErrLockTimeout = errors.New("timed out waiting for session lock")

// Locker serialises access to one session's state
type Locker interface {
	// Lock blocks until the session is exclusively held or ctx ends. The
	// returned function releases the lock and may be called more than once.
	Lock(ctx context.Context, sessionID string) (unlock func(), err error)
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// LocalLocker is a per-key mutex for a single process
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// NewLocalLocker creates a process-local locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

// Lock implements Locker
func (l *LocalLocker) Lock(ctx context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[sessionID]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[sessionID] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(sessionID, kl)
		return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.release(sessionID, kl)
		})
	}, nil
}

func (l *LocalLocker) release(sessionID string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, sessionID)
	}
}

// releaseScript deletes the lock only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker is a lease lock in Redis shared by every replica. The lease
// expires after ttl so a crashed holder cannot block a session forever.
type RedisLocker struct {
	redis  *redis.Client
	ttl    time.Duration
	retry  time.Duration
	logger *observability.Logger
}

// NewRedisLocker creates a Redis-backed locker
func NewRedisLocker(redisClient *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		redis:  redisClient,
		ttl:    ttl,
		retry:  25 * time.Millisecond,
		logger: observability.NewLogger("session_lock"),
	}
}

// WithLogger replaces the locker's logger
func (l *RedisLocker) WithLogger(logger *observability.Logger) *RedisLocker {
	l.logger = logger
	return l
}

// Lock implements Locker
func (l *RedisLocker) Lock(ctx context.Context, sessionID string) (func(), error) {
	key := lockPrefix + sessionID
	token := uuid.New().String()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.redis.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("failed to acquire session lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.release(ctx, sessionID, key, token)
		})
	}, nil
}

// release drops the lease if it is still ours. ctx only carries log fields;
// a cancelled request must still unlock.
func (l *RedisLocker) release(ctx context.Context, sessionID, key, token string) {
	releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	deleted, err := releaseScript.Run(releaseCtx, l.redis, []string{key}, token).Int()
	if err != nil {
		l.logger.Error(ctx, "Failed to release session lock", err, map[string]interface{}{
			"session_id": sessionID,
			"lease_ms":   l.ttl.Milliseconds(),
		})
		return
	}
	if deleted == 0 {
		l.logger.Warn(ctx, "Session lock lease expired before release", map[string]interface{}{
			"session_id": sessionID,
		})
	}
}
