package clarification

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanankenbruck/analytics-sql-ai/internal/observability"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func exerciseStore(t *testing.T, store Store) {
	ctx := context.Background()

	s, err := store.Load(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, s.HasPending())

	s.SetPending("Show top stores", AmbiguityQuestion)
	require.NoError(t, store.Save(ctx, "abc", s))

	loaded, err := store.Load(ctx, "abc")
	require.NoError(t, err)
	require.True(t, loaded.HasPending())
	assert.Equal(t, "Show top stores", loaded.Pending.OriginalQuery)
	assert.Equal(t, AmbiguityQuestion, loaded.Pending.Question)

	other, err := store.Load(ctx, "xyz")
	require.NoError(t, err)
	assert.False(t, other.HasPending(), "sessions are isolated")

	require.NoError(t, store.Delete(ctx, "abc"))
	loaded, err = store.Load(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, loaded.HasPending())
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(time.Hour))
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	s := NewConversationState()
	s.SetPending("q", "?")
	require.NoError(t, store.Save(ctx, "a", s))
	s.Reset()

	loaded, err := store.Load(ctx, "a")
	require.NoError(t, err)
	assert.True(t, loaded.HasPending())
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	s := NewConversationState()
	s.SetPending("q", "?")
	require.NoError(t, store.Save(ctx, "a", s))

	now = now.Add(2 * time.Minute)
	loaded, err := store.Load(ctx, "a")
	require.NoError(t, err)
	assert.False(t, loaded.HasPending())
	assert.Equal(t, 0, store.Len())
}

func TestRedisStore(t *testing.T) {
	_, rdb := newTestRedis(t)
	exerciseStore(t, NewRedisStore(rdb, time.Hour))
}

func TestRedisStore_Expiry(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()
	store := NewRedisStore(rdb, time.Minute)

	s := NewConversationState()
	s.SetPending("q", "?")
	require.NoError(t, store.Save(ctx, "a", s))
	assert.Equal(t, time.Minute, mr.TTL(statePrefix+"a"))

	mr.FastForward(2 * time.Minute)
	loaded, err := store.Load(ctx, "a")
	require.NoError(t, err)
	assert.False(t, loaded.HasPending())
}

func TestRedisStore_CorruptState(t *testing.T) {
	mr, rdb := newTestRedis(t)
	require.NoError(t, mr.Set(statePrefix+"bad", "{not json"))

	_, err := NewRedisStore(rdb, time.Minute).Load(context.Background(), "bad")
	assert.Error(t, err)
}

func exerciseLocker(t *testing.T, locker Locker) {
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "s1")
	require.NoError(t, err)

	// a different session is not blocked
	unlockOther, err := locker.Lock(ctx, "s2")
	require.NoError(t, err)
	unlockOther()

	// the same session is
	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(waitCtx, "s1")
	assert.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	unlock()

	unlock, err = locker.Lock(ctx, "s1")
	require.NoError(t, err)
	unlock()
}

func TestLocalLocker(t *testing.T) {
	exerciseLocker(t, NewLocalLocker())
}

func TestLocalLocker_SerialisesSameSession(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "same")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, locker.locks, "idle keys are released")
}

func TestRedisLocker(t *testing.T) {
	_, rdb := newTestRedis(t)
	exerciseLocker(t, NewRedisLocker(rdb, time.Second))
}

func TestRedisLocker_LeaseExpires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	locker := NewRedisLocker(rdb, time.Second)
	ctx := context.Background()

	_, err := locker.Lock(ctx, "s1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	unlock, err := locker.Lock(ctx, "s1")
	require.NoError(t, err)
	unlock()
	assert.False(t, mr.Exists(lockPrefix+"s1"))
}

func TestRedisLocker_UnlockKeepsForeignLease(t *testing.T) {
	mr, rdb := newTestRedis(t)
	locker := NewRedisLocker(rdb, time.Second)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "s1")
	require.NoError(t, err)

	// the lease expired and another holder took over
	require.NoError(t, mr.Set(lockPrefix+"s1", "someone-else"))
	unlock()

	got, err := mr.Get(lockPrefix + "s1")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLocker_LogsReleaseProblems(t *testing.T) {
	t.Run("lease lost", func(t *testing.T) {
		mr, rdb := newTestRedis(t)
		var logs bytes.Buffer
		locker := NewRedisLocker(rdb, time.Second).
			WithLogger(observability.NewLogger("session_lock").WithOutput(&logs).WithLevel(observability.LevelDebug))

		unlock, err := locker.Lock(context.Background(), "s1")
		require.NoError(t, err)
		mr.Del(lockPrefix + "s1")
		unlock()

		assert.Contains(t, logs.String(), "Session lock lease expired before release")
	})

	t.Run("redis unavailable", func(t *testing.T) {
		mr, rdb := newTestRedis(t)
		var logs bytes.Buffer
		locker := NewRedisLocker(rdb, time.Second).
			WithLogger(observability.NewLogger("session_lock").WithOutput(&logs).WithLevel(observability.LevelDebug))

		unlock, err := locker.Lock(context.Background(), "s1")
		require.NoError(t, err)
		mr.Close()
		unlock()

		assert.Contains(t, logs.String(), "Failed to release session lock")
		assert.Contains(t, logs.String(), `"session_id":"s1"`)
	})
}
