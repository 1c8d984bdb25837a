package lock

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse-sandbox/internal/core/ports"
)

func newTestRedis(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	log := logrus.New()
	log.SetOutput(io.Discard)

	r, err := NewRedis(context.Background(), RedisConfig{Addr: mr.Addr(), TTL: ttl}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

func TestNewRedisRequiresAddr(t *testing.T) {
	_, err := NewRedis(context.Background(), RedisConfig{Addr: "  "}, logrus.New())
	assert.Error(t, err)
}

func TestRedisTryLock(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t, time.Minute)
	key := defaultKeyPrefix + "labyrinth-alice-rg"

	unlock, err := r.TryLock(ctx, "labyrinth-alice-rg")
	require.NoError(t, err)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))

	_, err = r.TryLock(ctx, "labyrinth-alice-rg")
	assert.ErrorIs(t, err, ports.ErrLocked)

	other, err := r.TryLock(ctx, "labyrinth-bob-rg")
	require.NoError(t, err)
	other()

	unlock()
	assert.False(t, mr.Exists(key))
	unlock()

	again, err := r.TryLock(ctx, "labyrinth-alice-rg")
	require.NoError(t, err)
	again()
}

func TestRedisTryLockExpiredHolderCannotRelease(t *testing.T) {
	ctx := context.Background()
	ttl := 30 * time.Second
	r, mr := newTestRedis(t, ttl)
	key := defaultKeyPrefix + "maze-carol-rg"

	staleUnlock, err := r.TryLock(ctx, "maze-carol-rg")
	require.NoError(t, err)

	mr.FastForward(ttl)
	assert.False(t, mr.Exists(key))

	unlock, err := r.TryLock(ctx, "maze-carol-rg")
	require.NoError(t, err)
	held, err := mr.Get(key)
	require.NoError(t, err)

	staleUnlock()
	staleUnlock()
	current, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, held, current)

	_, err = r.TryLock(ctx, "maze-carol-rg")
	assert.ErrorIs(t, err, ports.ErrLocked)

	unlock()
	assert.False(t, mr.Exists(key))
}
