package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adchat/internal/domain/entity"
	apperrors "adchat/pkg/errors"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisPresenceUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	repo := NewRedisPresenceRepository(client, 0)

	_, err := repo.Get(ctx, "a")
	assert.True(t, apperrors.IsNotFound(err))

	seen := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(ctx, "a", true, seen))

	p, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, p.Online)
	assert.True(t, seen.Equal(p.LastSeen))

	require.NoError(t, repo.Upsert(ctx, "a", false, seen.Add(time.Minute)))
	p, err = repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, p.Online)
}

func TestRedisPresenceExpires(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	repo := NewRedisPresenceRepository(client, 30*time.Second)

	require.NoError(t, repo.Upsert(ctx, "a", true, time.Now()))
	mr.FastForward(31 * time.Second)

	_, err := repo.Get(ctx, "a")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRedisPresenceWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, client := newRedis(t)
	repo := NewRedisPresenceRepository(client, 0)

	var mu sync.Mutex
	var states []*entity.Presence
	unsubscribe, err := repo.Watch(ctx, "a", func(p *entity.Presence) {
		mu.Lock()
		states = append(states, p)
		mu.Unlock()
	}, func(err error) { t.Errorf("unexpected error: %v", err) })
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, repo.Upsert(ctx, "a", true, time.Now()))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Nil(t, states[0])
	require.NotNil(t, states[1])
	assert.True(t, states[1].Online)
}

func TestNewRedisClientParsesURL(t *testing.T) {
	client, err := NewRedisClient("redis://:secret@cache:6380/2")
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, "cache:6380", client.Options().Addr)
	assert.Equal(t, 2, client.Options().DB)

	client, err = NewRedisClient("localhost:6379")
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, "localhost:6379", client.Options().Addr)
}
