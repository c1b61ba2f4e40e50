package storage

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/MosinFAM/forum-moderation/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
	fail bool
}

func newMapCache() *mapCache { return &mapCache{data: make(map[string][]byte)} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return nil, errors.New("connection refused")
	}
	v, ok := c.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("connection refused")
	}
	c.data[key] = value
	return nil
}

func (c *mapCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func (c *mapCache) Incr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return 0, errors.New("connection refused")
	}
	n, _ := strconv.ParseInt(string(c.data[key]), 10, 64)
	n++
	c.data[key] = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

// gatedStorage читает снимок из хранилища и держит первый вызов до release
type gatedStorage struct {
	Storage
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStorage) GetModerationPosts(ctx context.Context) ([]models.Node, error) {
	posts, err := g.Storage.GetModerationPosts(ctx)
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return posts, err
}

func TestCachedStorage_ReadThrough(t *testing.T) {
	ctx := context.Background()
	inner := new(MockStorage)
	cache := newMapCache()
	store := NewCachedStorage(inner, cache, time.Minute)

	posts := []models.Node{{ID: "1", Status: models.StatusPending, Replies: []models.Node{}}}
	inner.On("GetModerationPosts", ctx).Return(posts, nil).Once()

	first, err := store.GetModerationPosts(ctx)
	require.NoError(t, err)
	second, err := store.GetModerationPosts(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	// Второй раз ответ пришёл из кеша
	inner.AssertNumberOfCalls(t, "GetModerationPosts", 1)
}

func TestCachedStorage_MutationInvalidates(t *testing.T) {
	ctx := context.Background()
	inner := new(MockStorage)
	cache := newMapCache()
	store := NewCachedStorage(inner, cache, time.Minute)

	inner.On("GetModerationPosts", ctx).Return([]models.Node{}, nil)
	inner.On("SetPostStatus", ctx, "1", models.StatusApproved).Return(models.Node{ID: "1", Status: models.StatusApproved}, nil)
	inner.On("DeletePost", ctx, "2").Return(errors.New("boom"))

	_, err := store.GetModerationPosts(ctx)
	require.NoError(t, err)
	assert.Contains(t, cache.data, ModerationPostsKey)

	// Неудачная запись кеш не трогает
	assert.Error(t, store.DeletePost(ctx, "2"))
	assert.Contains(t, cache.data, ModerationPostsKey)

	_, err = store.SetPostStatus(ctx, "1", models.StatusApproved)
	require.NoError(t, err)
	assert.NotContains(t, cache.data, ModerationPostsKey)

	inner.AssertExpectations(t)
}

func TestCachedStorage_CacheDown(t *testing.T) {
	ctx := context.Background()
	inner := new(MockStorage)
	cache := newMapCache()
	cache.fail = true
	store := NewCachedStorage(inner, cache, time.Minute)

	inner.On("GetModerationPosts", mock.Anything).Return([]models.Node{{ID: "1"}}, nil)

	posts, err := store.GetModerationPosts(ctx)
	require.NoError(t, err)
	assert.Len(t, posts, 1)
}

func TestCachedStorage_ReadRacingDelete(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStorage()
	post, err := mem.AddPost(ctx, "ann", "Lisbon", "Any tips?")
	require.NoError(t, err)

	inner := &gatedStorage{Storage: mem, entered: make(chan struct{}), release: make(chan struct{})}
	store := NewCachedStorage(inner, newMapCache(), time.Minute)

	done := make(chan []models.Node)
	go func() {
		posts, _ := store.GetModerationPosts(ctx)
		done <- posts
	}()

	// Чтение уже взяло старый снимок, удаление проходит до записи в кеш
	<-inner.entered
	require.NoError(t, store.DeletePost(ctx, post.ID))
	close(inner.release)
	assert.Len(t, <-done, 1)

	posts, err := store.GetModerationPosts(ctx)
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR is not set")
	}
	ctx := context.Background()
	cache := NewRedisCache(&redis.Options{Addr: addr})
	defer cache.Close()
	require.NoError(t, cache.Ping(ctx))

	key := "moderation:test"
	require.NoError(t, cache.Set(ctx, key, []byte("value"), time.Minute))
	got, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got)

	require.NoError(t, cache.Del(ctx, key))
	_, err = cache.Get(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss)

	genKey := "moderation:test:gen"
	defer cache.Del(ctx, genKey)
	first, err := cache.Incr(ctx, genKey)
	require.NoError(t, err)
	second, err := cache.Incr(ctx, genKey)
	require.NoError(t, err)
	assert.Equal(t, first+1, second)
}
