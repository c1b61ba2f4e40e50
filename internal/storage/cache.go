package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/MosinFAM/forum-moderation/internal/models"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	ModerationPostsKey = "moderation:posts"
	// ModerationGenKey растёт при каждой записи; запись в кеше помечена поколением,
	// на котором её прочитали из хранилища
	ModerationGenKey = "moderation:posts:gen"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache - минимальный key-value интерфейс поверх Redis
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
}

// RedisCache реализует Cache через go-redis
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(opts *redis.Options) *RedisCache {
	return &RedisCache{client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return data, err
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

func (c *RedisCache) Incr(ctx context.Context, key string) (int64, error) {
	return c.client.Incr(ctx, key).Result()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// CachedStorage кеширует список модерации, любая запись сбрасывает кеш.
// Ошибки кеша не ломают запросы, они только логируются.
type CachedStorage struct {
	Storage
	cache Cache
	ttl   time.Duration
}

func NewCachedStorage(inner Storage, cache Cache, ttl time.Duration) *CachedStorage {
	return &CachedStorage{Storage: inner, cache: cache, ttl: ttl}
}

type cachedPosts struct {
	Gen   int64         `json:"gen"`
	Posts []models.Node `json:"posts"`
}

// GetModerationPosts отдаёт список из кеша, если он записан на текущем поколении.
// Поколение читается до похода в хранилище, поэтому список, прочитанный до
// параллельной записи, после неё уже не считается попаданием.
func (s *CachedStorage) GetModerationPosts(ctx context.Context) ([]models.Node, error) {
	gen, genErr := s.generation(ctx)
	if genErr == nil {
		if posts, ok := s.cached(ctx, gen); ok {
			return posts, nil
		}
	}

	posts, err := s.Storage.GetModerationPosts(ctx)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		return posts, nil
	}
	if data, err := json.Marshal(cachedPosts{Gen: gen, Posts: posts}); err == nil {
		if err := s.cache.Set(ctx, ModerationPostsKey, data, s.ttl); err != nil {
			log.WithError(err).Warn("Moderation cache write failed")
		}
	}
	return posts, nil
}

func (s *CachedStorage) generation(ctx context.Context) (int64, error) {
	data, err := s.cache.Get(ctx, ModerationGenKey)
	if errors.Is(err, ErrCacheMiss) {
		return 0, nil
	}
	if err != nil {
		log.WithError(err).Warn("Moderation cache read failed")
		return 0, err
	}
	gen, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		log.WithError(err).Warn("Corrupted moderation cache generation")
		return 0, err
	}
	return gen, nil
}

func (s *CachedStorage) cached(ctx context.Context, gen int64) ([]models.Node, bool) {
	data, err := s.cache.Get(ctx, ModerationPostsKey)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			log.WithError(err).Warn("Moderation cache read failed")
		}
		return nil, false
	}
	var entry cachedPosts
	if err := json.Unmarshal(data, &entry); err != nil {
		log.WithError(err).Warn("Corrupted moderation cache entry")
		return nil, false
	}
	if entry.Gen != gen {
		return nil, false
	}
	return entry.Posts, true
}

func (s *CachedStorage) AddPost(ctx context.Context, author, title, content string) (models.Node, error) {
	post, err := s.Storage.AddPost(ctx, author, title, content)
	s.invalidate(ctx, err)
	return post, err
}

func (s *CachedStorage) AddReply(ctx context.Context, postID string, parentID *string, author, content string) (models.Node, error) {
	reply, err := s.Storage.AddReply(ctx, postID, parentID, author, content)
	s.invalidate(ctx, err)
	return reply, err
}

func (s *CachedStorage) SetPostStatus(ctx context.Context, postID string, status models.Status) (models.Node, error) {
	node, err := s.Storage.SetPostStatus(ctx, postID, status)
	s.invalidate(ctx, err)
	return node, err
}

func (s *CachedStorage) SetReplyStatus(ctx context.Context, postID, replyID string, status models.Status) (models.Node, error) {
	node, err := s.Storage.SetReplyStatus(ctx, postID, replyID, status)
	s.invalidate(ctx, err)
	return node, err
}

func (s *CachedStorage) DeletePost(ctx context.Context, postID string) error {
	err := s.Storage.DeletePost(ctx, postID)
	s.invalidate(ctx, err)
	return err
}

func (s *CachedStorage) DeleteReply(ctx context.Context, postID, replyID string) error {
	err := s.Storage.DeleteReply(ctx, postID, replyID)
	s.invalidate(ctx, err)
	return err
}

func (s *CachedStorage) invalidate(ctx context.Context, opErr error) {
	if opErr != nil {
		return
	}
	if _, err := s.cache.Incr(ctx, ModerationGenKey); err != nil {
		log.WithError(err).Warn("Moderation cache generation bump failed")
	}
	if err := s.cache.Del(ctx, ModerationPostsKey); err != nil {
		log.WithError(err).Warn("Moderation cache invalidation failed")
	}
}
