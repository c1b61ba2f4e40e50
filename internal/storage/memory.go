package storage

import (
	"context"
	"sync"
	"time"

	"github.com/MosinFAM/forum-moderation/internal/moderation"
	"github.com/MosinFAM/forum-moderation/internal/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// MemoryStorage - хранилище в памяти, деревья меняются только через moderation
type MemoryStorage struct {
	posts []models.Node
	mu    sync.RWMutex
	now   func() time.Time
}

// NewMemoryStorage создает новое in-memory хранилище
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		posts: []models.Node{},
		now:   time.Now,
	}
}

// GetModerationPosts возвращает снимок всех деревьев
func (s *MemoryStorage) GetModerationPosts(ctx context.Context) ([]models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log.Debug("Fetching moderation posts from memory")
	// Срез не меняется на месте, поэтому отдаём копию верхнего уровня
	result := make([]models.Node, len(s.posts))
	copy(result, s.posts)
	return result, nil
}

// AddPost добавляет новый пост в статусе pending
func (s *MemoryStorage) AddPost(ctx context.Context, author, title, content string) (models.Node, error) {
	if err := validateNode(author, title, content); err != nil {
		return models.Node{}, err
	}

	post := models.Node{
		ID:      uuid.New().String(),
		Author:  author,
		Title:   title,
		Content: content,
		Date:    s.now().UTC(),
		Status:  models.StatusPending,
		Replies: []models.Node{},
	}
	post.PostID = post.ID

	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, post)

	log.WithField("post_id", post.ID).Info("Post added")
	return post, nil
}

// AddReply добавляет ответ к посту или к другому ответу
func (s *MemoryStorage) AddReply(ctx context.Context, postID string, parentID *string, author, content string) (models.Node, error) {
	if err := validateNode(author, "", content); err != nil {
		return models.Node{}, err
	}

	reply := models.Node{
		ID:       uuid.New().String(),
		Author:   author,
		Content:  content,
		Date:     s.now().UTC(),
		Status:   models.StatusPending,
		Replies:  []models.Node{},
		PostID:   postID,
		ParentID: parentID,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	posts, err := moderation.InsertReply(s.posts, postID, parentID, reply)
	if err != nil {
		log.WithError(err).WithField("post_id", postID).Warn("Failed to add reply")
		return models.Node{}, err
	}
	s.posts = posts

	log.WithFields(log.Fields{"post_id": postID, "reply_id": reply.ID}).Info("Reply added")
	return reply, nil
}

func (s *MemoryStorage) SetPostStatus(ctx context.Context, postID string, status models.Status) (models.Node, error) {
	return s.setStatus(postID, nil, status)
}

func (s *MemoryStorage) SetReplyStatus(ctx context.Context, postID, replyID string, status models.Status) (models.Node, error) {
	return s.setStatus(postID, &replyID, status)
}

func (s *MemoryStorage) setStatus(postID string, replyID *string, status models.Status) (models.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	posts, err := moderation.UpdateStatus(s.posts, postID, replyID, status)
	if err != nil {
		return models.Node{}, err
	}
	s.posts = posts
	return moderation.Find(s.posts, postID, replyID)
}

func (s *MemoryStorage) DeletePost(ctx context.Context, postID string) error {
	return s.delete(postID, nil)
}

func (s *MemoryStorage) DeleteReply(ctx context.Context, postID, replyID string) error {
	return s.delete(postID, &replyID)
}

func (s *MemoryStorage) delete(postID string, replyID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	posts, err := moderation.DeleteNode(s.posts, postID, replyID)
	if err != nil {
		return err
	}
	s.posts = posts
	return nil
}
