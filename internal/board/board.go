// Package board хранит снимок дерева модерации для сессии консоли.
//
// Снимок - единственный источник правды на стороне клиента. Он меняется только
// после ответа сервера: сначала запрос, потом локальное изменение по
// подтверждённым данным. Если подтверждённый узел не находится локально,
// снимок перечитывается целиком.
package board

import (
	"context"
	"sync"

	"github.com/MosinFAM/forum-moderation/internal/moderation"
	"github.com/MosinFAM/forum-moderation/internal/models"

	log "github.com/sirupsen/logrus"
)

// Backend - то, что Board требует от API
type Backend interface {
	FetchModeration(ctx context.Context, search string, pendingOnly bool) (models.ModerationList, error)
	SetPostStatus(ctx context.Context, postID string, status models.Status) (models.Node, error)
	SetReplyStatus(ctx context.Context, postID, replyID string, status models.Status) (models.Node, error)
	DeletePost(ctx context.Context, postID string) error
	DeleteReply(ctx context.Context, postID, replyID string) error
}

type Board struct {
	backend Backend
	mu      sync.RWMutex
	posts   []models.Node
}

func New(backend Backend) *Board {
	return &Board{backend: backend, posts: []models.Node{}}
}

// Refresh заменяет снимок полной выборкой с сервера
func (b *Board) Refresh(ctx context.Context) error {
	list, err := b.backend.FetchModeration(ctx, "", false)
	if err != nil {
		return err
	}
	posts := list.Posts
	if posts == nil {
		posts = []models.Node{}
	}

	b.mu.Lock()
	b.posts = posts
	b.mu.Unlock()
	return nil
}

// Posts возвращает текущий снимок. Снимок не меняется на месте.
func (b *Board) Posts() []models.Node {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.posts
}

// Pending - очередь модерации с поиском
func (b *Board) Pending(term string) []models.Node {
	return moderation.FilterPending(b.Posts(), term)
}

func (b *Board) Summary() models.Summary {
	return moderation.Summarize(b.Posts())
}

func (b *Board) Approve(ctx context.Context, postID string, replyID *string) (models.Node, error) {
	return b.SetStatus(ctx, postID, replyID, models.StatusApproved)
}

func (b *Board) Reject(ctx context.Context, postID string, replyID *string) (models.Node, error) {
	return b.SetStatus(ctx, postID, replyID, models.StatusRejected)
}

// SetStatus отправляет новый статус и применяет к снимку статус из ответа сервера
func (b *Board) SetStatus(ctx context.Context, postID string, replyID *string, status models.Status) (models.Node, error) {
	var (
		node models.Node
		err  error
	)
	if replyID == nil {
		node, err = b.backend.SetPostStatus(ctx, postID, status)
	} else {
		node, err = b.backend.SetReplyStatus(ctx, postID, *replyID, status)
	}
	if err != nil {
		return models.Node{}, err
	}

	if b.apply(func(posts []models.Node) ([]models.Node, error) {
		return moderation.UpdateStatus(posts, postID, replyID, node.Status)
	}) {
		return node, nil
	}
	return node, b.Refresh(ctx)
}

// Delete удаляет узел на сервере, затем из снимка
func (b *Board) Delete(ctx context.Context, postID string, replyID *string) error {
	var err error
	if replyID == nil {
		err = b.backend.DeletePost(ctx, postID)
	} else {
		err = b.backend.DeleteReply(ctx, postID, *replyID)
	}
	if err != nil {
		return err
	}

	if b.apply(func(posts []models.Node) ([]models.Node, error) {
		return moderation.DeleteNode(posts, postID, replyID)
	}) {
		return nil
	}
	return b.Refresh(ctx)
}

// ApplyEvent применяет событие из потока сервера. Для новых узлов событие
// не несёт содержимого, поэтому снимок перечитывается.
func (b *Board) ApplyEvent(ctx context.Context, ev models.Event) error {
	var ok bool
	switch ev.Type {
	case models.EventStatusChanged:
		ok = b.apply(func(posts []models.Node) ([]models.Node, error) {
			return moderation.UpdateStatus(posts, ev.PostID, ev.ReplyID, ev.Status)
		})
	case models.EventDeleted:
		ok = b.apply(func(posts []models.Node) ([]models.Node, error) {
			return moderation.DeleteNode(posts, ev.PostID, ev.ReplyID)
		})
	}
	if ok {
		return nil
	}
	return b.Refresh(ctx)
}

// apply меняет снимок под блокировкой; false - изменение не применилось
func (b *Board) apply(change func([]models.Node) ([]models.Node, error)) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	posts, err := change(b.posts)
	if err != nil {
		log.WithError(err).Debug("Snapshot is out of date, refetching")
		return false
	}
	b.posts = posts
	return true
}
