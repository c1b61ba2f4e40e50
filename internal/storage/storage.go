package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MosinFAM/forum-moderation/internal/config"
	"github.com/MosinFAM/forum-moderation/internal/models"
)

var (
	ErrContentTooLong = errors.New("content is too long")
	ErrEmptyField     = errors.New("required field is empty")
)

// Storage - интерфейс для всех типов хранилищ (in-memory, PostgreSQL, SQLite)
type Storage interface {
	GetModerationPosts(ctx context.Context) ([]models.Node, error)
	AddPost(ctx context.Context, author, title, content string) (models.Node, error)
	AddReply(ctx context.Context, postID string, parentID *string, author, content string) (models.Node, error)
	SetPostStatus(ctx context.Context, postID string, status models.Status) (models.Node, error)
	SetReplyStatus(ctx context.Context, postID, replyID string, status models.Status) (models.Node, error)
	DeletePost(ctx context.Context, postID string) error
	DeleteReply(ctx context.Context, postID, replyID string) error
}

// validateNode проверяет поля нового поста или ответа
func validateNode(author, title, content string) error {
	if strings.TrimSpace(author) == "" {
		return fmt.Errorf("%w: author", ErrEmptyField)
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: content", ErrEmptyField)
	}
	if utf8.RuneCountInString(author) > config.MaxAuthorLen {
		return fmt.Errorf("%w: author", ErrContentTooLong)
	}
	if utf8.RuneCountInString(title) > config.MaxTitleLen {
		return fmt.Errorf("%w: title", ErrContentTooLong)
	}
	if utf8.RuneCountInString(content) > config.MaxContentLen {
		return fmt.Errorf("%w: content", ErrContentTooLong)
	}
	return nil
}
