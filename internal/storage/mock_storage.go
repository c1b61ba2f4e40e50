package storage

import (
	"context"

	"github.com/MosinFAM/forum-moderation/internal/models"

	"github.com/stretchr/testify/mock"
)

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) GetModerationPosts(ctx context.Context) ([]models.Node, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Node), args.Error(1)
}

func (m *MockStorage) AddPost(ctx context.Context, author, title, content string) (models.Node, error) {
	args := m.Called(ctx, author, title, content)
	return args.Get(0).(models.Node), args.Error(1)
}

func (m *MockStorage) AddReply(ctx context.Context, postID string, parentID *string, author, content string) (models.Node, error) {
	args := m.Called(ctx, postID, parentID, author, content)
	return args.Get(0).(models.Node), args.Error(1)
}

func (m *MockStorage) SetPostStatus(ctx context.Context, postID string, status models.Status) (models.Node, error) {
	args := m.Called(ctx, postID, status)
	return args.Get(0).(models.Node), args.Error(1)
}

func (m *MockStorage) SetReplyStatus(ctx context.Context, postID, replyID string, status models.Status) (models.Node, error) {
	args := m.Called(ctx, postID, replyID, status)
	return args.Get(0).(models.Node), args.Error(1)
}

func (m *MockStorage) DeletePost(ctx context.Context, postID string) error {
	args := m.Called(ctx, postID)
	return args.Error(0)
}

func (m *MockStorage) DeleteReply(ctx context.Context, postID, replyID string) error {
	args := m.Called(ctx, postID, replyID)
	return args.Error(0)
}
