package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status - состояние узла в очереди модерации
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

var ErrInvalidStatus = errors.New("invalid status")

// Statuses перечисляет все состояния в порядке жизненного цикла
var Statuses = []Status{StatusPending, StatusApproved, StatusRejected}

// ParseStatus разбирает строку в Status
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusApproved, StatusRejected:
		return Status(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

// Final - статус, который модератор может выставить вручную
func (s Status) Final() bool {
	return s == StatusApproved || s == StatusRejected
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Node - пост или ответ в дереве модерации.
// Пост - корень дерева, у него заполнен Title.
type Node struct {
	ID      string    `json:"id"`
	Author  string    `json:"author"`
	Title   string    `json:"title,omitempty"`
	Content string    `json:"content"`
	Date    time.Time `json:"date"`
	Status  Status    `json:"status"`
	Replies []Node    `json:"replies"`

	PostID   string  `json:"-"` // ID поста-корня, используется при сборке дерева из строк БД
	ParentID *string `json:"-"` // ID родительского ответа (nil, если ответ на сам пост)
}

// Summary - счётчики узлов по статусам
type Summary struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// ModerationList - ответ GET /api/posts/moderation
type ModerationList struct {
	Posts   []Node  `json:"posts"`
	Summary Summary `json:"summary"`
}

// StatusUpdate - тело запроса на смену статуса
type StatusUpdate struct {
	Status Status `json:"status"`
}

type EventType string

const (
	EventCreated       EventType = "created"
	EventStatusChanged EventType = "status_changed"
	EventDeleted       EventType = "deleted"
)

// Event - уведомление об изменении в дереве модерации
type Event struct {
	Type    EventType `json:"type"`
	PostID  string    `json:"postId"`
	ReplyID *string   `json:"replyId,omitempty"`
	Status  Status    `json:"status,omitempty"`
	At      time.Time `json:"at"`
}
