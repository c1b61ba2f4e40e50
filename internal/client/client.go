// Package client вызывает REST API модерации. Каждый запрос делается одной
// попыткой, без повторов: ошибка сразу уходит вызывающему.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MosinFAM/forum-moderation/internal/models"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

var (
	ErrForbidden = errors.New("not authorized")
	ErrNotFound  = errors.New("not found")
)

// Session - явные параметры доступа вместо глобального токена
type Session struct {
	BaseURL string
	Token   string
}

// APIError - ответ сервера с не-2xx статусом
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("request failed: %d %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrForbidden:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

type Client struct {
	session Session
	http    *http.Client
	dialer  *websocket.Dialer
}

// New создаёт клиента; httpClient == nil означает клиента с таймаутом по умолчанию
func New(session Session, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	session.BaseURL = strings.TrimRight(session.BaseURL, "/")
	return &Client{session: session, http: httpClient, dialer: websocket.DefaultDialer}
}

// FetchModeration загружает деревья и сводку
func (c *Client) FetchModeration(ctx context.Context, search string, pendingOnly bool) (models.ModerationList, error) {
	q := url.Values{}
	if search != "" {
		q.Set("search", search)
	}
	if pendingOnly {
		q.Set("pending", strconv.FormatBool(true))
	}
	path := "/api/posts/moderation"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var list models.ModerationList
	err := c.do(ctx, http.MethodGet, path, nil, &list)
	return list, err
}

func (c *Client) Summary(ctx context.Context) (models.Summary, error) {
	var s models.Summary
	err := c.do(ctx, http.MethodGet, "/api/posts/moderation/summary", nil, &s)
	return s, err
}

func (c *Client) SetPostStatus(ctx context.Context, postID string, status models.Status) (models.Node, error) {
	var node models.Node
	path := "/api/posts/moderation/posts/" + url.PathEscape(postID) + "/status"
	err := c.do(ctx, http.MethodPut, path, models.StatusUpdate{Status: status}, &node)
	return node, err
}

func (c *Client) SetReplyStatus(ctx context.Context, postID, replyID string, status models.Status) (models.Node, error) {
	var node models.Node
	path := "/api/posts/moderation/replies/" + url.PathEscape(postID) + "/" + url.PathEscape(replyID) + "/status"
	err := c.do(ctx, http.MethodPut, path, models.StatusUpdate{Status: status}, &node)
	return node, err
}

func (c *Client) DeletePost(ctx context.Context, postID string) error {
	return c.do(ctx, http.MethodDelete, "/api/posts/moderation/posts/"+url.PathEscape(postID), nil, nil)
}

func (c *Client) DeleteReply(ctx context.Context, postID, replyID string) error {
	path := "/api/posts/moderation/replies/" + url.PathEscape(postID) + "/" + url.PathEscape(replyID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// Events подписывается на поток событий. Канал закрывается при отмене ctx
// или обрыве соединения.
func (c *Client) Events(ctx context.Context) (<-chan models.Event, error) {
	wsURL, err := url.Parse(c.session.BaseURL + "/api/posts/moderation/events")
	if err != nil {
		return nil, err
	}
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.session.Token)
	conn, resp, err := c.dialer.DialContext(ctx, wsURL.String(), header)
	if err != nil {
		if resp != nil {
			return nil, &APIError{StatusCode: resp.StatusCode}
		}
		return nil, err
	}

	ch := make(chan models.Event)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go func() {
		defer close(ch)
		defer conn.Close()
		for {
			var ev models.Event
			if err := conn.ReadJSON(&ev); err != nil {
				if ctx.Err() == nil {
					log.WithError(err).Debug("Event stream closed")
				}
				return
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.session.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.session.Token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&payload); err == nil {
			apiErr.Message = payload.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
