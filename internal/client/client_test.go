package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MosinFAM/forum-moderation/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchModeration(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/posts/moderation", r.URL.Path)
		assert.Equal(t, "Bearer tkn", r.Header.Get("Authorization"))
		assert.Equal(t, "true", r.URL.Query().Get("pending"))
		assert.Equal(t, "alps trip", r.URL.Query().Get("search"))

		json.NewEncoder(w).Encode(models.ModerationList{
			Posts:   []models.Node{{ID: "1", Status: models.StatusPending, Replies: []models.Node{}}},
			Summary: models.Summary{Total: 1, Pending: 1},
		})
	}))
	defer ts.Close()

	c := New(Session{BaseURL: ts.URL + "/", Token: "tkn"}, nil)
	list, err := c.FetchModeration(context.Background(), "alps trip", true)
	require.NoError(t, err)
	require.Len(t, list.Posts, 1)
	assert.Equal(t, 1, list.Summary.Pending)
}

func TestSetReplyStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/posts/moderation/replies/p1/r1/status", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"status":"approved"}`, string(body))

		json.NewEncoder(w).Encode(models.Node{ID: "r1", Status: models.StatusApproved})
	}))
	defer ts.Close()

	c := New(Session{BaseURL: ts.URL, Token: "tkn"}, nil)
	node, err := c.SetReplyStatus(context.Background(), "p1", "r1", models.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, node.Status)
}

func TestErrors(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusForbidden)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		w.Write([]byte(`{"error":"forbidden"}`))
	}))
	defer ts.Close()

	c := New(Session{BaseURL: ts.URL, Token: "bad"}, nil)

	err := c.DeletePost(context.Background(), "p1")
	assert.ErrorIs(t, err, ErrForbidden)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "forbidden", apiErr.Message)

	status.Store(http.StatusNotFound)
	err = c.DeleteReply(context.Background(), "p1", "r1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrForbidden)

	status.Store(http.StatusInternalServerError)
	_, err = c.SetPostStatus(context.Background(), "p1", models.StatusRejected)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tkn" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(models.Event{Type: models.EventDeleted, PostID: "p1"})
		// Ждём, пока клиент закроет соединение
		conn.ReadMessage()
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := New(Session{BaseURL: ts.URL, Token: "bad"}, nil).Events(ctx)
	assert.ErrorIs(t, err, ErrForbidden)

	events, err := New(Session{BaseURL: ts.URL, Token: "tkn"}, nil).Events(ctx)
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, models.EventDeleted, ev.Type)
		assert.Equal(t, "p1", ev.PostID)
	case <-time.After(time.Second):
		assert.Fail(t, "Failed to receive event")
	}

	cancel()
	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(time.Second):
		assert.Fail(t, "Event channel was not closed")
	}
}
