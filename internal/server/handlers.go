package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MosinFAM/forum-moderation/internal/metrics"
	"github.com/MosinFAM/forum-moderation/internal/moderation"
	"github.com/MosinFAM/forum-moderation/internal/models"
	"github.com/MosinFAM/forum-moderation/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

type createPostRequest struct {
	Author  string `json:"author"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type moderationQuery struct {
	Search  string `form:"search"`
	Pending bool   `form:"pending"`
}

type createReplyRequest struct {
	Author   string  `json:"author"`
	Content  string  `json:"content"`
	ParentID *string `json:"parentId"`
}

// listModeration отдаёт деревья и сводку; summary всегда по полному списку
func (s *Server) listModeration(c *gin.Context) {
	var q moderationQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query: " + err.Error()})
		return
	}

	posts, err := s.Storage.GetModerationPosts(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	summary := moderation.Summarize(posts)
	metrics.PendingNodes.Set(float64(summary.Pending))

	search := q.Search
	switch {
	case q.Pending:
		posts = moderation.FilterPending(posts, search)
	case search != "":
		matched := make([]models.Node, 0, len(posts))
		for _, p := range posts {
			if moderation.MatchesSearch(p, search) {
				matched = append(matched, p)
			}
		}
		posts = matched
	}
	if posts == nil {
		posts = []models.Node{}
	}

	c.JSON(http.StatusOK, models.ModerationList{Posts: posts, Summary: summary})
}

func (s *Server) summary(c *gin.Context) {
	posts, err := s.Storage.GetModerationPosts(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	summary := moderation.Summarize(posts)
	metrics.PendingNodes.Set(float64(summary.Pending))
	c.JSON(http.StatusOK, summary)
}

func (s *Server) setPostStatus(c *gin.Context) {
	s.setStatus(c, c.Param("postId"), nil)
}

func (s *Server) setReplyStatus(c *gin.Context) {
	replyID := c.Param("replyId")
	s.setStatus(c, c.Param("postId"), &replyID)
}

func (s *Server) setStatus(c *gin.Context, postID string, replyID *string) {
	var body models.StatusUpdate
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !body.Status.Final() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be approved or rejected"})
		return
	}

	var (
		node models.Node
		err  error
	)
	ctx := c.Request.Context()
	if replyID == nil {
		node, err = s.Storage.SetPostStatus(ctx, postID, body.Status)
	} else {
		node, err = s.Storage.SetReplyStatus(ctx, postID, *replyID, body.Status)
	}
	if err != nil {
		writeError(c, err)
		return
	}

	metrics.ModerationActions.WithLabelValues(string(body.Status), kind(replyID)).Inc()
	log.WithFields(log.Fields{"post_id": postID, "reply_id": deref(replyID), "status": body.Status}).Info("Status updated")
	s.Hub.Publish(models.Event{
		Type:    models.EventStatusChanged,
		PostID:  postID,
		ReplyID: replyID,
		Status:  node.Status,
		At:      time.Now().UTC(),
	})
	c.JSON(http.StatusOK, node)
}

func (s *Server) deletePost(c *gin.Context) {
	s.delete(c, c.Param("postId"), nil)
}

func (s *Server) deleteReply(c *gin.Context) {
	replyID := c.Param("replyId")
	s.delete(c, c.Param("postId"), &replyID)
}

func (s *Server) delete(c *gin.Context, postID string, replyID *string) {
	ctx := c.Request.Context()
	var err error
	if replyID == nil {
		err = s.Storage.DeletePost(ctx, postID)
	} else {
		err = s.Storage.DeleteReply(ctx, postID, *replyID)
	}
	if err != nil {
		writeError(c, err)
		return
	}

	metrics.ModerationActions.WithLabelValues("deleted", kind(replyID)).Inc()
	log.WithFields(log.Fields{"post_id": postID, "reply_id": deref(replyID)}).Info("Node deleted")
	s.Hub.Publish(models.Event{Type: models.EventDeleted, PostID: postID, ReplyID: replyID, At: time.Now().UTC()})
	c.Status(http.StatusNoContent)
}

func (s *Server) createPost(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	post, err := s.Storage.AddPost(c.Request.Context(), req.Author, req.Title, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	s.Hub.Publish(models.Event{Type: models.EventCreated, PostID: post.ID, Status: post.Status, At: post.Date})
	c.JSON(http.StatusCreated, post)
}

func (s *Server) createReply(c *gin.Context) {
	var req createReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	postID := c.Param("postId")
	reply, err := s.Storage.AddReply(c.Request.Context(), postID, req.ParentID, req.Author, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	replyID := reply.ID
	s.Hub.Publish(models.Event{Type: models.EventCreated, PostID: postID, ReplyID: &replyID, Status: reply.Status, At: reply.Date})
	c.JSON(http.StatusCreated, reply)
}

// streamEvents переводит соединение на websocket и пишет события до отключения клиента
func (s *Server) streamEvents(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, unsubscribe := s.Hub.Subscribe()
	defer unsubscribe()
	metrics.EventSubscribers.Inc()
	defer metrics.EventSubscribers.Dec()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Читаем только ради обнаружения закрытия соединения
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscriber too slow"),
					time.Now().Add(writeWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				log.WithError(err).Debug("Websocket write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// writeError переводит доменные ошибки в HTTP-статусы
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, moderation.ErrPostNotFound), errors.Is(err, moderation.ErrReplyNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidStatus),
		errors.Is(err, storage.ErrEmptyField),
		errors.Is(err, storage.ErrContentTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.WithError(err).WithField("path", c.Request.URL.Path).Error("Storage error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func kind(replyID *string) string {
	if replyID == nil {
		return "post"
	}
	return "reply"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
