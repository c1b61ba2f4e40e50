package server

import (
	"net/http"

	"github.com/MosinFAM/forum-moderation/internal/events"
	"github.com/MosinFAM/forum-moderation/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// Server - HTTP API модерации
type Server struct {
	Storage     storage.Storage
	Hub         *events.Hub
	Auth        *Authenticator
	Limiter     *RateLimiter
	CORSOrigins []string

	upgrader websocket.Upgrader
}

func New(store storage.Storage, hub *events.Hub, auth *Authenticator, limiter *RateLimiter, corsOrigins []string) *Server {
	return &Server{
		Storage:     store,
		Hub:         hub,
		Auth:        auth,
		Limiter:     limiter,
		CORSOrigins: corsOrigins,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Router собирает маршруты gin
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(), Metrics())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	mod := r.Group("/api/posts/moderation", s.Auth.RequireAdmin())
	{
		mod.GET("", s.listModeration)
		mod.GET("/summary", s.summary)
		mod.GET("/events", s.streamEvents)
		mod.PUT("/posts/:postId/status", s.setPostStatus)
		mod.PUT("/replies/:postId/:replyId/status", s.setReplyStatus)
		mod.DELETE("/posts/:postId", s.deletePost)
		mod.DELETE("/replies/:postId/:replyId", s.deleteReply)
	}

	forum := r.Group("/api/forum", s.Limiter.Middleware())
	{
		forum.POST("/posts", s.createPost)
		forum.POST("/posts/:postId/replies", s.createReply)
	}

	return r
}

// Handler - роутер, обёрнутый в CORS
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.CORSOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
	})
	return c.Handler(s.Router())
}
