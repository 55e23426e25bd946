package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"homefind/internal/infra/config"
	"homefind/internal/infra/obs"
)

type Handlers struct {
	Chat           ChatHTTP
	Auth           AuthHTTP
	AuthMiddleware gin.HandlerFunc
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))
	if h.AuthMiddleware != nil {
		router.Use(h.AuthMiddleware)
	}

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	if h.Auth != nil {
		router.POST("/auth/register", h.Auth.Register)
		router.POST("/auth/login", h.Auth.Login)
		router.POST("/auth/logout", h.Auth.Logout)
		router.GET("/auth/me", h.Auth.Me)
	}
	if h.Chat != nil {
		messages := router.Group("/messages")
		messages.POST("/create", h.Chat.CreateMessage)
		messages.GET("/conversations", h.Chat.GetConversations)
		messages.GET("/:conversationId", h.Chat.GetMessages)
		messages.PUT("/read/:conversationId", h.Chat.MarkAsRead)
		messages.DELETE("/delete/:messageId", h.Chat.DeleteMessage)
		messages.DELETE("/conversation/:conversationId", h.Chat.DeleteConversation)
	}

	return &http.Server{Addr: cfg.HTTPAddr, Handler: router}
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
