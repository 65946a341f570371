package app

import (
	"github.com/gin-gonic/gin"

	"github.com/attestra/attestra-backend/internal/server"
)

func wireRouter(cfg Config, handlers Handlers, middleware Middleware) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		ServiceName:     cfg.ServiceName,
		AllowedOrigins:  cfg.AllowedOrigins,
		AuthHandler:     handlers.Auth,
		AuthMiddleware:  middleware.Auth,
		SessionHandler:  handlers.Session,
		EvidenceHandler: handlers.Evidence,
	})
}
