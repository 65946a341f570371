package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/attestra/attestra-backend/internal/handlers"
	"github.com/attestra/attestra-backend/internal/middleware"
)

type RouterConfig struct {
	ServiceName     string
	AllowedOrigins  []string
	AuthHandler     *handlers.AuthHandler
	AuthMiddleware  *middleware.AuthMiddleware
	SessionHandler  *handlers.SessionHandler
	EvidenceHandler *handlers.EvidenceHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "attestra"
	}
	router.Use(otelgin.Middleware(serviceName))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// Public
	router.GET("/healthcheck", handlers.HealthCheck)
	api := router.Group("/api")
	{
		api.POST("/register", cfg.AuthHandler.Register)
		api.POST("/login", cfg.AuthHandler.Login)
	}

	// Protected
	protected := api.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())

	protected.POST("/sessions", cfg.SessionHandler.StartSession)
	protected.GET("/sessions", cfg.SessionHandler.ListSessions)
	protected.GET("/sessions/:id", cfg.SessionHandler.GetSession)
	protected.POST("/sessions/:id/modules/:index/open", cfg.SessionHandler.OpenModule)
	protected.POST("/sessions/:id/modules/:index/scenarios", cfg.SessionHandler.SubmitScenarioResponse)
	protected.POST("/sessions/:id/modules/:index/quiz", cfg.SessionHandler.SubmitQuizAnswer)
	protected.POST("/sessions/:id/remediation", cfg.SessionHandler.StartRemediation)
	protected.POST("/sessions/:id/abandon", cfg.SessionHandler.Abandon)

	protected.GET("/sessions/:id/evidence", cfg.EvidenceHandler.GetSessionEvidence)
	protected.GET("/sessions/:id/evidence/verify", cfg.EvidenceHandler.VerifySessionEvidence)
	protected.GET("/sessions/:id/uploads", cfg.EvidenceHandler.ListSessionUploads)

	return router
}
