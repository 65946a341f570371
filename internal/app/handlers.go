package app

import (
	"github.com/attestra/attestra-backend/internal/handlers"
	"github.com/attestra/attestra-backend/internal/pkg/logger"
)

type Handlers struct {
	Auth     *handlers.AuthHandler
	Session  *handlers.SessionHandler
	Evidence *handlers.EvidenceHandler
}

func wireHandlers(log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Auth:     handlers.NewAuthHandler(services.Auth),
		Session:  handlers.NewSessionHandler(log, services.Session),
		Evidence: handlers.NewEvidenceHandler(log, services.Evidence, services.Compliance),
	}
}
