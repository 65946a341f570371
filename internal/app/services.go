package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/attestra/attestra-backend/internal/pkg/logger"
	"github.com/attestra/attestra-backend/internal/services"
)

type Services struct {
	Auth         services.AuthService
	TenantConfig services.TenantConfigService
	Audit        services.AuditService
	Dispatcher   services.Dispatcher
	Compliance   services.ComplianceService
	Evidence     services.EvidenceService
	Session      services.SessionService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	authService, err := services.NewAuthService(db, log, repos.Tenant, repos.Employee, cfg.JWTSecretKey, cfg.AccessTokenTTL)
	if err != nil {
		return Services{}, fmt.Errorf("init auth service: %w", err)
	}

	tenantConfig := services.NewTenantConfigService(db, log, repos.Tenant, clients.Cache)
	auditService := services.NewAuditService(db, log, repos.Audit)
	dispatcher := services.NewDispatcher(log, cfg.DispatchWorkers, cfg.DispatchQueueSize)

	complianceService := services.NewComplianceService(
		db, log,
		repos.Upload,
		repos.Evidence,
		repos.Employee,
		tenantConfig,
		clients.Providers,
		clients.Renderer,
		dispatcher,
		auditService,
	)

	evidenceService := services.NewEvidenceService(
		db, log,
		repos.Session,
		repos.Module,
		repos.Evidence,
		tenantConfig,
		complianceService,
		auditService,
	)

	sessionService := services.NewSessionService(
		db, log,
		repos.Session,
		repos.Module,
		repos.Employee,
		tenantConfig,
		clients.ContentAI,
		evidenceService,
		auditService,
		cfg.AppVersion,
	)

	return Services{
		Auth:         authService,
		TenantConfig: tenantConfig,
		Audit:        auditService,
		Dispatcher:   dispatcher,
		Compliance:   complianceService,
		Evidence:     evidenceService,
		Session:      sessionService,
	}, nil
}
