package app

import (
	"gorm.io/gorm"

	"github.com/attestra/attestra-backend/internal/pkg/logger"
	"github.com/attestra/attestra-backend/internal/repos"
)

type Repos struct {
	Tenant   repos.TenantRepo
	Employee repos.EmployeeRepo
	Session  repos.TrainingSessionRepo
	Module   repos.TrainingModuleRepo
	Evidence repos.TrainingEvidenceRepo
	Upload   repos.ComplianceUploadRepo
	Audit    repos.AuditEventRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Tenant:   repos.NewTenantRepo(db, log),
		Employee: repos.NewEmployeeRepo(db, log),
		Session:  repos.NewTrainingSessionRepo(db, log),
		Module:   repos.NewTrainingModuleRepo(db, log),
		Evidence: repos.NewTrainingEvidenceRepo(db, log),
		Upload:   repos.NewComplianceUploadRepo(db, log),
		Audit:    repos.NewAuditEventRepo(db, log),
	}
}
