package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"

	"github.com/attestra/attestra-backend/internal/db"
	"github.com/attestra/attestra-backend/internal/pkg/errs"
	"github.com/attestra/attestra-backend/internal/pkg/logger"
	"github.com/attestra/attestra-backend/internal/repos"
	"github.com/attestra/attestra-backend/internal/types"
	"github.com/attestra/attestra-backend/internal/utils"
)

// Seeds a development tenant and employee so the API is usable immediately
// after first boot. Safe to re-run: existing rows are left alone.
func main() {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	pg, err := db.New(log)
	if err != nil {
		log.Error("Database init failed", "error", err)
		os.Exit(1)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Error("Auto migration failed", "error", err)
		os.Exit(1)
	}
	theDB := pg.DB()

	tenantRepo := repos.NewTenantRepo(theDB, log)
	employeeRepo := repos.NewEmployeeRepo(theDB, log)
	ctx := context.Background()

	slug := utils.GetEnv("SEED_TENANT_SLUG", "acme", log)
	tenant, err := tenantRepo.GetBySlug(ctx, nil, slug)
	switch {
	case err == nil:
		log.Info("Tenant already seeded", "slug", slug)
	case errors.Is(err, errs.ErrNotFound):
		tenant, err = tenantRepo.Create(ctx, nil, &types.Tenant{
			Slug:           slug,
			DisplayName:    utils.GetEnv("SEED_TENANT_NAME", "Acme Corp", log),
			TrainingPolicy: datatypes.JSON([]byte(`{"passThreshold":0.7,"maxAttempts":3}`)),
		})
		if err != nil {
			log.Error("Failed to seed tenant", "error", err)
			os.Exit(1)
		}
		log.Info("Seeded tenant", "slug", slug, "tenant_id", tenant.ID)
	default:
		log.Error("Failed to look up tenant", "error", err)
		os.Exit(1)
	}

	email := utils.GetEnv("SEED_EMPLOYEE_EMAIL", "employee@example.com", log)
	if _, err := employeeRepo.GetByEmail(ctx, nil, tenant.ID, email); err == nil {
		log.Info("Employee already seeded", "email", email)
		return
	} else if !errors.Is(err, errs.ErrNotFound) {
		log.Error("Failed to look up employee", "error", err)
		os.Exit(1)
	}

	password := utils.GetEnv("SEED_EMPLOYEE_PASSWORD", "changeme123", log)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", "error", err)
		os.Exit(1)
	}

	emp, err := employeeRepo.Create(ctx, nil, &types.Employee{
		TenantID:      tenant.ID,
		Email:         email,
		FirstName:     "Sample",
		LastName:      "Employee",
		PasswordHash:  string(hash),
		RoleProfileID: utils.GetEnv("SEED_ROLE_PROFILE", "analyst", log),
	})
	if err != nil {
		log.Error("Failed to seed employee", "error", err)
		os.Exit(1)
	}
	log.Info("Seeded employee", "email", email, "employee_id", emp.ID)
}
