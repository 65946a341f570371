package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/attestra/attestra-backend/internal/pkg/errs"
	"github.com/attestra/attestra-backend/internal/pkg/logger"
	"github.com/attestra/attestra-backend/internal/repos"
	"github.com/attestra/attestra-backend/internal/requestdata"
	"github.com/attestra/attestra-backend/internal/types"
)

type AuthService interface {
	RegisterEmployee(ctx context.Context, tenantSlug string, emp *types.Employee, password string) (*types.Employee, error)
	Login(ctx context.Context, tenantSlug, email, password string) (string, *types.Employee, error)
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
}

type authService struct {
	db           *gorm.DB
	log          *logger.Logger
	tenantRepo   repos.TenantRepo
	employeeRepo repos.EmployeeRepo
	jwtSecretKey string
	accessTTL    time.Duration
}

func NewAuthService(db *gorm.DB, baseLog *logger.Logger, tenantRepo repos.TenantRepo, employeeRepo repos.EmployeeRepo, jwtSecretKey string, accessTTL time.Duration) (AuthService, error) {
	if strings.TrimSpace(jwtSecretKey) == "" {
		return nil, fmt.Errorf("jwt secret key required")
	}
	if accessTTL <= 0 {
		accessTTL = 24 * time.Hour
	}
	return &authService{
		db:           db,
		log:          baseLog.With("service", "AuthService"),
		tenantRepo:   tenantRepo,
		employeeRepo: employeeRepo,
		jwtSecretKey: jwtSecretKey,
		accessTTL:    accessTTL,
	}, nil
}

func (as *authService) RegisterEmployee(ctx context.Context, tenantSlug string, emp *types.Employee, password string) (*types.Employee, error) {
	if emp == nil {
		return nil, fmt.Errorf("nil employee: %w", errs.ErrInvalidArgument)
	}
	email := strings.ToLower(strings.TrimSpace(emp.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid email: %w", errs.ErrInvalidArgument)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("password too short: %w", errs.ErrInvalidArgument)
	}
	if strings.TrimSpace(emp.RoleProfileID) == "" {
		return nil, fmt.Errorf("role profile required: %w", errs.ErrInvalidArgument)
	}

	tenant, err := as.tenantRepo.GetBySlug(ctx, nil, tenantSlug)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	emp.ID = uuid.New()
	emp.TenantID = tenant.ID
	emp.Email = email
	emp.PasswordHash = string(hash)

	var created *types.Employee
	err = as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := as.employeeRepo.Create(ctx, tx, emp)
		if err != nil {
			if repos.IsUniqueViolation(err) {
				return fmt.Errorf("email already registered: %w", errs.ErrConflict)
			}
			return err
		}
		created = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (as *authService) Login(ctx context.Context, tenantSlug, email, password string) (string, *types.Employee, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	tenant, err := as.tenantRepo.GetBySlug(ctx, nil, tenantSlug)
	if err != nil {
		return "", nil, errs.ErrUnauthorized
	}

	emp, err := as.employeeRepo.GetByEmail(ctx, nil, tenant.ID, email)
	if err != nil {
		return "", nil, errs.ErrUnauthorized
	}

	if err := bcrypt.CompareHashAndPassword([]byte(emp.PasswordHash), []byte(password)); err != nil {
		return "", nil, errs.ErrUnauthorized
	}

	token, err := as.generateAccessToken(tenant.ID, emp.ID)
	if err != nil {
		return "", nil, fmt.Errorf("generate access token: %w", err)
	}
	return token, emp, nil
}

func (as *authService) generateAccessToken(tenantID, employeeID uuid.UUID) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":       employeeID.String(),
		"tenant_id": tenantID.String(),
		"iat":       now.Unix(),
		"exp":       now.Add(as.accessTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(as.jwtSecretKey))
}

// SetContextFromToken validates the bearer token and attaches the caller's
// tenant and employee identity to the context.
func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return ctx, errs.ErrUnauthorized
	}

	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(as.jwtSecretKey), nil
	})
	if err != nil || !parsed.Valid {
		return ctx, errs.ErrUnauthorized
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return ctx, errs.ErrUnauthorized
	}

	sub, _ := claims["sub"].(string)
	tenantStr, _ := claims["tenant_id"].(string)
	employeeID, err := uuid.Parse(sub)
	if err != nil {
		return ctx, errs.ErrUnauthorized
	}
	tenantID, err := uuid.Parse(tenantStr)
	if err != nil {
		return ctx, errs.ErrUnauthorized
	}

	rd := &requestdata.RequestData{
		TokenString: tokenString,
		TenantID:    tenantID,
		EmployeeID:  employeeID,
	}
	return requestdata.WithRequestData(ctx, rd), nil
}
