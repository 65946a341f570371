package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/attestra/attestra-backend/internal/pkg/canonical"
	"github.com/attestra/attestra-backend/internal/pkg/logger"
	"github.com/attestra/attestra-backend/internal/platform/redisx"
	"github.com/attestra/attestra-backend/internal/repos"
	"github.com/attestra/attestra-backend/internal/types"
)

// Training policy defaults applied when a tenant leaves a field unset.
const (
	DefaultPassThreshold = 0.7
	DefaultMaxAttempts   = 3

	DefaultUploadMaxAttempts    = 5
	DefaultUploadInitialDelayMs = 5000
	DefaultUploadMaxDelayMs     = 300000
)

const tenantCacheTTL = 5 * time.Minute

// TrainingPolicy is the per-tenant knob set that governs evaluation.
type TrainingPolicy struct {
	PassThreshold float64 `json:"passThreshold"`
	MaxAttempts   int     `json:"maxAttempts"`
}

// RetryPolicy bounds the compliance upload retry loop.
type RetryPolicy struct {
	MaxAttempts    int `json:"maxAttempts"`
	InitialDelayMs int `json:"initialDelayMs"`
	MaxDelayMs     int `json:"maxDelayMs"`
}

func (p RetryPolicy) InitialDelay() time.Duration {
	return time.Duration(p.InitialDelayMs) * time.Millisecond
}

func (p RetryPolicy) MaxDelay() time.Duration {
	return time.Duration(p.MaxDelayMs) * time.Millisecond
}

// ComplianceConfig selects and parameterizes the tenant's upload provider.
// Credential is opaque to the engine and only ever handed to the provider.
type ComplianceConfig struct {
	Provider   string      `json:"provider"`
	Credential string      `json:"credential"`
	Target     string      `json:"target"`
	Retry      RetryPolicy `json:"retry"`
}

// TenantConfigService resolves per-tenant policy with defaults applied and
// computes the canonical hash that pins sessions to the policy they started
// under.
type TenantConfigService interface {
	GetTenant(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID) (*types.Tenant, error)
	TrainingPolicy(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID) (TrainingPolicy, error)
	ComplianceConfig(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID) (*ComplianceConfig, error)
	PolicyConfigHash(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID) (string, error)
	Invalidate(ctx context.Context, tenantID uuid.UUID)
}

type tenantConfigService struct {
	db         *gorm.DB
	log        *logger.Logger
	tenantRepo repos.TenantRepo
	cache      redisx.Cache
}

// NewTenantConfigService builds the config resolver; cache may be nil, in
// which case every read goes to the database.
func NewTenantConfigService(db *gorm.DB, baseLog *logger.Logger, tenantRepo repos.TenantRepo, cache redisx.Cache) TenantConfigService {
	return &tenantConfigService{
		db:         db,
		log:        baseLog.With("service", "TenantConfigService"),
		tenantRepo: tenantRepo,
		cache:      cache,
	}
}

func tenantCacheKey(tenantID uuid.UUID) string {
	return "tenant_config:" + tenantID.String()
}

type cachedTenantConfig struct {
	Slug             string          `json:"slug"`
	DisplayName      string          `json:"display_name"`
	TrainingPolicy   json.RawMessage `json:"training_policy,omitempty"`
	ComplianceConfig json.RawMessage `json:"compliance_config,omitempty"`
}

func (s *tenantConfigService) GetTenant(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID) (*types.Tenant, error) {
	if s.cache != nil {
		var cached cachedTenantConfig
		if err := s.cache.GetJSON(ctx, tenantCacheKey(tenantID), &cached); err == nil {
			return &types.Tenant{
				ID:               tenantID,
				Slug:             cached.Slug,
				DisplayName:      cached.DisplayName,
				TrainingPolicy:   []byte(cached.TrainingPolicy),
				ComplianceConfig: []byte(cached.ComplianceConfig),
			}, nil
		}
	}

	tenant, err := s.tenantRepo.GetByID(ctx, tx, tenantID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		entry := cachedTenantConfig{
			Slug:             tenant.Slug,
			DisplayName:      tenant.DisplayName,
			TrainingPolicy:   json.RawMessage(tenant.TrainingPolicy),
			ComplianceConfig: json.RawMessage(tenant.ComplianceConfig),
		}
		if err := s.cache.SetJSON(ctx, tenantCacheKey(tenantID), entry, tenantCacheTTL); err != nil {
			s.log.Warn("failed to cache tenant config", "tenant_id", tenantID, "error", err)
		}
	}
	return tenant, nil
}

func (s *tenantConfigService) TrainingPolicy(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID) (TrainingPolicy, error) {
	tenant, err := s.GetTenant(ctx, tx, tenantID)
	if err != nil {
		return TrainingPolicy{}, err
	}
	return resolveTrainingPolicy(tenant.TrainingPolicy)
}

func resolveTrainingPolicy(raw []byte) (TrainingPolicy, error) {
	policy := TrainingPolicy{
		PassThreshold: DefaultPassThreshold,
		MaxAttempts:   DefaultMaxAttempts,
	}
	if len(raw) == 0 {
		return policy, nil
	}

	var overrides struct {
		PassThreshold *float64 `json:"passThreshold"`
		MaxAttempts   *int     `json:"maxAttempts"`
	}
	if err := json.Unmarshal(raw, &overrides); err != nil {
		return TrainingPolicy{}, fmt.Errorf("decode training policy: %w", err)
	}
	if overrides.PassThreshold != nil {
		policy.PassThreshold = *overrides.PassThreshold
	}
	if overrides.MaxAttempts != nil {
		policy.MaxAttempts = *overrides.MaxAttempts
	}

	if policy.PassThreshold < 0 || policy.PassThreshold > 1 {
		return TrainingPolicy{}, fmt.Errorf("pass threshold %.4f out of [0,1]", policy.PassThreshold)
	}
	if policy.MaxAttempts < 1 {
		return TrainingPolicy{}, fmt.Errorf("max attempts %d must be >= 1", policy.MaxAttempts)
	}
	return policy, nil
}

// ComplianceConfig returns nil when the tenant has no upload destination
// configured; that is a normal state, not an error.
func (s *tenantConfigService) ComplianceConfig(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID) (*ComplianceConfig, error) {
	tenant, err := s.GetTenant(ctx, tx, tenantID)
	if err != nil {
		return nil, err
	}
	return resolveComplianceConfig(tenant.ComplianceConfig)
}

func resolveComplianceConfig(raw []byte) (*ComplianceConfig, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var cfg ComplianceConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode compliance config: %w", err)
	}
	if cfg.Provider == "" {
		return nil, nil
	}

	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = DefaultUploadMaxAttempts
	}
	if cfg.Retry.InitialDelayMs <= 0 {
		cfg.Retry.InitialDelayMs = DefaultUploadInitialDelayMs
	}
	if cfg.Retry.MaxDelayMs <= 0 {
		cfg.Retry.MaxDelayMs = DefaultUploadMaxDelayMs
	}
	return &cfg, nil
}

// PolicyConfigHash hashes the effective policy (defaults applied), so two
// tenants with the same knobs share a hash regardless of JSON spelling.
func (s *tenantConfigService) PolicyConfigHash(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID) (string, error) {
	policy, err := s.TrainingPolicy(ctx, tx, tenantID)
	if err != nil {
		return "", err
	}
	return canonical.Hash(policy)
}

func (s *tenantConfigService) Invalidate(ctx context.Context, tenantID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, tenantCacheKey(tenantID)); err != nil {
		s.log.Warn("failed to invalidate tenant config cache", "tenant_id", tenantID, "error", err)
	}
}
