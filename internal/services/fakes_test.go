package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/attestra/attestra-backend/internal/pkg/errs"
	"github.com/attestra/attestra-backend/internal/pkg/logger"
	"github.com/attestra/attestra-backend/internal/platform/contentai"
	"github.com/attestra/attestra-backend/internal/types"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

// --- session repo ---

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*types.TrainingSession
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[uuid.UUID]*types.TrainingSession)}
}

func (r *fakeSessionRepo) Create(ctx context.Context, tx *gorm.DB, row *types.TrainingSession) (*types.TrainingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row.Version == 0 {
		row.Version = 1
	}
	cp := *row
	r.sessions[row.ID] = &cp
	return row, nil
}

func (r *fakeSessionRepo) GetByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) (*types.TrainingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.sessions[id]
	if !ok || row.TenantID != tenantID {
		return nil, errs.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *fakeSessionRepo) GetActiveByEmployee(ctx context.Context, tx *gorm.DB, tenantID, employeeID uuid.UUID) (*types.TrainingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.sessions {
		if row.TenantID == tenantID && row.EmployeeID == employeeID && !isTerminalStatus(row.Status) {
			cp := *row
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (r *fakeSessionRepo) ListByEmployee(ctx context.Context, tx *gorm.DB, tenantID, employeeID uuid.UUID) ([]*types.TrainingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.TrainingSession
	for _, row := range r.sessions {
		if row.TenantID == tenantID && row.EmployeeID == employeeID {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) UpdateVersioned(ctx context.Context, tx *gorm.DB, row *types.TrainingSession, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[row.ID]
	if !ok || stored.TenantID != row.TenantID {
		return errs.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return errs.ErrVersionConflict
	}
	cp := *row
	cp.Version = expectedVersion + 1
	cp.UpdatedAt = time.Now().UTC()
	r.sessions[row.ID] = &cp
	row.Version = cp.Version
	return nil
}

func (r *fakeSessionRepo) Delete(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.sessions[id]
	if !ok || row.TenantID != tenantID {
		return errs.ErrNotFound
	}
	delete(r.sessions, id)
	return nil
}

func isTerminalStatus(status string) bool {
	return status == "passed" || status == "exhausted" || status == "abandoned"
}

// --- module repo ---

type fakeModuleRepo struct {
	mu      sync.Mutex
	modules map[uuid.UUID]*types.TrainingModule
}

func newFakeModuleRepo() *fakeModuleRepo {
	return &fakeModuleRepo{modules: make(map[uuid.UUID]*types.TrainingModule)}
}

func (r *fakeModuleRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.TrainingModule) ([]*types.TrainingModule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range rows {
		if row.Version == 0 {
			row.Version = 1
		}
		cp := *row
		r.modules[row.ID] = &cp
	}
	return rows, nil
}

func (r *fakeModuleRepo) GetBySession(ctx context.Context, tx *gorm.DB, tenantID, sessionID uuid.UUID) ([]*types.TrainingModule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.TrainingModule
	for _, row := range r.modules {
		if row.TenantID == tenantID && row.SessionID == sessionID {
			cp := *row
			out = append(out, &cp)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].ModuleIndex < out[i].ModuleIndex {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (r *fakeModuleRepo) GetBySessionAndIndex(ctx context.Context, tx *gorm.DB, tenantID, sessionID uuid.UUID, moduleIndex int) (*types.TrainingModule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.modules {
		if row.TenantID == tenantID && row.SessionID == sessionID && row.ModuleIndex == moduleIndex {
			cp := *row
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (r *fakeModuleRepo) UpdateVersioned(ctx context.Context, tx *gorm.DB, row *types.TrainingModule, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.modules[row.ID]
	if !ok {
		return errs.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return errs.ErrVersionConflict
	}
	cp := *row
	cp.Version = expectedVersion + 1
	r.modules[row.ID] = &cp
	row.Version = cp.Version
	return nil
}

// --- evidence repo ---

type fakeEvidenceRepo struct {
	mu       sync.Mutex
	evidence map[uuid.UUID]*types.TrainingEvidence
}

func newFakeEvidenceRepo() *fakeEvidenceRepo {
	return &fakeEvidenceRepo{evidence: make(map[uuid.UUID]*types.TrainingEvidence)}
}

func (r *fakeEvidenceRepo) Create(ctx context.Context, tx *gorm.DB, row *types.TrainingEvidence) (*types.TrainingEvidence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.evidence {
		if existing.TenantID == row.TenantID && existing.SessionID == row.SessionID {
			cp := *existing
			return &cp, nil
		}
	}
	cp := *row
	r.evidence[row.ID] = &cp
	return row, nil
}

func (r *fakeEvidenceRepo) GetByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) (*types.TrainingEvidence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.evidence[id]
	if !ok || row.TenantID != tenantID {
		return nil, errs.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *fakeEvidenceRepo) GetBySessionID(ctx context.Context, tx *gorm.DB, tenantID, sessionID uuid.UUID) (*types.TrainingEvidence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.evidence {
		if row.TenantID == tenantID && row.SessionID == sessionID {
			cp := *row
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

// --- upload repo ---

type fakeUploadRepo struct {
	mu      sync.Mutex
	uploads map[uuid.UUID]*types.ComplianceUpload
}

func newFakeUploadRepo() *fakeUploadRepo {
	return &fakeUploadRepo{uploads: make(map[uuid.UUID]*types.ComplianceUpload)}
}

func (r *fakeUploadRepo) Create(ctx context.Context, tx *gorm.DB, row *types.ComplianceUpload) (*types.ComplianceUpload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.uploads {
		if existing.TenantID == row.TenantID && existing.EvidenceID == row.EvidenceID && existing.Provider == row.Provider {
			return nil, fmt.Errorf("duplicate upload: %w", errs.ErrConflict)
		}
	}
	cp := *row
	r.uploads[row.ID] = &cp
	return row, nil
}

func (r *fakeUploadRepo) GetByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) (*types.ComplianceUpload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.uploads[id]
	if !ok || row.TenantID != tenantID {
		return nil, errs.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *fakeUploadRepo) GetByEvidenceAndProvider(ctx context.Context, tx *gorm.DB, tenantID, evidenceID uuid.UUID, provider string) (*types.ComplianceUpload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.uploads {
		if row.TenantID == tenantID && row.EvidenceID == evidenceID && row.Provider == provider {
			cp := *row
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (r *fakeUploadRepo) GetBySessionID(ctx context.Context, tx *gorm.DB, tenantID, sessionID uuid.UUID) ([]*types.ComplianceUpload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.ComplianceUpload
	for _, row := range r.uploads {
		if row.TenantID == tenantID && row.SessionID == sessionID {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeUploadRepo) ListPending(ctx context.Context, tx *gorm.DB, limit int) ([]*types.ComplianceUpload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.ComplianceUpload
	for _, row := range r.uploads {
		if row.Status == types.UploadStatusPending {
			cp := *row
			out = append(out, &cp)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeUploadRepo) UpdateFields(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.uploads[id]
	if !ok || row.TenantID != tenantID {
		return errs.ErrNotFound
	}
	if row.Status != types.UploadStatusPending {
		return fmt.Errorf("upload %s is already terminal: %w", id, errs.ErrConflict)
	}
	for k, v := range fields {
		switch k {
		case "status":
			row.Status = v.(string)
		case "attempt_count":
			row.AttemptCount = v.(int)
		case "provider_ref":
			s := v.(string)
			row.ProviderRef = &s
		case "last_error":
			s := v.(string)
			row.LastError = &s
		case "last_error_code":
			s := v.(string)
			row.LastErrorCode = &s
		case "retryable":
			row.Retryable = v.(bool)
		case "completed_at":
			if v == nil {
				row.CompletedAt = nil
			} else {
				t := v.(time.Time)
				row.CompletedAt = &t
			}
		}
	}
	row.UpdatedAt = time.Now().UTC()
	return nil
}

// --- employee repo ---

type fakeEmployeeRepo struct {
	mu        sync.Mutex
	employees map[uuid.UUID]*types.Employee
}

func newFakeEmployeeRepo() *fakeEmployeeRepo {
	return &fakeEmployeeRepo{employees: make(map[uuid.UUID]*types.Employee)}
}

func (r *fakeEmployeeRepo) Create(ctx context.Context, tx *gorm.DB, row *types.Employee) (*types.Employee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *row
	r.employees[row.ID] = &cp
	return row, nil
}

func (r *fakeEmployeeRepo) GetByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) (*types.Employee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.employees[id]
	if !ok || row.TenantID != tenantID {
		return nil, errs.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *fakeEmployeeRepo) GetByEmail(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, email string) (*types.Employee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.employees {
		if row.TenantID == tenantID && row.Email == email {
			cp := *row
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

// --- tenant config ---

type fakeTenantConfig struct {
	tenant     *types.Tenant
	policy     TrainingPolicy
	compliance *ComplianceConfig
}

func (f *fakeTenantConfig) GetTenant(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID) (*types.Tenant, error) {
	if f.tenant == nil || f.tenant.ID != tenantID {
		return nil, errs.ErrNotFound
	}
	return f.tenant, nil
}

func (f *fakeTenantConfig) TrainingPolicy(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID) (TrainingPolicy, error) {
	return f.policy, nil
}

func (f *fakeTenantConfig) ComplianceConfig(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID) (*ComplianceConfig, error) {
	return f.compliance, nil
}

func (f *fakeTenantConfig) PolicyConfigHash(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID) (string, error) {
	return "testpolicyhash", nil
}

func (f *fakeTenantConfig) Invalidate(ctx context.Context, tenantID uuid.UUID) {}

// --- audit ---

type fakeAudit struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeAudit) Record(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, employeeID *uuid.UUID, eventType string, metadata map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
}

func (f *fakeAudit) ListByTenant(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, limit int) ([]*types.AuditEvent, error) {
	return nil, nil
}

func (f *fakeAudit) has(eventType string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e == eventType {
			return true
		}
	}
	return false
}

// --- dispatcher that runs jobs inline ---

type syncDispatcher struct{}

func (syncDispatcher) Submit(name string, job func(ctx context.Context)) bool {
	job(context.Background())
	return true
}

func (syncDispatcher) Shutdown(ctx context.Context) error { return nil }

// --- compliance service recorder ---

type fakeCompliance struct {
	mu         sync.Mutex
	dispatched []uuid.UUID
}

func (f *fakeCompliance) DispatchUpload(ctx context.Context, tx *gorm.DB, tenantID, evidenceID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, evidenceID)
	return nil
}

func (f *fakeCompliance) RunUpload(ctx context.Context, tenantID, uploadID uuid.UUID) {}

func (f *fakeCompliance) RecoverPending(ctx context.Context) error { return nil }

func (f *fakeCompliance) ListBySession(ctx context.Context, tx *gorm.DB, tenantID, sessionID uuid.UUID) ([]*types.ComplianceUpload, error) {
	return nil, nil
}

// --- content client ---

type fakeContent struct {
	curriculum    *types.CurriculumOutline
	moduleContent *types.ModuleContent
	scenarioScore float64

	// onGenerateCurriculum, when set, observes state mid-generation.
	onGenerateCurriculum func()
}

func (f *fakeContent) GenerateCurriculum(ctx context.Context, req contentai.GenerateCurriculumRequest) (*types.CurriculumOutline, error) {
	if f.onGenerateCurriculum != nil {
		f.onGenerateCurriculum()
	}
	if f.curriculum == nil {
		return nil, errs.ErrUnavailable
	}
	return f.curriculum, nil
}

func (f *fakeContent) GenerateModuleContent(ctx context.Context, req contentai.GenerateModuleContentRequest) (*types.ModuleContent, error) {
	if f.moduleContent == nil {
		return nil, errs.ErrUnavailable
	}
	return f.moduleContent, nil
}

func (f *fakeContent) EvaluateScenario(ctx context.Context, req contentai.EvaluateScenarioRequest) (*contentai.ScenarioEvaluation, error) {
	return &contentai.ScenarioEvaluation{Score: f.scenarioScore, Rationale: "graded"}, nil
}
