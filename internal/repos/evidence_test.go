package repos

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/attestra/attestra-backend/internal/lifecycle"
	"github.com/attestra/attestra-backend/internal/pkg/errs"
	"github.com/attestra/attestra-backend/internal/repos/testutil"
	"github.com/attestra/attestra-backend/internal/types"
)

func TestTrainingEvidenceRepoDuplicateSessionReturnsWinner(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewTrainingEvidenceRepo(db, testutil.Logger(t))

	tn := testutil.SeedTenant(t, ctx, tx, "acme-evidence")
	emp := testutil.SeedEmployee(t, ctx, tx, tn.ID, "evidence@acme.test")
	sess := testutil.SeedSession(t, ctx, tx, tn.ID, emp.ID, lifecycle.StatusPassed)

	first := &types.TrainingEvidence{
		ID:            uuid.New(),
		TenantID:      tn.ID,
		SessionID:     sess.ID,
		EmployeeID:    emp.ID,
		SchemaVersion: 1,
		Body:          datatypes.JSON([]byte(`{"a":1}`)),
		ContentHash:   "hash-1",
		GeneratedAt:   time.Now().UTC(),
	}
	if _, err := repo.Create(ctx, tx, first); err != nil {
		t.Fatalf("Create first: %v", err)
	}

	second := &types.TrainingEvidence{
		ID:            uuid.New(),
		TenantID:      tn.ID,
		SessionID:     sess.ID,
		EmployeeID:    emp.ID,
		SchemaVersion: 1,
		Body:          datatypes.JSON([]byte(`{"a":2}`)),
		ContentHash:   "hash-2",
		GeneratedAt:   time.Now().UTC(),
	}
	got, err := repo.Create(ctx, tx, second)
	if err != nil {
		t.Fatalf("Create duplicate: %v", err)
	}
	if got.ID != first.ID {
		t.Fatalf("duplicate create: want winner id=%s got=%s", first.ID, got.ID)
	}
	if got.ContentHash != "hash-1" {
		t.Fatalf("duplicate create: want winner hash got=%s", got.ContentHash)
	}
}

func TestComplianceUploadRepoUniquePerProvider(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	evRepo := NewTrainingEvidenceRepo(db, testutil.Logger(t))
	upRepo := NewComplianceUploadRepo(db, testutil.Logger(t))

	tn := testutil.SeedTenant(t, ctx, tx, "acme-uploads")
	emp := testutil.SeedEmployee(t, ctx, tx, tn.ID, "uploads@acme.test")
	sess := testutil.SeedSession(t, ctx, tx, tn.ID, emp.ID, lifecycle.StatusPassed)

	ev, err := evRepo.Create(ctx, tx, &types.TrainingEvidence{
		ID:            uuid.New(),
		TenantID:      tn.ID,
		SessionID:     sess.ID,
		EmployeeID:    emp.ID,
		SchemaVersion: 1,
		Body:          datatypes.JSON([]byte(`{}`)),
		ContentHash:   "h",
		GeneratedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Create evidence: %v", err)
	}

	rec := &types.ComplianceUpload{
		ID:          uuid.New(),
		TenantID:    tn.ID,
		EvidenceID:  ev.ID,
		SessionID:   sess.ID,
		Provider:    "complyark",
		Status:      types.UploadStatusPending,
		MaxAttempts: 5,
	}
	if _, err := upRepo.Create(ctx, tx, rec); err != nil {
		t.Fatalf("Create upload: %v", err)
	}

	dup := &types.ComplianceUpload{
		ID:          uuid.New(),
		TenantID:    tn.ID,
		EvidenceID:  ev.ID,
		SessionID:   sess.ID,
		Provider:    "complyark",
		Status:      types.UploadStatusPending,
		MaxAttempts: 5,
	}
	if _, err := upRepo.Create(ctx, tx, dup); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("duplicate upload: want=ErrConflict got=%v", err)
	}

	// A different provider for the same evidence is a separate ledger row.
	other := &types.ComplianceUpload{
		ID:          uuid.New(),
		TenantID:    tn.ID,
		EvidenceID:  ev.ID,
		SessionID:   sess.ID,
		Provider:    "gcsarchive",
		Status:      types.UploadStatusPending,
		MaxAttempts: 5,
	}
	if _, err := upRepo.Create(ctx, tx, other); err != nil {
		t.Fatalf("Create other provider: %v", err)
	}

	got, err := upRepo.GetByEvidenceAndProvider(ctx, tx, tn.ID, ev.ID, "complyark")
	if err != nil {
		t.Fatalf("GetByEvidenceAndProvider: %v", err)
	}
	if got.ID != rec.ID {
		t.Fatalf("lookup: want=%s got=%s", rec.ID, got.ID)
	}
}

func TestComplianceUploadRepoTerminalRowNeverRewritten(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	upRepo := NewComplianceUploadRepo(db, testutil.Logger(t))

	tn := testutil.SeedTenant(t, ctx, tx, "acme-upload-guard")
	emp := testutil.SeedEmployee(t, ctx, tx, tn.ID, "guard@acme.test")
	sess := testutil.SeedSession(t, ctx, tx, tn.ID, emp.ID, lifecycle.StatusPassed)

	rec := &types.ComplianceUpload{
		ID:          uuid.New(),
		TenantID:    tn.ID,
		EvidenceID:  uuid.New(),
		SessionID:   sess.ID,
		Provider:    "complyark",
		Status:      types.UploadStatusPending,
		MaxAttempts: 5,
	}
	if _, err := upRepo.Create(ctx, tx, rec); err != nil {
		t.Fatalf("Create upload: %v", err)
	}

	now := time.Now().UTC()
	if err := upRepo.UpdateFields(ctx, tx, tn.ID, rec.ID, map[string]interface{}{
		"status":        types.UploadStatusSucceeded,
		"attempt_count": 1,
		"provider_ref":  "ref-winner",
		"completed_at":  now,
	}); err != nil {
		t.Fatalf("UpdateFields to succeeded: %v", err)
	}

	// A straggler job finishing after the winner must not reverse the
	// terminal status.
	err := upRepo.UpdateFields(ctx, tx, tn.ID, rec.ID, map[string]interface{}{
		"status":          types.UploadStatusFailed,
		"attempt_count":   2,
		"last_error":      "late failure",
		"last_error_code": "http_500",
		"completed_at":    now,
	})
	if !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("terminal rewrite: want=ErrConflict got=%v", err)
	}

	got, err := upRepo.GetByID(ctx, tx, tn.ID, rec.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.UploadStatusSucceeded {
		t.Fatalf("status: want=succeeded got=%s", got.Status)
	}
	if got.ProviderRef == nil || *got.ProviderRef != "ref-winner" {
		t.Fatalf("provider ref: got=%v", got.ProviderRef)
	}

	if err := upRepo.UpdateFields(ctx, tx, tn.ID, uuid.New(), map[string]interface{}{
		"status": types.UploadStatusFailed,
	}); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("missing row: want=ErrNotFound got=%v", err)
	}
}
