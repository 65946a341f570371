package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	UploadStatusPending   = "pending"
	UploadStatusSucceeded = "succeeded"
	UploadStatusFailed    = "failed"
)

// ComplianceUpload is the durable ledger row for one delivery of an evidence
// record to one provider. At most one row exists per (tenant, evidence,
// provider); status only ever moves pending->succeeded or pending->failed.
type ComplianceUpload struct {
	ID            uuid.UUID         `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TenantID      uuid.UUID         `gorm:"type:uuid;not null;index:idx_upload_tenant_evidence_provider,unique" json:"tenant_id"`
	EvidenceID    uuid.UUID         `gorm:"type:uuid;not null;index:idx_upload_tenant_evidence_provider,unique" json:"evidence_id"`
	Evidence      *TrainingEvidence `gorm:"constraint:OnDelete:CASCADE;foreignKey:EvidenceID;references:ID" json:"evidence,omitempty"`
	SessionID     uuid.UUID         `gorm:"type:uuid;not null;index" json:"session_id"`
	Provider      string            `gorm:"column:provider;not null;index:idx_upload_tenant_evidence_provider,unique" json:"provider"`
	Status        string            `gorm:"column:status;not null;default:'pending'" json:"status"`
	AttemptCount  int               `gorm:"column:attempt_count;not null;default:0" json:"attempt_count"`
	MaxAttempts   int               `gorm:"column:max_attempts;not null" json:"max_attempts"`
	ProviderRef   *string           `gorm:"column:provider_ref" json:"provider_ref,omitempty"`
	LastError     *string           `gorm:"column:last_error" json:"last_error,omitempty"`
	LastErrorCode *string           `gorm:"column:last_error_code" json:"last_error_code,omitempty"`
	Retryable     bool              `gorm:"column:retryable;not null;default:false" json:"retryable"`
	CreatedAt     time.Time         `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"not null;default:now()" json:"updated_at"`
	CompletedAt   *time.Time        `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (ComplianceUpload) TableName() string { return "compliance_upload" }
