package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AuditEvent rows are written synchronously after the mutation they describe
// commits, so an entry never describes state that was not persisted.
type AuditEvent struct {
	ID         uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TenantID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"tenant_id"`
	EmployeeID *uuid.UUID     `gorm:"type:uuid;index" json:"employee_id,omitempty"`
	Type       string         `gorm:"column:type;not null;index" json:"type"`
	OccurredAt time.Time      `gorm:"column:occurred_at;not null" json:"occurred_at"`
	Metadata   datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata,omitempty"`
}

func (AuditEvent) TableName() string { return "audit_event" }
