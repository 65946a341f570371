package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Tenant struct {
	ID               uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Slug             string         `gorm:"column:slug;not null;uniqueIndex" json:"slug"`
	DisplayName      string         `gorm:"column:display_name;not null" json:"display_name"`
	TrainingPolicy   datatypes.JSON `gorm:"type:jsonb;column:training_policy" json:"training_policy"`
	ComplianceConfig datatypes.JSON `gorm:"type:jsonb;column:compliance_config" json:"compliance_config,omitempty"`
	CreatedAt        time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Tenant) TableName() string { return "tenant" }
