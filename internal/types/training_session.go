package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// TrainingSession is one assessment attempt chain for an employee. Status
// words and the legal transitions between them live in internal/lifecycle;
// Version is the optimistic-lock counter and advances by exactly 1 per
// accepted write.
type TrainingSession struct {
	ID                 uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TenantID           uuid.UUID      `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Tenant             *Tenant        `gorm:"constraint:OnDelete:CASCADE;foreignKey:TenantID;references:ID" json:"tenant,omitempty"`
	EmployeeID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"employee_id"`
	Employee           *Employee      `gorm:"constraint:OnDelete:CASCADE;foreignKey:EmployeeID;references:ID" json:"employee,omitempty"`
	RoleProfileID      string         `gorm:"column:role_profile_id;not null" json:"role_profile_id"`
	RoleProfileVersion int            `gorm:"column:role_profile_version;not null;default:1" json:"role_profile_version"`
	PolicyConfigHash   string         `gorm:"column:policy_config_hash;not null" json:"policy_config_hash"`
	AppVersion         string         `gorm:"column:app_version;not null" json:"app_version"`
	Status             string         `gorm:"column:status;not null" json:"status"`
	AttemptNumber      int            `gorm:"column:attempt_number;not null;default:1" json:"attempt_number"`
	Curriculum         datatypes.JSON `gorm:"type:jsonb;column:curriculum" json:"curriculum,omitempty"`
	AggregateScore     *float64       `gorm:"column:aggregate_score" json:"aggregate_score,omitempty"`
	WeakAreas          datatypes.JSON `gorm:"type:jsonb;column:weak_areas" json:"weak_areas,omitempty"`
	Version            int64          `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt          time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	CompletedAt        *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (TrainingSession) TableName() string { return "training_session" }

// CurriculumOutline is the ordered module plan stored on the session.
type CurriculumOutline struct {
	Modules []ModuleOutline `json:"modules"`
}

type ModuleOutline struct {
	Title                 string `json:"title"`
	TopicArea             string `json:"topic_area"`
	JobExpectationIndices []int  `json:"job_expectation_indices"`
}
