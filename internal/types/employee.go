package types

import (
	"time"

	"github.com/google/uuid"
)

type Employee struct {
	ID            uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TenantID      uuid.UUID `gorm:"type:uuid;not null;index:idx_employee_tenant_email,unique" json:"tenant_id"`
	Tenant        *Tenant   `gorm:"constraint:OnDelete:CASCADE;foreignKey:TenantID;references:ID" json:"tenant,omitempty"`
	Email         string    `gorm:"column:email;not null;index:idx_employee_tenant_email,unique" json:"email"`
	FirstName     string    `gorm:"column:first_name;not null" json:"first_name"`
	LastName      string    `gorm:"column:last_name;not null" json:"last_name"`
	PasswordHash  string    `gorm:"column:password_hash;not null" json:"-"`
	RoleProfileID string    `gorm:"column:role_profile_id;not null" json:"role_profile_id"`
	CreatedAt     time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Employee) TableName() string { return "employee" }
