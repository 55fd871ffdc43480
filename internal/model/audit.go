package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionRegisterCompany = "REGISTER_COMPANY"
	ActionCreateUser      = "CREATE_USER"
	ActionCreateClient    = "CREATE_CLIENT"
	ActionUpdateClient    = "UPDATE_CLIENT"
	ActionCreatePlan      = "CREATE_PLAN"
	ActionUpdatePlan      = "UPDATE_PLAN"

	// Sale lifecycle actions
	ActionCreateSale           = "CREATE_SALE"
	ActionUpdateSale           = "UPDATE_SALE"
	ActionChangeSaleStatus     = "CHANGE_SALE_STATUS"
	ActionRejectSaleTransition = "REJECT_SALE_TRANSITION"
	ActionUploadContract       = "UPLOAD_CONTRACT"
	ActionRequestSignatures    = "REQUEST_SIGNATURES"
	ActionSignContract         = "SIGN_CONTRACT"
	ActionUpdateWorkflowConfig = "UPDATE_WORKFLOW_CONFIG"
)

// AuditLog tracks Who, What, and When for sale and configuration changes within a company
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyID  *uuid.UUID `gorm:"type:uuid;index" json:"company_id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // nil for public signers
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:jsonb" json:"details"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}
