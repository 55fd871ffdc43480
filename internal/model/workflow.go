package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Condition types
const (
	ConditionTypeBuiltIn = "built_in"
	ConditionTypeCustom  = "custom"
)

// Condition gates a transition. Label is shown to the user when the condition is unmet.
type Condition struct {
	ID          string `json:"id,omitempty"`
	Type        string `json:"type"`
	BuiltInKey  string `json:"built_in_key,omitempty"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// TransitionRule allows a sale to move From -> To for the listed roles once all conditions hold.
// An empty AllowedRoles means any role.
type TransitionRule struct {
	From         SaleStatus  `json:"from"`
	To           SaleStatus  `json:"to"`
	AllowedRoles []string    `json:"allowed_roles"`
	Conditions   []Condition `json:"conditions"`
}

// WorkflowDefinition is the JSON document stored in WorkflowConfig.WorkflowConfig
type WorkflowDefinition struct {
	Transitions []TransitionRule `json:"transitions"`
}

// WorkflowConfig holds a company's transition rules. Enforcement is opt-in through IsActive.
type WorkflowConfig struct {
	ID             uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex" json:"company_id"`
	WorkflowConfig string     `gorm:"type:jsonb;not null;default:'{}'" json:"workflow_config"`
	IsActive       bool       `gorm:"default:false" json:"is_active"`
	UpdatedBy      *uuid.UUID `gorm:"type:uuid" json:"updated_by"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Definition decodes the stored rule set
func (c *WorkflowConfig) Definition() (WorkflowDefinition, error) {
	var def WorkflowDefinition
	if c.WorkflowConfig == "" {
		return def, nil
	}
	err := json.Unmarshal([]byte(c.WorkflowConfig), &def)
	return def, err
}
