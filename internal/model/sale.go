package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SaleStatus identifies the current stage of a sale. Tenants may configure
// transitions between any tags; the constants below are the defaults.
type SaleStatus string

const (
	SaleStatusDraft        SaleStatus = "borrador"
	SaleStatusPendingAudit SaleStatus = "pendiente_auditoria"
	SaleStatusAudited      SaleStatus = "auditado"
	SaleStatusSent         SaleStatus = "enviado"
	SaleStatusSigned       SaleStatus = "firmado"
	SaleStatusCompleted    SaleStatus = "completado"
	SaleStatusRejected     SaleStatus = "rechazado"
	SaleStatusCanceled     SaleStatus = "cancelado"
)

// Audit review outcomes stored in Sale.AuditStatus
const (
	AuditStatusPending  = "pendiente"
	AuditStatusApproved = "aprobado"
	AuditStatusRejected = "rechazado"
)

// Signer roles
const (
	SignerRoleHolder    = "titular"
	SignerRoleAdherent  = "adherente"
	SignerRoleGuarantor = "garante"
)

// Sale is the unit of work for a client's purchase and contract process
type Sale struct {
	ID                     uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyID              uuid.UUID       `gorm:"type:uuid;not null;index" json:"company_id"`
	SellerID               *uuid.UUID      `gorm:"type:uuid;index" json:"seller_id"`
	Seller                 *User           `gorm:"foreignKey:SellerID" json:"seller,omitempty"`
	ClientID               *uuid.UUID      `gorm:"type:uuid;index" json:"client_id"`
	Client                 *Client         `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	PlanID                 *uuid.UUID      `gorm:"type:uuid;index" json:"plan_id"`
	Plan                   *Plan           `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
	TemplateID             *uuid.UUID      `gorm:"type:uuid" json:"template_id"`
	Status                 SaleStatus      `gorm:"type:varchar(40);not null;default:'borrador';index" json:"status"`
	TotalAmount            decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"total_amount"`
	ContractPDFURL         string          `gorm:"type:text" json:"contract_pdf_url"`
	SignatureToken         *string         `gorm:"type:varchar(64);uniqueIndex" json:"signature_token"`
	AllSignaturesCompleted bool            `gorm:"default:false" json:"all_signatures_completed"`
	AuditStatus            string          `gorm:"type:varchar(20)" json:"audit_status"`
	AdherentsCount         *int            `json:"adherents_count"`
	TemplateResponses      string          `gorm:"type:jsonb;not null;default:'[]'" json:"-"` // DDJJ answers
	Notes                  string          `gorm:"type:text" json:"notes"`
	Beneficiaries          []Beneficiary   `gorm:"foreignKey:SaleID;constraint:OnDelete:CASCADE" json:"beneficiaries"`
	Signatures             []SaleSignature `gorm:"foreignKey:SaleID;constraint:OnDelete:CASCADE" json:"signatures"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
	DeletedAt              gorm.DeletedAt  `gorm:"index" json:"-"`
}

// Beneficiary is a person covered by the sale besides the holder
type Beneficiary struct {
	ID             uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SaleID         uuid.UUID  `gorm:"type:uuid;not null;index" json:"sale_id"`
	FullName       string     `gorm:"type:varchar(255);not null" json:"full_name"`
	DocumentNumber string     `gorm:"type:varchar(50)" json:"document_number"`
	Relationship   string     `gorm:"type:varchar(50)" json:"relationship"`
	BirthDate      *time.Time `gorm:"type:date" json:"birth_date"`
	CreatedAt      time.Time  `json:"created_at"`
}

// TemplateResponse is one answer of the sworn health declaration (DDJJ)
type TemplateResponse struct {
	QuestionID string `json:"question_id"`
	Question   string `json:"question,omitempty"`
	Answer     string `json:"answer"`
}

// SaleSignature tracks one signer of the contract
type SaleSignature struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SaleID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"sale_id"`
	SignerName  string     `gorm:"type:varchar(255);not null" json:"signer_name"`
	SignerEmail string     `gorm:"type:varchar(255);not null" json:"signer_email"`
	SignerRole  string     `gorm:"type:varchar(20);not null" json:"signer_role"`
	SignedAt    *time.Time `json:"signed_at"`
	IPAddress   string     `gorm:"type:varchar(64)" json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ResponsesList decodes the stored DDJJ answers. Malformed JSON yields an empty list.
func (s *Sale) ResponsesList() []TemplateResponse {
	if s.TemplateResponses == "" {
		return nil
	}
	var out []TemplateResponse
	if err := json.Unmarshal([]byte(s.TemplateResponses), &out); err != nil {
		return nil
	}
	return out
}

// SetResponses stores the DDJJ answers as JSON
func (s *Sale) SetResponses(responses []TemplateResponse) error {
	if responses == nil {
		responses = []TemplateResponse{}
	}
	raw, err := json.Marshal(responses)
	if err != nil {
		return err
	}
	s.TemplateResponses = string(raw)
	return nil
}
