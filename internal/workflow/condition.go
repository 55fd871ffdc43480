package workflow

import "salesflow/internal/model"

// Built-in condition keys
const (
	KeyHasClient             = "has_client"
	KeyHasPlan               = "has_plan"
	KeyHasBeneficiaries      = "has_beneficiaries"
	KeyHasDocuments          = "has_documents"
	KeyHasTemplate           = "has_template"
	KeyHasDDJJ               = "has_ddjj"
	KeyAuditApproved         = "audit_approved"
	KeyAllSignaturesComplete = "all_signatures_complete"
	KeyHasSignatureToken     = "has_signature_token"
)

// BuiltInKeys lists every key EvaluateCondition understands
var BuiltInKeys = []string{
	KeyHasClient,
	KeyHasPlan,
	KeyHasBeneficiaries,
	KeyHasDocuments,
	KeyHasTemplate,
	KeyHasDDJJ,
	KeyAuditApproved,
	KeyAllSignaturesComplete,
	KeyHasSignatureToken,
}

// IsBuiltInKey reports whether key is part of the fixed vocabulary
func IsBuiltInKey(key string) bool {
	for _, k := range BuiltInKeys {
		if k == key {
			return true
		}
	}
	return false
}

// EvaluateCondition checks a built-in condition against a sale snapshot.
// Unknown keys evaluate to true so that an unrecognized condition never blocks a transition.
func EvaluateCondition(key string, sale SaleData) bool {
	switch key {
	case KeyHasClient:
		return sale.ClientID != ""
	case KeyHasPlan:
		return sale.PlanID != ""
	case KeyHasBeneficiaries:
		if sale.AdherentsCount != nil {
			return *sale.AdherentsCount > 0
		}
		return len(sale.Beneficiaries) > 0
	case KeyHasDocuments:
		return sale.ContractPDFURL != ""
	case KeyHasTemplate:
		return sale.TemplateID != ""
	case KeyHasDDJJ:
		return len(sale.TemplateResponses) > 0
	case KeyAuditApproved:
		return sale.AuditStatus == model.AuditStatusApproved
	case KeyAllSignaturesComplete:
		return sale.AllSignaturesCompleted
	case KeyHasSignatureToken:
		return sale.SignatureToken != ""
	default:
		return true
	}
}
