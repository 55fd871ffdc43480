package workflow

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"salesflow/internal/model"
)

// SaleData is the read-only projection of a sale used to evaluate conditions.
// Empty strings mean "not set".
type SaleData struct {
	Status                 model.SaleStatus         `json:"status"`
	ClientID               string                   `json:"client_id"`
	PlanID                 string                   `json:"plan_id"`
	TemplateID             string                   `json:"template_id"`
	ContractPDFURL         string                   `json:"contract_pdf_url"`
	SignatureToken         string                   `json:"signature_token"`
	AllSignaturesCompleted bool                     `json:"all_signatures_completed"`
	AuditStatus            string                   `json:"audit_status"`
	AdherentsCount         *int                     `json:"adherents_count"`
	Beneficiaries          []model.Beneficiary      `json:"beneficiaries"`
	TemplateResponses      []model.TemplateResponse `json:"template_responses"`
}

// SnapshotFromSale builds the evaluation snapshot of a persisted sale
func SnapshotFromSale(s *model.Sale) SaleData {
	if s == nil {
		return SaleData{}
	}
	data := SaleData{
		Status:                 s.Status,
		ContractPDFURL:         s.ContractPDFURL,
		AllSignaturesCompleted: s.AllSignaturesCompleted,
		AuditStatus:            s.AuditStatus,
		Beneficiaries:          s.Beneficiaries,
		TemplateResponses:      s.ResponsesList(),
	}
	if s.ClientID != nil {
		data.ClientID = s.ClientID.String()
	}
	if s.PlanID != nil {
		data.PlanID = s.PlanID.String()
	}
	if s.TemplateID != nil {
		data.TemplateID = s.TemplateID.String()
	}
	if s.SignatureToken != nil {
		data.SignatureToken = *s.SignatureToken
	}
	if s.AdherentsCount != nil {
		n := *s.AdherentsCount
		data.AdherentsCount = &n
	}
	return data
}

// UnmarshalJSON decodes a snapshot sent by a client. A wrongly typed field is
// treated as unset instead of failing the whole document; all_signatures_completed
// is only set by the JSON literal true.
func (d *SaleData) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := SaleData{
		Status:                 model.SaleStatus(rawString(raw["status"])),
		ClientID:               rawString(raw["client_id"]),
		PlanID:                 rawString(raw["plan_id"]),
		TemplateID:             rawString(raw["template_id"]),
		ContractPDFURL:         rawString(raw["contract_pdf_url"]),
		SignatureToken:         rawString(raw["signature_token"]),
		AuditStatus:            rawString(raw["audit_status"]),
		AllSignaturesCompleted: bytes.Equal(bytes.TrimSpace(raw["all_signatures_completed"]), []byte("true")),
	}
	if n, ok := rawInt(raw["adherents_count"]); ok {
		out.AdherentsCount = &n
	}
	out.Beneficiaries = rawList[model.Beneficiary](raw["beneficiaries"])
	out.TemplateResponses = rawList[model.TemplateResponse](raw["template_responses"])

	*d = out
	return nil
}

// rawString returns the string (or numeric id) held by v, "" for anything else
func rawString(v json.RawMessage) string {
	if len(v) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}
	return ""
}

func rawInt(v json.RawMessage) (int, bool) {
	if len(v) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

// rawList keeps one (possibly zero) element per array entry so that only the
// length of a malformed list matters.
func rawList[T any](v json.RawMessage) []T {
	if len(v) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		return nil
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		var elem T
		_ = json.Unmarshal(item, &elem)
		out = append(out, elem)
	}
	return out
}
