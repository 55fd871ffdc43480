package workflow

import (
	"encoding/json"
	"testing"

	"salesflow/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeSaleData(t *testing.T, raw string) SaleData {
	t.Helper()
	var d SaleData
	require.NoError(t, json.Unmarshal([]byte(raw), &d))
	return d
}

func TestSaleData_AllSignaturesOnlyForLiteralTrue(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		`{"all_signatures_completed": true}`:   true,
		`{"all_signatures_completed": "true"}`: false,
		`{"all_signatures_completed": 1}`:      false,
		`{"all_signatures_completed": false}`:  false,
		`{"all_signatures_completed": null}`:   false,
		`{}`:                                   false,
	}
	for raw, want := range cases {
		d := decodeSaleData(t, raw)
		assert.Equal(t, want, EvaluateCondition(KeyAllSignaturesComplete, d), raw)
	}
}

func TestSaleData_ClientIDNullOrEmpty(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{`{"client_id": null}`, `{"client_id": ""}`, `{"client_id": "  "}`, `{}`, `{"client_id": {}}`} {
		assert.False(t, EvaluateCondition(KeyHasClient, decodeSaleData(t, raw)), raw)
	}
	for _, raw := range []string{`{"client_id": "abc"}`, `{"client_id": 42}`} {
		assert.True(t, EvaluateCondition(KeyHasClient, decodeSaleData(t, raw)), raw)
	}
}

func TestSaleData_LenientFields(t *testing.T) {
	t.Parallel()

	d := decodeSaleData(t, `{
		"status": "borrador",
		"adherents_count": "3",
		"beneficiaries": [{"full_name": "Ana"}, {"full_name": 7}],
		"template_responses": "oops"
	}`)

	assert.Equal(t, model.SaleStatusDraft, d.Status)
	assert.Nil(t, d.AdherentsCount)
	assert.Len(t, d.Beneficiaries, 2)
	assert.Equal(t, "Ana", d.Beneficiaries[0].FullName)
	assert.Empty(t, d.TemplateResponses)
	assert.True(t, EvaluateCondition(KeyHasBeneficiaries, d))

	d = decodeSaleData(t, `{"adherents_count": null, "beneficiaries": []}`)
	assert.Nil(t, d.AdherentsCount)
	assert.False(t, EvaluateCondition(KeyHasBeneficiaries, d))

	d = decodeSaleData(t, `{"adherents_count": 0, "beneficiaries": [{}]}`)
	require.NotNil(t, d.AdherentsCount)
	assert.False(t, EvaluateCondition(KeyHasBeneficiaries, d))
}

func TestSaleData_RejectsNonObject(t *testing.T) {
	t.Parallel()

	var d SaleData
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &d))
}

func TestSnapshotFromSale(t *testing.T) {
	t.Parallel()

	clientID := uuid.New()
	token := "tok-1"
	count := 1
	sale := &model.Sale{
		Status:                 model.SaleStatusSent,
		ClientID:               &clientID,
		SignatureToken:         &token,
		AllSignaturesCompleted: true,
		AuditStatus:            model.AuditStatusApproved,
		AdherentsCount:         &count,
	}
	require.NoError(t, sale.SetResponses([]model.TemplateResponse{{QuestionID: "q1", Answer: "si"}}))

	d := SnapshotFromSale(sale)
	assert.Equal(t, model.SaleStatusSent, d.Status)
	assert.Equal(t, clientID.String(), d.ClientID)
	assert.Empty(t, d.PlanID)
	assert.Equal(t, token, d.SignatureToken)
	assert.True(t, d.AllSignaturesCompleted)
	assert.Len(t, d.TemplateResponses, 1)

	*d.AdherentsCount = 5
	assert.Equal(t, 1, *sale.AdherentsCount)

	assert.Equal(t, SaleData{}, SnapshotFromSale(nil))
}
