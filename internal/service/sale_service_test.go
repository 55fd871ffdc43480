package service

import (
	"context"
	"errors"
	"testing"

	"salesflow/internal/model"
	"salesflow/internal/websocket"
	"salesflow/internal/workflow"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var draftToPendingAudit = model.TransitionRule{
	From:         model.SaleStatusDraft,
	To:           model.SaleStatusPendingAudit,
	AllowedRoles: []string{model.RoleSeller, model.RoleAdmin},
	Conditions: []model.Condition{
		{Type: model.ConditionTypeBuiltIn, BuiltInKey: workflow.KeyHasClient, Label: "La venta debe tener un cliente"},
		{Type: model.ConditionTypeBuiltIn, BuiltInKey: workflow.KeyHasPlan, Label: "La venta debe tener un plan"},
		{Type: model.ConditionTypeCustom, Label: "Llamada de bienvenida realizada"},
	},
}

func TestCreateSaleDefaults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := env.seedClient(t)
	plan := env.seedPlan(t, "12000")

	sale, err := env.sales.CreateSale(ctx, env.seller, CreateSaleRequest{ClientID: &client.ID, PlanID: &plan.ID})
	require.NoError(t, err)

	assert.Equal(t, model.SaleStatusDraft, sale.Status)
	assert.Equal(t, model.AuditStatusPending, sale.AuditStatus)
	assert.True(t, sale.TotalAmount.Equal(mustDecimal(t, "12000")))
	require.NotNil(t, sale.SellerID)
	assert.Equal(t, env.seller.UserID, *sale.SellerID)
	require.NotNil(t, sale.Client)
	assert.Equal(t, "Ana Perez", sale.Client.FullName())
	assert.NotNil(t, sale.TemplateResponses)

	assert.Equal(t, []string{websocket.EventSaleCreated}, env.publisher.names())
	assert.Contains(t, env.store.auditActions(), model.ActionCreateSale)

	missing := uuid.New()
	_, err = env.sales.CreateSale(ctx, env.seller, CreateSaleRequest{ClientID: &missing})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSellersOnlySeeTheirSales(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	own := env.seedSale(t, env.seller)
	other := env.seedSale(t, env.admin)

	_, err := env.sales.GetSale(ctx, env.seller, other.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.sales.GetSale(ctx, env.seller, own.ID)
	assert.NoError(t, err)

	list, total, err := env.sales.ListSales(ctx, env.seller, "", 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, own.ID, list[0].ID)

	_, total, err = env.sales.ListSales(ctx, env.admin, "", 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

func TestUpdateSale(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sale := env.seedSale(t, env.seller)
	client := env.seedClient(t)
	count := 2

	updated, err := env.sales.UpdateSale(ctx, env.seller, sale.ID, UpdateSaleRequest{
		ClientID:       &client.ID,
		AdherentsCount: &count,
		Beneficiaries: &[]BeneficiaryPayload{
			{FullName: "Juan Perez", Relationship: "hijo", BirthDate: "2015-01-02"},
		},
		TemplateResponses: &[]model.TemplateResponse{{QuestionID: "q1", Answer: "no"}},
	})
	require.NoError(t, err)

	require.NotNil(t, updated.ClientID)
	assert.Equal(t, client.ID, *updated.ClientID)
	require.Len(t, updated.Beneficiaries, 1)
	assert.Equal(t, "Juan Perez", updated.Beneficiaries[0].FullName)
	assert.Equal(t, []model.TemplateResponse{{QuestionID: "q1", Answer: "no"}}, updated.TemplateResponses)
	require.NotNil(t, updated.AdherentsCount)
	assert.Equal(t, 2, *updated.AdherentsCount)

	cleared, err := env.sales.UpdateSale(ctx, env.seller, sale.ID, UpdateSaleRequest{Beneficiaries: &[]BeneficiaryPayload{}})
	require.NoError(t, err)
	assert.Empty(t, cleared.Beneficiaries)

	_, err = env.sales.UpdateSale(ctx, env.seller, sale.ID, UpdateSaleRequest{
		Beneficiaries: &[]BeneficiaryPayload{{FullName: " "}},
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Contains(t, env.publisher.names(), websocket.EventSaleUpdated)
}

func TestUpdateSaleAuditStatusNeedsReviewer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sale := env.seedSale(t, env.seller)
	approved := model.AuditStatusApproved

	_, err := env.sales.UpdateSale(ctx, env.seller, sale.ID, UpdateSaleRequest{AuditStatus: &approved})
	assert.ErrorIs(t, err, ErrForbidden)

	bogus := "maybe"
	_, err = env.sales.UpdateSale(ctx, env.auditor, sale.ID, UpdateSaleRequest{AuditStatus: &bogus})
	assert.ErrorIs(t, err, ErrInvalidInput)

	res, err := env.sales.UpdateSale(ctx, env.auditor, sale.ID, UpdateSaleRequest{AuditStatus: &approved})
	require.NoError(t, err)
	assert.Equal(t, model.AuditStatusApproved, res.AuditStatus)
}

func TestUpdateSaleRejectsLockedStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sale := env.seedSale(t, env.admin)

	_, err := env.sales.ChangeStatus(ctx, env.admin, sale.ID, ChangeStatusRequest{Status: string(model.SaleStatusCanceled)})
	require.NoError(t, err)

	notes := "late edit"
	_, err = env.sales.UpdateSale(ctx, env.admin, sale.ID, UpdateSaleRequest{Notes: &notes})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestChangeStatusWithoutConfigurationIsUnrestricted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sale := env.seedSale(t, env.seller)

	res, err := env.sales.ChangeStatus(ctx, env.seller, sale.ID, ChangeStatusRequest{Status: string(model.SaleStatusCompleted)})
	require.NoError(t, err)
	assert.Equal(t, model.SaleStatusCompleted, res.Status)

	_, err = env.sales.ChangeStatus(ctx, env.seller, sale.ID, ChangeStatusRequest{Status: string(model.SaleStatusCompleted)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.sales.ChangeStatus(ctx, env.seller, sale.ID, ChangeStatusRequest{Status: " "})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestChangeStatusRejectedByWorkflow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.activateWorkflow(t, draftToPendingAudit)
	sale := env.seedSale(t, env.seller)
	eventsBefore := len(env.publisher.names())

	_, err := env.sales.ChangeStatus(ctx, env.seller, sale.ID, ChangeStatusRequest{Status: string(model.SaleStatusPendingAudit)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransitionRejected)

	var rejected *TransitionRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, []string{"La venta debe tener un cliente", "La venta debe tener un plan"}, rejected.Reasons)

	got, err := env.sales.GetSale(ctx, env.seller, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SaleStatusDraft, got.Status)
	assert.Len(t, env.publisher.names(), eventsBefore)
	assert.Contains(t, env.store.auditActions(), model.ActionRejectSaleTransition)

	_, err = env.sales.ChangeStatus(ctx, env.seller, sale.ID, ChangeStatusRequest{Status: string(model.SaleStatusCompleted)})
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, []string{workflow.ReasonTransitionNotPermitted}, rejected.Reasons)

	_, err = env.sales.ChangeStatus(ctx, env.auditor, sale.ID, ChangeStatusRequest{Status: string(model.SaleStatusPendingAudit)})
	require.True(t, errors.As(err, &rejected))
	assert.Contains(t, rejected.Reasons, `role "auditor" is not allowed to perform this transition`)
}

func TestChangeStatusAllowedByWorkflow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.activateWorkflow(t, draftToPendingAudit)
	client := env.seedClient(t)
	plan := env.seedPlan(t, "100")

	sale, err := env.sales.CreateSale(ctx, env.seller, CreateSaleRequest{ClientID: &client.ID, PlanID: &plan.ID})
	require.NoError(t, err)

	res, err := env.sales.ChangeStatus(ctx, env.seller, sale.ID, ChangeStatusRequest{
		Status: string(model.SaleStatusPendingAudit),
		Note:   "listo para auditar",
	})
	require.NoError(t, err)
	assert.Equal(t, model.SaleStatusPendingAudit, res.Status)
	assert.Equal(t, websocket.EventSaleStatusChanged, env.publisher.names()[len(env.publisher.names())-1])
	assert.Contains(t, env.store.auditActions(), model.ActionChangeSaleStatus)
}

func TestChangeStatusFailClosedOnStoreError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sale := env.seedSale(t, env.seller)

	failing := workflow.NewValidator(failingStore{}, workflow.WithFetchErrorPolicy(workflow.FailClosed))
	sales := NewSaleService(fakeSaleRepo{env.store}, fakeClientRepo{env.store}, fakePlanRepo{env.store}, passthroughTx{}, failing, nil, nil, nil)

	_, err := sales.ChangeStatus(ctx, env.seller, sale.ID, ChangeStatusRequest{Status: string(model.SaleStatusSent)})
	var rejected *TransitionRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, []string{workflow.ReasonConfigUnavailable}, rejected.Reasons)

	open := workflow.NewValidator(failingStore{})
	sales = NewSaleService(fakeSaleRepo{env.store}, fakeClientRepo{env.store}, fakePlanRepo{env.store}, passthroughTx{}, open, nil, nil, nil)
	res, err := sales.ChangeStatus(ctx, env.seller, sale.ID, ChangeStatusRequest{Status: string(model.SaleStatusSent)})
	require.NoError(t, err)
	assert.Equal(t, model.SaleStatusSent, res.Status)
}

func TestAvailableTransitions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sale := env.seedSale(t, env.seller)

	res, err := env.sales.AvailableTransitions(ctx, env.seller, sale.ID)
	require.NoError(t, err)
	assert.False(t, res.Enforced)
	assert.Empty(t, res.Options)
	assert.NotNil(t, res.Options)

	env.activateWorkflow(t, draftToPendingAudit, model.TransitionRule{
		From: model.SaleStatusDraft, To: model.SaleStatusCanceled,
	})

	res, err = env.sales.AvailableTransitions(ctx, env.seller, sale.ID)
	require.NoError(t, err)
	assert.True(t, res.Enforced)
	assert.Equal(t, model.SaleStatusDraft, res.Current)
	require.Len(t, res.Options, 2)

	first := res.Options[0]
	assert.Equal(t, model.SaleStatusPendingAudit, first.To)
	assert.False(t, first.Result.Allowed)
	require.Len(t, first.Checklist, 3)
	require.NotNil(t, first.Checklist[0].Met)
	assert.False(t, *first.Checklist[0].Met)
	assert.Nil(t, first.Checklist[2].Met)

	assert.Equal(t, model.SaleStatusCanceled, res.Options[1].To)
	assert.True(t, res.Options[1].Result.Allowed)
}

type failingStore struct{}

func (failingStore) FindByCompanyID(context.Context, uuid.UUID) (*model.WorkflowConfig, error) {
	return nil, errors.New("connection refused")
}
