package service

import (
	"context"
	"testing"

	"salesflow/internal/model"
	"salesflow/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfigWithoutStoredConfiguration(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.workflows.GetConfig(context.Background(), env.admin)
	require.NoError(t, err)
	assert.False(t, res.IsActive)
	assert.True(t, res.Valid)
	assert.NotNil(t, res.Definition.Transitions)
	assert.Empty(t, res.Definition.Transitions)
}

func TestUpsertConfigRejectsAmbiguousRules(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.workflows.UpsertConfig(context.Background(), env.admin, UpsertWorkflowRequest{
		IsActive: true,
		Definition: model.WorkflowDefinition{Transitions: []model.TransitionRule{
			draftToPendingAudit,
			{From: model.SaleStatusDraft, To: model.SaleStatusPendingAudit},
		}},
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorIs(t, err, workflow.ErrDuplicateTransition)
	assert.Empty(t, env.store.auditActions())
}

func TestUpsertConfigRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	saved, err := env.workflows.UpsertConfig(ctx, env.admin, UpsertWorkflowRequest{
		IsActive:   true,
		Definition: model.WorkflowDefinition{Transitions: []model.TransitionRule{draftToPendingAudit}},
	})
	require.NoError(t, err)
	assert.True(t, saved.IsActive)
	require.NotNil(t, saved.UpdatedBy)
	assert.Equal(t, env.admin.UserID, *saved.UpdatedBy)

	got, err := env.workflows.GetConfig(ctx, env.seller)
	require.NoError(t, err)
	assert.Equal(t, saved.Definition, got.Definition)
	assert.Equal(t, []string{model.ActionUpdateWorkflowConfig}, env.store.auditActions())

	// the stored rules now govern status changes
	sale := env.seedSale(t, env.seller)
	_, err = env.sales.ChangeStatus(ctx, env.seller, sale.ID, ChangeStatusRequest{Status: string(model.SaleStatusPendingAudit)})
	assert.ErrorIs(t, err, ErrTransitionRejected)
}

func TestDryRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.activateWorkflow(t, draftToPendingAudit)

	res := env.workflows.DryRun(ctx, env.seller, DryRunRequest{
		Sale:   workflow.SaleData{Status: model.SaleStatusDraft, ClientID: "c-1", PlanID: "p-1"},
		Target: model.SaleStatusPendingAudit,
	})
	assert.True(t, res.Allowed)
	assert.Empty(t, res.Reasons)

	res = env.workflows.DryRun(ctx, env.seller, DryRunRequest{
		Sale:   workflow.SaleData{Status: model.SaleStatusDraft, ClientID: "c-1", PlanID: "p-1"},
		Target: model.SaleStatusPendingAudit,
		Role:   model.RoleAuditor,
	})
	assert.False(t, res.Allowed)
	assert.Equal(t, []string{`role "auditor" is not allowed to perform this transition`}, res.Reasons)
}
