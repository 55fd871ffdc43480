package service

import (
	"context"
	"testing"

	"salesflow/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestClientLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	client, err := env.clients.CreateClient(ctx, env.seller, CreateClientRequest{
		FirstName:      " Ana ",
		LastName:       "Perez",
		DocumentNumber: "20111222",
		Email:          "Ana@Example.com",
		BirthDate:      "1990-04-12",
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana", client.FirstName)
	assert.Equal(t, "ana@example.com", client.Email)
	require.NotNil(t, client.BirthDate)
	assert.Equal(t, 1990, client.BirthDate.Year())
	require.NotNil(t, client.CreatedBy)
	assert.Equal(t, env.seller.UserID, *client.CreatedBy)

	_, err = env.clients.CreateClient(ctx, env.admin, CreateClientRequest{
		FirstName: "Otra", LastName: "Persona", DocumentNumber: "20111222",
	})
	assert.ErrorIs(t, err, ErrConflict)

	updated, err := env.clients.UpdateClient(ctx, env.admin, client.ID, UpdateClientRequest{
		Phone:     strPtr("+54 11 5555"),
		BirthDate: strPtr(""),
	})
	require.NoError(t, err)
	assert.Equal(t, "+54 11 5555", updated.Phone)
	assert.Nil(t, updated.BirthDate)
	assert.Equal(t, "Perez", updated.LastName)

	_, err = env.clients.UpdateClient(ctx, env.admin, client.ID, UpdateClientRequest{BirthDate: strPtr("12/04/1990")})
	assert.ErrorIs(t, err, ErrInvalidInput)

	list, total, err := env.clients.ListClients(ctx, env.admin, "perez", 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, list, 1)

	stranger := Actor{UserID: uuid.New(), CompanyID: uuid.New(), Role: model.RoleAdmin}
	_, err = env.clients.GetClient(ctx, stranger, client.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []string{model.ActionCreateClient, model.ActionUpdateClient}, env.store.auditActions())
}

func TestPlanLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.plans.CreatePlan(ctx, env.admin, CreatePlanRequest{Name: "Plan", Price: "-1"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.plans.CreatePlan(ctx, env.admin, CreatePlanRequest{Name: "Plan", Price: "abc"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	plan, err := env.plans.CreatePlan(ctx, env.admin, CreatePlanRequest{Name: "Plan Oro", Price: "15000.555"})
	require.NoError(t, err)
	assert.Equal(t, "15000.56", plan.Price.StringFixed(2))
	assert.True(t, plan.IsActive)

	inactive := false
	plan, err = env.plans.UpdatePlan(ctx, env.admin, plan.ID, UpdatePlanRequest{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, plan.IsActive)

	active, err := env.plans.ListPlans(ctx, env.admin, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := env.plans.ListPlans(ctx, env.admin, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = env.sales.CreateSale(ctx, env.seller, CreateSaleRequest{PlanID: &plan.ID})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
