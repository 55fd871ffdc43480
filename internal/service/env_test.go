package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"salesflow/internal/middleware"
	"salesflow/internal/model"
	"salesflow/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	store     *memStore
	publisher *recordingPublisher
	mailer    *recordingMailer
	docs      *memDocumentStore
	auth      *middleware.Authenticator

	companyID uuid.UUID
	admin     Actor
	seller    Actor
	auditor   Actor

	users      UserService
	clients    ClientService
	plans      PlanService
	sales      SaleService
	workflows  WorkflowService
	signatures SignatureService
	documents  DocumentService
	audits     AuditService
}

func newTestEnv(t *testing.T, opts ...workflow.Option) *testEnv {
	t.Helper()

	store := newMemStore()
	env := &testEnv{
		store:     store,
		publisher: &recordingPublisher{},
		mailer:    &recordingMailer{fail: map[string]bool{}},
		docs:      newMemDocumentStore(),
		auth:      middleware.NewAuthenticator("test-secret", time.Hour, false),
	}

	company := &model.Company{Name: "Salud Norte", TaxID: "30-12345678-9", IsActive: true}
	require.NoError(t, fakeCompanyRepo{store}.Create(context.Background(), company))
	env.companyID = company.ID

	env.admin = Actor{UserID: uuid.New(), CompanyID: company.ID, Role: model.RoleAdmin}
	env.seller = Actor{UserID: uuid.New(), CompanyID: company.ID, Role: model.RoleSeller}
	env.auditor = Actor{UserID: uuid.New(), CompanyID: company.ID, Role: model.RoleAuditor}

	audit := fakeAuditRepo{store}
	validator := workflow.NewValidator(fakeConfigRepo{store}, opts...)

	env.users = NewUserService(fakeUserRepo{store}, fakeCompanyRepo{store}, passthroughTx{}, env.auth, nil, audit, nil)
	env.clients = NewClientService(fakeClientRepo{store}, audit, nil)
	env.plans = NewPlanService(fakePlanRepo{store}, audit, nil)
	env.sales = NewSaleService(fakeSaleRepo{store}, fakeClientRepo{store}, fakePlanRepo{store}, passthroughTx{}, validator, env.publisher, audit, nil)
	env.workflows = NewWorkflowService(fakeConfigRepo{store}, validator, audit, nil)
	env.signatures = NewSignatureService(fakeSaleRepo{store}, fakeCompanyRepo{store}, passthroughTx{}, env.mailer, env.publisher, "https://app.example.com/sign/", audit, nil)
	env.documents = NewDocumentService(fakeSaleRepo{store}, env.docs, env.publisher, audit, nil)
	env.audits = NewAuditService(audit)

	return env
}

func (e *testEnv) seedClient(t *testing.T) *model.Client {
	t.Helper()
	client, err := e.clients.CreateClient(context.Background(), e.admin, CreateClientRequest{
		FirstName:      "Ana",
		LastName:       "Perez",
		DocumentNumber: uuid.NewString()[:8],
	})
	require.NoError(t, err)
	return client
}

func (e *testEnv) seedPlan(t *testing.T, price string) *model.Plan {
	t.Helper()
	plan, err := e.plans.CreatePlan(context.Background(), e.admin, CreatePlanRequest{Name: "Plan Oro", Price: price})
	require.NoError(t, err)
	return plan
}

func (e *testEnv) seedSale(t *testing.T, actor Actor) *SaleResponse {
	t.Helper()
	sale, err := e.sales.CreateSale(context.Background(), actor, CreateSaleRequest{})
	require.NoError(t, err)
	return sale
}

// activateWorkflow stores an active configuration for the test company
func (e *testEnv) activateWorkflow(t *testing.T, rules ...model.TransitionRule) {
	t.Helper()
	raw, err := json.Marshal(model.WorkflowDefinition{Transitions: rules})
	require.NoError(t, err)
	require.NoError(t, fakeConfigRepo{e.store}.Upsert(context.Background(), &model.WorkflowConfig{
		CompanyID:      e.companyID,
		WorkflowConfig: string(raw),
		IsActive:       true,
	}))
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}
