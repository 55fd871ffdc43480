package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"salesflow/internal/model"
	"salesflow/internal/repository"
	"salesflow/internal/websocket"
	"salesflow/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// lockedStatuses are the stages after which sale details can no longer be edited
var lockedStatuses = map[model.SaleStatus]bool{
	model.SaleStatusSigned:    true,
	model.SaleStatusCompleted: true,
	model.SaleStatusCanceled:  true,
}

type BeneficiaryPayload struct {
	FullName       string `json:"full_name" binding:"required"`
	DocumentNumber string `json:"document_number"`
	Relationship   string `json:"relationship"`
	BirthDate      string `json:"birth_date"`
}

type CreateSaleRequest struct {
	ClientID    *uuid.UUID `json:"client_id"`
	PlanID      *uuid.UUID `json:"plan_id"`
	TemplateID  *uuid.UUID `json:"template_id"`
	TotalAmount string     `json:"total_amount"` // defaults to the plan price
	Notes       string     `json:"notes"`
}

// UpdateSaleRequest uses pointers so omitted fields stay unchanged; an empty
// beneficiaries or template_responses array clears the list
type UpdateSaleRequest struct {
	ClientID          *uuid.UUID                `json:"client_id"`
	PlanID            *uuid.UUID                `json:"plan_id"`
	TemplateID        *uuid.UUID                `json:"template_id"`
	TotalAmount       *string                   `json:"total_amount"`
	AdherentsCount    *int                      `json:"adherents_count"`
	AuditStatus       *string                   `json:"audit_status"`
	Notes             *string                   `json:"notes"`
	Beneficiaries     *[]BeneficiaryPayload     `json:"beneficiaries"`
	TemplateResponses *[]model.TemplateResponse `json:"template_responses"`
}

type ChangeStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note"`
}

// SaleResponse adds the decoded DDJJ answers to the stored sale
type SaleResponse struct {
	*model.Sale
	TemplateResponses []model.TemplateResponse `json:"template_responses"`
}

// TransitionsResponse lists what the caller can do next with a sale
type TransitionsResponse struct {
	Current  model.SaleStatus            `json:"current"`
	Enforced bool                        `json:"enforced"`
	Options  []workflow.TransitionOption `json:"options"`
}

// TransitionChecker decides whether a status change is permitted
type TransitionChecker interface {
	Validate(ctx context.Context, companyID uuid.UUID, sale workflow.SaleData, target model.SaleStatus, role string) workflow.Result
	Options(ctx context.Context, companyID uuid.UUID, sale workflow.SaleData, role string) ([]workflow.TransitionOption, bool)
}

type SaleService interface {
	CreateSale(ctx context.Context, actor Actor, req CreateSaleRequest) (*SaleResponse, error)
	GetSale(ctx context.Context, actor Actor, id uuid.UUID) (*SaleResponse, error)
	ListSales(ctx context.Context, actor Actor, status string, page, limit int) ([]model.Sale, int64, error)
	UpdateSale(ctx context.Context, actor Actor, id uuid.UUID, req UpdateSaleRequest) (*SaleResponse, error)
	ChangeStatus(ctx context.Context, actor Actor, id uuid.UUID, req ChangeStatusRequest) (*SaleResponse, error)
	AvailableTransitions(ctx context.Context, actor Actor, id uuid.UUID) (*TransitionsResponse, error)
}

type saleService struct {
	sales     repository.SaleRepository
	clients   repository.ClientRepository
	plans     repository.PlanRepository
	txManager repository.TransactionManager
	checker   TransitionChecker
	publisher websocket.Publisher
	audit     auditTrail
	logger    *zap.Logger
}

type noopPublisher struct{}

func (noopPublisher) Publish(uuid.UUID, string, interface{}) {}

func NewSaleService(
	sales repository.SaleRepository,
	clients repository.ClientRepository,
	plans repository.PlanRepository,
	txManager repository.TransactionManager,
	checker TransitionChecker,
	publisher websocket.Publisher,
	auditRepo repository.AuditRepository,
	logger *zap.Logger,
) SaleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &saleService{
		sales:     sales,
		clients:   clients,
		plans:     plans,
		txManager: txManager,
		checker:   checker,
		publisher: publisher,
		audit:     newAuditTrail(auditRepo, logger),
		logger:    logger,
	}
}

func toSaleResponse(sale *model.Sale) *SaleResponse {
	responses := sale.ResponsesList()
	if responses == nil {
		responses = []model.TemplateResponse{}
	}
	return &SaleResponse{Sale: sale, TemplateResponses: responses}
}

// saleEvent is the realtime payload; it stays small so clients refetch details
type saleEvent struct {
	ID     uuid.UUID        `json:"id"`
	Status model.SaleStatus `json:"status"`
	From   model.SaleStatus `json:"from,omitempty"`
	By     uuid.UUID        `json:"by,omitempty"`
}

func (s *saleService) checkClient(ctx context.Context, companyID uuid.UUID, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	if _, err := s.clients.FindByID(ctx, companyID, *id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return invalid("client %s does not exist", id)
		}
		return fmt.Errorf("failed to load client: %w", err)
	}
	return nil
}

func (s *saleService) loadPlan(ctx context.Context, companyID uuid.UUID, id *uuid.UUID) (*model.Plan, error) {
	if id == nil {
		return nil, nil
	}
	plan, err := s.plans.FindByID(ctx, companyID, *id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, invalid("plan %s does not exist", id)
		}
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	if !plan.IsActive {
		return nil, invalid("plan %s is not active", plan.Name)
	}
	return plan, nil
}

func (s *saleService) CreateSale(ctx context.Context, actor Actor, req CreateSaleRequest) (*SaleResponse, error) {
	if err := s.checkClient(ctx, actor.CompanyID, req.ClientID); err != nil {
		return nil, err
	}
	plan, err := s.loadPlan(ctx, actor.CompanyID, req.PlanID)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	switch {
	case strings.TrimSpace(req.TotalAmount) != "":
		if total, err = parsePrice(req.TotalAmount); err != nil {
			return nil, err
		}
	case plan != nil:
		total = plan.Price
	}

	sellerID := actor.UserID
	sale := &model.Sale{
		CompanyID:   actor.CompanyID,
		SellerID:    &sellerID,
		ClientID:    req.ClientID,
		PlanID:      req.PlanID,
		TemplateID:  req.TemplateID,
		Status:      model.SaleStatusDraft,
		TotalAmount: total,
		AuditStatus: model.AuditStatusPending,
		Notes:       strings.TrimSpace(req.Notes),
	}
	if err := sale.SetResponses(nil); err != nil {
		return nil, err
	}
	if err := s.sales.Create(ctx, sale); err != nil {
		return nil, fmt.Errorf("failed to create sale: %w", err)
	}

	s.audit.record(ctx, actor, model.ActionCreateSale, sale.ID.String(), "", req)
	s.publisher.Publish(actor.CompanyID, websocket.EventSaleCreated, saleEvent{ID: sale.ID, Status: sale.Status, By: actor.UserID})

	return s.GetSale(ctx, actor, sale.ID)
}

// canSee limits sellers to their own sales
func canSee(actor Actor, sale *model.Sale) bool {
	if actor.Role != model.RoleSeller {
		return true
	}
	return sale.SellerID != nil && *sale.SellerID == actor.UserID
}

func (s *saleService) find(ctx context.Context, actor Actor, id uuid.UUID, forUpdate bool) (*model.Sale, error) {
	var (
		sale *model.Sale
		err  error
	)
	if forUpdate {
		sale, err = s.sales.FindByIDForUpdate(ctx, actor.CompanyID, id)
	} else {
		sale, err = s.sales.FindByID(ctx, actor.CompanyID, id)
	}
	if err != nil {
		return nil, notFound(err, "sale")
	}
	if !canSee(actor, sale) {
		return nil, fmt.Errorf("sale %w", ErrNotFound)
	}
	return sale, nil
}

func (s *saleService) GetSale(ctx context.Context, actor Actor, id uuid.UUID) (*SaleResponse, error) {
	sale, err := s.find(ctx, actor, id, false)
	if err != nil {
		return nil, err
	}
	return toSaleResponse(sale), nil
}

func (s *saleService) ListSales(ctx context.Context, actor Actor, status string, page, limit int) ([]model.Sale, int64, error) {
	page, limit = normalizePage(page, limit)

	var sellerID *uuid.UUID
	if actor.Role == model.RoleSeller {
		id := actor.UserID
		sellerID = &id
	}
	return s.sales.List(ctx, actor.CompanyID, strings.TrimSpace(status), sellerID, page, limit)
}

func buildBeneficiaries(payload []BeneficiaryPayload) ([]model.Beneficiary, error) {
	out := make([]model.Beneficiary, 0, len(payload))
	for i, b := range payload {
		name := strings.TrimSpace(b.FullName)
		if name == "" {
			return nil, invalid("beneficiaries[%d]: full name is required", i)
		}
		birthDate, err := parseDate(b.BirthDate)
		if err != nil {
			return nil, err
		}
		out = append(out, model.Beneficiary{
			FullName:       name,
			DocumentNumber: strings.TrimSpace(b.DocumentNumber),
			Relationship:   strings.TrimSpace(b.Relationship),
			BirthDate:      birthDate,
		})
	}
	return out, nil
}

func validAuditStatus(status string) bool {
	switch status {
	case model.AuditStatusPending, model.AuditStatusApproved, model.AuditStatusRejected:
		return true
	}
	return false
}

// canReview reports whether the role may record audit outcomes
func canReview(role string) bool {
	return role == model.RoleAdmin || role == model.RoleSupervisor || role == model.RoleAuditor
}

func (s *saleService) UpdateSale(ctx context.Context, actor Actor, id uuid.UUID, req UpdateSaleRequest) (*SaleResponse, error) {
	if req.AuditStatus != nil {
		if !validAuditStatus(*req.AuditStatus) {
			return nil, invalid("invalid audit status %q", *req.AuditStatus)
		}
		if !canReview(actor.Role) {
			return nil, fmt.Errorf("%w: role %q cannot record audit results", ErrForbidden, actor.Role)
		}
	}
	if req.AdherentsCount != nil && *req.AdherentsCount < 0 {
		return nil, invalid("adherents count cannot be negative")
	}

	var beneficiaries []model.Beneficiary
	if req.Beneficiaries != nil {
		var err error
		if beneficiaries, err = buildBeneficiaries(*req.Beneficiaries); err != nil {
			return nil, err
		}
	}

	var status model.SaleStatus
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		sale, err := s.find(txCtx, actor, id, true)
		if err != nil {
			return err
		}
		if lockedStatuses[sale.Status] {
			return fmt.Errorf("%w: sale in status %s can no longer be edited", ErrConflict, sale.Status)
		}
		status = sale.Status

		if req.ClientID != nil {
			if err := s.checkClient(txCtx, actor.CompanyID, req.ClientID); err != nil {
				return err
			}
			sale.ClientID = req.ClientID
		}
		if req.PlanID != nil {
			if _, err := s.loadPlan(txCtx, actor.CompanyID, req.PlanID); err != nil {
				return err
			}
			sale.PlanID = req.PlanID
		}
		if req.TemplateID != nil {
			sale.TemplateID = req.TemplateID
		}
		if req.TotalAmount != nil {
			if sale.TotalAmount, err = parsePrice(*req.TotalAmount); err != nil {
				return err
			}
		}
		if req.AdherentsCount != nil {
			sale.AdherentsCount = req.AdherentsCount
		}
		if req.AuditStatus != nil {
			sale.AuditStatus = *req.AuditStatus
		}
		if req.Notes != nil {
			sale.Notes = strings.TrimSpace(*req.Notes)
		}
		if req.TemplateResponses != nil {
			if err := sale.SetResponses(*req.TemplateResponses); err != nil {
				return fmt.Errorf("failed to encode template responses: %w", err)
			}
		}

		if err := s.sales.Update(txCtx, sale); err != nil {
			return fmt.Errorf("failed to update sale: %w", err)
		}
		if req.Beneficiaries != nil {
			if err := s.sales.ReplaceBeneficiaries(txCtx, sale.ID, beneficiaries); err != nil {
				return fmt.Errorf("failed to save beneficiaries: %w", err)
			}
		}

		s.audit.record(txCtx, actor, model.ActionUpdateSale, sale.ID.String(), "", req)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(actor.CompanyID, websocket.EventSaleUpdated, saleEvent{ID: id, Status: status, By: actor.UserID})
	return s.GetSale(ctx, actor, id)
}

// ChangeStatus moves a sale to a new status after the workflow configuration approves it.
// The check runs on a locked, freshly loaded sale so it sees the state being committed.
func (s *saleService) ChangeStatus(ctx context.Context, actor Actor, id uuid.UUID, req ChangeStatusRequest) (*SaleResponse, error) {
	target := model.SaleStatus(strings.TrimSpace(req.Status))
	if target == "" {
		return nil, invalid("status is required")
	}

	var (
		from     model.SaleStatus
		rejected *TransitionRejectedError
	)
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		sale, err := s.find(txCtx, actor, id, true)
		if err != nil {
			return err
		}
		from = sale.Status
		if from == target {
			return invalid("sale is already in status %s", target)
		}

		result := s.checker.Validate(txCtx, actor.CompanyID, workflow.SnapshotFromSale(sale), target, actor.Role)
		if !result.Allowed {
			rejected = &TransitionRejectedError{From: string(from), To: string(target), Reasons: result.Reasons}
			return rejected
		}

		if err := s.sales.UpdateStatus(txCtx, sale.ID, target); err != nil {
			return fmt.Errorf("failed to update sale status: %w", err)
		}

		s.audit.record(txCtx, actor, model.ActionChangeSaleStatus, sale.ID.String(), string(target), map[string]string{
			"from": string(from),
			"to":   string(target),
			"note": req.Note,
		})
		return nil
	})
	if rejected != nil {
		// written outside the rolled back transaction so the attempt is kept
		s.audit.record(ctx, actor, model.ActionRejectSaleTransition, id.String(), string(target), map[string]interface{}{
			"from":    rejected.From,
			"to":      rejected.To,
			"reasons": rejected.Reasons,
		})
		return nil, rejected
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("sale status changed",
		zap.String("sale_id", id.String()),
		zap.String("from", string(from)),
		zap.String("to", string(target)),
		zap.String("user_id", actor.UserID.String()))
	s.publisher.Publish(actor.CompanyID, websocket.EventSaleStatusChanged, saleEvent{ID: id, Status: target, From: from, By: actor.UserID})

	return s.GetSale(ctx, actor, id)
}

func (s *saleService) AvailableTransitions(ctx context.Context, actor Actor, id uuid.UUID) (*TransitionsResponse, error) {
	sale, err := s.find(ctx, actor, id, false)
	if err != nil {
		return nil, err
	}

	options, enforced := s.checker.Options(ctx, actor.CompanyID, workflow.SnapshotFromSale(sale), actor.Role)
	if options == nil {
		options = []workflow.TransitionOption{}
	}
	return &TransitionsResponse{Current: sale.Status, Enforced: enforced, Options: options}, nil
}
