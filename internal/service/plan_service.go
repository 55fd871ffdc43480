package service

import (
	"context"
	"fmt"
	"strings"

	"salesflow/internal/model"
	"salesflow/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CreatePlanRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Price       string `json:"price" binding:"required"` // decimal string, e.g. "15000.50"
}

type UpdatePlanRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Price       *string `json:"price"`
	IsActive    *bool   `json:"is_active"`
}

type PlanService interface {
	CreatePlan(ctx context.Context, actor Actor, req CreatePlanRequest) (*model.Plan, error)
	UpdatePlan(ctx context.Context, actor Actor, id uuid.UUID, req UpdatePlanRequest) (*model.Plan, error)
	GetPlan(ctx context.Context, actor Actor, id uuid.UUID) (*model.Plan, error)
	ListPlans(ctx context.Context, actor Actor, activeOnly bool) ([]model.Plan, error)
}

type planService struct {
	repo  repository.PlanRepository
	audit auditTrail
}

func NewPlanService(repo repository.PlanRepository, auditRepo repository.AuditRepository, logger *zap.Logger) PlanService {
	return &planService{repo: repo, audit: newAuditTrail(auditRepo, logger)}
}

func parsePrice(raw string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, invalid("invalid price %q", raw)
	}
	if price.IsNegative() {
		return decimal.Zero, invalid("price cannot be negative")
	}
	return price.Round(2), nil
}

func (s *planService) CreatePlan(ctx context.Context, actor Actor, req CreatePlanRequest) (*model.Plan, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("plan name is required")
	}
	price, err := parsePrice(req.Price)
	if err != nil {
		return nil, err
	}

	plan := &model.Plan{
		CompanyID:   actor.CompanyID,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Price:       price,
		IsActive:    true,
	}
	if err := s.repo.Create(ctx, plan); err != nil {
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}

	s.audit.record(ctx, actor, model.ActionCreatePlan, plan.ID.String(), plan.Name, map[string]string{"price": price.StringFixed(2)})
	return plan, nil
}

func (s *planService) UpdatePlan(ctx context.Context, actor Actor, id uuid.UUID, req UpdatePlanRequest) (*model.Plan, error) {
	plan, err := s.repo.FindByID(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, notFound(err, "plan")
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, invalid("plan name cannot be empty")
		}
		plan.Name = name
	}
	if req.Description != nil {
		plan.Description = strings.TrimSpace(*req.Description)
	}
	if req.Price != nil {
		if plan.Price, err = parsePrice(*req.Price); err != nil {
			return nil, err
		}
	}
	if req.IsActive != nil {
		plan.IsActive = *req.IsActive
	}

	if err := s.repo.Update(ctx, plan); err != nil {
		return nil, fmt.Errorf("failed to update plan: %w", err)
	}

	s.audit.record(ctx, actor, model.ActionUpdatePlan, plan.ID.String(), plan.Name, req)
	return plan, nil
}

func (s *planService) GetPlan(ctx context.Context, actor Actor, id uuid.UUID) (*model.Plan, error) {
	plan, err := s.repo.FindByID(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, notFound(err, "plan")
	}
	return plan, nil
}

func (s *planService) ListPlans(ctx context.Context, actor Actor, activeOnly bool) ([]model.Plan, error) {
	return s.repo.List(ctx, actor.CompanyID, activeOnly)
}
