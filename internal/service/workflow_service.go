package service

import (
	"context"
	"encoding/json"
	"fmt"

	"salesflow/internal/model"
	"salesflow/internal/repository"
	"salesflow/internal/workflow"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type UpsertWorkflowRequest struct {
	IsActive   bool                     `json:"is_active"`
	Definition model.WorkflowDefinition `json:"workflow_config"`
}

type WorkflowConfigResponse struct {
	CompanyID  uuid.UUID                `json:"company_id"`
	IsActive   bool                     `json:"is_active"`
	Definition model.WorkflowDefinition `json:"workflow_config"`
	UpdatedBy  *uuid.UUID               `json:"updated_by"`
	UpdatedAt  *string                  `json:"updated_at"`
	// Valid is false when the stored document cannot be decoded; enforcement is then off
	Valid bool `json:"valid"`
}

// DryRunRequest checks a hypothetical transition without touching any sale
type DryRunRequest struct {
	Sale   workflow.SaleData `json:"sale"`
	Target model.SaleStatus  `json:"target" binding:"required"`
	Role   string            `json:"role"` // defaults to the caller's role
}

type WorkflowService interface {
	GetConfig(ctx context.Context, actor Actor) (*WorkflowConfigResponse, error)
	UpsertConfig(ctx context.Context, actor Actor, req UpsertWorkflowRequest) (*WorkflowConfigResponse, error)
	DryRun(ctx context.Context, actor Actor, req DryRunRequest) workflow.Result
}

type workflowService struct {
	repo      repository.WorkflowConfigRepository
	validator TransitionChecker
	audit     auditTrail
}

func NewWorkflowService(repo repository.WorkflowConfigRepository, validator TransitionChecker, auditRepo repository.AuditRepository, logger *zap.Logger) WorkflowService {
	return &workflowService{repo: repo, validator: validator, audit: newAuditTrail(auditRepo, logger)}
}

func toWorkflowResponse(cfg *model.WorkflowConfig) *WorkflowConfigResponse {
	res := &WorkflowConfigResponse{
		CompanyID: cfg.CompanyID,
		IsActive:  cfg.IsActive,
		UpdatedBy: cfg.UpdatedBy,
		Valid:     true,
	}
	if !cfg.UpdatedAt.IsZero() {
		updatedAt := cfg.UpdatedAt.Format("2006-01-02T15:04:05Z07:00")
		res.UpdatedAt = &updatedAt
	}
	def, err := cfg.Definition()
	if err != nil {
		res.Valid = false
	}
	if def.Transitions == nil {
		def.Transitions = []model.TransitionRule{}
	}
	res.Definition = def
	return res
}

// GetConfig returns the company's configuration, or an inactive empty one when none is stored
func (s *workflowService) GetConfig(ctx context.Context, actor Actor) (*WorkflowConfigResponse, error) {
	cfg, err := s.repo.FindByCompanyID(ctx, actor.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow config: %w", err)
	}
	if cfg == nil {
		cfg = &model.WorkflowConfig{CompanyID: actor.CompanyID}
	}
	return toWorkflowResponse(cfg), nil
}

func (s *workflowService) UpsertConfig(ctx context.Context, actor Actor, req UpsertWorkflowRequest) (*WorkflowConfigResponse, error) {
	if err := workflow.ValidateDefinition(req.Definition); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if req.Definition.Transitions == nil {
		req.Definition.Transitions = []model.TransitionRule{}
	}

	raw, err := json.Marshal(req.Definition)
	if err != nil {
		return nil, fmt.Errorf("failed to encode workflow config: %w", err)
	}

	updatedBy := actor.UserID
	cfg := &model.WorkflowConfig{
		CompanyID:      actor.CompanyID,
		WorkflowConfig: string(raw),
		IsActive:       req.IsActive,
		UpdatedBy:      &updatedBy,
	}
	if err := s.repo.Upsert(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to save workflow config: %w", err)
	}

	s.audit.record(ctx, actor, model.ActionUpdateWorkflowConfig, actor.CompanyID.String(), "workflow", map[string]interface{}{
		"is_active":   req.IsActive,
		"transitions": len(req.Definition.Transitions),
	})

	return toWorkflowResponse(cfg), nil
}

func (s *workflowService) DryRun(ctx context.Context, actor Actor, req DryRunRequest) workflow.Result {
	role := req.Role
	if role == "" {
		role = actor.Role
	}
	return s.validator.Validate(ctx, actor.CompanyID, req.Sale, req.Target, role)
}
