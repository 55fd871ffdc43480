package repository

import (
	"context"
	"errors"

	"salesflow/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WorkflowConfigRepository stores one workflow configuration per company.
// FindByCompanyID returns (nil, nil) when the company has none.
type WorkflowConfigRepository interface {
	FindByCompanyID(ctx context.Context, companyID uuid.UUID) (*model.WorkflowConfig, error)
	Upsert(ctx context.Context, cfg *model.WorkflowConfig) error
}

type workflowConfigRepository struct {
	db *gorm.DB
}

func NewWorkflowConfigRepository(db *gorm.DB) WorkflowConfigRepository {
	return &workflowConfigRepository{db: db}
}

func (r *workflowConfigRepository) FindByCompanyID(ctx context.Context, companyID uuid.UUID) (*model.WorkflowConfig, error) {
	var cfg model.WorkflowConfig
	err := GetDB(ctx, r.db).Where("company_id = ?", companyID).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *workflowConfigRepository) Upsert(ctx context.Context, cfg *model.WorkflowConfig) error {
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "company_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"workflow_config", "is_active", "updated_by", "updated_at"}),
	}).Create(cfg).Error
}
