package repository

import (
	"context"

	"salesflow/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PlanRepository interface {
	Create(ctx context.Context, plan *model.Plan) error
	Update(ctx context.Context, plan *model.Plan) error
	FindByID(ctx context.Context, companyID, id uuid.UUID) (*model.Plan, error)
	List(ctx context.Context, companyID uuid.UUID, activeOnly bool) ([]model.Plan, error)
}

type planRepository struct {
	db *gorm.DB
}

func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepository{db: db}
}

func (r *planRepository) Create(ctx context.Context, plan *model.Plan) error {
	return GetDB(ctx, r.db).Create(plan).Error
}

func (r *planRepository) Update(ctx context.Context, plan *model.Plan) error {
	return GetDB(ctx, r.db).Save(plan).Error
}

func (r *planRepository) FindByID(ctx context.Context, companyID, id uuid.UUID) (*model.Plan, error) {
	var plan model.Plan
	if err := GetDB(ctx, r.db).First(&plan, "id = ? AND company_id = ?", id, companyID).Error; err != nil {
		return nil, translate(err)
	}
	return &plan, nil
}

func (r *planRepository) List(ctx context.Context, companyID uuid.UUID, activeOnly bool) ([]model.Plan, error) {
	var plans []model.Plan
	q := GetDB(ctx, r.db).Where("company_id = ?", companyID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	if err := q.Order("name asc").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}
