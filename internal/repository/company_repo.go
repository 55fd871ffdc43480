package repository

import (
	"context"

	"salesflow/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CompanyRepository interface {
	Create(ctx context.Context, company *model.Company) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Company, error)
	ExistsByTaxID(ctx context.Context, taxID string) (bool, error)
}

type companyRepository struct {
	db *gorm.DB
}

func NewCompanyRepository(db *gorm.DB) CompanyRepository {
	return &companyRepository{db: db}
}

func (r *companyRepository) Create(ctx context.Context, company *model.Company) error {
	return GetDB(ctx, r.db).Create(company).Error
}

func (r *companyRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Company, error) {
	var company model.Company
	if err := GetDB(ctx, r.db).First(&company, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &company, nil
}

func (r *companyRepository) ExistsByTaxID(ctx context.Context, taxID string) (bool, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.Company{}).Where("tax_id = ?", taxID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
