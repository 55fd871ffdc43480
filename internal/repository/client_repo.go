package repository

import (
	"context"

	"salesflow/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ClientRepository interface {
	Create(ctx context.Context, client *model.Client) error
	Update(ctx context.Context, client *model.Client) error
	FindByID(ctx context.Context, companyID, id uuid.UUID) (*model.Client, error)
	FindByDocument(ctx context.Context, companyID uuid.UUID, documentNumber string) (*model.Client, error)
	List(ctx context.Context, companyID uuid.UUID, search string, page, limit int) ([]model.Client, int64, error)
}

type clientRepository struct {
	db *gorm.DB
}

func NewClientRepository(db *gorm.DB) ClientRepository {
	return &clientRepository{db: db}
}

func (r *clientRepository) Create(ctx context.Context, client *model.Client) error {
	return GetDB(ctx, r.db).Create(client).Error
}

func (r *clientRepository) Update(ctx context.Context, client *model.Client) error {
	return GetDB(ctx, r.db).Save(client).Error
}

func (r *clientRepository) FindByID(ctx context.Context, companyID, id uuid.UUID) (*model.Client, error) {
	var client model.Client
	if err := GetDB(ctx, r.db).First(&client, "id = ? AND company_id = ?", id, companyID).Error; err != nil {
		return nil, translate(err)
	}
	return &client, nil
}

func (r *clientRepository) FindByDocument(ctx context.Context, companyID uuid.UUID, documentNumber string) (*model.Client, error) {
	var client model.Client
	if err := GetDB(ctx, r.db).First(&client, "company_id = ? AND document_number = ?", companyID, documentNumber).Error; err != nil {
		return nil, translate(err)
	}
	return &client, nil
}

func (r *clientRepository) List(ctx context.Context, companyID uuid.UUID, search string, page, limit int) ([]model.Client, int64, error) {
	var clients []model.Client
	var total int64

	filter := func(q *gorm.DB) *gorm.DB {
		q = q.Where("company_id = ?", companyID)
		if search != "" {
			like := "%" + search + "%"
			q = q.Where("first_name ILIKE ? OR last_name ILIKE ? OR document_number ILIKE ? OR email ILIKE ?",
				like, like, like, like)
		}
		return q
	}

	db := GetDB(ctx, r.db)
	if err := filter(db.Model(&model.Client{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := filter(db.Model(&model.Client{})).Order("created_at DESC").Offset(offset).Limit(limit).Find(&clients).Error; err != nil {
		return nil, 0, err
	}

	return clients, total, nil
}
