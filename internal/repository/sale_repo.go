package repository

import (
	"context"
	"time"

	"salesflow/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SaleRepository interface {
	Create(ctx context.Context, sale *model.Sale) error
	Update(ctx context.Context, sale *model.Sale) error
	FindByID(ctx context.Context, companyID, id uuid.UUID) (*model.Sale, error)
	// FindByIDForUpdate locks the sale row until the surrounding transaction ends
	FindByIDForUpdate(ctx context.Context, companyID, id uuid.UUID) (*model.Sale, error)
	FindBySignatureToken(ctx context.Context, token string) (*model.Sale, error)
	List(ctx context.Context, companyID uuid.UUID, status string, sellerID *uuid.UUID, page, limit int) ([]model.Sale, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.SaleStatus) error
	ReplaceBeneficiaries(ctx context.Context, saleID uuid.UUID, beneficiaries []model.Beneficiary) error
	ReplaceSignatures(ctx context.Context, saleID uuid.UUID, signatures []model.SaleSignature) error
	MarkSigned(ctx context.Context, signatureID uuid.UUID, signedAt time.Time, ip string) error
}

type saleRepository struct {
	db *gorm.DB
}

func NewSaleRepository(db *gorm.DB) SaleRepository {
	return &saleRepository{db: db}
}

func (r *saleRepository) withRelations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Client").
		Preload("Plan").
		Preload("Seller").
		Preload("Beneficiaries", func(q *gorm.DB) *gorm.DB { return q.Order("created_at asc") }).
		Preload("Signatures", func(q *gorm.DB) *gorm.DB { return q.Order("created_at asc") })
}

func (r *saleRepository) Create(ctx context.Context, sale *model.Sale) error {
	return GetDB(ctx, r.db).Omit(clause.Associations).Create(sale).Error
}

// Update saves the sale columns only; child collections have their own replace methods
func (r *saleRepository) Update(ctx context.Context, sale *model.Sale) error {
	return GetDB(ctx, r.db).Omit(clause.Associations).Save(sale).Error
}

func (r *saleRepository) FindByID(ctx context.Context, companyID, id uuid.UUID) (*model.Sale, error) {
	var sale model.Sale
	if err := r.withRelations(GetDB(ctx, r.db)).First(&sale, "id = ? AND company_id = ?", id, companyID).Error; err != nil {
		return nil, translate(err)
	}
	return &sale, nil
}

func (r *saleRepository) FindByIDForUpdate(ctx context.Context, companyID, id uuid.UUID) (*model.Sale, error) {
	db := GetDB(ctx, r.db)

	var locked model.Sale
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&locked, "id = ? AND company_id = ?", id, companyID).Error; err != nil {
		return nil, translate(err)
	}

	var sale model.Sale
	if err := r.withRelations(db).First(&sale, "id = ?", locked.ID).Error; err != nil {
		return nil, translate(err)
	}
	return &sale, nil
}

func (r *saleRepository) FindBySignatureToken(ctx context.Context, token string) (*model.Sale, error) {
	var sale model.Sale
	if err := r.withRelations(GetDB(ctx, r.db)).First(&sale, "signature_token = ?", token).Error; err != nil {
		return nil, translate(err)
	}
	return &sale, nil
}

func (r *saleRepository) List(ctx context.Context, companyID uuid.UUID, status string, sellerID *uuid.UUID, page, limit int) ([]model.Sale, int64, error) {
	var sales []model.Sale
	var total int64

	filter := func(q *gorm.DB) *gorm.DB {
		q = q.Where("company_id = ?", companyID)
		if status != "" {
			q = q.Where("status = ?", status)
		}
		if sellerID != nil {
			q = q.Where("seller_id = ?", *sellerID)
		}
		return q
	}

	db := GetDB(ctx, r.db)
	if err := filter(db.Model(&model.Sale{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := filter(db.Model(&model.Sale{})).
		Preload("Client").
		Preload("Plan").
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&sales).Error; err != nil {
		return nil, 0, err
	}

	return sales, total, nil
}

func (r *saleRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.SaleStatus) error {
	res := GetDB(ctx, r.db).Model(&model.Sale{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *saleRepository) ReplaceBeneficiaries(ctx context.Context, saleID uuid.UUID, beneficiaries []model.Beneficiary) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("sale_id = ?", saleID).Delete(&model.Beneficiary{}).Error; err != nil {
		return err
	}
	if len(beneficiaries) == 0 {
		return nil
	}
	for i := range beneficiaries {
		beneficiaries[i].SaleID = saleID
	}
	return db.Create(&beneficiaries).Error
}

func (r *saleRepository) ReplaceSignatures(ctx context.Context, saleID uuid.UUID, signatures []model.SaleSignature) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("sale_id = ?", saleID).Delete(&model.SaleSignature{}).Error; err != nil {
		return err
	}
	if len(signatures) == 0 {
		return nil
	}
	for i := range signatures {
		signatures[i].SaleID = saleID
	}
	return db.Create(&signatures).Error
}

func (r *saleRepository) MarkSigned(ctx context.Context, signatureID uuid.UUID, signedAt time.Time, ip string) error {
	res := GetDB(ctx, r.db).Model(&model.SaleSignature{}).
		Where("id = ? AND signed_at IS NULL", signatureID).
		Updates(map[string]interface{}{"signed_at": signedAt, "ip_address": ip})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
