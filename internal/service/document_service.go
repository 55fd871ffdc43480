package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"salesflow/internal/model"
	"salesflow/internal/repository"
	"salesflow/internal/storage"
	"salesflow/internal/websocket"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxContractSize bounds uploaded contract files
const MaxContractSize = 10 << 20

type UploadContractRequest struct {
	Filename    string
	ContentType string
	Content     []byte
}

type Document struct {
	Filename    string
	ContentType string
	Content     []byte
}

type DocumentService interface {
	UploadContract(ctx context.Context, actor Actor, saleID uuid.UUID, req UploadContractRequest) (*SaleResponse, error)
	DownloadContract(ctx context.Context, actor Actor, saleID uuid.UUID) (*Document, error)
	DownloadContractByToken(ctx context.Context, token string) (*Document, error)
}

type documentService struct {
	sales     repository.SaleRepository
	store     storage.DocumentStore
	publisher websocket.Publisher
	audit     auditTrail
}

// NewDocumentService accepts a nil store; every call then fails with ErrStorageDisabled
func NewDocumentService(sales repository.SaleRepository, store storage.DocumentStore, publisher websocket.Publisher, auditRepo repository.AuditRepository, logger *zap.Logger) DocumentService {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &documentService{sales: sales, store: store, publisher: publisher, audit: newAuditTrail(auditRepo, logger)}
}

func contractPrefix(sale *model.Sale) string {
	return path.Join("companies", sale.CompanyID.String(), "sales", sale.ID.String())
}

func (s *documentService) UploadContract(ctx context.Context, actor Actor, saleID uuid.UUID, req UploadContractRequest) (*SaleResponse, error) {
	if s.store == nil {
		return nil, ErrStorageDisabled
	}
	if len(req.Content) == 0 {
		return nil, invalid("contract file is empty")
	}
	if len(req.Content) > MaxContractSize {
		return nil, invalid("contract file exceeds %d MB", MaxContractSize>>20)
	}
	if !bytes.HasPrefix(req.Content, []byte("%PDF-")) {
		return nil, invalid("contract must be a PDF document")
	}

	sale, err := s.sales.FindByID(ctx, actor.CompanyID, saleID)
	if err != nil {
		return nil, notFound(err, "sale")
	}
	if !canSee(actor, sale) {
		return nil, fmt.Errorf("sale %w", ErrNotFound)
	}
	if lockedStatuses[sale.Status] {
		return nil, fmt.Errorf("%w: sale in status %s can no longer change its contract", ErrConflict, sale.Status)
	}

	key, err := s.store.PutDocument(ctx, contractPrefix(sale), req.Filename, "application/pdf", req.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to store contract: %w", err)
	}

	sale.ContractPDFURL = key
	if err := s.sales.Update(ctx, sale); err != nil {
		return nil, fmt.Errorf("failed to update sale: %w", err)
	}

	s.audit.record(ctx, actor, model.ActionUploadContract, sale.ID.String(), path.Base(key), map[string]interface{}{
		"object_key": key,
		"size":       len(req.Content),
	})
	s.publisher.Publish(actor.CompanyID, websocket.EventSaleUpdated, saleEvent{ID: sale.ID, Status: sale.Status, By: actor.UserID})

	return toSaleResponse(sale), nil
}

func (s *documentService) fetch(ctx context.Context, sale *model.Sale) (*Document, error) {
	if s.store == nil {
		return nil, ErrStorageDisabled
	}
	if sale.ContractPDFURL == "" {
		return nil, fmt.Errorf("contract %w", ErrNotFound)
	}
	content, err := s.store.GetDocument(ctx, sale.ContractPDFURL)
	if err != nil {
		if errors.Is(err, storage.ErrDocumentNotFound) {
			return nil, fmt.Errorf("contract %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read contract: %w", err)
	}
	return &Document{Filename: path.Base(sale.ContractPDFURL), ContentType: "application/pdf", Content: content}, nil
}

func (s *documentService) DownloadContract(ctx context.Context, actor Actor, saleID uuid.UUID) (*Document, error) {
	sale, err := s.sales.FindByID(ctx, actor.CompanyID, saleID)
	if err != nil {
		return nil, notFound(err, "sale")
	}
	if !canSee(actor, sale) {
		return nil, fmt.Errorf("sale %w", ErrNotFound)
	}
	return s.fetch(ctx, sale)
}

// DownloadContractByToken serves the contract to signers holding a valid signing link
func (s *documentService) DownloadContractByToken(ctx context.Context, token string) (*Document, error) {
	if token == "" {
		return nil, fmt.Errorf("signature request %w", ErrNotFound)
	}
	sale, err := s.sales.FindBySignatureToken(ctx, token)
	if err != nil {
		return nil, notFound(err, "signature request")
	}
	return s.fetch(ctx, sale)
}
