package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"salesflow/internal/model"
	"salesflow/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

type CreateClientRequest struct {
	FirstName      string `json:"first_name" binding:"required"`
	LastName       string `json:"last_name" binding:"required"`
	DocumentNumber string `json:"document_number" binding:"required"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	BirthDate      string `json:"birth_date"` // YYYY-MM-DD
	Address        string `json:"address"`
}

// UpdateClientRequest uses pointers so omitted fields stay unchanged
type UpdateClientRequest struct {
	FirstName      *string `json:"first_name"`
	LastName       *string `json:"last_name"`
	DocumentNumber *string `json:"document_number"`
	Email          *string `json:"email"`
	Phone          *string `json:"phone"`
	BirthDate      *string `json:"birth_date"`
	Address        *string `json:"address"`
}

type ClientService interface {
	CreateClient(ctx context.Context, actor Actor, req CreateClientRequest) (*model.Client, error)
	UpdateClient(ctx context.Context, actor Actor, id uuid.UUID, req UpdateClientRequest) (*model.Client, error)
	GetClient(ctx context.Context, actor Actor, id uuid.UUID) (*model.Client, error)
	ListClients(ctx context.Context, actor Actor, search string, page, limit int) ([]model.Client, int64, error)
}

type clientService struct {
	repo  repository.ClientRepository
	audit auditTrail
}

func NewClientService(repo repository.ClientRepository, auditRepo repository.AuditRepository, logger *zap.Logger) ClientService {
	return &clientService{repo: repo, audit: newAuditTrail(auditRepo, logger)}
}

func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, invalid("invalid date %q: expected YYYY-MM-DD", raw)
	}
	return &t, nil
}

func optionalEmail(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	return normalizeEmail(raw)
}

func (s *clientService) ensureDocumentFree(ctx context.Context, companyID uuid.UUID, document string, self uuid.UUID) error {
	existing, err := s.repo.FindByDocument(ctx, companyID, document)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("failed to check document number: %w", err)
	case existing.ID != self:
		return fmt.Errorf("%w: a client with document %s already exists", ErrConflict, document)
	}
	return nil
}

func (s *clientService) CreateClient(ctx context.Context, actor Actor, req CreateClientRequest) (*model.Client, error) {
	document := strings.TrimSpace(req.DocumentNumber)
	if strings.TrimSpace(req.FirstName) == "" || document == "" {
		return nil, invalid("first name and document number are required")
	}
	birthDate, err := parseDate(req.BirthDate)
	if err != nil {
		return nil, err
	}
	email, err := optionalEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := s.ensureDocumentFree(ctx, actor.CompanyID, document, uuid.Nil); err != nil {
		return nil, err
	}

	createdBy := actor.UserID
	client := &model.Client{
		CompanyID:      actor.CompanyID,
		FirstName:      strings.TrimSpace(req.FirstName),
		LastName:       strings.TrimSpace(req.LastName),
		DocumentNumber: document,
		Email:          email,
		Phone:          strings.TrimSpace(req.Phone),
		BirthDate:      birthDate,
		Address:        strings.TrimSpace(req.Address),
		CreatedBy:      &createdBy,
	}
	if err := s.repo.Create(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	s.audit.record(ctx, actor, model.ActionCreateClient, client.ID.String(), client.FullName(), req)
	return client, nil
}

func (s *clientService) UpdateClient(ctx context.Context, actor Actor, id uuid.UUID, req UpdateClientRequest) (*model.Client, error) {
	client, err := s.repo.FindByID(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, notFound(err, "client")
	}

	if req.FirstName != nil {
		if strings.TrimSpace(*req.FirstName) == "" {
			return nil, invalid("first name cannot be empty")
		}
		client.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		client.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.DocumentNumber != nil {
		document := strings.TrimSpace(*req.DocumentNumber)
		if document == "" {
			return nil, invalid("document number cannot be empty")
		}
		if document != client.DocumentNumber {
			if err := s.ensureDocumentFree(ctx, actor.CompanyID, document, client.ID); err != nil {
				return nil, err
			}
		}
		client.DocumentNumber = document
	}
	if req.Email != nil {
		if client.Email, err = optionalEmail(*req.Email); err != nil {
			return nil, err
		}
	}
	if req.Phone != nil {
		client.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.BirthDate != nil {
		if client.BirthDate, err = parseDate(*req.BirthDate); err != nil {
			return nil, err
		}
	}
	if req.Address != nil {
		client.Address = strings.TrimSpace(*req.Address)
	}

	if err := s.repo.Update(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to update client: %w", err)
	}

	s.audit.record(ctx, actor, model.ActionUpdateClient, client.ID.String(), client.FullName(), req)
	return client, nil
}

func (s *clientService) GetClient(ctx context.Context, actor Actor, id uuid.UUID) (*model.Client, error) {
	client, err := s.repo.FindByID(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, notFound(err, "client")
	}
	return client, nil
}

func (s *clientService) ListClients(ctx context.Context, actor Actor, search string, page, limit int) ([]model.Client, int64, error) {
	page, limit = normalizePage(page, limit)
	return s.repo.List(ctx, actor.CompanyID, strings.TrimSpace(search), page, limit)
}
