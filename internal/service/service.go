package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"salesflow/internal/model"
	"salesflow/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Actor is the authenticated user on whose behalf a service call runs
type Actor struct {
	UserID    uuid.UUID
	CompanyID uuid.UUID
	Role      string
}

const (
	defaultPage  = 1
	defaultLimit = 20
)

func normalizePage(page, limit int) (int, int) {
	if page <= 0 {
		page = defaultPage
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	return page, limit
}

// notFound maps a repository miss to ErrNotFound with the entity name
func notFound(err error, entity string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s %w", entity, ErrNotFound)
	}
	return err
}

// auditTrail writes best-effort audit entries; a failed write never fails the operation
type auditTrail struct {
	repo   repository.AuditRepository
	logger *zap.Logger
}

func newAuditTrail(repo repository.AuditRepository, logger *zap.Logger) auditTrail {
	if logger == nil {
		logger = zap.NewNop()
	}
	return auditTrail{repo: repo, logger: logger}
}

func (a auditTrail) write(ctx context.Context, companyID uuid.UUID, userID *uuid.UUID, action, entityID, entityName string, details interface{}) {
	if a.repo == nil {
		return
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		detailsJSON = []byte("{}")
	}

	entry := model.AuditLog{
		CompanyID:  &companyID,
		UserID:     userID,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(detailsJSON),
	}
	if err := a.repo.Log(ctx, &entry); err != nil {
		a.logger.Warn("audit log write failed",
			zap.String("action", action),
			zap.String("entity_id", entityID),
			zap.Error(err))
	}
}

func (a auditTrail) record(ctx context.Context, actor Actor, action, entityID, entityName string, details interface{}) {
	userID := actor.UserID
	a.write(ctx, actor.CompanyID, &userID, action, entityID, entityName, details)
}
