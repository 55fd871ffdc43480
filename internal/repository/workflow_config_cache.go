package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"salesflow/internal/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	workflowConfigKeyPrefix = "workflow_config:"
	// stored for companies without a configuration so misses are cached too
	workflowConfigAbsent = "none"
)

// CachedWorkflowConfigRepository is a read-through redis cache in front of another
// WorkflowConfigRepository. Redis faults are logged and fall through to the inner repository.
type CachedWorkflowConfigRepository struct {
	next   WorkflowConfigRepository
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedWorkflowConfigRepository returns next unchanged when client is nil
func NewCachedWorkflowConfigRepository(next WorkflowConfigRepository, client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) WorkflowConfigRepository {
	if client == nil {
		return next
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedWorkflowConfigRepository{next: next, client: client, ttl: ttl, logger: logger}
}

func workflowConfigKey(companyID uuid.UUID) string {
	return workflowConfigKeyPrefix + companyID.String()
}

func (r *CachedWorkflowConfigRepository) FindByCompanyID(ctx context.Context, companyID uuid.UUID) (*model.WorkflowConfig, error) {
	key := workflowConfigKey(companyID)

	raw, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if string(raw) == workflowConfigAbsent {
			return nil, nil
		}
		var cfg model.WorkflowConfig
		if jsonErr := json.Unmarshal(raw, &cfg); jsonErr == nil {
			return &cfg, nil
		}
		r.logger.Warn("discarding corrupt workflow config cache entry", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		r.logger.Warn("workflow config cache read failed", zap.String("key", key), zap.Error(err))
	}

	cfg, err := r.next.FindByCompanyID(ctx, companyID)
	if err != nil {
		return nil, err
	}

	value := []byte(workflowConfigAbsent)
	if cfg != nil {
		if value, err = json.Marshal(cfg); err != nil {
			return cfg, nil
		}
	}
	if err := r.client.Set(ctx, key, value, r.ttl).Err(); err != nil {
		r.logger.Warn("workflow config cache write failed", zap.String("key", key), zap.Error(err))
	}

	return cfg, nil
}

func (r *CachedWorkflowConfigRepository) Upsert(ctx context.Context, cfg *model.WorkflowConfig) error {
	if err := r.next.Upsert(ctx, cfg); err != nil {
		return err
	}
	r.Invalidate(ctx, cfg.CompanyID)
	return nil
}

// Invalidate drops the cached entry for a company
func (r *CachedWorkflowConfigRepository) Invalidate(ctx context.Context, companyID uuid.UUID) {
	if err := r.client.Del(ctx, workflowConfigKey(companyID)).Err(); err != nil {
		r.logger.Warn("workflow config cache invalidation failed",
			zap.String("company_id", companyID.String()), zap.Error(err))
	}
}
