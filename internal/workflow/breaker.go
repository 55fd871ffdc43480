package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"salesflow/internal/model"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerSettings configures the circuit breaker in front of the configuration store
type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	HalfOpenRequests    uint32
}

// DefaultBreakerSettings trips after 5 consecutive failures and probes again after 30s
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second, HalfOpenRequests: 1}
}

// BreakerStore stops hammering an unhealthy configuration store. While the breaker is
// open every lookup fails fast, which the Validator handles through its fetch error policy.
type BreakerStore struct {
	next    ConfigStore
	breaker *gobreaker.CircuitBreaker
}

func NewBreakerStore(next ConfigStore, settings BreakerSettings, logger *zap.Logger) *BreakerStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = DefaultBreakerSettings().ConsecutiveFailures
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "workflow-config-store",
		MaxRequests: settings.HalfOpenRequests,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// a cancelled request says nothing about the store's health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &BreakerStore{next: next, breaker: cb}
}

func (s *BreakerStore) FindByCompanyID(ctx context.Context, companyID uuid.UUID) (*model.WorkflowConfig, error) {
	res, err := s.breaker.Execute(func() (interface{}, error) {
		return s.next.FindByCompanyID(ctx, companyID)
	})
	if err != nil {
		return nil, fmt.Errorf("workflow config store: %w", err)
	}
	cfg, _ := res.(*model.WorkflowConfig)
	return cfg, nil
}

// State exposes the breaker state for health reporting
func (s *BreakerStore) State() string {
	return s.breaker.State().String()
}
