package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"salesflow/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryConfigRepo struct {
	mu      sync.Mutex
	configs map[uuid.UUID]model.WorkflowConfig
	reads   int
	err     error
}

func newMemoryConfigRepo() *memoryConfigRepo {
	return &memoryConfigRepo{configs: make(map[uuid.UUID]model.WorkflowConfig)}
}

func (m *memoryConfigRepo) FindByCompanyID(_ context.Context, companyID uuid.UUID) (*model.WorkflowConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.err != nil {
		return nil, m.err
	}
	cfg, ok := m.configs[companyID]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

func (m *memoryConfigRepo) Upsert(_ context.Context, cfg *model.WorkflowConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[cfg.CompanyID] = *cfg
	return nil
}

func (m *memoryConfigRepo) readCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

func newCachedRepo(t *testing.T, inner WorkflowConfigRepository) (WorkflowConfigRepository, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewCachedWorkflowConfigRepository(inner, client, time.Minute, nil), mr
}

func TestCachedWorkflowConfig_NilClientReturnsInner(t *testing.T) {
	inner := newMemoryConfigRepo()
	repo := NewCachedWorkflowConfigRepository(inner, nil, time.Minute, nil)
	assert.Same(t, inner, repo)
}

func TestCachedWorkflowConfig_ReadThrough(t *testing.T) {
	ctx := context.Background()
	inner := newMemoryConfigRepo()
	companyID := uuid.New()
	require.NoError(t, inner.Upsert(ctx, &model.WorkflowConfig{
		CompanyID:      companyID,
		WorkflowConfig: `{"transitions":[]}`,
		IsActive:       true,
	}))

	repo, mr := newCachedRepo(t, inner)

	first, err := repo.FindByCompanyID(ctx, companyID)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.True(t, first.IsActive)
	assert.True(t, mr.Exists(workflowConfigKey(companyID)))

	second, err := repo.FindByCompanyID(ctx, companyID)
	require.NoError(t, err)
	assert.Equal(t, first.WorkflowConfig, second.WorkflowConfig)
	assert.Equal(t, 1, inner.readCount())
}

func TestCachedWorkflowConfig_CachesAbsence(t *testing.T) {
	ctx := context.Background()
	inner := newMemoryConfigRepo()
	repo, mr := newCachedRepo(t, inner)
	companyID := uuid.New()

	for i := 0; i < 3; i++ {
		cfg, err := repo.FindByCompanyID(ctx, companyID)
		require.NoError(t, err)
		assert.Nil(t, cfg)
	}
	assert.Equal(t, 1, inner.readCount())

	value, err := mr.Get(workflowConfigKey(companyID))
	require.NoError(t, err)
	assert.Equal(t, workflowConfigAbsent, value)
}

func TestCachedWorkflowConfig_UpsertInvalidates(t *testing.T) {
	ctx := context.Background()
	inner := newMemoryConfigRepo()
	repo, _ := newCachedRepo(t, inner)
	companyID := uuid.New()

	cfg, err := repo.FindByCompanyID(ctx, companyID)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	require.NoError(t, repo.Upsert(ctx, &model.WorkflowConfig{CompanyID: companyID, IsActive: true}))

	cfg, err = repo.FindByCompanyID(ctx, companyID)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.True(t, cfg.IsActive)
	assert.Equal(t, 2, inner.readCount())
}

func TestCachedWorkflowConfig_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	inner := newMemoryConfigRepo()
	repo, mr := newCachedRepo(t, inner)
	companyID := uuid.New()

	_, err := repo.FindByCompanyID(ctx, companyID)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = repo.FindByCompanyID(ctx, companyID)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.readCount())
}

func TestCachedWorkflowConfig_RedisDownFallsThrough(t *testing.T) {
	ctx := context.Background()
	inner := newMemoryConfigRepo()
	companyID := uuid.New()
	require.NoError(t, inner.Upsert(ctx, &model.WorkflowConfig{CompanyID: companyID, IsActive: true}))

	repo, mr := newCachedRepo(t, inner)
	mr.Close()

	cfg, err := repo.FindByCompanyID(ctx, companyID)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.True(t, cfg.IsActive)
}

func TestCachedWorkflowConfig_InnerErrorNotCached(t *testing.T) {
	ctx := context.Background()
	inner := newMemoryConfigRepo()
	inner.err = errors.New("connection refused")
	repo, mr := newCachedRepo(t, inner)
	companyID := uuid.New()

	_, err := repo.FindByCompanyID(ctx, companyID)
	require.Error(t, err)
	assert.False(t, mr.Exists(workflowConfigKey(companyID)))
}

func TestCachedWorkflowConfig_CorruptEntryIgnored(t *testing.T) {
	ctx := context.Background()
	inner := newMemoryConfigRepo()
	companyID := uuid.New()
	require.NoError(t, inner.Upsert(ctx, &model.WorkflowConfig{CompanyID: companyID, IsActive: true}))

	repo, mr := newCachedRepo(t, inner)
	require.NoError(t, mr.Set(workflowConfigKey(companyID), "{not json"))

	cfg, err := repo.FindByCompanyID(ctx, companyID)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.True(t, cfg.IsActive)
}
