package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"salesflow/internal/model"
	"salesflow/internal/notify"
	"salesflow/internal/repository"
	"salesflow/internal/storage"

	"github.com/google/uuid"
)

// memStore backs every fake repository with plain maps
type memStore struct {
	mu         sync.Mutex
	companies  map[uuid.UUID]model.Company
	users      map[uuid.UUID]model.User
	clients    map[uuid.UUID]model.Client
	plans      map[uuid.UUID]model.Plan
	sales      map[uuid.UUID]model.Sale
	benefs     map[uuid.UUID][]model.Beneficiary
	signatures map[uuid.UUID][]model.SaleSignature
	configs    map[uuid.UUID]model.WorkflowConfig
	audits     []model.AuditLog
	auditErr   error
}

func newMemStore() *memStore {
	return &memStore{
		companies:  make(map[uuid.UUID]model.Company),
		users:      make(map[uuid.UUID]model.User),
		clients:    make(map[uuid.UUID]model.Client),
		plans:      make(map[uuid.UUID]model.Plan),
		sales:      make(map[uuid.UUID]model.Sale),
		benefs:     make(map[uuid.UUID][]model.Beneficiary),
		signatures: make(map[uuid.UUID][]model.SaleSignature),
		configs:    make(map[uuid.UUID]model.WorkflowConfig),
	}
}

func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (m *memStore) auditActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.audits))
	for _, a := range m.audits {
		out = append(out, a.Action)
	}
	return out
}

// --- transactions ---

type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

// --- companies ---

type fakeCompanyRepo struct{ *memStore }

func (r fakeCompanyRepo) Create(_ context.Context, c *model.Company) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	assignID(&c.ID)
	r.companies[c.ID] = *c
	return nil
}

func (r fakeCompanyRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.companies[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r fakeCompanyRepo) ExistsByTaxID(_ context.Context, taxID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.companies {
		if c.TaxID == taxID {
			return true, nil
		}
	}
	return false, nil
}

// --- users ---

type fakeUserRepo struct{ *memStore }

func (r fakeUserRepo) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	assignID(&u.ID)
	u.Email = strings.ToLower(u.Email)
	u.CreatedAt, u.UpdatedAt = time.Now(), time.Now()
	r.users[u.ID] = *u
	return nil
}

func (r fakeUserRepo) GetByID(_ context.Context, companyID, id uuid.UUID) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || u.CompanyID != companyID {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == strings.ToLower(email) {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r fakeUserRepo) List(_ context.Context, companyID uuid.UUID, _, _ int) ([]model.User, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.User
	for _, u := range r.users {
		if u.CompanyID == companyID {
			out = append(out, u)
		}
	}
	return out, int64(len(out)), nil
}

func (r fakeUserRepo) Update(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = *u
	return nil
}

// --- clients ---

type fakeClientRepo struct{ *memStore }

func (r fakeClientRepo) Create(_ context.Context, c *model.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	assignID(&c.ID)
	r.clients[c.ID] = *c
	return nil
}

func (r fakeClientRepo) Update(_ context.Context, c *model.Client) error {
	return r.Create(context.Background(), c)
}

func (r fakeClientRepo) FindByID(_ context.Context, companyID, id uuid.UUID) (*model.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok || c.CompanyID != companyID {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r fakeClientRepo) FindByDocument(_ context.Context, companyID uuid.UUID, document string) (*model.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clients {
		if c.CompanyID == companyID && c.DocumentNumber == document {
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r fakeClientRepo) List(_ context.Context, companyID uuid.UUID, search string, _, _ int) ([]model.Client, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Client
	for _, c := range r.clients {
		if c.CompanyID != companyID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(c.FullName()+" "+c.DocumentNumber), strings.ToLower(search)) {
			continue
		}
		out = append(out, c)
	}
	return out, int64(len(out)), nil
}

// --- plans ---

type fakePlanRepo struct{ *memStore }

func (r fakePlanRepo) Create(_ context.Context, p *model.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	assignID(&p.ID)
	r.plans[p.ID] = *p
	return nil
}

func (r fakePlanRepo) Update(ctx context.Context, p *model.Plan) error {
	return r.Create(ctx, p)
}

func (r fakePlanRepo) FindByID(_ context.Context, companyID, id uuid.UUID) (*model.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[id]
	if !ok || p.CompanyID != companyID {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r fakePlanRepo) List(_ context.Context, companyID uuid.UUID, activeOnly bool) ([]model.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Plan
	for _, p := range r.plans {
		if p.CompanyID == companyID && (!activeOnly || p.IsActive) {
			out = append(out, p)
		}
	}
	return out, nil
}

// --- sales ---

type fakeSaleRepo struct{ *memStore }

// load assembles a sale with its relations; the caller holds the lock
func (r fakeSaleRepo) load(s model.Sale) *model.Sale {
	if s.ClientID != nil {
		if c, ok := r.clients[*s.ClientID]; ok {
			s.Client = &c
		}
	}
	if s.PlanID != nil {
		if p, ok := r.plans[*s.PlanID]; ok {
			s.Plan = &p
		}
	}
	s.Beneficiaries = append([]model.Beneficiary(nil), r.benefs[s.ID]...)
	s.Signatures = append([]model.SaleSignature(nil), r.signatures[s.ID]...)
	return &s
}

func (r fakeSaleRepo) Create(_ context.Context, s *model.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	assignID(&s.ID)
	s.CreatedAt = time.Now()
	stored := *s
	stored.Client, stored.Plan, stored.Seller = nil, nil, nil
	stored.Beneficiaries, stored.Signatures = nil, nil
	r.sales[s.ID] = stored
	return nil
}

func (r fakeSaleRepo) Update(ctx context.Context, s *model.Sale) error {
	return r.Create(ctx, s)
}

func (r fakeSaleRepo) FindByID(_ context.Context, companyID, id uuid.UUID) (*model.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sales[id]
	if !ok || s.CompanyID != companyID {
		return nil, repository.ErrNotFound
	}
	return r.load(s), nil
}

func (r fakeSaleRepo) FindByIDForUpdate(ctx context.Context, companyID, id uuid.UUID) (*model.Sale, error) {
	return r.FindByID(ctx, companyID, id)
}

func (r fakeSaleRepo) FindBySignatureToken(_ context.Context, token string) (*model.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sales {
		if s.SignatureToken != nil && *s.SignatureToken == token {
			return r.load(s), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r fakeSaleRepo) List(_ context.Context, companyID uuid.UUID, status string, sellerID *uuid.UUID, _, _ int) ([]model.Sale, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Sale
	for _, s := range r.sales {
		if s.CompanyID != companyID || (status != "" && string(s.Status) != status) {
			continue
		}
		if sellerID != nil && (s.SellerID == nil || *s.SellerID != *sellerID) {
			continue
		}
		out = append(out, s)
	}
	return out, int64(len(out)), nil
}

func (r fakeSaleRepo) UpdateStatus(_ context.Context, id uuid.UUID, status model.SaleStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sales[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.Status = status
	r.sales[id] = s
	return nil
}

func (r fakeSaleRepo) ReplaceBeneficiaries(_ context.Context, saleID uuid.UUID, list []model.Beneficiary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range list {
		assignID(&list[i].ID)
		list[i].SaleID = saleID
	}
	r.benefs[saleID] = append([]model.Beneficiary(nil), list...)
	return nil
}

func (r fakeSaleRepo) ReplaceSignatures(_ context.Context, saleID uuid.UUID, list []model.SaleSignature) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range list {
		assignID(&list[i].ID)
		list[i].SaleID = saleID
	}
	r.signatures[saleID] = append([]model.SaleSignature(nil), list...)
	return nil
}

func (r fakeSaleRepo) MarkSigned(_ context.Context, signatureID uuid.UUID, signedAt time.Time, ip string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for saleID, list := range r.signatures {
		for i := range list {
			if list[i].ID == signatureID && list[i].SignedAt == nil {
				list[i].SignedAt = &signedAt
				list[i].IPAddress = ip
				r.signatures[saleID] = list
				return nil
			}
		}
	}
	return repository.ErrNotFound
}

// --- workflow configs ---

type fakeConfigRepo struct{ *memStore }

func (r fakeConfigRepo) FindByCompanyID(_ context.Context, companyID uuid.UUID) (*model.WorkflowConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.configs[companyID]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

func (r fakeConfigRepo) Upsert(_ context.Context, cfg *model.WorkflowConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.configs[cfg.CompanyID]; ok {
		cfg.ID = existing.ID
	}
	assignID(&cfg.ID)
	cfg.UpdatedAt = time.Now()
	r.configs[cfg.CompanyID] = *cfg
	return nil
}

// --- audit ---

type fakeAuditRepo struct{ *memStore }

func (r fakeAuditRepo) Log(_ context.Context, entry *model.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.auditErr != nil {
		return r.auditErr
	}
	assignID(&entry.ID)
	entry.CreatedAt = time.Now()
	r.audits = append(r.audits, *entry)
	return nil
}

func (r fakeAuditRepo) List(_ context.Context, companyID uuid.UUID, filter repository.AuditFilter, _, _ int) ([]model.AuditLog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.AuditLog
	for i := len(r.audits) - 1; i >= 0; i-- {
		a := r.audits[i]
		if a.CompanyID == nil || *a.CompanyID != companyID {
			continue
		}
		if filter.Action != "" && a.Action != filter.Action {
			continue
		}
		if filter.EntityID != "" && a.EntityID != filter.EntityID {
			continue
		}
		out = append(out, a)
	}
	return out, int64(len(out)), nil
}

// --- collaborators ---

type publishedEvent struct {
	CompanyID uuid.UUID
	Event     string
	Data      interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(companyID uuid.UUID, event string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{CompanyID: companyID, Event: event, Data: data})
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Event)
	}
	return out
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []notify.SignatureRequest
	fail map[string]bool
}

func (m *recordingMailer) SendSignatureRequest(_ context.Context, req notify.SignatureRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[req.SignerEmail] {
		return context.DeadlineExceeded
	}
	m.sent = append(m.sent, req)
	return nil
}

type memDocumentStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemDocumentStore() *memDocumentStore {
	return &memDocumentStore{objects: make(map[string][]byte)}
}

func (s *memDocumentStore) PutDocument(_ context.Context, prefix, filename, _ string, content []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := storage.ObjectKey(prefix, filename)
	s.objects[key] = append([]byte(nil), content...)
	return key, nil
}

func (s *memDocumentStore) GetDocument(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrDocumentNotFound
	}
	return content, nil
}
