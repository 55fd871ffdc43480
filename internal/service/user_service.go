package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"salesflow/internal/middleware"
	"salesflow/internal/model"
	"salesflow/internal/repository"
	"salesflow/internal/throttle"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type RegisterCompanyRequest struct {
	CompanyName string `json:"company_name" binding:"required"`
	TaxID       string `json:"tax_id" binding:"required"`
	FullName    string `json:"full_name" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	Phone       string `json:"phone"`
	Password    string `json:"password" binding:"required,min=8"`
}

type CreateUserRequest struct {
	FullName string `json:"full_name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"required"`
}

type LoginUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// UserResponse never exposes the password hash
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	CompanyID uuid.UUID `json:"company_id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Role      string    `json:"role"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at"`
}

// TokenIssuer signs access tokens for authenticated users
type TokenIssuer interface {
	IssueToken(id middleware.Identity) (string, time.Time, error)
}

type UserService interface {
	RegisterCompany(ctx context.Context, req RegisterCompanyRequest) (*TokenResponse, error)
	CreateUser(ctx context.Context, actor Actor, req CreateUserRequest) (*UserResponse, error)
	Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error)
	GetUser(ctx context.Context, actor Actor, id uuid.UUID) (*UserResponse, error)
	ListUsers(ctx context.Context, actor Actor, page, limit int) ([]UserResponse, int64, error)
}

type userService struct {
	users     repository.UserRepository
	companies repository.CompanyRepository
	txManager repository.TransactionManager
	tokens    TokenIssuer
	limiter   *throttle.LoginLimiter
	audit     auditTrail
	logger    *zap.Logger
}

func NewUserService(
	users repository.UserRepository,
	companies repository.CompanyRepository,
	txManager repository.TransactionManager,
	tokens TokenIssuer,
	limiter *throttle.LoginLimiter,
	auditRepo repository.AuditRepository,
	logger *zap.Logger,
) UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &userService{
		users:     users,
		companies: companies,
		txManager: txManager,
		tokens:    tokens,
		limiter:   limiter,
		audit:     newAuditTrail(auditRepo, logger),
		logger:    logger,
	}
}

func mapUserResponse(user *model.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		CompanyID: user.CompanyID,
		FullName:  user.FullName,
		Email:     user.Email,
		Phone:     user.Phone,
		Role:      user.Role,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		UpdatedAt: user.UpdatedAt.Format(time.RFC3339),
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalid("invalid email format")
	}
	return email, nil
}

func hashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", invalid("password must be at least 8 characters")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

func (s *userService) ensureEmailFree(ctx context.Context, email string) error {
	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return fmt.Errorf("%w: email already exists", ErrConflict)
	case errors.Is(err, repository.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("failed to check email: %w", err)
	}
}

// RegisterCompany creates a tenant together with its first administrator and logs them in
func (s *userService) RegisterCompany(ctx context.Context, req RegisterCompanyRequest) (*TokenResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	companyName := strings.TrimSpace(req.CompanyName)
	taxID := strings.TrimSpace(req.TaxID)
	if companyName == "" || taxID == "" {
		return nil, invalid("company name and tax id are required")
	}
	hashed, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	company := &model.Company{Name: companyName, TaxID: taxID, IsActive: true}
	user := &model.User{
		FullName: strings.TrimSpace(req.FullName),
		Email:    email,
		Phone:    req.Phone,
		Password: hashed,
		Role:     model.RoleAdmin,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		exists, err := s.companies.ExistsByTaxID(txCtx, taxID)
		if err != nil {
			return fmt.Errorf("failed to check tax id: %w", err)
		}
		if exists {
			return fmt.Errorf("%w: a company with this tax id already exists", ErrConflict)
		}
		if err := s.ensureEmailFree(txCtx, email); err != nil {
			return err
		}
		if err := s.companies.Create(txCtx, company); err != nil {
			return fmt.Errorf("failed to create company: %w", err)
		}
		user.CompanyID = company.ID
		if err := s.users.Create(txCtx, user); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.write(ctx, company.ID, &user.ID, model.ActionRegisterCompany, company.ID.String(), company.Name, map[string]string{
		"tax_id": taxID,
		"admin":  email,
	})

	return s.issue(user)
}

func (s *userService) CreateUser(ctx context.Context, actor Actor, req CreateUserRequest) (*UserResponse, error) {
	if !model.IsValidRole(req.Role) {
		return nil, invalid("invalid role: must be admin, supervisor, vendedor or auditor")
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, email); err != nil {
		return nil, err
	}
	hashed, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		CompanyID: actor.CompanyID,
		FullName:  strings.TrimSpace(req.FullName),
		Email:     email,
		Phone:     req.Phone,
		Password:  hashed,
		Role:      req.Role,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.audit.record(ctx, actor, model.ActionCreateUser, user.ID.String(), user.Email, map[string]string{"role": user.Role})

	res := mapUserResponse(user)
	return &res, nil
}

func (s *userService) Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	wait, err := s.limiter.Check(ctx, email)
	if err != nil {
		// throttling is advisory; a redis outage must not block logins
		s.logger.Warn("login throttle check failed", zap.Error(err))
	} else if wait > 0 {
		return nil, &LoginLockedError{RetryAfter: wait}
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		return nil, s.failLogin(ctx, email)
	}

	if err := s.limiter.Reset(ctx, email); err != nil {
		s.logger.Warn("login throttle reset failed", zap.Error(err))
	}
	return s.issue(user)
}

func (s *userService) failLogin(ctx context.Context, email string) error {
	lock, err := s.limiter.RegisterFailure(ctx, email)
	if err != nil {
		s.logger.Warn("login throttle update failed", zap.Error(err))
		return ErrInvalidCredentials
	}
	if lock > 0 {
		s.logger.Info("login locked after repeated failures", zap.String("email", email), zap.Duration("lockout", lock))
		return &LoginLockedError{RetryAfter: lock}
	}
	return ErrInvalidCredentials
}

func (s *userService) issue(user *model.User) (*TokenResponse, error) {
	token, expiresAt, err := s.tokens.IssueToken(middleware.Identity{
		UserID:    user.ID,
		CompanyID: user.CompanyID,
		Role:      user.Role,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return &TokenResponse{Token: token, ExpiresAt: expiresAt, User: mapUserResponse(user)}, nil
}

func (s *userService) GetUser(ctx context.Context, actor Actor, id uuid.UUID) (*UserResponse, error) {
	user, err := s.users.GetByID(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, notFound(err, "user")
	}
	res := mapUserResponse(user)
	return &res, nil
}

func (s *userService) ListUsers(ctx context.Context, actor Actor, page, limit int) ([]UserResponse, int64, error) {
	page, limit = normalizePage(page, limit)

	users, total, err := s.users.List(ctx, actor.CompanyID, page, limit)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, mapUserResponse(&users[i]))
	}
	return responses, total, nil
}
