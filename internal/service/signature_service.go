package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"salesflow/internal/model"
	"salesflow/internal/notify"
	"salesflow/internal/repository"
	"salesflow/internal/websocket"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SignerPayload struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role"` // titular, adherente or garante; defaults to titular
}

type RequestSignaturesRequest struct {
	Signers []SignerPayload `json:"signers" binding:"required,min=1,dive"`
}

type SignatureRequestResponse struct {
	SaleID      uuid.UUID             `json:"sale_id"`
	SigningURL  string                `json:"signing_url"`
	Signatures  []model.SaleSignature `json:"signatures"`
	EmailsSent  int                   `json:"emails_sent"`
	EmailErrors int                   `json:"email_errors"`
}

type SignRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type SignerStatus struct {
	Name     string     `json:"name"`
	Role     string     `json:"role"`
	Signed   bool       `json:"signed"`
	SignedAt *time.Time `json:"signed_at,omitempty"`
}

// SigningSummary is what a signer sees on the public signing page
type SigningSummary struct {
	SaleID                 uuid.UUID      `json:"sale_id"`
	CompanyName            string         `json:"company_name"`
	ClientName             string         `json:"client_name"`
	PlanName               string         `json:"plan_name"`
	TotalAmount            string         `json:"total_amount"`
	ContractAvailable      bool           `json:"contract_available"`
	AllSignaturesCompleted bool           `json:"all_signatures_completed"`
	Signers                []SignerStatus `json:"signers"`
}

type SignatureService interface {
	RequestSignatures(ctx context.Context, actor Actor, saleID uuid.UUID, req RequestSignaturesRequest) (*SignatureRequestResponse, error)
	GetSigningSummary(ctx context.Context, token string) (*SigningSummary, error)
	Sign(ctx context.Context, token string, req SignRequest, ip string) (*SigningSummary, error)
}

type signatureService struct {
	sales       repository.SaleRepository
	companies   repository.CompanyRepository
	txManager   repository.TransactionManager
	mailer      notify.Mailer
	publisher   websocket.Publisher
	signingBase string
	audit       auditTrail
	logger      *zap.Logger
}

func NewSignatureService(
	sales repository.SaleRepository,
	companies repository.CompanyRepository,
	txManager repository.TransactionManager,
	mailer notify.Mailer,
	publisher websocket.Publisher,
	signingBaseURL string,
	auditRepo repository.AuditRepository,
	logger *zap.Logger,
) SignatureService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mailer == nil {
		mailer = notify.NewLogMailer(logger)
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &signatureService{
		sales:       sales,
		companies:   companies,
		txManager:   txManager,
		mailer:      mailer,
		publisher:   publisher,
		signingBase: strings.TrimRight(signingBaseURL, "/"),
		audit:       newAuditTrail(auditRepo, logger),
		logger:      logger,
	}
}

func (s *signatureService) signingURL(token string) string {
	return s.signingBase + "/" + token
}

func buildSigners(payload []SignerPayload) ([]model.SaleSignature, error) {
	if len(payload) == 0 {
		return nil, invalid("at least one signer is required")
	}
	seen := make(map[string]bool, len(payload))
	out := make([]model.SaleSignature, 0, len(payload))
	for i, p := range payload {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, invalid("signers[%d]: name is required", i)
		}
		email, err := normalizeEmail(p.Email)
		if err != nil {
			return nil, invalid("signers[%d]: invalid email", i)
		}
		if seen[email] {
			return nil, invalid("signers[%d]: %s is listed twice", i, email)
		}
		seen[email] = true

		role := strings.TrimSpace(p.Role)
		switch role {
		case "":
			role = model.SignerRoleHolder
		case model.SignerRoleHolder, model.SignerRoleAdherent, model.SignerRoleGuarantor:
		default:
			return nil, invalid("signers[%d]: unknown signer role %q", i, role)
		}

		out = append(out, model.SaleSignature{SignerName: name, SignerEmail: email, SignerRole: role})
	}
	return out, nil
}

// RequestSignatures issues a fresh signing token for the sale, replaces its signer list and
// emails every signer. A previous token stops working.
func (s *signatureService) RequestSignatures(ctx context.Context, actor Actor, saleID uuid.UUID, req RequestSignaturesRequest) (*SignatureRequestResponse, error) {
	signers, err := buildSigners(req.Signers)
	if err != nil {
		return nil, err
	}

	token := uuid.NewString()
	var sale *model.Sale
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		found, err := s.sales.FindByIDForUpdate(txCtx, actor.CompanyID, saleID)
		if err != nil {
			return notFound(err, "sale")
		}
		if !canSee(actor, found) {
			return fmt.Errorf("sale %w", ErrNotFound)
		}
		if lockedStatuses[found.Status] {
			return fmt.Errorf("%w: sale in status %s cannot request signatures", ErrConflict, found.Status)
		}

		found.SignatureToken = &token
		found.AllSignaturesCompleted = false
		if err := s.sales.Update(txCtx, found); err != nil {
			return fmt.Errorf("failed to store signature token: %w", err)
		}
		if err := s.sales.ReplaceSignatures(txCtx, found.ID, signers); err != nil {
			return fmt.Errorf("failed to store signers: %w", err)
		}
		sale = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &SignatureRequestResponse{SaleID: sale.ID, SigningURL: s.signingURL(token), Signatures: signers}

	companyName := ""
	if company, err := s.companies.FindByID(ctx, actor.CompanyID); err == nil {
		companyName = company.Name
	}
	for _, signer := range signers {
		err := s.mailer.SendSignatureRequest(ctx, notify.SignatureRequest{
			CompanyName: companyName,
			SignerName:  signer.SignerName,
			SignerEmail: signer.SignerEmail,
			ClientName:  clientName(sale),
			PlanName:    planName(sale),
			SigningURL:  res.SigningURL,
		})
		if err != nil {
			res.EmailErrors++
			s.logger.Warn("signature request email failed",
				zap.String("sale_id", sale.ID.String()),
				zap.String("to", signer.SignerEmail),
				zap.Error(err))
			continue
		}
		res.EmailsSent++
	}

	s.audit.record(ctx, actor, model.ActionRequestSignatures, sale.ID.String(), "", map[string]interface{}{
		"signers":      len(signers),
		"emails_sent":  res.EmailsSent,
		"email_errors": res.EmailErrors,
	})
	s.publisher.Publish(actor.CompanyID, websocket.EventSaleUpdated, saleEvent{ID: sale.ID, Status: sale.Status, By: actor.UserID})

	return res, nil
}

func clientName(sale *model.Sale) string {
	if sale.Client == nil {
		return ""
	}
	return sale.Client.FullName()
}

func planName(sale *model.Sale) string {
	if sale.Plan == nil {
		return ""
	}
	return sale.Plan.Name
}

func (s *signatureService) summarize(ctx context.Context, sale *model.Sale) *SigningSummary {
	summary := &SigningSummary{
		SaleID:                 sale.ID,
		ClientName:             clientName(sale),
		PlanName:               planName(sale),
		TotalAmount:            sale.TotalAmount.StringFixed(2),
		ContractAvailable:      sale.ContractPDFURL != "",
		AllSignaturesCompleted: sale.AllSignaturesCompleted,
		Signers:                make([]SignerStatus, 0, len(sale.Signatures)),
	}
	if company, err := s.companies.FindByID(ctx, sale.CompanyID); err == nil {
		summary.CompanyName = company.Name
	}
	for _, sig := range sale.Signatures {
		summary.Signers = append(summary.Signers, SignerStatus{
			Name:     sig.SignerName,
			Role:     sig.SignerRole,
			Signed:   sig.SignedAt != nil,
			SignedAt: sig.SignedAt,
		})
	}
	return summary
}

func (s *signatureService) byToken(ctx context.Context, token string) (*model.Sale, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("signature request %w", ErrNotFound)
	}
	sale, err := s.sales.FindBySignatureToken(ctx, token)
	if err != nil {
		return nil, notFound(err, "signature request")
	}
	return sale, nil
}

func (s *signatureService) GetSigningSummary(ctx context.Context, token string) (*SigningSummary, error) {
	sale, err := s.byToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, sale), nil
}

// Sign records the signature of the signer with the given email. When the last pending
// signer signs, the sale is flagged as fully signed.
func (s *signatureService) Sign(ctx context.Context, token string, req SignRequest, ip string) (*SigningSummary, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var (
		sale     *model.Sale
		signer   model.SaleSignature
		complete bool
	)
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		found, err := s.byToken(txCtx, token)
		if err != nil {
			return err
		}
		// lock the row so concurrent signers see each other's signatures
		if found, err = s.sales.FindByIDForUpdate(txCtx, found.CompanyID, found.ID); err != nil {
			return notFound(err, "signature request")
		}
		if found.SignatureToken == nil || *found.SignatureToken != strings.TrimSpace(token) {
			return fmt.Errorf("signature request %w", ErrNotFound)
		}

		idx := -1
		for i := range found.Signatures {
			if strings.EqualFold(found.Signatures[i].SignerEmail, email) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("signer %w", ErrNotFound)
		}
		if found.Signatures[idx].SignedAt != nil {
			return fmt.Errorf("%w: %s has already signed", ErrAlreadySigned, email)
		}

		now := time.Now().UTC()
		if err := s.sales.MarkSigned(txCtx, found.Signatures[idx].ID, now, ip); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: %s has already signed", ErrAlreadySigned, email)
			}
			return fmt.Errorf("failed to record signature: %w", err)
		}
		found.Signatures[idx].SignedAt = &now
		signer = found.Signatures[idx]

		complete = true
		for _, sig := range found.Signatures {
			if sig.SignedAt == nil {
				complete = false
				break
			}
		}
		if complete && !found.AllSignaturesCompleted {
			found.AllSignaturesCompleted = true
			if err := s.sales.Update(txCtx, found); err != nil {
				return fmt.Errorf("failed to update sale: %w", err)
			}
		}
		sale = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.write(ctx, sale.CompanyID, nil, model.ActionSignContract, sale.ID.String(), signer.SignerName, map[string]interface{}{
		"signer":    signer.SignerEmail,
		"role":      signer.SignerRole,
		"ip":        ip,
		"completed": complete,
	})
	s.publisher.Publish(sale.CompanyID, websocket.EventSaleSigned, map[string]interface{}{
		"id":                       sale.ID,
		"signer":                   signer.SignerName,
		"all_signatures_completed": complete,
	})

	return s.summarize(ctx, sale), nil
}
