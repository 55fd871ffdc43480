// Package notify delivers signature-request emails to contract signers.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// SignatureRequest is everything a signer needs to open the signing page
type SignatureRequest struct {
	CompanyName string
	SignerName  string
	SignerEmail string
	ClientName  string
	PlanName    string
	SigningURL  string
}

type Mailer interface {
	SendSignatureRequest(ctx context.Context, req SignatureRequest) error
}

var signatureRequestTmpl = template.Must(template.New("signature_request").Parse(`
<h2>Hola {{.SignerName}},</h2>
<p>{{.CompanyName}} te invita a firmar el contrato{{if .PlanName}} del plan <strong>{{.PlanName}}</strong>{{end}}{{if .ClientName}} a nombre de {{.ClientName}}{{end}}.</p>
<p><a href="{{.SigningURL}}">Revisar y firmar el contrato</a></p>
<p>Si no esperabas este correo puedes ignorarlo.</p>
`))

// RenderSignatureRequest builds the subject and HTML body of the email
func RenderSignatureRequest(req SignatureRequest) (string, string, error) {
	var body bytes.Buffer
	if err := signatureRequestTmpl.Execute(&body, req); err != nil {
		return "", "", fmt.Errorf("render signature request: %w", err)
	}
	subject := "Contrato pendiente de firma"
	if req.CompanyName != "" {
		subject = fmt.Sprintf("%s: contrato pendiente de firma", req.CompanyName)
	}
	return subject, body.String(), nil
}

type smtpMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(host string, port int, user, password, from string) Mailer {
	return &smtpMailer{
		dialer: gomail.NewDialer(host, port, user, password),
		from:   from,
	}
}

func (s *smtpMailer) SendSignatureRequest(_ context.Context, req SignatureRequest) error {
	subject, body, err := RenderSignatureRequest(req)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetAddressHeader("To", req.SignerEmail, req.SignerName)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send signature request email: %w", err)
	}
	return nil
}

// logMailer is used when SMTP is not configured; it logs the signing link instead of sending it
type logMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &logMailer{logger: logger}
}

func (l *logMailer) SendSignatureRequest(_ context.Context, req SignatureRequest) error {
	l.logger.Info("signature request email (smtp disabled)",
		zap.String("to", req.SignerEmail),
		zap.String("signing_url", req.SigningURL),
	)
	return nil
}
