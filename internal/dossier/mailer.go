package dossier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"

	"pixguard/internal/catalog"
	"pixguard/internal/config"
	"pixguard/internal/logging"
	"pixguard/internal/services"
)

// Deliverer sends a rendered dossier and reports who received it.
type Deliverer interface {
	Deliver(ctx context.Context, dossier *catalog.Dossier) (sentTo string, err error)
}

// SMTPMailer delivers dossiers as plaintext email over STARTTLS.
type SMTPMailer struct {
	cfg    config.Delivery
	logger *slog.Logger
	client *mail.Client
}

// NewMailer builds an SMTP deliverer from the delivery configuration.
func NewMailer(cfg config.Delivery, logger *slog.Logger) (*SMTPMailer, error) {
	if cfg.SMTPHost == "" {
		return nil, services.Wrap(
			services.ErrConfiguration,
			"dossier",
			"smtp client",
			"SMTP host is not configured; set [delivery] smtp_host",
			nil,
		)
	}
	port := cfg.SMTPPort
	if port <= 0 {
		port = 587
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(timeout),
	}
	if cfg.SMTPUsername != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUsername),
			mail.WithPassword(cfg.SMTPPassword),
		)
	}
	client, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "dossier", "smtp client", "Invalid SMTP configuration", err)
	}

	if logger == nil {
		logger = logging.NewNop()
	}
	return &SMTPMailer{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "dossier-mailer"),
		client: client,
	}, nil
}

// Deliver sends one dossier to the configured recipient.
func (m *SMTPMailer) Deliver(ctx context.Context, dossier *catalog.Dossier) (string, error) {
	if dossier == nil || dossier.Subject == "" {
		return "", services.Wrap(services.ErrValidation, "dossier", "deliver", "Dossier has no rendered content to send", nil)
	}

	msg := mail.NewMsg()
	if err := msg.From(m.cfg.FromAddress); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "dossier", "deliver", "Invalid sender address; check [delivery] from_address", err)
	}
	if err := msg.To(m.cfg.Recipient); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "dossier", "deliver", "Invalid recipient address; check [delivery] recipient", err)
	}
	msg.Subject(dossier.Subject)
	msg.SetBodyString(mail.TypeTextPlain, dossier.BodyText)

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", services.Wrap(
			services.ErrDelivery,
			"dossier",
			"deliver",
			fmt.Sprintf("SMTP delivery to %s failed; the dossier will be retried", m.cfg.Recipient),
			err,
		)
	}

	m.logger.Info("dossier email sent",
		logging.Int64(logging.FieldDossierID, dossier.ID),
		logging.String("recipient", m.cfg.Recipient),
	)
	return m.cfg.Recipient, nil
}
