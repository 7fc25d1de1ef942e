// Package notification delivers automation emails over SMTP.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stockflow/backend/internal/domain/invoicing"
	"github.com/stockflow/backend/internal/infrastructure/config"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// sendTimeout bounds the SMTP dialogue of a single message
const sendTimeout = 30 * time.Second

// SMTPGateway implements invoicing.NotificationGateway over an authenticated SMTP relay
type SMTPGateway struct {
	client   *mail.Client
	from     string
	fromName string
	logger   *zap.Logger
}

// NewSMTPGateway creates a gateway for the given mail settings. It does not connect;
// each Send dials the relay.
func NewSMTPGateway(cfg *config.MailConfig, logger *zap.Logger) (*SMTPGateway, error) {
	if !cfg.IsConfigured() {
		return nil, invoicing.ErrNotificationNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	policy, err := tlsPolicy(cfg.TLSPolicy)
	if err != nil {
		return nil, err
	}

	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPolicy(policy),
		mail.WithTimeout(sendTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	return &SMTPGateway{
		client:   client,
		from:     cfg.From,
		fromName: cfg.FromName,
		logger:   logger.Named("smtp"),
	}, nil
}

// Send delivers one message
func (g *SMTPGateway) Send(ctx context.Context, msg invoicing.Message) error {
	m, err := g.buildMessage(msg)
	if err != nil {
		return err
	}
	if err := g.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	g.logger.Debug("Email sent", zap.String("recipient", msg.To), zap.String("subject", msg.Subject))
	return nil
}

// Sender returns the From address
func (g *SMTPGateway) Sender() string {
	return g.from
}

func (g *SMTPGateway) buildMessage(msg invoicing.Message) (*mail.Msg, error) {
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return nil, errors.New("message has no recipient")
	}

	m := mail.NewMsg()
	if g.fromName != "" {
		if err := m.FromFormat(g.fromName, g.from); err != nil {
			return nil, fmt.Errorf("invalid sender address %q: %w", g.from, err)
		}
	} else if err := m.From(g.from); err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", g.from, err)
	}
	if err := m.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient address %q: %w", to, err)
	}
	m.Subject(msg.Subject)

	switch {
	case msg.TextBody != "" && msg.HTMLBody != "":
		m.SetBodyString(mail.TypeTextPlain, msg.TextBody)
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTMLBody)
	case msg.HTMLBody != "":
		m.SetBodyString(mail.TypeTextHTML, msg.HTMLBody)
	default:
		m.SetBodyString(mail.TypeTextPlain, msg.TextBody)
	}
	return m, nil
}

func tlsPolicy(name string) (mail.TLSPolicy, error) {
	switch name {
	case "", "mandatory":
		return mail.TLSMandatory, nil
	case "opportunistic":
		return mail.TLSOpportunistic, nil
	case "none":
		return mail.NoTLS, nil
	}
	return mail.TLSMandatory, fmt.Errorf("unknown tls policy %q", name)
}

// NewGatewayFactory returns the per-run gateway factory for the automation driver.
// The mail settings are read on every call.
func NewGatewayFactory(cfg *config.MailConfig, logger *zap.Logger) invoicing.GatewayFactory {
	return func(ctx context.Context) (invoicing.NotificationGateway, error) {
		return NewSMTPGateway(cfg, logger)
	}
}

// Ensure SMTPGateway implements NotificationGateway
var _ invoicing.NotificationGateway = (*SMTPGateway)(nil)
