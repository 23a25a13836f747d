package notify

import (
	"context"
	"fmt"
	"strings"

	"campus-auth/internal/config"
	"campus-auth/internal/util"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// SMTPNotifier sends plain-text mail through a configured SMTP relay.
type SMTPNotifier struct {
	cfg    *config.SMTPConfig
	logger *zap.Logger
}

func NewSMTPNotifier(cfg *config.SMTPConfig, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{
		cfg:    cfg,
		logger: logger,
	}
}

func (n *SMTPNotifier) Send(ctx context.Context, to, subject, body string) error {
	if n.cfg.Host == "" || n.cfg.Username == "" {
		return fmt.Errorf("smtp config missing")
	}
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("empty recipient")
	}

	from := n.cfg.From
	if from == "" {
		from = n.cfg.Username
	}

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	d := gomail.NewDialer(n.cfg.Host, n.cfg.Port, n.cfg.Username, n.cfg.Password)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("notification email sent",
		util.String("to", to),
		util.String("subject", subject),
	)
	return nil
}

// DevNotifier logs messages instead of sending them, for local development
// where no SMTP relay is configured.
type DevNotifier struct {
	logger *zap.Logger
}

func NewDevNotifier(logger *zap.Logger) *DevNotifier {
	return &DevNotifier{logger: logger}
}

func (n *DevNotifier) Send(ctx context.Context, to, subject, body string) error {
	n.logger.Info("notification (dev, not delivered)",
		util.String("to", to),
		util.String("subject", subject),
		util.String("body", body),
	)
	return nil
}
