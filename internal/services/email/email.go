// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/oliverandrich/qr-registration/internal/config"
	"codeberg.org/oliverandrich/qr-registration/internal/i18n"
	"github.com/wneessen/go-mail"
)

// Service sends verification codes over SMTP.
type Service struct {
	cfg     *config.SMTPConfig
	appName string
}

// NewService creates a new email service.
func NewService(cfg *config.SMTPConfig, appName string) (*Service, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}

	return &Service{
		cfg:     cfg,
		appName: appName,
	}, nil
}

// SendVerificationCode mails code to toEmail in the locale carried by ctx.
func (s *Service) SendVerificationCode(ctx context.Context, toEmail, code string, ttl time.Duration) error {
	msg, err := s.buildMessage(ctx, toEmail, code, ttl)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}

func (s *Service) buildMessage(ctx context.Context, to, code string, ttl time.Duration) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(i18n.TData(ctx, "email_verification_subject", map[string]any{
		"AppName": s.appName,
	}))
	msg.SetBodyString(mail.TypeTextPlain, i18n.TData(ctx, "email_verification_body", map[string]any{
		"Code":    code,
		"Minutes": int(ttl.Minutes()),
	}))

	return msg, nil
}

func (s *Service) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(10 * time.Second),
	}

	// Implicit TLS on 465, STARTTLS elsewhere
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	return opts
}

// LogSender writes codes to the log instead of mailing them. Development only.
type LogSender struct{}

// SendVerificationCode logs the code at warn level.
func (LogSender) SendVerificationCode(ctx context.Context, toEmail, code string, ttl time.Duration) error {
	slog.WarnContext(ctx, "smtp disabled, verification code not mailed",
		"to", toEmail,
		"code", code,
		"ttl", ttl,
	)
	return nil
}
