package email

import (
	"context"
	"fmt"

	"inkwell/config"
)

// Service renders the account mails and hands them to a Mailer.
type Service struct {
	mailer Mailer
	domain string
	prefix string
}

func NewService(cfg *config.Config, mailer Mailer) *Service {
	return &Service{mailer: mailer, domain: cfg.Domain, prefix: cfg.MailSubjectPrefix}
}

func (s *Service) subject(text string) string {
	if s.prefix == "" {
		return text
	}
	return s.prefix + " " + text
}

func (s *Service) SendConfirmation(ctx context.Context, to, username, token string) error {
	link := fmt.Sprintf("%s/auth/confirm/%s", s.domain, token)
	body := fmt.Sprintf(`Dear %s,

Welcome to Inkwell!

To confirm your account please visit the following link:

%s

Sincerely,

The Inkwell Team

Note: replies to this email address are not monitored.
`, username, link)
	return s.mailer.Send(ctx, to, s.subject("Confirm Your Account"), body)
}

func (s *Service) SendPasswordReset(ctx context.Context, to, username, token string) error {
	link := fmt.Sprintf("%s/auth/reset/%s", s.domain, token)
	body := fmt.Sprintf(`Dear %s,

To reset your password send the new password to the following link:

%s

If you have not requested a password reset simply ignore this message.

Sincerely,

The Inkwell Team
`, username, link)
	return s.mailer.Send(ctx, to, s.subject("Reset Your Password"), body)
}

func (s *Service) SendEmailChange(ctx context.Context, to, username, token string) error {
	link := fmt.Sprintf("%s/auth/change-email/%s", s.domain, token)
	body := fmt.Sprintf(`Dear %s,

To confirm your new email address visit the following link:

%s

Sincerely,

The Inkwell Team
`, username, link)
	return s.mailer.Send(ctx, to, s.subject("Confirm your email address"), body)
}
