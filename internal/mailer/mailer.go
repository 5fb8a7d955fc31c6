// Package mailer renders and delivers the playbook invitation email.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"go-playbooks/internal/apperr"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

// Invitation parameterizes the invitation template.
type Invitation struct {
	To            string
	InviterName   string
	PlaybookTitle string
	Permission    string
	AcceptURL     string
}

type Sender interface {
	SendInvitation(ctx context.Context, inv Invitation) error
}

var invitationTmpl = template.Must(template.New("invitation").Parse(`<!DOCTYPE html>
<html>
<body style="font-family:Arial,sans-serif;color:#1f2937;">
  <h2>You've been invited to collaborate</h2>
  <p>Hi {{.To}},</p>
  <p><strong>{{.InviterName}}</strong> invited you to <strong>{{.PlaybookTitle}}</strong> with <strong>{{.PermissionLabel}}</strong> access.</p>
  <p>
    <a href="{{.AcceptURL}}" style="display:inline-block;padding:10px 20px;text-decoration:none;border-radius:5px;background-color:#2563eb;color:#fff;">Accept invitation</a>
  </p>
  <p style="font-size:12px;color:#6b7280;">This invitation expires in 7 days. If you weren't expecting it you can ignore this email.</p>
</body>
</html>`))

// Render returns the subject and HTML body for inv.
func Render(inv Invitation) (string, string, error) {
	label := "view"
	if inv.Permission == "edit" {
		label = "edit"
	}
	var buf bytes.Buffer
	err := invitationTmpl.Execute(&buf, struct {
		Invitation
		PermissionLabel string
	}{inv, label})
	if err != nil {
		return "", "", err
	}
	subject := fmt.Sprintf("%s invited you to collaborate on %q", inv.InviterName, inv.PlaybookTitle)
	return subject, buf.String(), nil
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	from   string
	dialer *gomail.Dialer
	log    zerolog.Logger
}

func NewSMTPSender(cfg SMTPConfig, log zerolog.Logger) *SMTPSender {
	return &SMTPSender{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		log:    log,
	}
}

func (s *SMTPSender) SendInvitation(ctx context.Context, inv Invitation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, body, err := Render(inv)
	if err != nil {
		return apperr.Downstream("render invitation", err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", inv.To)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(msg); err != nil {
		s.log.Error().Err(err).Str("to", inv.To).Msg("invitation email failed")
		return apperr.Downstream("send invitation email", err)
	}
	s.log.Info().Str("to", inv.To).Msg("invitation email sent")
	return nil
}

// NopSender logs instead of sending. Used when SMTP is not configured.
type NopSender struct {
	Log zerolog.Logger
}

func (s NopSender) SendInvitation(_ context.Context, inv Invitation) error {
	s.Log.Info().Str("to", inv.To).Str("accept_url", inv.AcceptURL).Msg("smtp disabled, invitation not emailed")
	return nil
}
