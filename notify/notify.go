// Package notify sends best-effort user notifications. Callers log and
// swallow failures.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/raushankrgupta/nima-backend/logging"
	"github.com/raushankrgupta/nima-backend/models"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type Notifier interface {
	SendOnboardingLooksReady(ctx context.Context, user *models.User, successCount int) error
}

// sender is the part of the SendGrid client we use.
type sender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

type SendGridNotifier struct {
	client    sender
	fromName  string
	fromEmail string
	log       logging.Logger
}

func NewSendGridNotifier(apiKey, fromEmail string, log logging.Logger) (*SendGridNotifier, error) {
	if apiKey == "" {
		return nil, errors.New("SENDGRID_API_KEY is not set")
	}
	return &SendGridNotifier{
		client:    sendgrid.NewSendClient(apiKey),
		fromName:  "Nima",
		fromEmail: fromEmail,
		log:       log,
	}, nil
}

func (n *SendGridNotifier) SendOnboardingLooksReady(ctx context.Context, user *models.User, successCount int) error {
	subject, text, html := looksReadyContent(user.Name, successCount)

	from := mail.NewEmail(n.fromName, n.fromEmail)
	to := mail.NewEmail(user.Name, user.Email)
	message := mail.NewSingleEmail(from, subject, to, text, html)

	response, err := n.client.Send(message)
	if err != nil {
		return fmt.Errorf("send looks-ready email to %s: %w", user.Email, err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("failed to send email, status code: %d", response.StatusCode)
	}

	n.log.Info(ctx, "looks-ready email sent", "user_id", user.ID.Hex(), "status", response.StatusCode)
	return nil
}

func looksReadyContent(name string, count int) (subject, text, html string) {
	noun := "looks are"
	if count == 1 {
		noun = "look is"
	}
	if name == "" {
		name = "there"
	}
	subject = "Your Nima looks are ready"
	text = fmt.Sprintf("Hi %s, your first %d %s ready. Open Nima to see them.", name, count, noun)
	html = fmt.Sprintf("<p>Hi %s,</p><p>Your first <strong>%d</strong> %s ready. Open Nima to see them.</p>", name, count, noun)
	return subject, text, html
}

// LogNotifier only logs. Used when no email provider is configured.
type LogNotifier struct {
	log logging.Logger
}

func NewLogNotifier(log logging.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendOnboardingLooksReady(ctx context.Context, user *models.User, successCount int) error {
	n.log.Info(ctx, "onboarding looks ready", "user_id", user.ID.Hex(), "success_count", successCount)
	return nil
}
