package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/raushankrgupta/nima-backend/logging"
	"github.com/raushankrgupta/nima-backend/models"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent   []*mail.SGMailV3
	status int
	err    error
}

func (f *fakeSender) Send(email *mail.SGMailV3) (*rest.Response, error) {
	f.sent = append(f.sent, email)
	if f.err != nil {
		return nil, f.err
	}
	return &rest.Response{StatusCode: f.status}, nil
}

func newNotifier(s sender) *SendGridNotifier {
	return &SendGridNotifier{client: s, fromName: "Nima", fromEmail: "no-reply@nima.test", log: logging.Discard()}
}

func TestSendOnboardingLooksReady(t *testing.T) {
	s := &fakeSender{status: 202}
	user := &models.User{Name: "Asha", Email: "asha@example.com"}

	require.NoError(t, newNotifier(s).SendOnboardingLooksReady(context.Background(), user, 3))
	require.Len(t, s.sent, 1)
	assert.Equal(t, "Your Nima looks are ready", s.sent[0].Subject)
	assert.Equal(t, "asha@example.com", s.sent[0].Personalizations[0].To[0].Address)
}

func TestSendOnboardingLooksReady_Errors(t *testing.T) {
	user := &models.User{Email: "x@example.com"}

	err := newNotifier(&fakeSender{status: 401}).SendOnboardingLooksReady(context.Background(), user, 1)
	assert.ErrorContains(t, err, "401")

	err = newNotifier(&fakeSender{err: errors.New("boom")}).SendOnboardingLooksReady(context.Background(), user, 1)
	assert.ErrorContains(t, err, "boom")
}

func TestLooksReadyContent(t *testing.T) {
	_, text, _ := looksReadyContent("", 1)
	assert.Equal(t, "Hi there, your first 1 look is ready. Open Nima to see them.", text)
}

func TestNewSendGridNotifier_RequiresKey(t *testing.T) {
	_, err := NewSendGridNotifier("", "a@b.c", logging.Discard())
	assert.Error(t, err)
}
