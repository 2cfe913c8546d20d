package email_test

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/dmitrymomot/notifykit/pkg/email"
)

type mockDialer struct {
	mock.Mock
}

func (m *mockDialer) DialAndSend(msgs ...*gomail.Message) error {
	return m.Called(msgs).Error(0)
}

func smtpConfig() email.Config {
	return email.Config{
		Provider:     email.ProviderSMTP,
		SMTPHost:     "localhost",
		SMTPPort:     1025,
		SenderEmail:  "noreply@example.com",
		SupportEmail: "support@example.com",
	}
}

func validParams() email.SendEmailParams {
	return email.SendEmailParams{
		SendTo:   "user@example.com",
		Subject:  "Hello",
		BodyHTML: "<p>hi</p>",
		BodyText: "hi",
		Tag:      "comment",
	}
}

func TestSMTPSender_SendEmail(t *testing.T) {
	t.Parallel()

	d := &mockDialer{}
	d.On("DialAndSend", mock.MatchedBy(func(msgs []*gomail.Message) bool {
		if len(msgs) != 1 {
			return false
		}
		m := msgs[0]
		return m.GetHeader("To")[0] == "user@example.com" &&
			m.GetHeader("From")[0] == "noreply@example.com" &&
			m.GetHeader("Reply-To")[0] == "support@example.com" &&
			m.GetHeader("X-Tag")[0] == "comment"
	})).Return(nil).Once()

	sender, err := email.NewSMTPSenderWithDialer(smtpConfig(), d)
	require.NoError(t, err)

	id, err := sender.SendEmail(context.Background(), validParams())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(id, "@example.com>"))
	d.AssertExpectations(t)
}

func TestSMTPSender_Classification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		recipient bool
		rejected  bool
	}{
		{
			name:      "mailbox unavailable",
			err:       &textproto.Error{Code: 550, Msg: "5.1.1 user unknown"},
			recipient: true,
		},
		{
			name:      "flattened by gomail",
			err:       fmt.Errorf("gomail: could not send email 1: %v", &textproto.Error{Code: 553, Msg: "mailbox name not allowed"}),
			recipient: true,
		},
		{
			name:     "message rejected",
			err:      &textproto.Error{Code: 554, Msg: "transaction failed"},
			rejected: true,
		},
		{
			name: "greylisted",
			err:  &textproto.Error{Code: 451, Msg: "try again later"},
		},
		{
			name: "connection refused",
			err:  errors.New("dial tcp 127.0.0.1:1025: connect: connection refused"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := &mockDialer{}
			d.On("DialAndSend", mock.Anything).Return(tt.err)
			sender, err := email.NewSMTPSenderWithDialer(smtpConfig(), d)
			require.NoError(t, err)

			_, err = sender.SendEmail(context.Background(), validParams())
			require.Error(t, err)
			assert.ErrorIs(t, err, email.ErrFailedToSendEmail)
			assert.Equal(t, tt.recipient, errors.Is(err, email.ErrRecipientRejected))
			assert.Equal(t, tt.rejected, errors.Is(err, email.ErrMessageRejected))
		})
	}
}

func TestSMTPSender_InvalidParams(t *testing.T) {
	t.Parallel()

	d := &mockDialer{}
	sender, err := email.NewSMTPSenderWithDialer(smtpConfig(), d)
	require.NoError(t, err)

	_, err = sender.SendEmail(context.Background(), email.SendEmailParams{SendTo: "nope"})
	assert.ErrorIs(t, err, email.ErrInvalidParams)
	d.AssertNotCalled(t, "DialAndSend", mock.Anything)
}

func TestNewSender(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     email.Config
		wantErr bool
	}{
		{name: "dev", cfg: email.Config{Provider: email.ProviderDev, DevOutputDir: t.TempDir()}},
		{name: "smtp", cfg: smtpConfig()},
		{name: "smtp without host", cfg: email.Config{Provider: email.ProviderSMTP, SMTPPort: 25}, wantErr: true},
		{name: "postmark without tokens", cfg: email.Config{Provider: email.ProviderPostmark}, wantErr: true},
		{name: "unknown", cfg: email.Config{Provider: "carrier-pigeon"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, err := email.NewSender(tt.cfg)
			if tt.wantErr {
				assert.ErrorIs(t, err, email.ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s)
		})
	}
}
