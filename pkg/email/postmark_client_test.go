package email_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/email"
)

func postmarkConfig() email.Config {
	return email.Config{
		Provider:             email.ProviderPostmark,
		PostmarkServerToken:  "server-token",
		PostmarkAccountToken: "account-token",
		SenderEmail:          "noreply@example.com",
		SupportEmail:         "support@example.com",
	}
}

func TestNewPostmarkClient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*email.Config)
		errMsg string
	}{
		{name: "valid", mutate: func(*email.Config) {}},
		{name: "no server token", mutate: func(c *email.Config) { c.PostmarkServerToken = "" }, errMsg: "PostmarkServerToken"},
		{name: "no account token", mutate: func(c *email.Config) { c.PostmarkAccountToken = "" }, errMsg: "PostmarkAccountToken"},
		{name: "no sender", mutate: func(c *email.Config) { c.SenderEmail = "" }, errMsg: "SenderEmail is required"},
		{name: "bad sender", mutate: func(c *email.Config) { c.SenderEmail = "noreply" }, errMsg: "SenderEmail must be"},
		{name: "no support", mutate: func(c *email.Config) { c.SupportEmail = "" }, errMsg: "SupportEmail is required"},
		{name: "bad support", mutate: func(c *email.Config) { c.SupportEmail = "@example.com" }, errMsg: "SupportEmail must be"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := postmarkConfig()
			tt.mutate(&cfg)
			client, err := email.NewPostmarkClient(cfg)
			if tt.errMsg == "" {
				require.NoError(t, err)
				assert.Implements(t, (*email.EmailSender)(nil), client)
				return
			}
			require.ErrorIs(t, err, email.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.errMsg)
			assert.Nil(t, client)
		})
	}
}

func TestPostmarkClient_InvalidParams(t *testing.T) {
	t.Parallel()

	client, err := email.NewPostmarkClient(postmarkConfig())
	require.NoError(t, err)

	_, err = client.SendEmail(context.Background(), email.SendEmailParams{SendTo: "user@example.com"})
	assert.ErrorIs(t, err, email.ErrInvalidParams)
}
