package email

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyPostmark(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code      int64
		recipient bool
	}{
		{code: postmarkInvalidEmailRequest, recipient: true},
		{code: postmarkInactiveRecipient, recipient: true},
		{code: 412},
		{code: 422},
	}

	for _, tt := range tests {
		err := classifyPostmark(tt.code, "boom")
		assert.ErrorIs(t, err, ErrFailedToSendEmail)
		assert.Equal(t, tt.recipient, errors.Is(err, ErrRecipientRejected), "code %d", tt.code)
		assert.Equal(t, !tt.recipient, errors.Is(err, ErrMessageRejected), "code %d", tt.code)
		assert.Contains(t, err.Error(), "boom")
	}
}
