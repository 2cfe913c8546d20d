package email

import "errors"

var (
	ErrFailedToSendEmail = errors.New("mailer.errors.failed_to_send_email")
	ErrInvalidConfig     = errors.New("mailer.errors.invalid_config")
	ErrInvalidParams     = errors.New("mailer.errors.invalid_params")

	// ErrRecipientRejected means the address itself is dead: hard bounce,
	// inactive recipient or unknown mailbox.
	ErrRecipientRejected = errors.New("mailer.errors.recipient_rejected")
	// ErrMessageRejected means the provider refused the message and a retry
	// will not help.
	ErrMessageRejected = errors.New("mailer.errors.message_rejected")
)
