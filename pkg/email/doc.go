// Package email provides a provider-agnostic interface for sending transactional emails
// with Postmark, SMTP and a local development backend, plus templ-based layouts.
//
// # Architecture
//
// The package is built around the EmailSender interface. Implementations:
//   - Postmark client for production delivery with open and link tracking
//   - SMTP sender over gopkg.in/gomail.v2 for self-hosted relays
//   - DevSender for local development (saves emails to disk)
//
// All implementations validate parameters before sending and return the
// provider message id on success.
//
// # Usage
//
//	sender, err := email.NewSender(cfg) // cfg.Provider: postmark, smtp or dev
//	if err != nil {
//	    return err
//	}
//
//	html, err := templates.Render(ctx, templates.Layout(templates.LayoutParams{
//	    Title: "alice commented",
//	    Body:  "Nice post!",
//	}))
//
//	id, err := sender.SendEmail(ctx, email.SendEmailParams{
//	    SendTo:   "user@example.com",
//	    Subject:  "alice commented",
//	    BodyHTML: html,
//	    Tag:      "comment",
//	})
//
// # Error Handling
//
// Sentinel errors:
//   - ErrInvalidConfig: configuration validation failed
//   - ErrInvalidParams: email parameters validation failed
//   - ErrFailedToSendEmail: delivery failed; retrying may help
//   - ErrRecipientRejected: the address is dead (Postmark 300/406, SMTP 550-553)
//   - ErrMessageRejected: the provider refused the message for good
//
// The last two are joined with ErrFailedToSendEmail, so errors.Is works for
// both the generic and the specific cause.
package email
