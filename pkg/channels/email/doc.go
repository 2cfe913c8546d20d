// Package email implements the email notification channel.
//
// Addresses live in a Directory, one per user. The channel renders the
// per-type template through the shared placeholder renderer and wraps the
// result in the HTML layout from pkg/email/templates. Sends go through any
// pkg/email sender (Postmark, SMTP or the development file sender).
//
// Provider errors are mapped onto dispatcher classes:
//
//	recipient rejected (Postmark 300/406, SMTP 550-553) -> ErrTokenInvalid, address deactivated
//	message rejected, invalid params                     -> ErrPermanent
//	anything else                                        -> ErrTransient
package email
