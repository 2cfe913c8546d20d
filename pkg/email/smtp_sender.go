package email

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// Dialer is the part of gomail.Dialer the SMTP sender uses.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type smtpSender struct {
	dialer Dialer
	config Config
}

// NewSMTPSender creates an SMTP-backed email sender.
func NewSMTPSender(cfg Config) (EmailSender, error) {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		return nil, fmt.Errorf("%w: SMTPHost is required", ErrInvalidConfig)
	}
	if cfg.SMTPPort <= 0 {
		return nil, fmt.Errorf("%w: SMTPPort must be positive", ErrInvalidConfig)
	}
	return NewSMTPSenderWithDialer(cfg, gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword))
}

// NewSMTPSenderWithDialer creates an SMTP sender over a custom dialer.
func NewSMTPSenderWithDialer(cfg Config, d Dialer) (EmailSender, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: dialer is required", ErrInvalidConfig)
	}
	if err := cfg.validateIdentity(); err != nil {
		return nil, err
	}
	return &smtpSender{dialer: d, config: cfg}, nil
}

// SendEmail delivers one message through the SMTP relay. The returned id is
// the generated Message-ID header.
func (s *smtpSender) SendEmail(ctx context.Context, params SendEmailParams) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", errors.Join(ErrFailedToSendEmail, err)
	}

	domain := s.config.SenderEmail[strings.LastIndex(s.config.SenderEmail, "@")+1:]
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SenderEmail)
	m.SetHeader("Reply-To", s.config.SupportEmail)
	m.SetHeader("To", params.SendTo)
	m.SetHeader("Subject", params.Subject)
	m.SetHeader("Message-ID", messageID)
	if params.Tag != "" {
		m.SetHeader("X-Tag", params.Tag)
	}
	if params.BodyText != "" {
		m.SetBody("text/plain", params.BodyText)
		m.AddAlternative("text/html", params.BodyHTML)
	} else {
		m.SetBody("text/html", params.BodyHTML)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		return "", classifySMTP(err)
	}
	return messageID, nil
}

var smtpReplyCode = regexp.MustCompile(`\b([245]\d\d)[ -]`)

// smtpCode extracts the SMTP reply code from err. gomail flattens the
// underlying textproto error into its message, so the text is scanned too.
func smtpCode(err error) int {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code
	}
	if m := smtpReplyCode.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code
	}
	return 0
}

// classifySMTP maps 550-553 to a rejected recipient and other 5xx replies to
// a rejected message. Everything else, 4xx included, is left retryable.
func classifySMTP(err error) error {
	code := smtpCode(err)
	switch {
	case code >= 550 && code <= 553:
		return errors.Join(ErrFailedToSendEmail, ErrRecipientRejected, err)
	case code >= 500:
		return errors.Join(ErrFailedToSendEmail, ErrMessageRejected, err)
	default:
		return errors.Join(ErrFailedToSendEmail, err)
	}
}
