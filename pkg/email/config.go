package email

import "fmt"

// Provider names accepted by Config.Provider.
const (
	ProviderPostmark = "postmark"
	ProviderSMTP     = "smtp"
	ProviderDev      = "dev"
)

// Config holds email service configuration.
// Provider selects the backend; the token and SMTP fields are only required
// by the backend that uses them. SenderEmail and SupportEmail establish the
// sender identity and reply-to behavior for all outbound emails.
type Config struct {
	Provider string `env:"EMAIL_PROVIDER" envDefault:"dev"`

	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`

	SMTPHost     string `env:"SMTP_HOST" envDefault:"localhost"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"1025"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`

	DevOutputDir string `env:"EMAIL_DEV_DIR" envDefault:"./tmp/emails"`

	SenderEmail  string `env:"SENDER_EMAIL" envDefault:"noreply@example.com"`
	SupportEmail string `env:"SUPPORT_EMAIL" envDefault:"support@example.com"`

	RatePerMinute int `env:"EMAIL_RATE_PER_MINUTE" envDefault:"100"`
	RatePerHour   int `env:"EMAIL_RATE_PER_HOUR" envDefault:"1000"`
}

func (cfg Config) validateIdentity() error {
	if cfg.SenderEmail == "" {
		return fmt.Errorf("%w: SenderEmail is required", ErrInvalidConfig)
	}
	if !ValidAddress(cfg.SenderEmail) {
		return fmt.Errorf("%w: SenderEmail must be a valid email address", ErrInvalidConfig)
	}
	if cfg.SupportEmail == "" {
		return fmt.Errorf("%w: SupportEmail is required", ErrInvalidConfig)
	}
	if !ValidAddress(cfg.SupportEmail) {
		return fmt.Errorf("%w: SupportEmail must be a valid email address", ErrInvalidConfig)
	}
	return nil
}

// NewSender builds the sender selected by cfg.Provider.
func NewSender(cfg Config) (EmailSender, error) {
	switch cfg.Provider {
	case ProviderPostmark:
		return NewPostmarkClient(cfg)
	case ProviderSMTP:
		return NewSMTPSender(cfg)
	case ProviderDev, "":
		return NewDevSender(cfg.DevOutputDir), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
