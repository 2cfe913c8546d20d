package push

import "time"

// Config holds push channel settings.
type Config struct {
	GatewayURL    string        `env:"PUSH_GATEWAY_URL"`
	APIKey        string        `env:"PUSH_API_KEY"`
	SigningSecret string        `env:"PUSH_SIGNING_SECRET"`
	Timeout       time.Duration `env:"PUSH_TIMEOUT" envDefault:"10s"`
	TokenTTL      time.Duration `env:"PUSH_TOKEN_TTL" envDefault:"2160h"`

	RatePerMinute int `env:"PUSH_RATE_PER_MINUTE" envDefault:"1000"`
	RatePerHour   int `env:"PUSH_RATE_PER_HOUR" envDefault:"10000"`

	BreakerFailures  int           `env:"PUSH_BREAKER_FAILURES" envDefault:"5"`
	BreakerSuccesses int           `env:"PUSH_BREAKER_SUCCESSES" envDefault:"2"`
	BreakerRecovery  time.Duration `env:"PUSH_BREAKER_RECOVERY" envDefault:"30s"`
}
