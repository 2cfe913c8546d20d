package scheduler

import "time"

// Config holds the job schedules. Specs accept cron expressions with an
// optional seconds field and descriptors such as "@every 30s".
type Config struct {
	ReleaseSpec string        `env:"SCHEDULER_RELEASE_SPEC" envDefault:"@every 30s"`
	ExpireSpec  string        `env:"SCHEDULER_EXPIRE_SPEC" envDefault:"@every 5m"`
	Timezone    string        `env:"SCHEDULER_TIMEZONE" envDefault:"UTC"`
	BatchSize   int           `env:"SCHEDULER_BATCH_SIZE" envDefault:"500"`
	JobTimeout  time.Duration `env:"SCHEDULER_JOB_TIMEOUT" envDefault:"1m"`
}

// DefaultConfig mirrors the envDefault tags.
func DefaultConfig() Config {
	return Config{
		ReleaseSpec: "@every 30s",
		ExpireSpec:  "@every 5m",
		Timezone:    "UTC",
		BatchSize:   500,
		JobTimeout:  time.Minute,
	}
}
