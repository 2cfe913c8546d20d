package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Validator is implemented by config structs that check themselves after
// the environment was parsed.
type Validator interface {
	Validate() error
}

type options struct {
	files       []string
	prefix      string
	environment map[string]string
}

// Option configures Load.
type Option func(*options)

// WithEnvFiles loads the given dotenv files before parsing. Missing files are
// skipped; variables already set in the process environment win.
func WithEnvFiles(paths ...string) Option {
	return func(o *options) { o.files = append(o.files, paths...) }
}

// WithPrefix prepends prefix to every variable name of the struct.
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithEnvironment parses from the given map instead of the process
// environment. Used by tests.
func WithEnvironment(vars map[string]string) Option {
	return func(o *options) { o.environment = vars }
}

var defaultEnvLoaded sync.Once

// Load parses environment variables into v using its env struct tags, then
// runs v.Validate when v implements Validator.
//
// Without WithEnvFiles the ./.env file is loaded once per process if it
// exists.
func Load[T any](v *T, opts ...Option) error {
	if v == nil {
		return ErrNilPointer
	}
	return load(v, newOptions(opts))
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func load(v any, o *options) error {
	if err := loadEnvFiles(o.files); err != nil {
		return err
	}

	envOpts := env.Options{Prefix: o.prefix}
	if o.environment != nil {
		envOpts.Environment = o.environment
	}
	if err := env.ParseWithOptions(v, envOpts); err != nil {
		return fmt.Errorf("%w %T: %w", ErrParsingConfig, v, err)
	}

	if val, ok := v.(Validator); ok {
		if err := val.Validate(); err != nil {
			return fmt.Errorf("%w %T: %w", ErrInvalidConfig, v, err)
		}
	}
	return nil
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		// The default .env is optional.
		defaultEnvLoaded.Do(func() { _ = godotenv.Load() })
		return nil
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w %s: %w", ErrEnvFile, f, err)
		}
	}
	return nil
}

// MustLoad is Load that panics, for values the service cannot start without.
func MustLoad[T any](v *T, opts ...Option) {
	if err := Load(v, opts...); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
}

// LoadAll loads several config struct pointers with the same options and
// joins every failure, so a misconfigured deployment reports all problems
// at once.
func LoadAll(opts []Option, targets ...any) error {
	o := newOptions(opts)
	var errs []error
	for _, target := range targets {
		if target == nil {
			errs = append(errs, ErrNilPointer)
			continue
		}
		errs = append(errs, load(target, o))
	}
	return errors.Join(errs...)
}
