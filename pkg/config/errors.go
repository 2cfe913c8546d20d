package config

import "errors"

var (
	// ErrParsingConfig wraps env parsing failures such as a missing required
	// variable or a malformed duration.
	ErrParsingConfig = errors.New("failed to parse environment variables into config")
	// ErrInvalidConfig wraps a Validate failure.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrEnvFile is returned when a dotenv file exists but cannot be read.
	ErrEnvFile = errors.New("failed to load env file")
	// ErrNilPointer is returned when a nil pointer is provided to Load.
	ErrNilPointer = errors.New("nil pointer provided to config loader")
)
