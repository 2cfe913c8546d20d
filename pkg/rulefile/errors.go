package rulefile

import "errors"

var (
	ErrInvalidRuleFile = errors.New("invalid rule file")
	ErrDuplicateType   = errors.New("rule defined twice for type")
)
