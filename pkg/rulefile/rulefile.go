package rulefile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// File is the YAML document holding the processing rules.
type File struct {
	Rules []Rule `yaml:"rules"`
}

// Rule is one processing rule as written in YAML. Durations use Go syntax
// ("10m", "24h"); channels are names such as in_app, push or email.
type Rule struct {
	Type     string   `yaml:"type"`
	Channels []string `yaml:"channels,omitempty"`
	Priority string   `yaml:"priority,omitempty"`

	EnableBatching bool          `yaml:"enable_batching,omitempty"`
	BatchWindow    time.Duration `yaml:"batch_window,omitempty"`
	MaxBatchSize   int           `yaml:"max_batch_size,omitempty"`

	EnableDeduplication bool          `yaml:"enable_deduplication,omitempty"`
	DeduplicationWindow time.Duration `yaml:"deduplication_window,omitempty"`

	MaxPerHour int           `yaml:"max_per_hour,omitempty"`
	MaxPerDay  int           `yaml:"max_per_day,omitempty"`
	Expiry     time.Duration `yaml:"expiry,omitempty"`
}

// ProcessingRule converts r to the engine's rule type.
func (r Rule) ProcessingRule() (notifications.ProcessingRule, error) {
	t := notifications.Type(strings.TrimSpace(r.Type))
	if !t.Valid() {
		return notifications.ProcessingRule{}, fmt.Errorf("%w: unknown type %q", ErrInvalidRuleFile, r.Type)
	}

	channels, err := notifications.ParseChannels(strings.Join(r.Channels, ","))
	if err != nil {
		return notifications.ProcessingRule{}, fmt.Errorf("%w: %s: %w", ErrInvalidRuleFile, t, err)
	}
	priority, err := notifications.ParsePriority(r.Priority)
	if err != nil {
		return notifications.ProcessingRule{}, fmt.Errorf("%w: %s: %w", ErrInvalidRuleFile, t, err)
	}

	return notifications.ProcessingRule{
		Type:                t,
		EnableBatching:      r.EnableBatching,
		BatchWindow:         r.BatchWindow,
		MaxBatchSize:        r.MaxBatchSize,
		EnableDeduplication: r.EnableDeduplication,
		DeduplicationWindow: r.DeduplicationWindow,
		MaxPerHour:          r.MaxPerHour,
		MaxPerDay:           r.MaxPerDay,
		Channels:            channels,
		DefaultPriority:     priority,
		Expiry:              r.Expiry,
	}, nil
}

// FromProcessingRule converts an engine rule to its YAML form.
func FromProcessingRule(pr notifications.ProcessingRule) Rule {
	r := Rule{
		Type:                string(pr.Type),
		EnableBatching:      pr.EnableBatching,
		BatchWindow:         pr.BatchWindow,
		MaxBatchSize:        pr.MaxBatchSize,
		EnableDeduplication: pr.EnableDeduplication,
		DeduplicationWindow: pr.DeduplicationWindow,
		MaxPerHour:          pr.MaxPerHour,
		MaxPerDay:           pr.MaxPerDay,
		Expiry:              pr.Expiry,
	}
	if pr.Channels != notifications.ChannelNone {
		r.Channels = strings.Split(pr.Channels.String(), "|")
	}
	if pr.DefaultPriority != 0 {
		r.Priority = pr.DefaultPriority.String()
	}
	return r
}

// Parse decodes a rule file. Unknown keys, unknown types, channels or
// priorities and a type listed twice are errors.
func Parse(data []byte) (map[notifications.Type]notifications.ProcessingRule, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRuleFile, err)
	}

	out := make(map[notifications.Type]notifications.ProcessingRule, len(f.Rules))
	for _, r := range f.Rules {
		pr, err := r.ProcessingRule()
		if err != nil {
			return nil, err
		}
		if _, exists := out[pr.Type]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateType, pr.Type)
		}
		out[pr.Type] = pr
	}
	return out, nil
}

// Load reads and parses the rule file at path.
func Load(path string) (map[notifications.Type]notifications.ProcessingRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rulefile: read %s: %w", path, err)
	}
	return Parse(data)
}

// Marshal renders rules as a rule file ordered by type.
func Marshal(rules map[notifications.Type]notifications.ProcessingRule) ([]byte, error) {
	types := make([]notifications.Type, 0, len(rules))
	for t := range rules {
		types = append(types, t)
	}
	slices.Sort(types)

	f := File{Rules: make([]Rule, 0, len(types))}
	for _, t := range types {
		pr := rules[t]
		pr.Type = t
		f.Rules = append(f.Rules, FromProcessingRule(pr))
	}
	return yaml.Marshal(f)
}
