package notifications

import "time"

// ProcessingRule configures how one notification type moves through the
// pipeline. Rules are configuration; the pipeline never mutates them.
type ProcessingRule struct {
	Type Type `json:"type" yaml:"type"`

	EnableBatching bool          `json:"enable_batching" yaml:"enable_batching"`
	BatchWindow    time.Duration `json:"batch_window" yaml:"batch_window"`
	MaxBatchSize   int           `json:"max_batch_size" yaml:"max_batch_size"`

	EnableDeduplication bool          `json:"enable_deduplication" yaml:"enable_deduplication"`
	DeduplicationWindow time.Duration `json:"deduplication_window" yaml:"deduplication_window"`

	// Zero means unlimited.
	MaxPerHour int `json:"max_per_hour" yaml:"max_per_hour"`
	MaxPerDay  int `json:"max_per_day" yaml:"max_per_day"`

	Channels        Channel       `json:"channels" yaml:"-"`
	DefaultPriority Priority      `json:"default_priority" yaml:"-"`
	Expiry          time.Duration `json:"expiry" yaml:"expiry"`
}

// Batches reports whether notifications of this rule's type are grouped.
func (r ProcessingRule) Batches() bool {
	return r.EnableBatching && r.MaxBatchSize > 1 && r.BatchWindow > 0
}

// DefaultRules returns the built-in rule set keyed by type.
func DefaultRules() map[Type]ProcessingRule {
	rules := []ProcessingRule{
		{
			Type:                TypeLike,
			EnableBatching:      true,
			BatchWindow:         10 * time.Minute,
			MaxBatchSize:        20,
			EnableDeduplication: true,
			DeduplicationWindow: 30 * time.Minute,
			MaxPerHour:          20,
			MaxPerDay:           100,
			Channels:            ChannelInApp | ChannelPush,
			DefaultPriority:     PriorityLow,
		},
		{
			Type:            TypeComment,
			EnableBatching:  true,
			BatchWindow:     5 * time.Minute,
			MaxBatchSize:    5,
			MaxPerHour:      30,
			MaxPerDay:       200,
			Channels:        ChannelAll,
			DefaultPriority: PriorityNormal,
		},
		{
			Type:                TypeFollow,
			EnableDeduplication: true,
			DeduplicationWindow: 24 * time.Hour,
			MaxPerHour:          10,
			MaxPerDay:           50,
			Channels:            ChannelInApp | ChannelPush | ChannelEmail,
			DefaultPriority:     PriorityHigh,
		},
		{
			Type:            TypeMention,
			MaxPerHour:      15,
			MaxPerDay:       100,
			Channels:        ChannelInApp | ChannelPush | ChannelEmail,
			DefaultPriority: PriorityUrgent,
		},
		{
			Type:                TypeRenote,
			EnableBatching:      true,
			BatchWindow:         15 * time.Minute,
			MaxBatchSize:        10,
			EnableDeduplication: true,
			DeduplicationWindow: time.Hour,
			MaxPerHour:          25,
			MaxPerDay:           150,
			Channels:            ChannelInApp | ChannelPush,
			DefaultPriority:     PriorityNormal,
		},
		{
			Type:            TypeDirectMessage,
			Channels:        ChannelInApp | ChannelPush,
			DefaultPriority: PriorityUrgent,
		},
	}

	out := make(map[Type]ProcessingRule, len(rules))
	for _, r := range rules {
		out[r.Type] = r
	}
	return out
}
