package notifications

import (
	"fmt"
	"math/bits"
	"strings"
)

// Channel is a bitset of delivery channels.
type Channel uint8

const (
	ChannelInApp Channel = 1 << iota
	ChannelPush
	ChannelEmail
	ChannelSMS
	ChannelWebhook

	ChannelNone Channel = 0
	ChannelAll          = ChannelInApp | ChannelPush | ChannelEmail | ChannelSMS | ChannelWebhook
)

var channelNames = []struct {
	ch   Channel
	name string
}{
	{ChannelInApp, "in_app"},
	{ChannelPush, "push"},
	{ChannelEmail, "email"},
	{ChannelSMS, "sms"},
	{ChannelWebhook, "webhook"},
}

// Has reports whether every bit of other is set in c.
func (c Channel) Has(other Channel) bool {
	return other != 0 && c&other == other
}

// Intersect returns the channels present in both sets.
func (c Channel) Intersect(other Channel) Channel {
	return c & other
}

// Count returns the number of channels in the set.
func (c Channel) Count() int {
	return bits.OnesCount8(uint8(c & ChannelAll))
}

// Split returns the single-channel members of the set in bit order.
func (c Channel) Split() []Channel {
	out := make([]Channel, 0, c.Count())
	for _, cn := range channelNames {
		if c&cn.ch != 0 {
			out = append(out, cn.ch)
		}
	}
	return out
}

func (c Channel) String() string {
	if c == ChannelNone {
		return "none"
	}
	names := make([]string, 0, c.Count())
	for _, cn := range channelNames {
		if c&cn.ch != 0 {
			names = append(names, cn.name)
		}
	}
	return strings.Join(names, "|")
}

// ParseChannels parses a comma or pipe separated list such as "push,email".
func ParseChannels(s string) (Channel, error) {
	var out Channel
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '|' }) {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if part == "all" {
			out |= ChannelAll
			continue
		}
		found := false
		for _, cn := range channelNames {
			if cn.name == part || (part == "websocket" && cn.ch == ChannelInApp) {
				out |= cn.ch
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: %q", ErrUnknownChannel, part)
		}
	}
	return out, nil
}
