package push

import "github.com/dmitrymomot/notifykit/pkg/notifications"

// DefaultTemplates returns the built-in push copy per notification type.
func DefaultTemplates() map[notifications.Type]notifications.Template {
	return map[notifications.Type]notifications.Template{
		notifications.TypeLike: {
			Title:    "{{sender}} liked your note",
			Body:     "{{message}}",
			Defaults: map[string]string{"sender": "Someone"},
		},
		notifications.TypeComment: {
			Title:    "{{sender}} commented",
			Body:     "{{message}}",
			Defaults: map[string]string{"sender": "Someone"},
		},
		notifications.TypeReply: {
			Title:    "{{sender}} replied",
			Body:     "{{message}}",
			Defaults: map[string]string{"sender": "Someone"},
		},
		notifications.TypeFollow: {
			Title:    "New follower",
			Body:     "{{sender}} started following you",
			Defaults: map[string]string{"sender": "Someone"},
		},
		notifications.TypeMention: {
			Title:    "{{sender}} mentioned you",
			Body:     "{{message}}",
			Defaults: map[string]string{"sender": "Someone"},
		},
		notifications.TypeRenote: {
			Title:    "{{sender}} renoted your note",
			Body:     "{{message}}",
			Defaults: map[string]string{"sender": "Someone"},
		},
		notifications.TypeQuote: {
			Title:    "{{sender}} quoted your note",
			Body:     "{{message}}",
			Defaults: map[string]string{"sender": "Someone"},
		},
		notifications.TypeDirectMessage: {
			Title:    "{{sender}}",
			Body:     "{{message}}",
			Defaults: map[string]string{"sender": "New message"},
		},
		notifications.TypeSystemAlert: {
			Title: "{{title}}",
			Body:  "{{message}}",
		},
		notifications.TypeFollowerMilestone: {
			Title: "Milestone reached",
			Body:  "{{message}}",
		},
		notifications.TypeNoteMilestone: {
			Title: "Your note is taking off",
			Body:  "{{message}}",
		},
	}
}
