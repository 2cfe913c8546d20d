package email

import "github.com/dmitrymomot/notifykit/pkg/notifications"

// DefaultTemplates returns the built-in email copy. Types that are noisy by
// nature (likes, renotes) have no email template and are skipped.
func DefaultTemplates() map[notifications.Type]notifications.Template {
	someone := map[string]string{"sender": "Someone"}
	return map[notifications.Type]notifications.Template{
		notifications.TypeComment: {
			Subject:  "{{sender}} commented on your note",
			Title:    "{{sender}} commented on your note",
			Body:     "{{message}}",
			Defaults: someone,
		},
		notifications.TypeReply: {
			Subject:  "{{sender}} replied to you",
			Title:    "{{sender}} replied to you",
			Body:     "{{message}}",
			Defaults: someone,
		},
		notifications.TypeFollow: {
			Subject:  "You have a new follower",
			Title:    "{{sender}} started following you",
			Body:     "{{message}}",
			Defaults: someone,
		},
		notifications.TypeMention: {
			Subject:  "{{sender}} mentioned you",
			Title:    "{{sender}} mentioned you",
			Body:     "{{message}}",
			Defaults: someone,
		},
		notifications.TypeQuote: {
			Subject:  "{{sender}} quoted your note",
			Title:    "{{sender}} quoted your note",
			Body:     "{{message}}",
			Defaults: someone,
		},
		notifications.TypeDirectMessage: {
			Subject:  "New message from {{sender}}",
			Title:    "New message from {{sender}}",
			Body:     "{{message}}",
			Defaults: someone,
		},
		notifications.TypeSystemAlert: {
			Subject:  "{{title}}",
			Title:    "{{title}}",
			Body:     "{{message}}",
			Required: []string{"title"},
		},
		notifications.TypePromotion: {
			Subject: "{{title}}",
			Title:   "{{title}}",
			Body:    "{{message}}",
		},
		notifications.TypeFollowerMilestone: {
			Subject: "You reached a new milestone",
			Title:   "{{title}}",
			Body:    "{{message}}",
		},
	}
}
