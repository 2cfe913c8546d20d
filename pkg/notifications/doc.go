// Package notifications defines the shared data model of the delivery engine:
// the Notification itself, its type, priority and channel set, the status
// state machine, per-type ProcessingRule configuration, per-user Preferences,
// channel templates and the Repository contract the engine persists through.
//
// # Status lifecycle
//
// A notification is created pending and moves forward only:
//
//	pending -> sent -> delivered -> read
//	pending -> failed
//	pending -> cancelled
//
// sent may also move straight to read when a user opens an in-app notification
// before a delivery receipt arrives. failed and cancelled are terminal:
//
//	n := notifications.Notification{UserID: "u1", Type: notifications.TypeLike, Title: "New like"}
//	n.ApplyDefaults(time.Now(), 0)
//	if err := n.Transition(notifications.StatusSent, time.Now()); err != nil {
//	    // handle invalid transition
//	}
//
// # Templates
//
// Title, message and channel templates may contain {{key}} placeholders.
// Render resolves them in a single scan against the notification's template
// data; placeholders with no value render as an empty string.
//
//	vars := tmpl.Vars(n)
//	body := notifications.Render(tmpl.Body, vars)
//
// # Storage
//
// Repository is implemented by MemoryRepository in this package and by the
// Postgres-backed repository in pkg/pgstore.
package notifications
