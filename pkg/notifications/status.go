package notifications

import (
	"fmt"
	"time"
)

// Status is the delivery state of a notification.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// transitions lists the allowed moves out of each status.
// failed and cancelled have no entry and are therefore terminal.
var transitions = map[Status]map[Status]struct{}{
	StatusPending: {
		StatusSent:      {},
		StatusFailed:    {},
		StatusCancelled: {},
	},
	StatusSent: {
		StatusDelivered: {},
		StatusRead:      {},
	},
	StatusDelivered: {
		StatusRead: {},
	},
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether the state machine allows moving from -> to.
func CanTransition(from, to Status) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// CanTransition reports whether the notification may move to the given status.
func (n *Notification) CanTransition(to Status) bool {
	return CanTransition(n.Status, to)
}

// Transition moves the notification to the given status and stamps the
// matching lifecycle timestamp.
func (n *Notification) Transition(to Status, now time.Time) error {
	if !n.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, n.Status, to)
	}
	n.Status = to
	switch to {
	case StatusSent:
		n.SentAt = &now
	case StatusDelivered:
		n.DeliveredAt = &now
	case StatusRead:
		n.ReadAt = &now
	}
	return nil
}

// Fail marks the notification failed with the given reason.
func (n *Notification) Fail(reason string, now time.Time) error {
	if err := n.Transition(StatusFailed, now); err != nil {
		return err
	}
	n.FailureReason = reason
	return nil
}

// Cancel marks the notification cancelled with the given reason.
func (n *Notification) Cancel(reason string, now time.Time) error {
	if err := n.Transition(StatusCancelled, now); err != nil {
		return err
	}
	n.FailureReason = reason
	return nil
}
