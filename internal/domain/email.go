package domain

import "time"

// EventKind enumerates the lifecycle events an outbound email can go through.
type EventKind string

const (
	EventPending    EventKind = "pending"
	EventSent       EventKind = "sent"
	EventDelivered  EventKind = "delivered"
	EventBounce     EventKind = "bounce"
	EventComplaint  EventKind = "complaint"
	EventOpen       EventKind = "open"
	EventClick      EventKind = "click"
	EventReject     EventKind = "reject"
	EventFailed     EventKind = "failed"
	EventSuppressed EventKind = "suppressed"
	EventUnknown    EventKind = "unknown"
)

// ParseEventKind maps a raw string to a known event kind. Unrecognized
// values collapse to EventUnknown rather than failing.
func ParseEventKind(s string) EventKind {
	switch EventKind(s) {
	case EventPending, EventSent, EventDelivered, EventBounce, EventComplaint,
		EventOpen, EventClick, EventReject, EventFailed, EventSuppressed:
		return EventKind(s)
	}
	return EventUnknown
}

// ProviderSourced reports whether the kind arrives from the delivery
// provider and is therefore guarded by the one-event-per-kind rule.
// Duplicate webhook deliveries for these kinds must be absorbed silently.
func (k EventKind) ProviderSourced() bool {
	switch k {
	case EventSent, EventDelivered, EventBounce, EventComplaint:
		return true
	}
	return false
}

// Email is one recorded outbound send attempt. MessageID stays nil until
// the delivery provider assigns one, at send confirmation or at the first
// notification that can be matched back to this row.
type Email struct {
	ID           string            `json:"id" db:"id"`
	MessageID    *string           `json:"message_id,omitempty" db:"message_id"`
	Recipient    string            `json:"recipient" db:"recipient"`
	Subject      string            `json:"subject" db:"subject"`
	MailerClass  string            `json:"mailer_class" db:"mailer_class"`
	MailerMethod string            `json:"mailer_method" db:"mailer_method"`
	UserID       string            `json:"user_id,omitempty" db:"user_id"`
	Metadata     map[string]string `json:"metadata,omitempty" db:"metadata"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
}

// EmailEvent is one append-only fact about an Email. Detail carries the
// kind-specific payload (bounce_type, smtp_response, url, ...).
type EmailEvent struct {
	ID         string            `json:"id" db:"id"`
	EmailID    string            `json:"email_id" db:"email_id"`
	Kind       EventKind         `json:"kind" db:"kind"`
	Detail     map[string]string `json:"detail,omitempty" db:"detail"`
	OccurredAt time.Time         `json:"occurred_at" db:"occurred_at"`
}

// CurrentStatus derives the display status of an email from its event
// timeline: the kind of the most recent event, or pending when no events
// exist yet.
func CurrentStatus(events []EmailEvent) EventKind {
	if len(events) == 0 {
		return EventPending
	}
	latest := events[0]
	for _, e := range events[1:] {
		if e.OccurredAt.After(latest.OccurredAt) {
			latest = e
		}
	}
	return latest.Kind
}
