package domain

import (
	"fmt"
	"strings"
	"time"
)

// SuppressionKind categorizes why future sends to an address are blocked.
type SuppressionKind string

const (
	SuppressionBounce    SuppressionKind = "bounce"
	SuppressionComplaint SuppressionKind = "complaint"
)

// Reason vocabularies are fixed per kind; they mirror the bounceType and
// complaintFeedbackType values SES reports.
var (
	BounceReasons    = []string{"permanent", "transient", "undetermined"}
	ComplaintReasons = []string{"abuse", "auth-failure", "fraud", "not-spam", "other", "virus"}
)

// ValidateReason checks that the reason belongs to the vocabulary of the
// given suppression kind. An invalid pairing is a caller error, never
// silently coerced.
func ValidateReason(kind SuppressionKind, reason string) error {
	var valid []string
	switch kind {
	case SuppressionBounce:
		valid = BounceReasons
	case SuppressionComplaint:
		valid = ComplaintReasons
	default:
		return fmt.Errorf("unknown suppression kind %q", kind)
	}
	for _, v := range valid {
		if reason == v {
			return nil
		}
	}
	return fmt.Errorf("reason %q is not valid for %s suppressions", reason, kind)
}

// Suppression is a standing block on one (email, kind) pair. A recipient
// can be suppressed for bounce and complaint independently, never twice
// for the same kind.
type Suppression struct {
	ID           string          `json:"id" db:"id"`
	Email        string          `json:"email" db:"email"`
	Kind         SuppressionKind `json:"kind" db:"kind"`
	Reason       string          `json:"reason" db:"reason"`
	MessageID    string          `json:"message_id,omitempty" db:"message_id"`
	FeedbackID   string          `json:"feedback_id,omitempty" db:"feedback_id"`
	SourceIP     string          `json:"source_ip,omitempty" db:"source_ip"`
	SourceARN    string          `json:"source_arn,omitempty" db:"source_arn"`
	RawMessage   string          `json:"-" db:"raw_message"`
	SuppressedAt time.Time       `json:"suppressed_at" db:"suppressed_at"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// NormalizeEmail canonicalizes an address for suppression-list lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
