// Package ses models the inner SES notification payloads carried inside
// an SNS envelope's Message field.
package ses

import (
	"encoding/json"
	"time"
)

// NotificationKind is the closed set of inner notification types we act
// on. Anything else parses to KindUnknown and is logged, not rejected.
type NotificationKind string

const (
	KindBounce    NotificationKind = "Bounce"
	KindComplaint NotificationKind = "Complaint"
	KindDelivery  NotificationKind = "Delivery"
	KindSend      NotificationKind = "Send"
	KindReject    NotificationKind = "Reject"
	KindUnknown   NotificationKind = "unknown"
)

// Notification is the parsed inner payload. SES uses notificationType
// for feedback notifications and eventType for event-publishing
// configurations; Kind() folds both.
type Notification struct {
	NotificationType string     `json:"notificationType"`
	EventType        string     `json:"eventType"`
	Mail             Mail       `json:"mail"`
	Bounce           *Bounce    `json:"bounce,omitempty"`
	Complaint        *Complaint `json:"complaint,omitempty"`
	Delivery         *Delivery  `json:"delivery,omitempty"`
	Send             *Send      `json:"send,omitempty"`
	Reject           *Reject    `json:"reject,omitempty"`

	raw []byte
}

// Mail describes the original message the notification refers to.
type Mail struct {
	Timestamp   string   `json:"timestamp"`
	Source      string   `json:"source"`
	SourceIP    string   `json:"sourceIp"`
	SourceARN   string   `json:"sourceArn"`
	MessageID   string   `json:"messageId"`
	Destination []string `json:"destination"`
}

// Recipient is one affected address within a bounce or complaint.
type Recipient struct {
	EmailAddress   string `json:"emailAddress"`
	Action         string `json:"action,omitempty"`
	Status         string `json:"status,omitempty"`
	DiagnosticCode string `json:"diagnosticCode,omitempty"`
}

type Bounce struct {
	BounceType        string      `json:"bounceType"`
	BounceSubType     string      `json:"bounceSubType"`
	BouncedRecipients []Recipient `json:"bouncedRecipients"`
	Timestamp         string      `json:"timestamp"`
	FeedbackID        string      `json:"feedbackId"`
}

type Complaint struct {
	ComplainedRecipients  []Recipient `json:"complainedRecipients"`
	ComplaintFeedbackType string      `json:"complaintFeedbackType"`
	BareFeedbackType      string      `json:"feedbackType"`
	Timestamp             string      `json:"timestamp"`
	FeedbackID            string      `json:"feedbackId"`
	UserAgent             string      `json:"userAgent,omitempty"`
}

// FeedbackType resolves the complaint feedback type. SES documents
// complaintFeedbackType, but some payloads carry a bare feedbackType key
// instead; the documented key wins when both are present.
func (c *Complaint) FeedbackType() string {
	if c.ComplaintFeedbackType != "" {
		return c.ComplaintFeedbackType
	}
	return c.BareFeedbackType
}

type Delivery struct {
	Timestamp            string   `json:"timestamp"`
	ProcessingTimeMillis int64    `json:"processingTimeMillis"`
	Recipients           []string `json:"recipients"`
	SMTPResponse         string   `json:"smtpResponse"`
}

type Send struct {
	Timestamp string `json:"timestamp"`
}

type Reject struct {
	Timestamp string `json:"timestamp"`
	Reason    string `json:"reason"`
}

// Parse decodes an inner notification body.
func Parse(body []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, err
	}
	n.raw = body
	return &n, nil
}

// Raw returns the original JSON body, kept for suppression provenance.
func (n *Notification) Raw() string { return string(n.raw) }

// Kind resolves the notification type discriminator.
func (n *Notification) Kind() NotificationKind {
	t := n.NotificationType
	if t == "" {
		t = n.EventType
	}
	switch NotificationKind(t) {
	case KindBounce, KindComplaint, KindDelivery, KindSend, KindReject:
		return NotificationKind(t)
	}
	return KindUnknown
}

// ParseTimestamp parses an SES timestamp string, falling back to now for
// absent or malformed values.
func ParseTimestamp(s string, now time.Time) time.Time {
	if s == "" {
		return now
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return now
}
