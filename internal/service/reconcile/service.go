package reconcile

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/mailtrace/internal/domain"
	"github.com/ignite/mailtrace/internal/pkg/logger"
	"github.com/ignite/mailtrace/internal/service/suppression"
	"github.com/ignite/mailtrace/internal/service/tracking"
	"github.com/ignite/mailtrace/internal/ses"
	"github.com/ignite/mailtrace/internal/sns"
)

// Tracker is the slice of the tracking service the reconciler needs.
type Tracker interface {
	FindByMessageID(ctx context.Context, messageID string) (*domain.Email, error)
	MatchCandidate(ctx context.Context, recipients []string, messageID string) (*domain.Email, error)
	AppendEvent(ctx context.Context, emailID string, kind domain.EventKind, at time.Time, detail map[string]string) error
	AppendEventIfAbsent(ctx context.Context, emailID string, kind domain.EventKind, at time.Time, detail map[string]string) (bool, error)
}

// Suppressor is the slice of the suppression service the reconciler needs.
type Suppressor interface {
	Add(ctx context.Context, email string, kind domain.SuppressionKind, reason string, prov suppression.Provenance) (*domain.Suppression, error)
}

// Service reconciles SNS-delivered SES notifications against the
// send-attempt store.
type Service struct {
	tracker Tracker
	supps   Suppressor

	// owningDomain gates notifications by the sender domain. Empty means
	// permissive mode: every notification is accepted. This mirrors the
	// long-standing single-tenant behavior and is a deliberate policy
	// choice, logged at startup so it is auditable.
	owningDomain string

	now func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a reconciler. owningDomain may be empty (permissive
// mode).
func NewService(tracker Tracker, supps Suppressor, owningDomain string, opts ...Option) *Service {
	s := &Service{
		tracker:      tracker,
		supps:        supps,
		owningDomain: strings.ToLower(owningDomain),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.owningDomain == "" {
		logger.Info("no owning domain configured, accepting all notifications (permissive mode)")
	}
	return s
}

// Process handles one Notification-type envelope. Malformed or unmatched
// notifications are logged and dropped; only unexpected store failures
// are returned.
func (s *Service) Process(ctx context.Context, env *sns.Envelope) error {
	if env.Type != sns.TypeNotification {
		return nil
	}

	n, err := ses.Parse([]byte(env.Message))
	if err != nil {
		logger.Error("failed to parse SES notification", "error", err)
		return nil
	}

	if !s.belongsToUs(n) {
		logger.Info("ignoring SES notification for different sending domain",
			"source", n.Mail.Source)
		return nil
	}

	switch kind := n.Kind(); kind {
	case ses.KindBounce:
		return s.processBounce(ctx, n)
	case ses.KindComplaint:
		return s.processComplaint(ctx, n)
	case ses.KindDelivery:
		return s.processDelivery(ctx, n)
	case ses.KindSend:
		return s.processSend(ctx, n)
	case ses.KindReject:
		return s.processReject(ctx, n)
	default:
		logger.Warn("unknown SES notification type", "type", n.NotificationType, "event_type", n.EventType)
		return nil
	}
}

func (s *Service) processBounce(ctx context.Context, n *ses.Notification) error {
	if n.Bounce == nil {
		logger.Warn("bounce notification without bounce payload", "message_id", n.Mail.MessageID)
		return nil
	}
	at := ses.ParseTimestamp(n.Bounce.Timestamp, s.now())
	bounceType := n.Bounce.BounceType

	email, err := s.findOrMatch(ctx, n, "bounce")
	if err != nil {
		return err
	}
	if email != nil {
		for _, rcpt := range n.Bounce.BouncedRecipients {
			detail := map[string]string{
				"bounce_type":   bounceType,
				"error_message": bounceType + ": " + rcpt.DiagnosticCode,
			}
			if _, err := s.tracker.AppendEventIfAbsent(ctx, email.ID, domain.EventBounce, at, detail); err != nil {
				return err
			}
		}
	}

	// The suppression is recorded whether or not an attempt matched; the
	// recipient has to stop receiving mail either way.
	reason := normalizeReason(domain.SuppressionBounce, bounceType)
	for _, rcpt := range n.Bounce.BouncedRecipients {
		if _, err := s.supps.Add(ctx, rcpt.EmailAddress, domain.SuppressionBounce, reason, suppression.Provenance{
			MessageID:  n.Mail.MessageID,
			FeedbackID: n.Bounce.FeedbackID,
			SourceIP:   n.Mail.SourceIP,
			SourceARN:  n.Mail.SourceARN,
			RawMessage: n.Raw(),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) processComplaint(ctx context.Context, n *ses.Notification) error {
	if n.Complaint == nil {
		logger.Warn("complaint notification without complaint payload", "message_id", n.Mail.MessageID)
		return nil
	}
	at := ses.ParseTimestamp(n.Complaint.Timestamp, s.now())
	feedbackType := n.Complaint.FeedbackType()

	email, err := s.findOrMatch(ctx, n, "complaint")
	if err != nil {
		return err
	}
	if email != nil {
		detail := map[string]string{}
		if feedbackType != "" {
			detail["feedback_type"] = feedbackType
		}
		if _, err := s.tracker.AppendEventIfAbsent(ctx, email.ID, domain.EventComplaint, at, detail); err != nil {
			return err
		}
	}

	reason := normalizeReason(domain.SuppressionComplaint, feedbackType)
	for _, rcpt := range n.Complaint.ComplainedRecipients {
		if _, err := s.supps.Add(ctx, rcpt.EmailAddress, domain.SuppressionComplaint, reason, suppression.Provenance{
			MessageID:  n.Mail.MessageID,
			FeedbackID: n.Complaint.FeedbackID,
			SourceIP:   n.Mail.SourceIP,
			SourceARN:  n.Mail.SourceARN,
			RawMessage: n.Raw(),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) processDelivery(ctx context.Context, n *ses.Notification) error {
	if n.Delivery == nil {
		logger.Warn("delivery notification without delivery payload", "message_id", n.Mail.MessageID)
		return nil
	}
	at := ses.ParseTimestamp(n.Delivery.Timestamp, s.now())

	email, err := s.findOrMatch(ctx, n, "delivery")
	if err != nil || email == nil {
		return err
	}

	detail := map[string]string{}
	if n.Delivery.ProcessingTimeMillis > 0 {
		detail["processing_time_millis"] = strconv.FormatInt(n.Delivery.ProcessingTimeMillis, 10)
	}
	if n.Delivery.SMTPResponse != "" {
		detail["smtp_response"] = n.Delivery.SMTPResponse
	}
	_, err = s.tracker.AppendEventIfAbsent(ctx, email.ID, domain.EventDelivered, at, detail)
	return err
}

func (s *Service) processSend(ctx context.Context, n *ses.Notification) error {
	messageID := n.Mail.MessageID
	if messageID == "" {
		return nil
	}
	ts := n.Mail.Timestamp
	if ts == "" && n.Send != nil {
		ts = n.Send.Timestamp
	}
	at := ses.ParseTimestamp(ts, s.now())

	email, err := s.tracker.FindByMessageID(ctx, messageID)
	if errors.Is(err, tracking.ErrNotFound) {
		email, err = s.tracker.MatchCandidate(ctx, n.Mail.Destination, messageID)
		if errors.Is(err, tracking.ErrNotFound) {
			logger.Warn("no send attempt match for Send notification", "message_id", messageID)
			return nil
		}
	}
	if err != nil {
		return err
	}

	_, err = s.tracker.AppendEventIfAbsent(ctx, email.ID, domain.EventSent, at, nil)
	return err
}

func (s *Service) processReject(ctx context.Context, n *ses.Notification) error {
	messageID := n.Mail.MessageID
	if messageID == "" || n.Reject == nil {
		return nil
	}
	at := ses.ParseTimestamp(n.Reject.Timestamp, s.now())

	email, err := s.tracker.FindByMessageID(ctx, messageID)
	if errors.Is(err, tracking.ErrNotFound) {
		logger.Warn("no send attempt match for Reject notification", "message_id", messageID)
		return nil
	}
	if err != nil {
		return err
	}

	// Reject is terminal and single-shot per message; no idempotence guard.
	detail := map[string]string{"error_message": n.Reject.Reason}
	return s.tracker.AppendEvent(ctx, email.ID, domain.EventFailed, at, detail)
}

// findOrMatch resolves the attempt a notification refers to: exact
// message-ID hit first, then the recipient+window heuristic. Returns
// (nil, nil) with a warning log when nothing matches.
func (s *Service) findOrMatch(ctx context.Context, n *ses.Notification, kind string) (*domain.Email, error) {
	messageID := n.Mail.MessageID
	if messageID != "" {
		email, err := s.tracker.FindByMessageID(ctx, messageID)
		if err == nil {
			return email, nil
		}
		if !errors.Is(err, tracking.ErrNotFound) {
			return nil, err
		}
	}

	email, err := s.tracker.MatchCandidate(ctx, n.Mail.Destination, messageID)
	if errors.Is(err, tracking.ErrNotFound) {
		logger.Warn("no send attempt match for notification",
			"kind", kind, "message_id", messageID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return email, nil
}

// belongsToUs applies the owning-domain gate on the inner mail.source.
func (s *Service) belongsToUs(n *ses.Notification) bool {
	if s.owningDomain == "" {
		return true
	}
	source := n.Mail.Source
	at := strings.LastIndex(source, "@")
	if at < 0 || at == len(source)-1 {
		return false
	}
	return strings.ToLower(source[at+1:]) == s.owningDomain
}

// normalizeReason lower-cases a provider-reported reason and falls back
// to the kind's catch-all when the value is absent or outside the fixed
// vocabulary.
func normalizeReason(kind domain.SuppressionKind, raw string) string {
	reason := strings.ToLower(strings.TrimSpace(raw))
	if domain.ValidateReason(kind, reason) == nil {
		return reason
	}
	if kind == domain.SuppressionBounce {
		return "undetermined"
	}
	return "other"
}
