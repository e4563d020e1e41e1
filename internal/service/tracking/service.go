package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/mailtrace/internal/domain"
	"github.com/ignite/mailtrace/internal/pkg/logger"
)

// Default windows. The match window (how far back a notification may be
// attributed to an unidentified attempt) and the dedup window (how long
// RecordAttempt/RecordSent treat identical sends as the same attempt)
// are deliberately separate knobs; they happen to differ in production.
const (
	DefaultMatchWindow = 10 * time.Minute
	DefaultDedupWindow = 5 * time.Minute
)

// Service implements send-attempt tracking. Safe for concurrent use if
// the underlying repository is.
type Service struct {
	repo        Repository
	matchWindow time.Duration
	dedupWindow time.Duration
	now         func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithMatchWindow overrides the notification matching window.
func WithMatchWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.matchWindow = d
		}
	}
}

// WithDedupWindow overrides the send-path de-duplication window.
func WithDedupWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.dedupWindow = d
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a tracking service backed by the given repository.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		matchWindow: DefaultMatchWindow,
		dedupWindow: DefaultDedupWindow,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AttemptInput holds the fields the outbound-mail subsystem reports when
// recording a send.
type AttemptInput struct {
	Recipient    string
	Subject      string
	MailerClass  string
	MailerMethod string
	UserID       string
	Metadata     map[string]string
}

// RecordAttempt records that a send is being attempted and writes the
// initial pending event. Idempotent within the dedup window: an identical
// recipient+mailer+user attempt returns the existing row.
func (s *Service) RecordAttempt(ctx context.Context, in AttemptInput) (*domain.Email, error) {
	email, err := s.findOrCreate(ctx, in)
	if err != nil {
		return nil, err
	}
	if _, err := s.AppendEventIfAbsent(ctx, email.ID, domain.EventPending, s.now(), nil); err != nil {
		return nil, err
	}
	return email, nil
}

// RecordSent records a completed hand-off to the transport. When the
// provider returned a message ID it is attached to the attempt (exactly
// once), and a sent event is ensured.
func (s *Service) RecordSent(ctx context.Context, in AttemptInput, messageID string) (*domain.Email, error) {
	if messageID != "" {
		if email, err := s.repo.FindByMessageID(ctx, messageID); err == nil {
			if _, err := s.AppendEventIfAbsent(ctx, email.ID, domain.EventSent, s.now(), nil); err != nil {
				return nil, err
			}
			return email, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	email, err := s.findOrCreate(ctx, in)
	if err != nil {
		return nil, err
	}
	if messageID != "" && email.MessageID == nil {
		won, err := s.repo.AssignMessageID(ctx, email.ID, messageID)
		if err != nil {
			return nil, err
		}
		if won {
			email.MessageID = &messageID
		}
	}
	if _, err := s.AppendEventIfAbsent(ctx, email.ID, domain.EventSent, s.now(), nil); err != nil {
		return nil, err
	}
	return email, nil
}

// RecordSuppressed records an attempt that was blocked by the suppression
// list before reaching the transport.
func (s *Service) RecordSuppressed(ctx context.Context, in AttemptInput) (*domain.Email, error) {
	email, err := s.findOrCreate(ctx, in)
	if err != nil {
		return nil, err
	}
	ev := &domain.EmailEvent{
		ID:         uuid.New().String(),
		EmailID:    email.ID,
		Kind:       domain.EventSuppressed,
		OccurredAt: s.now(),
	}
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		return nil, err
	}
	return email, nil
}

// RecordOpen appends an open event to the email holding messageID.
func (s *Service) RecordOpen(ctx context.Context, messageID string, at time.Time, userAgent, ip string) error {
	detail := map[string]string{}
	if userAgent != "" {
		detail["user_agent"] = userAgent
	}
	if ip != "" {
		detail["ip"] = ip
	}
	return s.appendByMessageID(ctx, messageID, domain.EventOpen, at, detail)
}

// RecordClick appends a click event to the email holding messageID.
func (s *Service) RecordClick(ctx context.Context, messageID, url string, at time.Time, userAgent string) error {
	detail := map[string]string{"url": url}
	if userAgent != "" {
		detail["user_agent"] = userAgent
	}
	return s.appendByMessageID(ctx, messageID, domain.EventClick, at, detail)
}

func (s *Service) appendByMessageID(ctx context.Context, messageID string, kind domain.EventKind, at time.Time, detail map[string]string) error {
	email, err := s.repo.FindByMessageID(ctx, messageID)
	if err != nil {
		return err
	}
	return s.AppendEvent(ctx, email.ID, kind, at, detail)
}

// Get returns the attempt with the given internal ID.
func (s *Service) Get(ctx context.Context, id string) (*domain.Email, error) {
	return s.repo.GetEmail(ctx, id)
}

// FindByMessageID returns the attempt holding the given message ID.
func (s *Service) FindByMessageID(ctx context.Context, messageID string) (*domain.Email, error) {
	return s.repo.FindByMessageID(ctx, messageID)
}

// MatchCandidate attributes a notification to a recent attempt by
// recipient when no message-ID hit exists. For each recipient it takes
// the most recent attempt with no message ID created inside the match
// window. When the notification carries a message ID it is attached
// atomically; if another notification won that race the loser re-resolves
// by message ID instead of overwriting.
func (s *Service) MatchCandidate(ctx context.Context, recipients []string, messageID string) (*domain.Email, error) {
	since := s.now().Add(-s.matchWindow)
	for _, recipient := range recipients {
		candidate, err := s.repo.FindMatchCandidate(ctx, recipient, since)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if messageID == "" {
			return candidate, nil
		}

		won, err := s.repo.AssignMessageID(ctx, candidate.ID, messageID)
		if err != nil {
			return nil, err
		}
		if won {
			candidate.MessageID = &messageID
			return candidate, nil
		}
		// Lost the race. If the same notification was delivered twice the
		// message ID now resolves directly; otherwise try the next recipient.
		if email, err := s.repo.FindByMessageID(ctx, messageID); err == nil {
			return email, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// AppendEvent appends an event unconditionally.
func (s *Service) AppendEvent(ctx context.Context, emailID string, kind domain.EventKind, at time.Time, detail map[string]string) error {
	ev := &domain.EmailEvent{
		ID:         uuid.New().String(),
		EmailID:    emailID,
		Kind:       kind,
		Detail:     detail,
		OccurredAt: at,
	}
	return s.repo.InsertEvent(ctx, ev)
}

// AppendEventIfAbsent appends an event unless one of the same kind
// already exists for the email. Returns false when the duplicate was
// absorbed.
func (s *Service) AppendEventIfAbsent(ctx context.Context, emailID string, kind domain.EventKind, at time.Time, detail map[string]string) (bool, error) {
	ev := &domain.EmailEvent{
		ID:         uuid.New().String(),
		EmailID:    emailID,
		Kind:       kind,
		Detail:     detail,
		OccurredAt: at,
	}
	return s.repo.InsertEventIfAbsent(ctx, ev)
}

// Timeline returns the event history for an email, oldest first.
func (s *Service) Timeline(ctx context.Context, emailID string) ([]domain.EmailEvent, error) {
	return s.repo.ListEvents(ctx, emailID)
}

// Status derives the current status of an email from its timeline.
func (s *Service) Status(ctx context.Context, emailID string) (domain.EventKind, error) {
	events, err := s.repo.ListEvents(ctx, emailID)
	if err != nil {
		return "", err
	}
	return domain.CurrentStatus(events), nil
}

// DeliveryTime returns the sent→delivered latency for an email, or false
// when either event is missing.
func (s *Service) DeliveryTime(ctx context.Context, emailID string) (time.Duration, bool, error) {
	events, err := s.repo.ListEvents(ctx, emailID)
	if err != nil {
		return 0, false, err
	}
	var sentAt, deliveredAt *time.Time
	for i := range events {
		switch events[i].Kind {
		case domain.EventSent:
			if sentAt == nil {
				sentAt = &events[i].OccurredAt
			}
		case domain.EventDelivered:
			if deliveredAt == nil {
				deliveredAt = &events[i].OccurredAt
			}
		}
	}
	if sentAt == nil || deliveredAt == nil {
		return 0, false, nil
	}
	return deliveredAt.Sub(*sentAt), true, nil
}

func (s *Service) findOrCreate(ctx context.Context, in AttemptInput) (*domain.Email, error) {
	if in.Recipient == "" {
		return nil, fmt.Errorf("recipient is required")
	}
	if in.MailerClass == "" {
		in.MailerClass = "UnknownMailer"
	}
	if in.MailerMethod == "" {
		in.MailerMethod = "unknown_method"
	}

	since := s.now().Add(-s.dedupWindow)
	existing, err := s.repo.FindRecentDuplicate(ctx, in.Recipient, in.MailerClass, in.MailerMethod, in.UserID, since)
	if err == nil {
		logger.Debug("reusing recent send attempt", "email_id", existing.ID, "recipient", in.Recipient)
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	email := &domain.Email{
		ID:           uuid.New().String(),
		Recipient:    in.Recipient,
		Subject:      truncate(in.Subject, 255),
		MailerClass:  in.MailerClass,
		MailerMethod: in.MailerMethod,
		UserID:       in.UserID,
		Metadata:     in.Metadata,
		CreatedAt:    s.now(),
	}
	if err := s.repo.CreateEmail(ctx, email); err != nil {
		return nil, fmt.Errorf("create send attempt: %w", err)
	}
	return email, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
