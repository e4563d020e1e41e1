package tracking

import (
	"context"
	"time"

	"github.com/ignite/mailtrace/internal/domain"
)

// Repository defines the data access contract for emails and their
// events. The conditional writes (AssignMessageID, InsertEventIfAbsent)
// must be atomic: the webhook endpoint runs concurrently and the provider
// delivers at-least-once.
type Repository interface {
	// CreateEmail persists a new send attempt.
	CreateEmail(ctx context.Context, e *domain.Email) error

	// GetEmail returns an email by internal ID. Returns ErrNotFound.
	GetEmail(ctx context.Context, id string) (*domain.Email, error)

	// FindByMessageID returns the email holding the given provider
	// message ID, or ErrNotFound.
	FindByMessageID(ctx context.Context, messageID string) (*domain.Email, error)

	// FindRecentDuplicate returns an attempt with the same recipient,
	// mailer and user created at or after since, or ErrNotFound. Used for
	// the send-path de-duplication window.
	FindRecentDuplicate(ctx context.Context, recipient, mailerClass, mailerMethod, userID string, since time.Time) (*domain.Email, error)

	// FindMatchCandidate returns the most recent attempt for the
	// recipient with no message ID yet, created at or after since, or
	// ErrNotFound. Used by the notification matching heuristic.
	FindMatchCandidate(ctx context.Context, recipient string, since time.Time) (*domain.Email, error)

	// AssignMessageID sets the message ID on an email only if it is
	// currently null (compare-and-set). Returns false without error when
	// the slot was already taken or the message ID is already claimed by
	// another row; first writer wins.
	AssignMessageID(ctx context.Context, emailID, messageID string) (bool, error)

	// InsertEvent appends an event unconditionally.
	InsertEvent(ctx context.Context, ev *domain.EmailEvent) error

	// InsertEventIfAbsent appends an event unless one of the same kind
	// already exists for the email. Must be atomic per (email, kind);
	// returns false when a duplicate was absorbed.
	InsertEventIfAbsent(ctx context.Context, ev *domain.EmailEvent) (bool, error)

	// ListEvents returns all events for an email ordered by occurrence.
	ListEvents(ctx context.Context, emailID string) ([]domain.EmailEvent, error)
}
