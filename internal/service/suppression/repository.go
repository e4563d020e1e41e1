package suppression

import (
	"context"
	"time"

	"github.com/ignite/mailtrace/internal/domain"
)

// Repository defines the data access contract for the suppression list.
type Repository interface {
	// IsSuppressed returns true if the (normalized) email is suppressed
	// for any kind.
	IsSuppressed(ctx context.Context, email string) (bool, error)

	// SuppressedAmong returns which of the given (normalized) emails are
	// suppressed for any kind.
	SuppressedAmong(ctx context.Context, emails []string) (map[string]bool, error)

	// Upsert adds a suppression keyed on (email, kind). If the pair
	// already exists the existing row is preserved and returned
	// (idempotent; a duplicate-key race falls back to a read, not an
	// error).
	Upsert(ctx context.Context, s *domain.Suppression) (*domain.Suppression, error)

	// Remove deletes all suppressions for an email. Returns ErrNotFound
	// when none existed.
	Remove(ctx context.Context, email string) error

	// List returns suppressions matching the filter plus the total count.
	List(ctx context.Context, f ListFilter) ([]domain.Suppression, int, error)

	// CountSince returns the number of suppressions created at or after t.
	CountSince(ctx context.Context, t time.Time) (int, error)
}

// ListFilter controls pagination and filtering for suppression lists.
type ListFilter struct {
	Kind   string
	Reason string
	Search string
	Limit  int
	Offset int
}
