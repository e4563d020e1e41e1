package suppression

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/mailtrace/internal/domain"
	"github.com/ignite/mailtrace/internal/pkg/logger"
)

// Service implements suppression business logic. It is safe for
// concurrent use. An optional Redis-backed cache short-circuits lookups
// on the hot send path; pass nil to go straight to the repository.
type Service struct {
	repo  Repository
	cache *Cache
	now   func() time.Time
}

// NewService creates a suppression service backed by the given
// repository. cache may be nil.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache, now: time.Now}
}

// Provenance carries the optional origin fields recorded with a
// suppression.
type Provenance struct {
	MessageID  string
	FeedbackID string
	SourceIP   string
	SourceARN  string
	RawMessage string
}

// Suppressed checks whether an email address is blocked from sending.
func (s *Service) Suppressed(ctx context.Context, email string) (bool, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return false, nil
	}
	if s.cache != nil {
		if blocked, ok := s.cache.Get(ctx, email); ok {
			return blocked, nil
		}
	}
	blocked, err := s.repo.IsSuppressed(ctx, email)
	if err != nil {
		return false, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, email, blocked)
	}
	return blocked, nil
}

// FilterSendable returns the de-duplicated, normalized subset of the
// given addresses that is not suppressed, preserving input order. Cache
// hits are answered without touching the repository; only the misses go
// to one bulk query, and their answers are written back.
func (s *Service) FilterSendable(ctx context.Context, recipients []string) ([]string, error) {
	if len(recipients) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool, len(recipients))
	ordered := make([]string, 0, len(recipients))
	for _, r := range recipients {
		email := domain.NormalizeEmail(r)
		if email == "" || seen[email] {
			continue
		}
		seen[email] = true
		ordered = append(ordered, email)
	}

	blocked := make(map[string]bool, len(ordered))
	misses := ordered
	if s.cache != nil {
		misses = make([]string, 0, len(ordered))
		for _, email := range ordered {
			if b, ok := s.cache.Get(ctx, email); ok {
				blocked[email] = b
			} else {
				misses = append(misses, email)
			}
		}
	}

	if len(misses) > 0 {
		fromRepo, err := s.repo.SuppressedAmong(ctx, misses)
		if err != nil {
			return nil, err
		}
		for _, email := range misses {
			blocked[email] = fromRepo[email]
			if s.cache != nil {
				s.cache.Set(ctx, email, fromRepo[email])
			}
		}
	}

	sendable := make([]string, 0, len(ordered))
	for _, email := range ordered {
		if !blocked[email] {
			sendable = append(sendable, email)
		}
	}
	return sendable, nil
}

// Add upserts a suppression for (email, kind). The reason must belong to
// the kind's vocabulary; an invalid pairing is a caller error. Idempotent:
// an existing row is preserved.
func (s *Service) Add(ctx context.Context, email string, kind domain.SuppressionKind, reason string, prov Provenance) (*domain.Suppression, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if err := domain.ValidateReason(kind, reason); err != nil {
		return nil, err
	}

	entry := &domain.Suppression{
		ID:           uuid.New().String(),
		Email:        email,
		Kind:         kind,
		Reason:       reason,
		MessageID:    prov.MessageID,
		FeedbackID:   prov.FeedbackID,
		SourceIP:     prov.SourceIP,
		SourceARN:    prov.SourceARN,
		RawMessage:   prov.RawMessage,
		SuppressedAt: s.now(),
	}

	stored, err := s.repo.Upsert(ctx, entry)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, email, true)
	}
	logger.Info("recipient suppressed", "email", email, "kind", kind, "reason", reason)
	return stored, nil
}

// Remove deletes all suppressions for an email. Returns ErrNotFound when
// the address was not suppressed.
func (s *Service) Remove(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if err := s.repo.Remove(ctx, email); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, email)
	}
	return nil
}

// List returns suppression entries matching the given filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Suppression, int, error) {
	return s.repo.List(ctx, f)
}

// Stats aggregates suppression counts for the admin dashboard.
type Stats struct {
	Total      int            `json:"total"`
	Bounces    int            `json:"bounces"`
	Complaints int            `json:"complaints"`
	ByReason   map[string]int `json:"by_reason"`
	Recent24h  int            `json:"recent_24h"`
	Recent7d   int            `json:"recent_7d"`
	Recent30d  int            `json:"recent_30d"`
}

// GetStats computes suppression statistics.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	entries, total, err := s.repo.List(ctx, ListFilter{Limit: 0})
	if err != nil {
		return nil, err
	}

	stats := &Stats{Total: total, ByReason: make(map[string]int)}
	for _, e := range entries {
		switch e.Kind {
		case domain.SuppressionBounce:
			stats.Bounces++
		case domain.SuppressionComplaint:
			stats.Complaints++
		}
		stats.ByReason[string(e.Kind)+"_"+e.Reason]++
	}

	now := s.now()
	for _, window := range []struct {
		d   time.Duration
		dst *int
	}{
		{24 * time.Hour, &stats.Recent24h},
		{7 * 24 * time.Hour, &stats.Recent7d},
		{30 * 24 * time.Hour, &stats.Recent30d},
	} {
		n, err := s.repo.CountSince(ctx, now.Add(-window.d))
		if err != nil {
			return nil, err
		}
		*window.dst = n
	}
	return stats, nil
}
