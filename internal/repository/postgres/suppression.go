package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/mailtrace/internal/domain"
	"github.com/ignite/mailtrace/internal/service/suppression"
)

// SuppressionRepo implements suppression.Repository against PostgreSQL.
type SuppressionRepo struct{ db *sql.DB }

// NewSuppressionRepo creates a Postgres-backed suppression repository.
func NewSuppressionRepo(db *sql.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

const suppressionColumns = `id, email, kind, reason, message_id, feedback_id, source_ip, source_arn, suppressed_at, created_at`

func (r *SuppressionRepo) IsSuppressed(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM email_suppressions WHERE email = $1)`,
		email,
	).Scan(&exists)
	return exists, err
}

func (r *SuppressionRepo) SuppressedAmong(ctx context.Context, emails []string) (map[string]bool, error) {
	if len(emails) == 0 {
		return map[string]bool{}, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT email FROM email_suppressions WHERE email = ANY($1)`,
		pq.Array(emails),
	)
	if err != nil {
		return nil, fmt.Errorf("suppressed among: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool, len(emails))
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		out[email] = true
	}
	return out, rows.Err()
}

// Upsert inserts a suppression and, on the (email, kind) conflict, keeps
// the existing row and returns it. Concurrent duplicate notifications
// therefore race harmlessly: one inserts, the other reads.
func (r *SuppressionRepo) Upsert(ctx context.Context, s *domain.Suppression) (*domain.Suppression, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO email_suppressions
			(id, email, kind, reason, message_id, feedback_id, source_ip, source_arn, raw_message, suppressed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (email, kind) DO NOTHING
	`, s.ID, s.Email, s.Kind, s.Reason,
		nullable(s.MessageID), nullable(s.FeedbackID), nullable(s.SourceIP), nullable(s.SourceARN),
		nullable(s.RawMessage), s.SuppressedAt)
	if err != nil && !isUniqueViolation(err) {
		return nil, fmt.Errorf("upsert suppression: %w", err)
	}
	if err == nil {
		if n, raErr := res.RowsAffected(); raErr == nil && n == 1 {
			return s, nil
		}
	}
	return r.get(ctx, s.Email, s.Kind)
}

func (r *SuppressionRepo) Remove(ctx context.Context, email string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM email_suppressions WHERE email = $1`, email)
	if err != nil {
		return fmt.Errorf("remove suppression: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return suppression.ErrNotFound
	}
	return nil
}

func (r *SuppressionRepo) List(ctx context.Context, f suppression.ListFilter) ([]domain.Suppression, int, error) {
	where := `WHERE ($1 = '' OR kind = $1) AND ($2 = '' OR reason = $2) AND ($3 = '' OR email LIKE '%' || $3 || '%')`

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM email_suppressions `+where,
		f.Kind, f.Reason, f.Search,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count suppressions: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = total
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+suppressionColumns+`
		FROM email_suppressions `+where+`
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`, f.Kind, f.Reason, f.Search, limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list suppressions: %w", err)
	}
	defer rows.Close()

	var out []domain.Suppression
	for rows.Next() {
		s, err := scanSuppression(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *s)
	}
	return out, total, rows.Err()
}

func (r *SuppressionRepo) CountSince(ctx context.Context, t time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM email_suppressions WHERE created_at >= $1`, t,
	).Scan(&n)
	return n, err
}

func (r *SuppressionRepo) get(ctx context.Context, email string, kind domain.SuppressionKind) (*domain.Suppression, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+suppressionColumns+` FROM email_suppressions WHERE email = $1 AND kind = $2`,
		email, kind)
	s, err := scanSuppression(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, suppression.ErrNotFound
	}
	return s, err
}

func scanSuppression(row rowScanner) (*domain.Suppression, error) {
	var s domain.Suppression
	var kind string
	var messageID, feedbackID, sourceIP, sourceARN sql.NullString
	err := row.Scan(&s.ID, &s.Email, &kind, &s.Reason,
		&messageID, &feedbackID, &sourceIP, &sourceARN,
		&s.SuppressedAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan suppression: %w", err)
	}
	s.Kind = domain.SuppressionKind(kind)
	s.MessageID = messageID.String
	s.FeedbackID = feedbackID.String
	s.SourceIP = sourceIP.String
	s.SourceARN = sourceARN.String
	return &s, nil
}
