package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/mailtrace/internal/domain"
	"github.com/ignite/mailtrace/internal/service/tracking"
)

// TrackingRepo implements tracking.Repository against PostgreSQL.
type TrackingRepo struct{ db *sql.DB }

// NewTrackingRepo creates a Postgres-backed tracking repository.
func NewTrackingRepo(db *sql.DB) *TrackingRepo { return &TrackingRepo{db: db} }

const emailColumns = `id, message_id, recipient, subject, mailer_class, mailer_method, user_id, metadata, created_at`

func (r *TrackingRepo) CreateEmail(ctx context.Context, e *domain.Email) error {
	metadata, err := marshalMap(e.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO emails (id, message_id, recipient, subject, mailer_class, mailer_method, user_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.MessageID, e.Recipient, e.Subject, e.MailerClass, e.MailerMethod, nullable(e.UserID), metadata, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("create email: %w", err)
	}
	return nil
}

func (r *TrackingRepo) GetEmail(ctx context.Context, id string) (*domain.Email, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+emailColumns+` FROM emails WHERE id = $1`, id)
	return scanEmail(row)
}

func (r *TrackingRepo) FindByMessageID(ctx context.Context, messageID string) (*domain.Email, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+emailColumns+` FROM emails WHERE message_id = $1`, messageID)
	return scanEmail(row)
}

func (r *TrackingRepo) FindRecentDuplicate(ctx context.Context, recipient, mailerClass, mailerMethod, userID string, since time.Time) (*domain.Email, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+emailColumns+`
		FROM emails
		WHERE recipient = $1 AND mailer_class = $2 AND mailer_method = $3
		  AND user_id IS NOT DISTINCT FROM $4
		  AND created_at >= $5
		ORDER BY created_at DESC
		LIMIT 1
	`, recipient, mailerClass, mailerMethod, nullable(userID), since)
	return scanEmail(row)
}

func (r *TrackingRepo) FindMatchCandidate(ctx context.Context, recipient string, since time.Time) (*domain.Email, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+emailColumns+`
		FROM emails
		WHERE recipient = $1 AND message_id IS NULL AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT 1
	`, recipient, since)
	return scanEmail(row)
}

// AssignMessageID is the compare-and-set for the message-ID slot. The
// WHERE clause guards the slot race on this row; the unique index on
// message_id guards the race where another row already claimed the same
// ID — both lose quietly (first writer wins).
func (r *TrackingRepo) AssignMessageID(ctx context.Context, emailID, messageID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE emails SET message_id = $2 WHERE id = $1 AND message_id IS NULL`,
		emailID, messageID)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("assign message id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *TrackingRepo) InsertEvent(ctx context.Context, ev *domain.EmailEvent) error {
	detail, err := marshalMap(ev.Detail)
	if err != nil {
		return fmt.Errorf("encode detail: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO email_events (id, email_id, kind, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ev.ID, ev.EmailID, ev.Kind, detail, ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// InsertEventIfAbsent relies on the partial unique index over
// (email_id, kind) for provider-sourced kinds, so concurrent duplicate
// notifications collapse to one row. For unguarded kinds it falls back
// to a conditional insert.
func (r *TrackingRepo) InsertEventIfAbsent(ctx context.Context, ev *domain.EmailEvent) (bool, error) {
	detail, err := marshalMap(ev.Detail)
	if err != nil {
		return false, fmt.Errorf("encode detail: %w", err)
	}

	var res sql.Result
	if ev.Kind.ProviderSourced() {
		res, err = r.db.ExecContext(ctx, `
			INSERT INTO email_events (id, email_id, kind, detail, occurred_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (email_id, kind) WHERE kind IN ('sent','delivered','bounce','complaint')
			DO NOTHING
		`, ev.ID, ev.EmailID, ev.Kind, detail, ev.OccurredAt)
	} else {
		res, err = r.db.ExecContext(ctx, `
			INSERT INTO email_events (id, email_id, kind, detail, occurred_at)
			SELECT $1, $2, $3, $4, $5
			WHERE NOT EXISTS (
				SELECT 1 FROM email_events WHERE email_id = $2 AND kind = $3
			)
		`, ev.ID, ev.EmailID, ev.Kind, detail, ev.OccurredAt)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert event if absent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *TrackingRepo) ListEvents(ctx context.Context, emailID string) ([]domain.EmailEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, email_id, kind, detail, occurred_at
		FROM email_events
		WHERE email_id = $1
		ORDER BY occurred_at ASC
	`, emailID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []domain.EmailEvent
	for rows.Next() {
		var ev domain.EmailEvent
		var kind string
		var detail []byte
		if err := rows.Scan(&ev.ID, &ev.EmailID, &kind, &detail, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = domain.ParseEventKind(kind)
		if ev.Detail, err = unmarshalMap(detail); err != nil {
			return nil, fmt.Errorf("decode detail: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmail(row rowScanner) (*domain.Email, error) {
	var e domain.Email
	var messageID, userID sql.NullString
	var metadata []byte
	err := row.Scan(&e.ID, &messageID, &e.Recipient, &e.Subject, &e.MailerClass, &e.MailerMethod, &userID, &metadata, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tracking.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan email: %w", err)
	}
	if messageID.Valid {
		e.MessageID = &messageID.String
	}
	e.UserID = userID.String
	if e.Metadata, err = unmarshalMap(metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &e, nil
}

func marshalMap(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalMap(b []byte) (map[string]string, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
