package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ignite/mailtrace/internal/domain"
	"github.com/ignite/mailtrace/internal/service/suppression"
)

func newSuppMockDB(t *testing.T) (*SuppressionRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSuppressionRepo(db), mock
}

func suppressionRows(id, email, kind, reason string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "email", "kind", "reason", "message_id", "feedback_id",
		"source_ip", "source_arn", "suppressed_at", "created_at",
	}).AddRow(id, email, kind, reason, nil, nil, nil, nil, now, now)
}

func TestIsSuppressed(t *testing.T) {
	repo, mock := newSuppMockDB(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("user@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	blocked, err := repo.IsSuppressed(context.Background(), "user@example.com")
	if err != nil || !blocked {
		t.Fatalf("IsSuppressed = (%v, %v)", blocked, err)
	}
}

func TestSuppressedAmong(t *testing.T) {
	repo, mock := newSuppMockDB(t)

	mock.ExpectQuery(`SELECT DISTINCT email FROM email_suppressions`).
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("blocked@example.com"))

	out, err := repo.SuppressedAmong(context.Background(), []string{"ok@example.com", "blocked@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if !out["blocked@example.com"] || out["ok@example.com"] {
		t.Errorf("out = %v", out)
	}
}

func TestSuppressedAmongEmptyInput(t *testing.T) {
	repo, _ := newSuppMockDB(t)
	out, err := repo.SuppressedAmong(context.Background(), nil)
	if err != nil || len(out) != 0 {
		t.Fatalf("SuppressedAmong(nil) = (%v, %v)", out, err)
	}
}

func TestUpsertInserts(t *testing.T) {
	repo, mock := newSuppMockDB(t)

	mock.ExpectExec(`INSERT INTO email_suppressions`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &domain.Suppression{
		ID: "s-1", Email: "user@example.com",
		Kind: domain.SuppressionBounce, Reason: "permanent",
		SuppressedAt: time.Now(),
	}
	stored, err := repo.Upsert(context.Background(), entry)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if stored.ID != "s-1" {
		t.Errorf("stored = %+v", stored)
	}
}

func TestUpsertConflictReturnsExisting(t *testing.T) {
	repo, mock := newSuppMockDB(t)

	// DO NOTHING absorbed the insert; the existing row is read back.
	mock.ExpectExec(`INSERT INTO email_suppressions`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM email_suppressions WHERE email = \$1 AND kind = \$2`).
		WithArgs("user@example.com", domain.SuppressionBounce).
		WillReturnRows(suppressionRows("s-existing", "user@example.com", "bounce", "permanent"))

	stored, err := repo.Upsert(context.Background(), &domain.Suppression{
		ID: "s-new", Email: "user@example.com",
		Kind: domain.SuppressionBounce, Reason: "transient",
		SuppressedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if stored.ID != "s-existing" || stored.Reason != "permanent" {
		t.Errorf("expected the existing row back, got %+v", stored)
	}
}

func TestRemove(t *testing.T) {
	repo, mock := newSuppMockDB(t)
	ctx := context.Background()

	mock.ExpectExec(`DELETE FROM email_suppressions WHERE email = \$1`).
		WithArgs("user@example.com").
		WillReturnResult(sqlmock.NewResult(0, 2))
	if err := repo.Remove(ctx, "user@example.com"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	mock.ExpectExec(`DELETE FROM email_suppressions`).
		WithArgs("missing@example.com").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := repo.Remove(ctx, "missing@example.com"); err != suppression.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestList(t *testing.T) {
	repo, mock := newSuppMockDB(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM email_suppressions`).
		WithArgs("bounce", "", "").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`ORDER BY created_at DESC`).
		WithArgs("bounce", "", "", 10, 0).
		WillReturnRows(suppressionRows("s-1", "a@example.com", "bounce", "permanent").
			AddRow("s-2", "b@example.com", "bounce", "transient", nil, nil, nil, nil, time.Now(), time.Now()))

	out, total, err := repo.List(context.Background(), suppression.ListFilter{Kind: "bounce", Limit: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || len(out) != 2 {
		t.Errorf("total=%d len=%d", total, len(out))
	}
	if out[0].Kind != domain.SuppressionBounce {
		t.Errorf("kind = %q", out[0].Kind)
	}
}

func TestCountSince(t *testing.T) {
	repo, mock := newSuppMockDB(t)

	since := time.Now().Add(-24 * time.Hour)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM email_suppressions WHERE created_at >= \$1`).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := repo.CountSince(context.Background(), since)
	if err != nil || n != 7 {
		t.Fatalf("CountSince = (%d, %v)", n, err)
	}
}
