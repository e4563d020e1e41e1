package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/ignite/mailtrace/internal/domain"
	"github.com/ignite/mailtrace/internal/service/tracking"
)

// fakeTrackingRepo holds just enough state for the timeline endpoint.
type fakeTrackingRepo struct {
	emails map[string]*domain.Email
	events map[string][]domain.EmailEvent
}

func newFakeTrackingRepo() *fakeTrackingRepo {
	return &fakeTrackingRepo{
		emails: make(map[string]*domain.Email),
		events: make(map[string][]domain.EmailEvent),
	}
}

func (f *fakeTrackingRepo) CreateEmail(_ context.Context, e *domain.Email) error {
	f.emails[e.ID] = e
	return nil
}

func (f *fakeTrackingRepo) GetEmail(_ context.Context, id string) (*domain.Email, error) {
	e, ok := f.emails[id]
	if !ok {
		return nil, tracking.ErrNotFound
	}
	return e, nil
}

func (f *fakeTrackingRepo) FindByMessageID(context.Context, string) (*domain.Email, error) {
	return nil, tracking.ErrNotFound
}

func (f *fakeTrackingRepo) FindRecentDuplicate(context.Context, string, string, string, string, time.Time) (*domain.Email, error) {
	return nil, tracking.ErrNotFound
}

func (f *fakeTrackingRepo) FindMatchCandidate(context.Context, string, time.Time) (*domain.Email, error) {
	return nil, tracking.ErrNotFound
}

func (f *fakeTrackingRepo) AssignMessageID(context.Context, string, string) (bool, error) {
	return false, nil
}

func (f *fakeTrackingRepo) InsertEvent(_ context.Context, ev *domain.EmailEvent) error {
	f.events[ev.EmailID] = append(f.events[ev.EmailID], *ev)
	return nil
}

func (f *fakeTrackingRepo) InsertEventIfAbsent(_ context.Context, ev *domain.EmailEvent) (bool, error) {
	for _, existing := range f.events[ev.EmailID] {
		if existing.Kind == ev.Kind {
			return false, nil
		}
	}
	f.events[ev.EmailID] = append(f.events[ev.EmailID], *ev)
	return true, nil
}

func (f *fakeTrackingRepo) ListEvents(_ context.Context, emailID string) ([]domain.EmailEvent, error) {
	return f.events[emailID], nil
}

func TestEmailTimeline(t *testing.T) {
	repo := newFakeTrackingRepo()
	tracker := tracking.NewService(repo)
	h := NewHandlers(&stubVerifier{ok: true}, &stubConfirmer{}, &stubProcessor{}, tracker, nil)
	srv := newTestServer(h)
	defer srv.Close()

	email := &domain.Email{ID: "id-1", Recipient: "user@example.com", CreatedAt: time.Now()}
	if err := repo.CreateEmail(context.Background(), email); err != nil {
		t.Fatal(err)
	}
	if err := tracker.AppendEvent(context.Background(), "id-1", domain.EventSent, time.Now(), nil); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(srv.URL + "/api/emails/id-1/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Events []domain.EmailEvent `json:"events"`
		Status string              `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Events) != 1 || body.Status != "sent" {
		t.Errorf("body = %+v", body)
	}
}

func TestEmailTimelineUnknownIDIs404(t *testing.T) {
	tracker := tracking.NewService(newFakeTrackingRepo())
	h := NewHandlers(&stubVerifier{ok: true}, &stubConfirmer{}, &stubProcessor{}, tracker, nil)
	srv := newTestServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/emails/no-such-id/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
