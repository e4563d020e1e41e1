package domain

import (
	"testing"
	"time"
)

func TestParseEventKind(t *testing.T) {
	if got := ParseEventKind("bounce"); got != EventBounce {
		t.Errorf("ParseEventKind(bounce) = %q", got)
	}
	if got := ParseEventKind("exploded"); got != EventUnknown {
		t.Errorf("ParseEventKind(exploded) = %q", got)
	}
}

func TestProviderSourced(t *testing.T) {
	guarded := []EventKind{EventSent, EventDelivered, EventBounce, EventComplaint}
	for _, k := range guarded {
		if !k.ProviderSourced() {
			t.Errorf("%s should be provider-sourced", k)
		}
	}
	unguarded := []EventKind{EventPending, EventOpen, EventClick, EventFailed, EventSuppressed}
	for _, k := range unguarded {
		if k.ProviderSourced() {
			t.Errorf("%s should not be provider-sourced", k)
		}
	}
}

func TestCurrentStatus(t *testing.T) {
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	if got := CurrentStatus(nil); got != EventPending {
		t.Errorf("empty timeline = %q, want pending", got)
	}

	events := []EmailEvent{
		{Kind: EventSent, OccurredAt: base},
		{Kind: EventDelivered, OccurredAt: base.Add(time.Minute)},
		{Kind: EventOpen, OccurredAt: base.Add(time.Hour)},
	}
	if got := CurrentStatus(events); got != EventOpen {
		t.Errorf("status = %q, want open", got)
	}

	// Order independence: the latest event wins regardless of slice order.
	reversed := []EmailEvent{events[2], events[0], events[1]}
	if got := CurrentStatus(reversed); got != EventOpen {
		t.Errorf("reversed status = %q, want open", got)
	}
}
