package sns

import (
	"net/http"

	"github.com/ignite/mailtrace/internal/pkg/httpretry"
	"github.com/ignite/mailtrace/internal/pkg/logger"
)

// Subscriber performs the one-time GET handshake that activates a
// pending SNS subscription. Safe to call repeatedly; SNS treats the
// confirmation as idempotent.
type Subscriber struct {
	client httpretry.HTTPDoer
}

// NewSubscriber creates a subscription confirmer. A nil client falls
// back to a retrying default.
func NewSubscriber(client httpretry.HTTPDoer) *Subscriber {
	if client == nil {
		client = httpretry.NewRetryClient(nil, 2)
	}
	return &Subscriber{client: client}
}

// Confirm hits the SubscribeURL. Returns true on any completed request,
// false (and a log line) on network failure.
func (s *Subscriber) Confirm(subscribeURL string) bool {
	req, err := http.NewRequest(http.MethodGet, subscribeURL, nil)
	if err != nil {
		logger.Error("failed to build subscription confirm request", "error", err)
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		logger.Error("failed to confirm SNS subscription", "error", err)
		return false
	}
	resp.Body.Close()

	logger.Info("SNS subscription confirmed", "status", resp.StatusCode)
	return true
}
