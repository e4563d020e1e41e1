package api

import (
	"context"
	"io"
	"net/http"

	"github.com/ignite/mailtrace/internal/pkg/httputil"
	"github.com/ignite/mailtrace/internal/pkg/logger"
	"github.com/ignite/mailtrace/internal/sns"
)

// maxWebhookBody bounds the envelope size; SNS messages top out well
// under this.
const maxWebhookBody = 1 << 20

// Verifier authenticates an SNS envelope.
type Verifier interface {
	Verify(env *sns.Envelope) bool
}

// Confirmer activates a pending SNS subscription.
type Confirmer interface {
	Confirm(subscribeURL string) bool
}

// Processor reconciles a Notification-type envelope.
type Processor interface {
	Process(ctx context.Context, env *sns.Envelope) error
}

// HandleWebhook receives the raw SNS envelope: parse, verify, then
// dispatch on the message type. The response table is fixed; the
// provider only cares about the status code, the bodies are for
// operators reading logs.
func (h *Handlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httputil.BadRequest(w, "Invalid JSON")
		return
	}

	env, err := sns.ParseEnvelope(body)
	if err != nil {
		logger.Error("SNS envelope parse error", "error", err)
		httputil.BadRequest(w, "Invalid JSON")
		return
	}

	if !h.verifier.Verify(env) {
		httputil.Error(w, http.StatusUnauthorized, "Invalid SNS message signature")
		return
	}

	switch env.Type {
	case sns.TypeSubscriptionConfirmation:
		h.confirmer.Confirm(env.SubscribeURL)
		httputil.Status(w, "Subscription confirmed")
	case sns.TypeNotification:
		if err := h.processor.Process(r.Context(), env); err != nil {
			logger.Error("SNS webhook processing error", "error", err, "message_id", env.MessageId)
			httputil.Error(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		httputil.Status(w, "Notification processed")
	default:
		httputil.BadRequest(w, "Unknown message type")
	}
}
