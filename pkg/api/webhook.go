package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/dmitrymomot/billingsync/pkg/billing"
	"github.com/dmitrymomot/billingsync/pkg/logger"
)

const (
	signatureHeader        = "Stripe-Signature"
	defaultWebhookMaxBytes = 1 << 20
)

var (
	errWebhookFailed   = HTTPError{Code: http.StatusInternalServerError, Key: "webhook_failed", Message: "Webhook could not be processed"}
	errWebhookInFlight = HTTPError{Code: http.StatusInternalServerError, Key: "event_in_flight", Message: "Event is already being processed"}
)

type webhookAck struct {
	Received bool   `json:"received"`
	Status   string `json:"status"`
}

// stripeWebhook passes the raw body to the processor untouched: signature
// verification needs the exact bytes that were signed.
func (h *handlers) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	limit := h.maxBody
	if limit <= 0 {
		limit = defaultWebhookMaxBytes
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.metrics.RecordWebhook("", "rejected")
			writeError(w, r, ErrTooLarge)
			return
		}
		writeError(w, r, errors.Join(ErrBadRequest, err))
		return
	}

	res, err := h.webhooks.Handle(r.Context(), payload, r.Header.Get(signatureHeader))
	if err != nil {
		h.metrics.RecordWebhook(res.EventType, webhookFailure(err))
		writeError(w, r, webhookError(err))
		return
	}

	h.metrics.RecordWebhook(res.EventType, string(res.Outcome))
	logger.FromContext(r.Context()).DebugContext(r.Context(), "webhook acknowledged",
		logger.EventID(res.EventID), logger.Outcome(string(res.Outcome)))
	writeJSON(w, http.StatusOK, webhookAck{Received: true, Status: string(res.Outcome)})
}

func webhookFailure(err error) string {
	switch {
	case errors.Is(err, billing.ErrWebhookVerificationFailed):
		return "rejected"
	case errors.Is(err, billing.ErrEventInFlight):
		return "in_flight"
	default:
		return "error"
	}
}

// webhookError narrows failures to 400 for payloads that can never succeed
// and 500 for everything else, so the processor redelivers.
func webhookError(err error) error {
	switch {
	case errors.Is(err, billing.ErrWebhookVerificationFailed),
		errors.Is(err, billing.ErrMalformedEvent),
		errors.Is(err, billing.ErrInvalidClientReference):
		return err
	case errors.Is(err, billing.ErrEventInFlight):
		return errors.Join(errWebhookInFlight, err)
	default:
		return errors.Join(errWebhookFailed, err)
	}
}
