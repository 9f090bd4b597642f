package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/BoweryJG/bowerycreativepayments/internal/service"
)

const maxWebhookBodyBytes = int64(65536)

// StripeWebhookHandler receives event deliveries from Stripe. It is kept
// separate from BillingHandler because its auth model is the signature on the
// body, not the portal allow-list.
type StripeWebhookHandler struct {
	service BillingService
}

func NewStripeWebhookHandler(s BillingService) *StripeWebhookHandler {
	return &StripeWebhookHandler{service: s}
}

// HandleStripeWebhook maps reconciliation outcomes onto Stripe's retry
// contract: 400 means "never retry" (bad signature or payload), 2xx settles
// the event, and 503 asks for a redelivery, which the idempotency marker
// makes safe.
//
// @Summary      Receives Stripe webhook events
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]bool
// @Failure      400  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /webhooks/stripe [post]
func (h *StripeWebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Error("failed to read webhook body", "error", err)
		webhookOutcomes.WithLabelValues("read_error").Inc()
		respondWithError(w, http.StatusServiceUnavailable, "failed to read request body")
		return
	}

	err = h.service.ProcessWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		webhookOutcomes.WithLabelValues("processed").Inc()
	case errors.Is(err, service.ErrInvalidSignature):
		webhookOutcomes.WithLabelValues("invalid_signature").Inc()
		respondWithError(w, http.StatusBadRequest, "webhook signature verification failed")
		return
	case errors.Is(err, service.ErrInvalidPayload):
		webhookOutcomes.WithLabelValues("invalid_payload").Inc()
		respondWithError(w, http.StatusBadRequest, "webhook payload is malformed")
		return
	case errors.Is(err, service.ErrUnknownCustomer):
		// Permanent from Stripe's point of view; the service already raised
		// the operator alert. Acknowledge so Stripe stops retrying.
		unattributedPayments.Inc()
		webhookOutcomes.WithLabelValues("integrity_error").Inc()
	case errors.Is(err, service.ErrStoreUnavailable):
		webhookOutcomes.WithLabelValues("store_unavailable").Inc()
		respondWithError(w, http.StatusServiceUnavailable, "temporary failure, retry later")
		return
	default:
		slog.Error("webhook processing failed", "error", err)
		webhookOutcomes.WithLabelValues("error").Inc()
		respondWithError(w, http.StatusInternalServerError, "failed to process webhook")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
}
