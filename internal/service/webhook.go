package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/BoweryJG/bowerycreativepayments/internal/domain"
	"github.com/BoweryJG/bowerycreativepayments/internal/repository"
)

// eventKind is the closed set of webhook events we reconcile. Everything else
// is kindOther and acknowledged without effect, so new Stripe event types
// never cause retries or crashes.
type eventKind int

const (
	kindOther eventKind = iota
	kindCheckoutCompleted
	kindSubscriptionUpdated
	kindSubscriptionDeleted
	kindPaymentSucceeded
	kindPaymentFailed
)

func classifyEvent(eventType string) eventKind {
	switch eventType {
	case "checkout.session.completed":
		return kindCheckoutCompleted
	case "customer.subscription.updated":
		return kindSubscriptionUpdated
	case "customer.subscription.deleted":
		return kindSubscriptionDeleted
	case "invoice.payment_succeeded":
		return kindPaymentSucceeded
	case "invoice.payment_failed":
		return kindPaymentFailed
	default:
		return kindOther
	}
}

// ProcessWebhook verifies and reconciles one Stripe event delivery.
//
// A nil return tells Stripe the event is settled, which covers successful
// processing, duplicate deliveries, stale events and event types we don't
// handle. The error cases are the taxonomy in errors.go; the HTTP layer maps
// them to statuses.
func (s *BillingService) ProcessWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := webhook.ConstructEvent(payload, sigHeader, s.webhookSecret)
	if err != nil {
		if isSignatureError(err) {
			slog.Warn("webhook signature rejected", "error", err)
			return ErrInvalidSignature
		}
		slog.Warn("webhook payload rejected", "error", err)
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	eventAt := time.Unix(event.Created, 0).UTC()

	// Every store write behind this point is bounded; a wedged database
	// surfaces as a retryable failure instead of a hung delivery.
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	eventType := string(event.Type)
	kind := classifyEvent(eventType)
	if kind != kindOther && event.Data == nil {
		return fmt.Errorf("%w: event %s has no data", ErrInvalidPayload, event.ID)
	}
	switch kind {
	case kindCheckoutCompleted:
		return s.reconcileCheckoutCompleted(ctx, event, eventAt)
	case kindSubscriptionUpdated:
		return s.reconcileSubscriptionUpdated(ctx, event, eventAt)
	case kindSubscriptionDeleted:
		return s.reconcileSubscriptionDeleted(ctx, event, eventAt)
	case kindPaymentSucceeded:
		return s.reconcilePaymentSucceeded(ctx, event, eventAt)
	case kindPaymentFailed:
		return s.reconcilePaymentFailed(ctx, event, eventAt)
	default:
		slog.Info("unhandled stripe event acknowledged", "event_id", event.ID, "event_type", eventType)
		return nil
	}
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

func (s *BillingService) reconcileCheckoutCompleted(ctx context.Context, event stripe.Event, eventAt time.Time) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("%w: checkout session: %v", ErrInvalidPayload, err)
	}
	if sess.Mode != stripe.CheckoutSessionModeSubscription || sess.Subscription == nil {
		slog.Info("non-subscription checkout ignored", "event_id", event.ID, "session_id", sess.ID)
		return nil
	}
	if sess.Customer == nil {
		return fmt.Errorf("%w: checkout session %s has no customer", ErrInvalidPayload, sess.ID)
	}

	// Seed the row from the subscription's current state at Stripe rather
	// than the (thin) session payload.
	sub, err := s.stripe.GetSubscription(ctx, sess.Subscription.ID)
	if err != nil {
		return fmt.Errorf("fetching subscription %s: %w", sess.Subscription.ID, err)
	}

	cust, err := s.repo.GetCustomerByStripeID(ctx, sess.Customer.ID)
	if errors.Is(err, repository.ErrCustomerNotFound) {
		slog.Error("checkout completed for unknown customer", "event_id", event.ID, "stripe_customer_id", sess.Customer.ID)
		return ErrUnknownCustomer
	}
	if err != nil {
		return s.storeErr(err)
	}

	return s.finishApply(event.ID, s.repo.ApplyCheckoutCompleted(ctx, event.ID, domain.Subscription{
		CustomerID:           cust.ID,
		StripeSubscriptionID: sub.ID,
		StripePriceID:        subscriptionPriceID(sub),
		Status:               domain.SubscriptionStatus(sub.Status),
		CurrentPeriodStart:   time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:     time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		LastEventAt:          eventAt,
	}))
}

func (s *BillingService) reconcileSubscriptionUpdated(ctx context.Context, event stripe.Event, eventAt time.Time) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("%w: subscription: %v", ErrInvalidPayload, err)
	}
	return s.finishApply(event.ID, s.repo.ApplySubscriptionUpdated(ctx, event.ID, eventAt, domain.Subscription{
		StripeSubscriptionID: sub.ID,
		StripePriceID:        subscriptionPriceID(&sub),
		Status:               domain.SubscriptionStatus(sub.Status),
		CurrentPeriodStart:   time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:     time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
	}))
}

func (s *BillingService) reconcileSubscriptionDeleted(ctx context.Context, event stripe.Event, eventAt time.Time) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("%w: subscription: %v", ErrInvalidPayload, err)
	}
	return s.finishApply(event.ID, s.repo.ApplySubscriptionDeleted(ctx, event.ID, eventAt, sub.ID))
}

func (s *BillingService) reconcilePaymentSucceeded(ctx context.Context, event stripe.Event, eventAt time.Time) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return fmt.Errorf("%w: invoice: %v", ErrInvalidPayload, err)
	}
	if inv.PaymentIntent == nil {
		slog.Info("invoice without payment intent ignored", "event_id", event.ID, "invoice_id", inv.ID)
		return nil
	}
	if inv.Customer == nil {
		return fmt.Errorf("%w: invoice %s has no customer", ErrInvalidPayload, inv.ID)
	}

	description := "Subscription payment"
	if inv.PeriodStart > 0 {
		description = fmt.Sprintf("Subscription payment for %s", time.Unix(inv.PeriodStart, 0).UTC().Format("2006-01-02"))
	}

	err := s.repo.ApplyPaymentSucceeded(ctx, event.ID, inv.Customer.ID, domain.Payment{
		StripePaymentIntentID: inv.PaymentIntent.ID,
		StripeInvoiceID:       inv.ID,
		Amount:                inv.AmountPaid,
		Currency:              string(inv.Currency),
		Status:                "succeeded",
		Description:           description,
	})
	if errors.Is(err, repository.ErrCustomerNotFound) {
		// Money arrived that we cannot attribute. Acknowledged to Stripe, but
		// this log line is the operator alert.
		slog.Error("payment for unknown customer",
			"event_id", event.ID, "stripe_customer_id", inv.Customer.ID,
			"payment_intent_id", inv.PaymentIntent.ID, "amount", inv.AmountPaid, "currency", inv.Currency)
		return ErrUnknownCustomer
	}
	return s.finishApply(event.ID, err)
}

func (s *BillingService) reconcilePaymentFailed(ctx context.Context, event stripe.Event, eventAt time.Time) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return fmt.Errorf("%w: invoice: %v", ErrInvalidPayload, err)
	}
	if inv.Subscription == nil {
		slog.Info("failed invoice without subscription ignored", "event_id", event.ID, "invoice_id", inv.ID)
		return nil
	}
	return s.finishApply(event.ID, s.repo.ApplyPaymentFailed(ctx, event.ID, eventAt, inv.Subscription.ID))
}

// finishApply folds the repository outcome into the response policy: benign
// no-ops are success, everything else is a retryable store failure.
func (s *BillingService) finishApply(eventID string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrEventAlreadyProcessed):
		slog.Info("duplicate event skipped", "event_id", eventID)
		return nil
	case errors.Is(err, repository.ErrStaleEvent):
		slog.Info("stale event ignored", "event_id", eventID)
		return nil
	case errors.Is(err, repository.ErrSubscriptionNotFound):
		slog.Warn("event for unknown subscription acknowledged", "event_id", eventID)
		return nil
	default:
		return s.storeErr(err)
	}
}

func (s *BillingService) storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func subscriptionPriceID(sub *stripe.Subscription) string {
	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		return ""
	}
	return sub.Items.Data[0].Price.ID
}
