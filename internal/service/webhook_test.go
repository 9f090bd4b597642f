package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"

	"github.com/BoweryJG/bowerycreativepayments/internal/config"
	"github.com/BoweryJG/bowerycreativepayments/internal/domain"
	"github.com/BoweryJG/bowerycreativepayments/internal/repository"
)

const testSecret = "whsec_test_secret"

func newWebhookService(repo repository.BillingRepository, gw StripeGateway) *BillingService {
	return NewBillingService(repo, gw, config.Config{
		StripeWebhookSecret: testSecret,
		StoreTimeout:        time.Second,
	})
}

// signPayload builds a valid Stripe-Signature header for payload, the same
// scheme ConstructEvent verifies: v1 = HMAC-SHA256(secret, "<ts>.<payload>").
func signPayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func eventBody(t *testing.T, id, eventType string, created time.Time, object interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	body, err := json.Marshal(map[string]interface{}{
		"id":          id,
		"type":        eventType,
		"created":     created.Unix(),
		"api_version": stripe.APIVersion,
		"data":        map[string]interface{}{"object": json.RawMessage(raw)},
	})
	require.NoError(t, err)
	return body
}

func TestProcessWebhook_SignatureRejection(t *testing.T) {
	repo := &mockRepo{} // any repo call would panic: verification must fail closed
	svc := newWebhookService(repo, &mockGateway{})
	body := eventBody(t, "evt_1", "customer.subscription.updated", time.Now(), map[string]string{"id": "sub_1"})

	t.Run("missing header", func(t *testing.T) {
		err := svc.ProcessWebhook(context.Background(), body, "")
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("wrong secret", func(t *testing.T) {
		err := svc.ProcessWebhook(context.Background(), body, signPayload(body, "whsec_other"))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("signature over different bytes", func(t *testing.T) {
		other := eventBody(t, "evt_2", "customer.subscription.updated", time.Now(), map[string]string{"id": "sub_1"})
		err := svc.ProcessWebhook(context.Background(), body, signPayload(other, testSecret))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
}

func TestProcessWebhook_UnknownEventType(t *testing.T) {
	svc := newWebhookService(&mockRepo{}, &mockGateway{})
	body := eventBody(t, "evt_1", "customer.tax_id.created", time.Now(), map[string]string{"id": "txi_1"})

	err := svc.ProcessWebhook(context.Background(), body, signPayload(body, testSecret))
	assert.NoError(t, err) // acknowledged, zero effects
}

func TestProcessWebhook_CheckoutCompleted(t *testing.T) {
	eventAt := time.Now().Truncate(time.Second)
	periodStart := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, 0)

	var applied *domain.Subscription
	repo := &mockRepo{
		GetCustomerByStripeIDFn: func(ctx context.Context, stripeCustomerID string) (*domain.Customer, error) {
			assert.Equal(t, "cus_1", stripeCustomerID)
			return &domain.Customer{ID: 42, StripeCustomerID: "cus_1"}, nil
		},
		ApplyCheckoutCompletedFn: func(ctx context.Context, eventID string, sub domain.Subscription) error {
			assert.Equal(t, "evt_1", eventID)
			applied = &sub
			return nil
		},
	}
	gw := &mockGateway{
		GetSubscriptionFn: func(ctx context.Context, id string) (*stripe.Subscription, error) {
			assert.Equal(t, "sub_1", id)
			return &stripe.Subscription{
				ID:                 "sub_1",
				Status:             stripe.SubscriptionStatusActive,
				CurrentPeriodStart: periodStart.Unix(),
				CurrentPeriodEnd:   periodEnd.Unix(),
				Items: &stripe.SubscriptionItemList{
					Data: []*stripe.SubscriptionItem{{Price: &stripe.Price{ID: "price_professional_monthly"}}},
				},
			}, nil
		},
	}
	svc := newWebhookService(repo, gw)

	body := eventBody(t, "evt_1", "checkout.session.completed", eventAt, map[string]interface{}{
		"id":           "cs_1",
		"mode":         "subscription",
		"subscription": "sub_1",
		"customer":     "cus_1",
	})
	err := svc.ProcessWebhook(context.Background(), body, signPayload(body, testSecret))
	require.NoError(t, err)

	require.NotNil(t, applied)
	assert.Equal(t, int64(42), applied.CustomerID)
	assert.Equal(t, "sub_1", applied.StripeSubscriptionID)
	assert.Equal(t, "price_professional_monthly", applied.StripePriceID)
	assert.Equal(t, domain.StatusActive, applied.Status)
	assert.Equal(t, periodStart.Unix(), applied.CurrentPeriodStart.Unix())
	assert.Equal(t, periodEnd.Unix(), applied.CurrentPeriodEnd.Unix())
	assert.Equal(t, eventAt.Unix(), applied.LastEventAt.Unix())
}

func TestProcessWebhook_CheckoutCompleted_NonSubscriptionMode(t *testing.T) {
	svc := newWebhookService(&mockRepo{}, &mockGateway{})
	body := eventBody(t, "evt_1", "checkout.session.completed", time.Now(), map[string]interface{}{
		"id":   "cs_1",
		"mode": "payment",
	})
	err := svc.ProcessWebhook(context.Background(), body, signPayload(body, testSecret))
	assert.NoError(t, err)
}

func TestProcessWebhook_SubscriptionUpdated(t *testing.T) {
	eventAt := time.Now().Truncate(time.Second)

	var gotEventAt time.Time
	var applied *domain.Subscription
	repo := &mockRepo{
		ApplySubscriptionUpdatedFn: func(ctx context.Context, eventID string, at time.Time, sub domain.Subscription) error {
			gotEventAt = at
			applied = &sub
			return nil
		},
	}
	svc := newWebhookService(repo, &mockGateway{})

	body := eventBody(t, "evt_1", "customer.subscription.updated", eventAt, map[string]interface{}{
		"id":                   "sub_1",
		"status":               "past_due",
		"current_period_start": eventAt.Add(-time.Hour).Unix(),
		"current_period_end":   eventAt.Add(time.Hour).Unix(),
		"cancel_at_period_end": true,
	})
	err := svc.ProcessWebhook(context.Background(), body, signPayload(body, testSecret))
	require.NoError(t, err)

	assert.Equal(t, eventAt.Unix(), gotEventAt.Unix())
	require.NotNil(t, applied)
	assert.Equal(t, domain.StatusPastDue, applied.Status)
	assert.True(t, applied.CancelAtPeriodEnd)
}

func TestProcessWebhook_SubscriptionUpdated_BenignOutcomes(t *testing.T) {
	for name, outcome := range map[string]error{
		"duplicate delivery":   repository.ErrEventAlreadyProcessed,
		"stale event":          repository.ErrStaleEvent,
		"unknown subscription": repository.ErrSubscriptionNotFound,
	} {
		t.Run(name, func(t *testing.T) {
			repo := &mockRepo{
				ApplySubscriptionUpdatedFn: func(ctx context.Context, eventID string, at time.Time, sub domain.Subscription) error {
					return outcome
				},
			}
			svc := newWebhookService(repo, &mockGateway{})
			body := eventBody(t, "evt_1", "customer.subscription.updated", time.Now(), map[string]interface{}{
				"id": "sub_1", "status": "active",
			})
			err := svc.ProcessWebhook(context.Background(), body, signPayload(body, testSecret))
			assert.NoError(t, err)
		})
	}
}

func TestProcessWebhook_SubscriptionDeleted(t *testing.T) {
	var deleted string
	repo := &mockRepo{
		ApplySubscriptionDeletedFn: func(ctx context.Context, eventID string, at time.Time, id string) error {
			deleted = id
			return nil
		},
	}
	svc := newWebhookService(repo, &mockGateway{})
	body := eventBody(t, "evt_1", "customer.subscription.deleted", time.Now(), map[string]interface{}{
		"id": "sub_1", "status": "canceled",
	})
	err := svc.ProcessWebhook(context.Background(), body, signPayload(body, testSecret))
	require.NoError(t, err)
	assert.Equal(t, "sub_1", deleted)
}

func TestProcessWebhook_PaymentSucceeded(t *testing.T) {
	var got *domain.Payment
	repo := &mockRepo{
		ApplyPaymentSucceededFn: func(ctx context.Context, eventID, stripeCustomerID string, p domain.Payment) error {
			assert.Equal(t, "cus_1", stripeCustomerID)
			got = &p
			return nil
		},
	}
	svc := newWebhookService(repo, &mockGateway{})

	body := eventBody(t, "evt_1", "invoice.payment_succeeded", time.Now(), map[string]interface{}{
		"id":             "in_1",
		"customer":       "cus_1",
		"payment_intent": "pi_1",
		"amount_paid":    4900,
		"currency":       "usd",
		"period_start":   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).Unix(),
	})
	err := svc.ProcessWebhook(context.Background(), body, signPayload(body, testSecret))
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "pi_1", got.StripePaymentIntentID)
	assert.Equal(t, "in_1", got.StripeInvoiceID)
	assert.Equal(t, int64(4900), got.Amount)
	assert.Equal(t, "usd", got.Currency)
	assert.Equal(t, "succeeded", got.Status)
	assert.Equal(t, "Subscription payment for 2025-06-01", got.Description)
}

func TestProcessWebhook_PaymentSucceeded_UnknownCustomer(t *testing.T) {
	repo := &mockRepo{
		ApplyPaymentSucceededFn: func(ctx context.Context, eventID, stripeCustomerID string, p domain.Payment) error {
			return repository.ErrCustomerNotFound
		},
	}
	svc := newWebhookService(repo, &mockGateway{})
	body := eventBody(t, "evt_1", "invoice.payment_succeeded", time.Now(), map[string]interface{}{
		"id": "in_1", "customer": "cus_ghost", "payment_intent": "pi_1", "amount_paid": 100, "currency": "usd",
	})
	err := svc.ProcessWebhook(context.Background(), body, signPayload(body, testSecret))
	assert.ErrorIs(t, err, ErrUnknownCustomer)
}

func TestProcessWebhook_PaymentSucceeded_NoPaymentIntent(t *testing.T) {
	svc := newWebhookService(&mockRepo{}, &mockGateway{})
	body := eventBody(t, "evt_1", "invoice.payment_succeeded", time.Now(), map[string]interface{}{
		"id": "in_1", "customer": "cus_1", "amount_paid": 0, "currency": "usd",
	})
	err := svc.ProcessWebhook(context.Background(), body, signPayload(body, testSecret))
	assert.NoError(t, err)
}

func TestProcessWebhook_PaymentFailed(t *testing.T) {
	var flagged string
	repo := &mockRepo{
		ApplyPaymentFailedFn: func(ctx context.Context, eventID string, at time.Time, id string) error {
			flagged = id
			return nil
		},
	}
	svc := newWebhookService(repo, &mockGateway{})
	body := eventBody(t, "evt_1", "invoice.payment_failed", time.Now(), map[string]interface{}{
		"id": "in_1", "customer": "cus_1", "subscription": "sub_1",
	})
	err := svc.ProcessWebhook(context.Background(), body, signPayload(body, testSecret))
	require.NoError(t, err)
	assert.Equal(t, "sub_1", flagged)
}

func TestProcessWebhook_StoreFailureIsRetryable(t *testing.T) {
	repo := &mockRepo{
		ApplySubscriptionUpdatedFn: func(ctx context.Context, eventID string, at time.Time, sub domain.Subscription) error {
			return fmt.Errorf("database is locked")
		},
	}
	svc := newWebhookService(repo, &mockGateway{})
	body := eventBody(t, "evt_1", "customer.subscription.updated", time.Now(), map[string]interface{}{
		"id": "sub_1", "status": "active",
	})
	err := svc.ProcessWebhook(context.Background(), body, signPayload(body, testSecret))
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestProcessWebhook_MalformedObject(t *testing.T) {
	svc := newWebhookService(&mockRepo{}, &mockGateway{})
	// valid envelope, but the object is a scalar where a subscription is expected
	body := eventBody(t, "evt_1", "customer.subscription.updated", time.Now(), "not-an-object")
	err := svc.ProcessWebhook(context.Background(), body, signPayload(body, testSecret))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestClassifyEvent(t *testing.T) {
	assert.Equal(t, kindCheckoutCompleted, classifyEvent("checkout.session.completed"))
	assert.Equal(t, kindSubscriptionUpdated, classifyEvent("customer.subscription.updated"))
	assert.Equal(t, kindSubscriptionDeleted, classifyEvent("customer.subscription.deleted"))
	assert.Equal(t, kindPaymentSucceeded, classifyEvent("invoice.payment_succeeded"))
	assert.Equal(t, kindPaymentFailed, classifyEvent("invoice.payment_failed"))
	assert.Equal(t, kindOther, classifyEvent("customer.created"))
}
