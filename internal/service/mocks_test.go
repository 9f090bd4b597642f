package service

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v78"

	"github.com/BoweryJG/bowerycreativepayments/internal/domain"
	"github.com/BoweryJG/bowerycreativepayments/internal/repository"
)

// mockRepo is a func-field fake of the BillingRepository. Tests set only the
// functions the scenario touches.
type mockRepo struct {
	CreateCustomerFn                func(ctx context.Context, c domain.Customer) (int64, error)
	GetCustomerByIDFn               func(ctx context.Context, id int64) (*domain.Customer, error)
	GetCustomerByEmailFn            func(ctx context.Context, email string) (*domain.Customer, error)
	GetCustomerByStripeIDFn         func(ctx context.Context, stripeCustomerID string) (*domain.Customer, error)
	SetStripeCustomerIDFn           func(ctx context.Context, id int64, stripeCustomerID string) error
	ActiveSubscriptionForCustomerFn func(ctx context.Context, customerID int64) (*domain.Subscription, error)
	GetSubscriptionByStripeIDFn     func(ctx context.Context, stripeSubscriptionID string) (*domain.Subscription, error)
	PaymentsForCustomerFn           func(ctx context.Context, customerID int64) ([]domain.Payment, error)
	ApplyCheckoutCompletedFn        func(ctx context.Context, eventID string, sub domain.Subscription) error
	ApplySubscriptionUpdatedFn      func(ctx context.Context, eventID string, eventAt time.Time, sub domain.Subscription) error
	ApplySubscriptionDeletedFn      func(ctx context.Context, eventID string, eventAt time.Time, stripeSubscriptionID string) error
	ApplyPaymentSucceededFn         func(ctx context.Context, eventID, stripeCustomerID string, p domain.Payment) error
	ApplyPaymentFailedFn            func(ctx context.Context, eventID string, eventAt time.Time, stripeSubscriptionID string) error
}

func (m *mockRepo) CreateCustomer(ctx context.Context, c domain.Customer) (int64, error) {
	return m.CreateCustomerFn(ctx, c)
}
func (m *mockRepo) GetCustomerByID(ctx context.Context, id int64) (*domain.Customer, error) {
	return m.GetCustomerByIDFn(ctx, id)
}
func (m *mockRepo) GetCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	return m.GetCustomerByEmailFn(ctx, email)
}
func (m *mockRepo) GetCustomerByStripeID(ctx context.Context, stripeCustomerID string) (*domain.Customer, error) {
	return m.GetCustomerByStripeIDFn(ctx, stripeCustomerID)
}
func (m *mockRepo) SetStripeCustomerID(ctx context.Context, id int64, stripeCustomerID string) error {
	return m.SetStripeCustomerIDFn(ctx, id, stripeCustomerID)
}
func (m *mockRepo) ActiveSubscriptionForCustomer(ctx context.Context, customerID int64) (*domain.Subscription, error) {
	if m.ActiveSubscriptionForCustomerFn == nil {
		return nil, repository.ErrSubscriptionNotFound
	}
	return m.ActiveSubscriptionForCustomerFn(ctx, customerID)
}
func (m *mockRepo) GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*domain.Subscription, error) {
	return m.GetSubscriptionByStripeIDFn(ctx, stripeSubscriptionID)
}
func (m *mockRepo) PaymentsForCustomer(ctx context.Context, customerID int64) ([]domain.Payment, error) {
	return m.PaymentsForCustomerFn(ctx, customerID)
}
func (m *mockRepo) ApplyCheckoutCompleted(ctx context.Context, eventID string, sub domain.Subscription) error {
	return m.ApplyCheckoutCompletedFn(ctx, eventID, sub)
}
func (m *mockRepo) ApplySubscriptionUpdated(ctx context.Context, eventID string, eventAt time.Time, sub domain.Subscription) error {
	return m.ApplySubscriptionUpdatedFn(ctx, eventID, eventAt, sub)
}
func (m *mockRepo) ApplySubscriptionDeleted(ctx context.Context, eventID string, eventAt time.Time, stripeSubscriptionID string) error {
	return m.ApplySubscriptionDeletedFn(ctx, eventID, eventAt, stripeSubscriptionID)
}
func (m *mockRepo) ApplyPaymentSucceeded(ctx context.Context, eventID, stripeCustomerID string, p domain.Payment) error {
	return m.ApplyPaymentSucceededFn(ctx, eventID, stripeCustomerID, p)
}
func (m *mockRepo) ApplyPaymentFailed(ctx context.Context, eventID string, eventAt time.Time, stripeSubscriptionID string) error {
	return m.ApplyPaymentFailedFn(ctx, eventID, eventAt, stripeSubscriptionID)
}

// mockGateway fakes the Stripe API.
type mockGateway struct {
	CreateCustomerFn        func(ctx context.Context, name, email string) (string, error)
	CreateCheckoutSessionFn func(ctx context.Context, stripeCustomerID, priceID, successURL, cancelURL string) (string, error)
	CreatePortalSessionFn   func(ctx context.Context, stripeCustomerID, returnURL string) (string, error)
	GetSubscriptionFn       func(ctx context.Context, stripeSubscriptionID string) (*stripe.Subscription, error)
	CancelAtPeriodEndFn     func(ctx context.Context, stripeSubscriptionID string) error
}

func (m *mockGateway) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	return m.CreateCustomerFn(ctx, name, email)
}
func (m *mockGateway) CreateCheckoutSession(ctx context.Context, stripeCustomerID, priceID, successURL, cancelURL string) (string, error) {
	return m.CreateCheckoutSessionFn(ctx, stripeCustomerID, priceID, successURL, cancelURL)
}
func (m *mockGateway) CreatePortalSession(ctx context.Context, stripeCustomerID, returnURL string) (string, error) {
	return m.CreatePortalSessionFn(ctx, stripeCustomerID, returnURL)
}
func (m *mockGateway) GetSubscription(ctx context.Context, stripeSubscriptionID string) (*stripe.Subscription, error) {
	return m.GetSubscriptionFn(ctx, stripeSubscriptionID)
}
func (m *mockGateway) CancelAtPeriodEnd(ctx context.Context, stripeSubscriptionID string) error {
	return m.CancelAtPeriodEndFn(ctx, stripeSubscriptionID)
}
