package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BoweryJG/bowerycreativepayments/internal/config"
	"github.com/BoweryJG/bowerycreativepayments/internal/domain"
	"github.com/BoweryJG/bowerycreativepayments/internal/repository"
)

// BillingService holds the business logic for the billing portal: customer
// registration, checkout/portal session creation, subscription reads and the
// webhook reconciliation in webhook.go.
type BillingService struct {
	repo   repository.BillingRepository
	stripe StripeGateway

	webhookSecret string
	successURL    string
	cancelURL     string
	returnURL     string
	storeTimeout  time.Duration
}

// NewBillingService wires the service with its persistence and Stripe
// dependencies.
func NewBillingService(repo repository.BillingRepository, gw StripeGateway, cfg config.Config) *BillingService {
	return &BillingService{
		repo:          repo,
		stripe:        gw,
		webhookSecret: cfg.StripeWebhookSecret,
		successURL:    cfg.CheckoutSuccessURL,
		cancelURL:     cfg.CheckoutCancelURL,
		returnURL:     cfg.PortalReturnURL,
		storeTimeout:  cfg.StoreTimeout,
	}
}

// CreateCustomer registers a local customer. The Stripe counterpart is only
// created later, on the first purchase attempt.
func (s *BillingService) CreateCustomer(ctx context.Context, c domain.Customer) (int64, error) {
	if c.Name == "" || c.Email == "" || !strings.Contains(c.Email, "@") {
		return 0, ErrInvalidCustomer
	}
	return s.repo.CreateCustomer(ctx, c)
}

func (s *BillingService) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	c, err := s.repo.GetCustomerByID(ctx, id)
	if errors.Is(err, repository.ErrCustomerNotFound) {
		return nil, ErrCustomerNotFound
	}
	return c, err
}

// CreateCheckoutSession starts a subscription purchase for the authenticated
// user and returns the hosted checkout URL. A customer row (local and Stripe)
// is created on the first attempt.
func (s *BillingService) CreateCheckoutSession(ctx context.Context, email, planID string, annual bool) (string, error) {
	priceID, err := PriceIDFor(planID, annual)
	if err != nil {
		return "", err
	}

	cust, err := s.repo.GetCustomerByEmail(ctx, email)
	if errors.Is(err, repository.ErrCustomerNotFound) {
		id, cerr := s.repo.CreateCustomer(ctx, domain.Customer{Name: email, Email: email})
		if cerr != nil {
			return "", cerr
		}
		cust = &domain.Customer{ID: id, Name: email, Email: email}
	} else if err != nil {
		return "", err
	}

	if sub, err := s.repo.ActiveSubscriptionForCustomer(ctx, cust.ID); err == nil && sub != nil {
		return "", ErrSubscriptionActive
	} else if err != nil && !errors.Is(err, repository.ErrSubscriptionNotFound) {
		return "", err
	}

	if cust.StripeCustomerID == "" {
		stripeID, err := s.stripe.CreateCustomer(ctx, cust.Name, cust.Email)
		if err != nil {
			slog.Error("creating stripe customer failed", "customer_id", cust.ID, "error", err)
			return "", err
		}
		if err := s.repo.SetStripeCustomerID(ctx, cust.ID, stripeID); err != nil {
			return "", err
		}
		cust.StripeCustomerID = stripeID
	}

	url, err := s.stripe.CreateCheckoutSession(ctx, cust.StripeCustomerID, priceID, s.successURL, s.cancelURL)
	if err != nil {
		slog.Error("creating checkout session failed", "customer_id", cust.ID, "error", err)
		return "", err
	}
	return url, nil
}

// CreatePortalSession returns a Stripe billing-portal URL for an existing
// customer.
func (s *BillingService) CreatePortalSession(ctx context.Context, email string) (string, error) {
	cust, err := s.repo.GetCustomerByEmail(ctx, email)
	if errors.Is(err, repository.ErrCustomerNotFound) {
		return "", ErrCustomerNotFound
	}
	if err != nil {
		return "", err
	}
	if cust.StripeCustomerID == "" {
		return "", ErrCustomerNotFound
	}
	return s.stripe.CreatePortalSession(ctx, cust.StripeCustomerID, s.returnURL)
}

// CancelSubscription flags the customer's active subscription to end at the
// period close. Local state is not touched here: the status change arrives
// through the webhook like every other lifecycle transition.
func (s *BillingService) CancelSubscription(ctx context.Context, email string) error {
	sub, err := s.ActiveSubscription(ctx, email)
	if err != nil {
		return err
	}
	if err := s.stripe.CancelAtPeriodEnd(ctx, sub.StripeSubscriptionID); err != nil {
		return fmt.Errorf("canceling subscription %d: %w", sub.ID, err)
	}
	return nil
}

// ActiveSubscription returns the customer's current active subscription.
func (s *BillingService) ActiveSubscription(ctx context.Context, email string) (*domain.Subscription, error) {
	cust, err := s.repo.GetCustomerByEmail(ctx, email)
	if errors.Is(err, repository.ErrCustomerNotFound) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, err
	}
	sub, err := s.repo.ActiveSubscriptionForCustomer(ctx, cust.ID)
	if errors.Is(err, repository.ErrSubscriptionNotFound) {
		return nil, ErrSubscriptionNotFound
	}
	return sub, err
}

// PaymentHistory returns the customer's payment ledger, newest first.
func (s *BillingService) PaymentHistory(ctx context.Context, email string) ([]domain.Payment, error) {
	cust, err := s.repo.GetCustomerByEmail(ctx, email)
	if errors.Is(err, repository.ErrCustomerNotFound) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.repo.PaymentsForCustomer(ctx, cust.ID)
}
