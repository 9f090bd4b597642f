package service

import (
	"context"

	"github.com/stripe/stripe-go/v78"
	portalsession "github.com/stripe/stripe-go/v78/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v78/checkout/session"
	"github.com/stripe/stripe-go/v78/customer"
	"github.com/stripe/stripe-go/v78/subscription"
)

// StripeGateway covers the outbound Stripe calls the service makes. Webhook
// reconciliation only needs GetSubscription; the rest serves the portal API.
type StripeGateway interface {
	CreateCustomer(ctx context.Context, name, email string) (string, error)
	CreateCheckoutSession(ctx context.Context, stripeCustomerID, priceID, successURL, cancelURL string) (string, error)
	CreatePortalSession(ctx context.Context, stripeCustomerID, returnURL string) (string, error)
	GetSubscription(ctx context.Context, stripeSubscriptionID string) (*stripe.Subscription, error)
	CancelAtPeriodEnd(ctx context.Context, stripeSubscriptionID string) error
}

type stripeGateway struct{}

// NewStripeGateway sets the global API key and returns the production gateway.
func NewStripeGateway(apiKey string) StripeGateway {
	stripe.Key = apiKey
	return stripeGateway{}
}

func (stripeGateway) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	params := &stripe.CustomerParams{
		Name:  stripe.String(name),
		Email: stripe.String(email),
	}
	params.Context = ctx
	c, err := customer.New(params)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

func (stripeGateway) CreateCheckoutSession(ctx context.Context, stripeCustomerID, priceID, successURL, cancelURL string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Customer:   stripe.String(stripeCustomerID),
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

func (stripeGateway) CreatePortalSession(ctx context.Context, stripeCustomerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(stripeCustomerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	sess, err := portalsession.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

func (stripeGateway) GetSubscription(ctx context.Context, stripeSubscriptionID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	return subscription.Get(stripeSubscriptionID, params)
}

func (stripeGateway) CancelAtPeriodEnd(ctx context.Context, stripeSubscriptionID string) error {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.Context = ctx
	_, err := subscription.Update(stripeSubscriptionID, params)
	return err
}
