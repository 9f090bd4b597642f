package domain

import "time"

// SubscriptionStatus mirrors the status strings reported by Stripe. Statuses we
// don't enumerate are stored verbatim so new provider values pass through
// instead of failing.
type SubscriptionStatus string

const (
	StatusIncomplete SubscriptionStatus = "incomplete"
	StatusTrialing   SubscriptionStatus = "trialing"
	StatusActive     SubscriptionStatus = "active"
	StatusPastDue    SubscriptionStatus = "past_due"

	// StatusCanceled is terminal: once a subscription reaches it, no later
	// provider event moves it out. A new purchase creates a new row.
	StatusCanceled SubscriptionStatus = "canceled"
)

// Customer links one of our users to their Stripe customer record.
// StripeCustomerID stays empty until the first purchase attempt and is
// immutable once set.
type Customer struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`

	StripeCustomerID string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// Subscription is our local copy of one Stripe subscription. It is mutated in
// place by lifecycle webhooks and never deleted; cancellation is a status, not
// a row removal.
type Subscription struct {
	ID         int64 `json:"id"`
	CustomerID int64 `json:"customer_id"`

	StripeSubscriptionID string             `json:"-"`
	StripePriceID        string             `json:"stripe_price_id"`
	Status               SubscriptionStatus `json:"status"`
	CurrentPeriodStart   time.Time          `json:"current_period_start"`
	CurrentPeriodEnd     time.Time          `json:"current_period_end"`
	CancelAtPeriodEnd    bool               `json:"cancel_at_period_end"`

	// LastEventAt is the Stripe-reported timestamp of the most recently
	// applied event for this subscription. Updates carrying an older
	// timestamp are stale retries and must not overwrite newer state.
	LastEventAt time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Payment is one row of the append-only payment ledger. Amount is in minor
// currency units (cents). Rows are never mutated after insert.
type Payment struct {
	ID         int64 `json:"id"`
	CustomerID int64 `json:"customer_id"`

	StripePaymentIntentID string `json:"-"`
	StripeInvoiceID       string `json:"-"`
	Amount                int64  `json:"amount"`
	Currency              string `json:"currency"`
	Status                string `json:"status"`
	Description           string `json:"description"`

	CreatedAt time.Time `json:"created_at"`
}
