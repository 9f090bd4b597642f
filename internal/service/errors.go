package service

import "errors"

// Business errors the HTTP layer maps to statuses.
var (
	ErrCustomerNotFound     = errors.New("customer not found")
	ErrInvalidCustomer      = errors.New("invalid customer data")
	ErrSubscriptionActive   = errors.New("customer already has an active subscription")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrUnknownPlan          = errors.New("unknown plan")
)

// Webhook outcomes. Signature and payload failures are permanent (the provider
// must not retry), an unknown customer on a payment is an integrity problem we
// acknowledge but alert on, and a store failure is the one retryable case.
var (
	ErrInvalidSignature = errors.New("webhook signature verification failed")
	ErrInvalidPayload   = errors.New("webhook payload is malformed")
	ErrUnknownCustomer  = errors.New("payment received for unknown customer")
	ErrStoreUnavailable = errors.New("billing store unavailable")
)
