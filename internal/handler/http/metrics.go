package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhookOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stripe_webhook_events_total",
			Help: "Stripe webhook deliveries by processing outcome.",
		},
		[]string{"outcome"},
	)

	// unattributedPayments counts payments we could not link to a customer.
	// Alert on any increase: it means money arrived without a ledger owner.
	unattributedPayments = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stripe_unattributed_payments_total",
			Help: "Payment events acknowledged without a matching customer.",
		},
	)
)
