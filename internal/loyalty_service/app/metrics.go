package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	settlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_settlements_total",
			Help: "Purchase settlements by outcome (settled, replayed, failed).",
		},
		[]string{"outcome"},
	)

	pointsAwardedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loyalty_points_awarded_total",
			Help: "Loyalty points credited to buyers.",
		},
	)

	commissionPaiseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_commission_paise_total",
			Help: "Referral commission recorded, in paise, by level.",
		},
		[]string{"level"},
	)

	boostCreditedPaiseTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loyalty_boost_credited_paise_total",
			Help: "Boost cashback credited to merchants, in paise.",
		},
	)

	withdrawalRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_withdrawal_requests_total",
			Help: "Boost withdrawal and wallet payout transitions.",
		},
		[]string{"kind", "status"},
	)

	paymentOrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_payment_orders_total",
			Help: "Payment orders by resulting status.",
		},
		[]string{"status"},
	)

	webhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_payment_webhooks_total",
			Help: "Payment gateway webhooks by handling result.",
		},
		[]string{"result"},
	)

	eventPublishFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_event_publish_failures_total",
			Help: "Events that could not be published to the broker.",
		},
		[]string{"subject"},
	)
)
