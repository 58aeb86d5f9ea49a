package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkouts_started_total",
		Help: "Total number of checkouts started",
	})

	InvoicesIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invoices_issued_total",
		Help: "Total number of payment invoices issued",
	})

	PreCheckoutAnsweredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pre_checkout_answered_total",
		Help: "Total number of pre-checkout queries answered",
	}, []string{"result"})

	OrdersPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_paid_total",
		Help: "Total number of orders committed after payment",
	})

	OrdersManualTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_manual_fulfillment_total",
		Help: "Total number of orders flagged for manual fulfillment",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed checkout attempts",
	}, []string{"reason"})

	ReconciliationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_reconciliations_total",
		Help: "Total number of settled payments whose order commit failed",
	})

	GateHaltsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gate_halts_total",
		Help: "Total number of updates halted by the access gate",
	}, []string{"reason"})

	CartAddsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cart_adds_total",
		Help: "Total number of add-to-cart actions",
	})

	CartPrunedLinesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cart_pruned_lines_total",
		Help: "Total number of stale cart lines pruned on listing",
	})

	BroadcastSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broadcast_sent_total",
		Help: "Total number of broadcast messages delivered",
	})

	BroadcastFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broadcast_failed_total",
		Help: "Total number of broadcast messages that failed to deliver",
	})

	CheckoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_commit_latency_seconds",
		Help:    "Latency of the payment-success commit transaction",
		Buckets: prometheus.DefBuckets,
	})

	UpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telegram_updates_total",
		Help: "Total number of Telegram updates processed",
	}, []string{"kind"})
)
