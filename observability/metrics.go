package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	BookingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_transitions_total",
			Help: "Booking state transitions that were applied",
		},
		[]string{"to"},
	)

	PaymentVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_verifications_total",
			Help: "Payment callbacks by verification outcome",
		},
		[]string{"result"},
	)

	WalletMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_mutations_total",
			Help: "Wallet credit/debit operations",
		},
		[]string{"op", "status"},
	)

	RepositoryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repository_duration_seconds",
			Help:    "Duration of repository method calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	HoldsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "booking_holds_expired_total",
			Help: "Pending holds cancelled after their TTL elapsed",
		},
	)
)

func InitMetrics() {
	prometheus.MustRegister(BookingTransitions, PaymentVerifications, WalletMutations, RepositoryDuration, HoldsExpired)
}

// ObserveRepository records how long a repository method took.
func ObserveRepository(method string, start time.Time) {
	RepositoryDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

func walletStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func RecordWalletMutation(op string, err error) {
	WalletMutations.WithLabelValues(op, walletStatus(err)).Inc()
}
