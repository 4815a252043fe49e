package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the settlement core.
type Metrics struct {
	// --- Deposits ---
	DepositsCredited  prometheus.Counter
	DepositsIgnored   *prometheus.CounterVec
	DepositDuplicates *prometheus.CounterVec
	BonusesGranted    prometheus.Counter
	DepositedTotal    prometheus.Counter

	// --- Withdrawals ---
	Withdrawals             *prometheus.CounterVec
	WithdrawalCompensations prometheus.Counter
	CompensationFailures    prometheus.Counter
	WithdrawnTotal          prometheus.Counter

	// --- Commissions ---
	CommissionsPaid    *prometheus.CounterVec
	CommissionsSkipped *prometheus.CounterVec
	CommissionTotal    *prometheus.CounterVec

	// --- Handler latency ---
	HandlerDuration *prometheus.HistogramVec

	// --- Gateway adapter ---
	GatewayRequestDuration *prometheus.HistogramVec
	GatewayErrors          *prometheus.CounterVec

	// --- Ingestion ---
	NotificationsReceived *prometheus.CounterVec
	NotificationsDropped  prometheus.Counter
	PublishDrops          prometheus.Counter

	// --- Ledger entry writer ---
	EntriesWritten   prometheus.Counter
	EntryWriteErrors prometheus.Counter
	EntryDrops       prometheus.Counter
	EntryBatchSize   prometheus.Histogram

	// --- Channels ---
	ChannelSize        *prometheus.GaugeVec
	ChannelCapacity    *prometheus.GaugeVec
	ChannelUtilization *prometheus.GaugeVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	handlerBuckets := []float64{
		0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0,
	}

	gatewayBuckets := []float64{
		0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
	}

	return &Metrics{
		// Deposits
		DepositsCredited: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ref_deposits_credited_total",
			Help: "Approved deposits credited to the ledger",
		}),

		DepositsIgnored: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ref_deposits_ignored_total",
			Help: "Deposit notifications acknowledged without mutation",
		}, []string{"reason"}),

		DepositDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ref_deposit_duplicates_total",
			Help: "Redelivered order ids caught (lru/claim)",
		}, []string{"tier"}),

		BonusesGranted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ref_bonuses_granted_total",
			Help: "First-deposit bonuses granted",
		}),

		DepositedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ref_deposited_cents_total",
			Help: "Total credited deposit volume in cents (bonus included)",
		}),

		// Withdrawals
		Withdrawals: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ref_withdrawals_total",
			Help: "Withdrawal requests by outcome",
		}, []string{"outcome"}),

		WithdrawalCompensations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ref_withdrawal_compensations_total",
			Help: "Debits credited back after payout failure",
		}),

		CompensationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ref_compensation_failures_total",
			Help: "Failed compensation credits (operator follow-up required)",
		}),

		WithdrawnTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ref_withdrawn_cents_total",
			Help: "Total debited withdrawal volume in cents",
		}),

		// Commissions
		CommissionsPaid: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ref_commissions_paid_total",
			Help: "Commission credits by cascade level",
		}, []string{"level"}),

		CommissionsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ref_commissions_skipped_total",
			Help: "Affiliation events that paid nothing",
		}, []string{"reason"}),

		CommissionTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ref_commission_cents_total",
			Help: "Total commission volume in cents by level",
		}, []string{"level"}),

		// Handler latency
		HandlerDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ref_handler_duration_seconds",
			Help:    "End-to-end handler latency",
			Buckets: handlerBuckets,
		}, []string{"operation"}),

		// Gateway
		GatewayRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ref_gateway_request_duration_seconds",
			Help:    "Payment gateway call latency",
			Buckets: gatewayBuckets,
		}, []string{"call"}),

		GatewayErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ref_gateway_errors_total",
			Help: "Payment gateway call failures",
		}, []string{"call"}),

		// Ingestion
		NotificationsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ref_notifications_received_total",
			Help: "Inbound events by subject",
		}, []string{"subject"}),

		NotificationsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ref_notifications_dropped_total",
			Help: "Unparseable inbound events acked without processing",
		}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ref_publish_drops_total",
			Help: "Outbound settlement events dropped on full channel",
		}),

		// Entry writer
		EntriesWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ref_entries_written_total",
			Help: "Ledger entries written to Postgres",
		}),

		EntryWriteErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ref_entry_write_errors_total",
			Help: "Ledger entry batch write failures",
		}),

		EntryDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ref_entry_drops_total",
			Help: "Ledger entries dropped on full channel",
		}),

		EntryBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ref_entry_batch_size",
			Help:    "Entries per batch insert",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		}),

		// Channels
		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ref_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ref_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ref_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
